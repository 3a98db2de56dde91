package response

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"message": "test"}, testLogger())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var result Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotNil(t, result.Data)
}

func TestJSON_NilLogger(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, []int{1, 2}, nil)

	assert.JSONEq(t, `{"success":true,"data":[1,2]}`, w.Body.String())
}

func TestError_Body(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusConflict, domainerrors.CodeConflict, "download is COMPLETED", map[string]string{"status": "COMPLETED"}, testLogger())

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"code":"CONFLICT","message":"download is COMPLETED","details":{"status":"COMPLETED"}}`, w.Body.String())
}

func TestDomainError(t *testing.T) {
	t.Run("domain error keeps its code", func(t *testing.T) {
		w := httptest.NewRecorder()
		DomainError(w, http.StatusBadGateway, domainerrors.Retrievalf("remote file returned status %d", 404), testLogger())

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var body ErrorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "RETRIEVAL", body.Code)
		assert.Equal(t, "remote file returned status 404", body.Message)
	})

	t.Run("unknown error hides its text", func(t *testing.T) {
		w := httptest.NewRecorder()
		DomainError(w, http.StatusBadRequest, errors.New("disk on fire"), testLogger())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "disk on fire")
		assert.Contains(t, w.Body.String(), `"INTERNAL"`)
	})
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "missing bearer token", nil) }, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"rate limited", func(w http.ResponseWriter) { TooManyRequests(w, nil) }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "route not found", nil) }, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}
