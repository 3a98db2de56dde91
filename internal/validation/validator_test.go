package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/validation"
)

type syncRequest struct {
	UserID          string   `json:"user_id" validate:"identifier"`
	BookID          string   `json:"book_id" validate:"identifier"`
	CurrentPosition float64  `json:"current_position" validate:"gte=0,lte=1"`
	TotalProgress   *float64 `json:"total_progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	Note            string   `json:"note" validate:"max=10"`
}

func validRequest() syncRequest {
	return syncRequest{UserID: "user-1", BookID: "book-1", CurrentPosition: 0.5}
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
	fields, ok := domainErr.Details.(map[string]string)
	require.True(t, ok, "details should be a field map")
	return fields
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(validRequest()))

	edge := validRequest()
	edge.CurrentPosition = 1
	total := 100.0
	edge.TotalProgress = &total
	assert.NoError(t, v.Validate(edge))

	edge.CurrentPosition = 0
	assert.NoError(t, v.Validate(edge))
}

func TestValidator_Identifier(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name    string
		userID  string
		wantMsg string
	}{
		{"missing", "", "is required"},
		{"too long", strings.Repeat("u", 129), "must not exceed 128 characters"},
		{"separator", "user:1", "must not contain ':'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.UserID = tt.userID

			err := v.Validate(req)
			require.Error(t, err)
			assert.Equal(t, tt.wantMsg, details(t, err)["user_id"])
		})
	}

	req := validRequest()
	req.UserID = strings.Repeat("u", 128)
	assert.NoError(t, v.Validate(req))
}

func TestValidator_Ranges(t *testing.T) {
	v := validation.New()

	req := validRequest()
	req.CurrentPosition = 1.5
	err := v.Validate(req)
	require.ErrorIs(t, err, domainerrors.ErrValidation)
	assert.Equal(t, "must be less than or equal to 1", details(t, err)["current_position"])

	req = validRequest()
	req.CurrentPosition = -0.1
	assert.Contains(t, details(t, v.Validate(req)), "current_position")

	req = validRequest()
	over := 100.5
	req.TotalProgress = &over
	assert.Equal(t, "must be less than or equal to 100", details(t, v.Validate(req))["total_progress"])

	req = validRequest()
	req.Note = "this note is far too long"
	assert.Equal(t, "must not exceed 10 characters", details(t, v.Validate(req))["note"])
}

func TestValidator_MultipleFields(t *testing.T) {
	v := validation.New()

	err := v.Validate(syncRequest{CurrentPosition: 2})
	fields := details(t, err)
	assert.Len(t, fields, 3)
	assert.Contains(t, fields, "user_id")
	assert.Contains(t, fields, "book_id")
	assert.Contains(t, fields, "current_position")
}
