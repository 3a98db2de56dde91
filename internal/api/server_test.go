package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booksyapp/booksy-server/internal/auth"
	"github.com/booksyapp/booksy-server/internal/counter"
	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/ratelimit"
	"github.com/booksyapp/booksy-server/internal/service"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/storage"
	"github.com/booksyapp/booksy-server/internal/store/sqlite"
	"github.com/booksyapp/booksy-server/internal/validation"
)

const epubBody = "PK\x03\x04epub-bytes"

// testServer wraps the API server for handler tests.
type testServer struct {
	*Server
	api    humatest.TestAPI
	tokens *auth.TokenService
}

func setupTestServer(t *testing.T, limiter *ratelimit.KeyedRateLimiter) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "booksy.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "book"))
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "dune.epub", strings.NewReader(epubBody), int64(len(epubBody)), ""))

	now := time.Now().UTC()
	for _, b := range []*domain.Book{
		{ID: "book-dune", Title: "Dune", Author: "Frank Herbert", FileURL: "uploads/dune.epub", FileType: "EPUB"},
		{ID: "book-mobi", Title: "Old", Author: "Format", FileURL: "old.mobi", FileType: "MOBI"},
		{ID: "book-gone", Title: "Gone", Author: "Missing", FileURL: "gone.pdf", FileType: "PDF"},
	} {
		b.CreatedAt, b.UpdatedAt = now, now
		require.NoError(t, st.SaveBook(ctx, b))
	}
	require.NoError(t, st.SaveChapter(ctx, &domain.Chapter{ID: "ch-1", BookID: "book-dune", ChapterNumber: 1, Title: "Prologue", CreatedAt: now}))

	key, err := auth.LoadOrGenerateKey(t.TempDir())
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(hex.EncodeToString(key), 15*time.Minute)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)
	v := validation.New()
	resolver := source.NewResolver(backend, counter.NewStoreCounter(st), logger)

	services := &Services{
		Downloads:   service.NewDownloadService(st, resolver, sseManager, v, logger),
		Progress:    service.NewProgressService(st, sseManager, v, logger),
		Annotations: service.NewAnnotationService(st, sseManager, v, logger),
		Sources:     service.NewSourceService(st, resolver, source.NewOpener(backend, 5*time.Second), v, logger),
	}

	s := NewServer(Config{CORSAllowedOrigins: []string{"*"}}, st, services, tokens, limiter, sseManager, logger)

	return &testServer{
		Server: s,
		api:    humatest.Wrap(t, s.API()),
		tokens: tokens,
	}
}

func (ts *testServer) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := ts.tokens.GenerateAccessToken(userID, userID+"@example.com")
	require.NoError(t, err)
	return "Authorization: Bearer " + token
}

type testEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type testError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeData[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	require.True(t, env.Success, resp.Body.String())
	return env.Data
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) testError {
	t.Helper()
	var body testError
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	health := decodeData[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Components["database"].Status)
	assert.Equal(t, "0 clients connected", health.Components["sse"].Message)
}

func TestRequiresAuthentication(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp := ts.api.Get("/api/v1/downloads")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Code)

	resp = ts.api.Get("/api/v1/progress", "Authorization: Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// The raw stream routes answer with the same error body.
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books/book-dune/file", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
}

func TestDownloadLifecycle(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Post("/api/v1/downloads", hdr, map[string]any{
		"book_id":     "book-dune",
		"device_info": map[string]any{"platform": "android", "device_id": "pixel-8"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	started := decodeData[service.DownloadResult](t, resp)
	assert.Equal(t, domain.OutcomeReadyToDownload, started.Outcome)
	require.NotNil(t, started.Source)
	assert.Equal(t, domain.RetrievalLocalStorage, started.Source.RetrievalMethod)
	assert.Equal(t, "pixel-8", started.Download.DeviceInfo.DeviceID)
	recordID := started.Download.ID

	resp = ts.api.Put("/api/v1/downloads/records/"+recordID+"/progress", hdr, map[string]any{"progress": 40, "size": 512})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 40, decodeData[domain.DownloadRecord](t, resp).Progress)

	resp = ts.api.Post("/api/v1/downloads/records/"+recordID+"/finalize", hdr, map[string]any{"total_size": 1024})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	done := decodeData[domain.DownloadRecord](t, resp)
	assert.Equal(t, domain.DownloadStatusCompleted, done.Status)
	assert.Equal(t, int64(1024), done.DownloadSize)

	resp = ts.api.Post("/api/v1/downloads", hdr, map[string]any{"book_id": "book-dune"})
	require.Equal(t, http.StatusOK, resp.Code)
	again := decodeData[service.DownloadResult](t, resp)
	assert.Equal(t, domain.OutcomeAlreadyDownloaded, again.Outcome)
	assert.Nil(t, again.Source)

	resp = ts.api.Get("/api/v1/downloads", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	list := decodeData[[]domain.DownloadedBook](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "Dune", list[0].Book.Title)

	resp = ts.api.Delete("/api/v1/downloads/book-dune", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, domain.DownloadStatusDeleted, decodeData[domain.DownloadRecord](t, resp).Status)

	resp = ts.api.Get("/api/v1/downloads/book-dune", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, domain.DownloadStatusDeleted, decodeData[domain.DownloadRecord](t, resp).Status)
}

func TestDownloadErrors(t *testing.T) {
	ts := setupTestServer(t, nil)
	owner := ts.bearer(t, "user-1")

	resp := ts.api.Post("/api/v1/downloads", owner, map[string]any{"book_id": "book-dune"})
	require.Equal(t, http.StatusOK, resp.Code)
	recordID := decodeData[service.DownloadResult](t, resp).Download.ID

	tests := []struct {
		name       string
		do         func() *httptest.ResponseRecorder
		wantStatus int
		wantCode   string
	}{
		{"unknown book", func() *httptest.ResponseRecorder {
			return ts.api.Post("/api/v1/downloads", owner, map[string]any{"book_id": "book-none"})
		}, http.StatusNotFound, "NOT_FOUND"},
		{"unsupported format", func() *httptest.ResponseRecorder {
			return ts.api.Post("/api/v1/downloads", owner, map[string]any{"book_id": "book-mobi"})
		}, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"},
		{"missing artifact", func() *httptest.ResponseRecorder {
			return ts.api.Post("/api/v1/downloads", owner, map[string]any{"book_id": "book-gone"})
		}, http.StatusNotFound, "NOT_FOUND"},
		{"invalid book id", func() *httptest.ResponseRecorder {
			return ts.api.Post("/api/v1/downloads", owner, map[string]any{"book_id": "a:b"})
		}, http.StatusBadRequest, "VALIDATION"},
		{"missing book id", func() *httptest.ResponseRecorder {
			return ts.api.Post("/api/v1/downloads", owner, map[string]any{})
		}, http.StatusBadRequest, "VALIDATION"},
		{"progress out of range", func() *httptest.ResponseRecorder {
			return ts.api.Put("/api/v1/downloads/records/"+recordID+"/progress", owner, map[string]any{"progress": 101})
		}, http.StatusBadRequest, "VALIDATION"},
		{"record of another user", func() *httptest.ResponseRecorder {
			return ts.api.Put("/api/v1/downloads/records/"+recordID+"/progress", ts.bearer(t, "user-2"), map[string]any{"progress": 10})
		}, http.StatusNotFound, "NOT_FOUND"},
		{"delete without record", func() *httptest.ResponseRecorder {
			return ts.api.Delete("/api/v1/downloads/book-mobi", owner)
		}, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.do()
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, resp).Code)
		})
	}
}

func TestDownloadConflictAfterCompletion(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Post("/api/v1/downloads", hdr, map[string]any{"book_id": "book-dune"})
	require.Equal(t, http.StatusOK, resp.Code)
	recordID := decodeData[service.DownloadResult](t, resp).Download.ID

	resp = ts.api.Put("/api/v1/downloads/records/"+recordID+"/progress", hdr, map[string]any{"progress": 100})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/downloads/records/"+recordID+"/failure", hdr, map[string]any{"message": "late failure"})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	assert.Equal(t, "CONFLICT", decodeError(t, resp).Code)
}

func TestReportFailure_DefaultMessage(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Post("/api/v1/downloads", hdr, map[string]any{"book_id": "book-dune"})
	require.Equal(t, http.StatusOK, resp.Code)
	recordID := decodeData[service.DownloadResult](t, resp).Download.ID

	resp = ts.api.Post("/api/v1/downloads/records/"+recordID+"/failure", hdr, map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	failed := decodeData[domain.DownloadRecord](t, resp)
	assert.Equal(t, domain.DownloadStatusFailed, failed.Status)
	assert.Equal(t, domain.DefaultFailureMessage, failed.ErrorMessage)
}

func TestBookSourceAndFile(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Get("/api/v1/books/book-dune/source", hdr)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	desc := decodeData[domain.SourceDescriptor](t, resp)
	assert.Equal(t, "application/epub+zip", desc.ContentType)
	assert.Equal(t, "Dune - Frank Herbert.epub", desc.FileName)
	assert.False(t, desc.IsRemote)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/books/book-dune/file", nil)
	req.Header.Set("Authorization", strings.TrimPrefix(hdr, "Authorization: "))
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, epubBody, rec.Body.String())
	assert.Equal(t, "application/epub+zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Dune - Frank Herbert.epub")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/books/book-mobi/file", nil)
	req.Header.Set("Authorization", strings.TrimPrefix(hdr, "Authorization: "))
	rec = httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_FORMAT", decodeError(t, rec).Code)
}

func TestProgressEndpoints(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Get("/api/v1/progress/book-dune", hdr)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Post("/api/v1/progress/book-dune/sync", hdr, map[string]any{
		"chapter_id": "ch-1", "chapter_number": 1, "current_position": 0.25, "total_progress": 12.5, "reading_time_delta": 7,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	p := decodeData[domain.ReadingProgress](t, resp)
	assert.Equal(t, int64(7), p.ReadingTime)
	assert.Equal(t, 12.5, p.TotalProgress)

	resp = ts.api.Post("/api/v1/progress/book-dune/sync", hdr, map[string]any{
		"chapter_id": "ch-1", "chapter_number": 1, "current_position": 0.5, "reading_time_delta": 3,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	p = decodeData[domain.ReadingProgress](t, resp)
	assert.Equal(t, int64(10), p.ReadingTime)
	assert.Equal(t, 12.5, p.TotalProgress, "absent total keeps the stored value")

	resp = ts.api.Put("/api/v1/progress/book-dune/checkpoint", hdr, map[string]any{
		"chapter_id": "ch-1", "chapter_number": 1, "percentage": 30,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/progress/book-dune/checkpoint", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	cp := decodeData[domain.Checkpoint](t, resp)
	require.NotNil(t, cp.Percentage)
	assert.Equal(t, 30.0, *cp.Percentage)

	resp = ts.api.Get("/api/v1/progress", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	listed := decodeData[[]map[string]json.RawMessage](t, resp)
	require.Len(t, listed, 1)
	assert.JSONEq(t, `[]`, string(listed[0]["bookmarks"]))
	assert.JSONEq(t, `[]`, string(listed[0]["notes"]))

	resp = ts.api.Post("/api/v1/progress/book-dune/sync", hdr, map[string]any{
		"chapter_id": "ch-1", "chapter_number": 1, "current_position": 1.5,
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.NotEmpty(t, body.Details)
}

func TestAnnotationEndpoints(t *testing.T) {
	ts := setupTestServer(t, nil)
	hdr := ts.bearer(t, "user-1")

	resp := ts.api.Get("/api/v1/progress/book-dune/bookmarks", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decodeData[[]domain.ResolvedBookmark](t, resp))

	resp = ts.api.Delete("/api/v1/progress/book-dune/bookmarks?chapter_id=ch-1&position=0.4", hdr)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"removed":0,"bookmarks":[]}`, string(decodeData[json.RawMessage](t, resp)))

	for range 2 {
		resp = ts.api.Post("/api/v1/progress/book-dune/bookmarks", hdr, map[string]any{"chapter_id": "ch-1", "position": 0.4})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	}
	bm := decodeData[domain.ResolvedBookmark](t, resp)
	require.NotNil(t, bm.Chapter)
	assert.Equal(t, "Prologue", bm.Chapter.Title)

	resp = ts.api.Post("/api/v1/progress/book-dune/bookmarks", hdr, map[string]any{"chapter_id": "ch-404", "position": 0.1})
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Delete("/api/v1/progress/book-dune/bookmarks/00000000-0000-4000-8000-000000000000", hdr)
	require.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.api.Delete("/api/v1/progress/book-dune/bookmarks?chapter_id=ch-1&position=0.4", hdr)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	removal := decodeData[service.BookmarkRemoval](t, resp)
	assert.Equal(t, 2, removal.Removed)
	assert.Empty(t, removal.Bookmarks)

	resp = ts.api.Post("/api/v1/progress/book-dune/notes", hdr, map[string]any{"chapter_id": "ch-1", "position": 0.2, "content": "Fear is the mind-killer."})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/progress/book-dune/notes", hdr)
	require.Equal(t, http.StatusOK, resp.Code)
	notes := decodeData[[]domain.ResolvedNote](t, resp)
	require.Len(t, notes, 1)
	assert.Equal(t, "Fear is the mind-killer.", notes[0].Content)
}

func TestRateLimitPerUser(t *testing.T) {
	limiter := ratelimit.New(0.001, 2)
	t.Cleanup(limiter.Stop)
	ts := setupTestServer(t, limiter)
	alice := ts.bearer(t, "user-1")

	for range 2 {
		resp := ts.api.Get("/api/v1/progress", alice)
		require.Equal(t, http.StatusOK, resp.Code)
	}
	resp := ts.api.Get("/api/v1/progress", alice)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, resp).Code)

	// Another user has their own bucket.
	resp = ts.api.Get("/api/v1/progress", ts.bearer(t, "user-2"))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestServer(t, nil)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}
