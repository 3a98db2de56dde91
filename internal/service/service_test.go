package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/booksyapp/booksy-server/internal/counter"
	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/storage"
	"github.com/booksyapp/booksy-server/internal/store/sqlite"
	"github.com/booksyapp/booksy-server/internal/validation"
)

var epoch = time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (r *recordingEmitter) Emit(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.(sse.Event))
}

func (r *recordingEmitter) types() []sse.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sse.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	store       *sqlite.Store
	backend     *storage.FileBackend
	clock       *testClock
	events      *recordingEmitter
	downloads   *DownloadService
	progress    *ProgressService
	annotations *AnnotationService
	sources     *SourceService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "booksy.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend, err := storage.NewFileBackend(filepath.Join(t.TempDir(), "book"))
	require.NoError(t, err)
	body := "PK\x03\x04epub-bytes"
	require.NoError(t, backend.Put(ctx, "dune.epub", strings.NewReader(body), int64(len(body)), ""))

	books := []*domain.Book{
		{ID: "book-dune", Title: "Dune", Author: "Frank Herbert", FileURL: "uploads/2024/dune.epub", FileType: "epub"},
		{ID: "book-remote", Title: "Remote", Author: "Someone", FileURL: "https://cdn.example.com/files/remote.pdf", FileType: "PDF"},
		{ID: "book-mobi", Title: "Old", Author: "Format", FileURL: "old.mobi", FileType: "MOBI"},
		{ID: "book-gone", Title: "Gone", Author: "Missing", FileURL: "gone.pdf", FileType: "pdf"},
	}
	for _, b := range books {
		b.CreatedAt, b.UpdatedAt = epoch, epoch
		require.NoError(t, st.SaveBook(ctx, b))
	}
	for i, id := range []string{"ch-1", "ch-2"} {
		require.NoError(t, st.SaveChapter(ctx, &domain.Chapter{
			ID: id, BookID: "book-dune", ChapterNumber: i + 1, Title: "Chapter " + id, CreatedAt: epoch,
		}))
	}

	clock := &testClock{now: epoch}
	events := &recordingEmitter{}
	v := validation.New()
	resolver := source.NewResolver(backend, counter.NewStoreCounter(st), logger)

	env := &testEnv{
		store:       st,
		backend:     backend,
		clock:       clock,
		events:      events,
		downloads:   NewDownloadService(st, resolver, events, v, logger),
		progress:    NewProgressService(st, events, v, logger),
		annotations: NewAnnotationService(st, events, v, logger),
		sources:     NewSourceService(st, resolver, source.NewOpener(backend, 5*time.Second), v, logger),
	}
	env.downloads.now = clock.Now
	env.progress.now = clock.Now
	env.annotations.now = clock.Now
	return env
}

func ptr[T any](v T) *T { return &v }
