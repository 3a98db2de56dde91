package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booksyapp/booksy-server/internal/domain"
	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/sse"
)

func request(t *testing.T, env *testEnv, userID, bookID string, force bool) *DownloadResult {
	t.Helper()
	res, err := env.downloads.RequestDownload(context.Background(), RequestDownloadRequest{
		UserID: userID, BookID: bookID, Force: force,
	})
	require.NoError(t, err)
	return res
}

func TestRequestDownload_CreatesRecordAndResolvesSource(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.downloads.RequestDownload(ctx, RequestDownloadRequest{
		UserID:     "user-1",
		BookID:     "book-dune",
		DeviceInfo: &DeviceInfoRequest{Platform: "android", Version: "14", DeviceID: "pixel"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeReadyToDownload, res.Outcome)
	assert.Equal(t, domain.DownloadStatusDownloading, res.Download.Status)
	assert.Equal(t, 0, res.Download.Progress)
	assert.Equal(t, "pixel", res.Download.DeviceInfo.DeviceID)
	assert.Equal(t, "Dune", res.Book.Title)

	require.NotNil(t, res.Source)
	assert.False(t, res.Source.IsRemote)
	assert.Equal(t, "dune.epub", res.Source.RetrievalTarget)
	assert.Equal(t, "Dune - Frank Herbert.epub", res.Source.FileName)
	assert.Equal(t, "application/epub+zip", res.Source.ContentType)

	book, err := env.store.GetBook(ctx, "book-dune")
	require.NoError(t, err)
	assert.Equal(t, int64(1), book.Downloads)

	assert.Equal(t, []sse.EventType{sse.EventDownloadUpdated}, env.events.types())
}

func TestRequestDownload_IdempotentRestart(t *testing.T) {
	env := setupTestEnv(t)

	first := request(t, env, "user-1", "book-dune", false)
	_, err := env.downloads.ReportProgress(context.Background(), ReportProgressRequest{
		UserID: "user-1", RecordID: first.Download.ID, Progress: 40,
	})
	require.NoError(t, err)

	second := request(t, env, "user-1", "book-dune", false)
	third := request(t, env, "user-1", "book-dune", false)

	for _, res := range []*DownloadResult{second, third} {
		assert.Equal(t, domain.OutcomeReadyToDownload, res.Outcome)
		assert.Equal(t, first.Download.ID, res.Download.ID)
		assert.Equal(t, domain.DownloadStatusDownloading, res.Download.Status)
		assert.Equal(t, 0, res.Download.Progress)
	}
}

func TestRequestDownload_AlreadyDownloaded(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first := request(t, env, "user-1", "book-dune", false)
	_, err := env.downloads.Finalize(ctx, FinalizeRequest{UserID: "user-1", RecordID: first.Download.ID, TotalSize: 4096})
	require.NoError(t, err)

	again := request(t, env, "user-1", "book-dune", false)
	assert.Equal(t, domain.OutcomeAlreadyDownloaded, again.Outcome)
	assert.Equal(t, domain.DownloadStatusCompleted, again.Download.Status)
	assert.Equal(t, int64(4096), again.Download.DownloadSize)
	assert.Nil(t, again.Source)

	forced := request(t, env, "user-1", "book-dune", true)
	assert.Equal(t, domain.OutcomeReadyToDownload, forced.Outcome)
	assert.Equal(t, first.Download.ID, forced.Download.ID)
	assert.Equal(t, domain.DownloadStatusDownloading, forced.Download.Status)
	assert.Equal(t, int64(0), forced.Download.DownloadSize)
}

func TestRequestDownload_ReactivatesTombstone(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	first := request(t, env, "user-1", "book-dune", false)
	deleted, err := env.downloads.SoftDelete(ctx, BookKey{UserID: "user-1", BookID: "book-dune"})
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusDeleted, deleted.Status)

	again := request(t, env, "user-1", "book-dune", false)
	assert.Equal(t, first.Download.ID, again.Download.ID)
	assert.Equal(t, domain.DownloadStatusDownloading, again.Download.Status)
}

func TestRequestDownload_RejectionsLeaveNoRecord(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		bookID string
		want   error
	}{
		{"unknown book", "book-nope", domainerrors.ErrNotFound},
		{"unsupported format", "book-mobi", domainerrors.ErrUnsupportedFormat},
		{"missing local file", "book-gone", domainerrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.downloads.RequestDownload(ctx, RequestDownloadRequest{UserID: "user-1", BookID: tt.bookID})
			assert.ErrorIs(t, err, tt.want)

			_, err = env.downloads.GetDownload(ctx, BookKey{UserID: "user-1", BookID: tt.bookID})
			assert.ErrorIs(t, err, domainerrors.ErrNotFound)
		})
	}
	assert.Empty(t, env.events.types())
}

func TestRequestDownload_RemoteIsNotPrechecked(t *testing.T) {
	env := setupTestEnv(t)

	res := request(t, env, "user-1", "book-remote", false)

	assert.True(t, res.Source.IsRemote)
	assert.Equal(t, "https://cdn.example.com/files/remote.pdf", res.Source.RetrievalTarget)
	assert.Equal(t, domain.UnknownLength, res.Source.ByteLength)
	assert.Equal(t, domain.RetrievalRemoteFetch, res.Source.RetrievalMethod)
}

func TestRequestDownload_ValidatesIdentifiers(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.downloads.RequestDownload(context.Background(), RequestDownloadRequest{UserID: "user:1", BookID: "book-dune"})
	require.ErrorIs(t, err, domainerrors.ErrValidation)

	var derr *domainerrors.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, map[string]string{"user_id": "must not contain ':'"}, derr.Details)
}

func TestRequestDownload_ConcurrentFirstRequestsShareOneRecord(t *testing.T) {
	env := setupTestEnv(t)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			res, err := env.downloads.RequestDownload(context.Background(), RequestDownloadRequest{UserID: "user-1", BookID: "book-dune"})
			if assert.NoError(t, err) {
				ids[i] = res.Download.ID
			}
		})
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestReportProgress(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	rec := request(t, env, "user-1", "book-dune", false).Download

	t.Run("out of range", func(t *testing.T) {
		_, err := env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: 101})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
		_, err = env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: -1})
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
	})

	t.Run("other user sees not found", func(t *testing.T) {
		_, err := env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-2", RecordID: rec.ID, Progress: 10})
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: "dl-missing", Progress: 10})
		assert.ErrorIs(t, err, domainerrors.ErrNotFound)
	})

	t.Run("advances and completes at 100", func(t *testing.T) {
		size := int64(512)
		got, err := env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: 55, Size: &size})
		require.NoError(t, err)
		assert.Equal(t, 55, got.Progress)
		assert.Equal(t, int64(512), got.DownloadSize)

		got, err = env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: 100})
		require.NoError(t, err)
		assert.Equal(t, domain.DownloadStatusCompleted, got.Status)
		assert.Equal(t, 100, got.Progress)
	})

	t.Run("no progress after completion", func(t *testing.T) {
		_, err := env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: 20})
		assert.ErrorIs(t, err, domainerrors.ErrConflict)

		got, err := env.downloads.GetDownload(ctx, BookKey{UserID: "user-1", BookID: "book-dune"})
		require.NoError(t, err)
		assert.Equal(t, domain.DownloadStatusCompleted, got.Status)
	})
}

func TestReportFailure(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	rec := request(t, env, "user-1", "book-dune", false).Download

	got, err := env.downloads.ReportFailure(ctx, ReportFailureRequest{UserID: "user-1", RecordID: rec.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, got.Status)
	assert.Equal(t, domain.DefaultFailureMessage, got.ErrorMessage)

	// FAILED re-enters DOWNLOADING only through a request.
	_, err = env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: rec.ID, Progress: 10})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)
	_, err = env.downloads.Finalize(ctx, FinalizeRequest{UserID: "user-1", RecordID: rec.ID, TotalSize: 1})
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	again := request(t, env, "user-1", "book-dune", false)
	assert.Equal(t, domain.DownloadStatusDownloading, again.Download.Status)
	assert.Empty(t, again.Download.ErrorMessage)
}

func TestSoftDelete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	key := BookKey{UserID: "user-1", BookID: "book-dune"}

	_, err := env.downloads.SoftDelete(ctx, key)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	request(t, env, "user-1", "book-dune", false)
	first, err := env.downloads.SoftDelete(ctx, key)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.downloads.SoftDelete(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, domain.DownloadStatusDeleted, second.Status)
	assert.True(t, first.UpdatedAt.Equal(second.UpdatedAt), "second delete must not write")
	// One for the request, one for the first delete.
	assert.Len(t, env.events.types(), 2)
}

func TestListCompleted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	dune := request(t, env, "user-1", "book-dune", false).Download
	env.clock.Advance(time.Minute)
	remote := request(t, env, "user-1", "book-remote", false).Download
	request(t, env, "user-2", "book-dune", false)

	_, err := env.downloads.Finalize(ctx, FinalizeRequest{UserID: "user-1", RecordID: dune.ID, TotalSize: 10})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.downloads.ReportProgress(ctx, ReportProgressRequest{UserID: "user-1", RecordID: remote.ID, Progress: 100})
	require.NoError(t, err)

	list, err := env.downloads.ListCompleted(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "book-remote", list[0].Book.ID)
	assert.Equal(t, "book-dune", list[1].Book.ID)

	empty, err := env.downloads.ListCompleted(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSweepStale(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	stale := request(t, env, "user-1", "book-dune", false).Download
	env.clock.Advance(25 * time.Hour)
	fresh := request(t, env, "user-2", "book-dune", false).Download

	swept, err := env.downloads.SweepStale(ctx, 24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := env.store.GetDownload(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusFailed, got.Status)
	assert.Equal(t, AbandonedMessage, got.ErrorMessage)

	got, err = env.store.GetDownload(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusDownloading, got.Status)

	swept, err = env.downloads.SweepStale(ctx, 24*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}
