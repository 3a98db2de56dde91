// Package storetest is a behavioural test suite every store.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/store"
)

// Factory opens an empty store. The factory registers its own cleanup.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, open(t)) })
	t.Run("DownloadUpsert", func(t *testing.T) { testDownloadUpsert(t, open(t)) })
	t.Run("DownloadMutatorControl", func(t *testing.T) { testDownloadMutatorControl(t, open(t)) })
	t.Run("DownloadListing", func(t *testing.T) { testDownloadListing(t, open(t)) })
	t.Run("ProgressMerge", func(t *testing.T) { testProgressMerge(t, open(t)) })
	t.Run("Checkpoint", func(t *testing.T) { testCheckpoint(t, open(t)) })
	t.Run("Annotations", func(t *testing.T) { testAnnotations(t, open(t)) })
	t.Run("ConcurrentPositionAndBookmarks", func(t *testing.T) { testConcurrentPositionAndBookmarks(t, open(t)) })
	t.Run("ProgressListing", func(t *testing.T) { testProgressListing(t, open(t)) })
}

func testCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()

	book := &domain.Book{ID: "book-1", Title: "Dune", Author: "Frank Herbert", FileURL: "dune.epub", FileType: "EPUB"}
	require.NoError(t, s.SaveBook(ctx, book))
	require.NoError(t, s.SaveChapter(ctx, &domain.Chapter{ID: "ch-1", BookID: "book-1", ChapterNumber: 1, Title: "Arrakis"}))
	require.NoError(t, s.SaveChapter(ctx, &domain.Chapter{ID: "ch-2", BookID: "book-1", ChapterNumber: 2, Title: "Caladan"}))

	got, err := s.GetBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "dune.epub", got.FileURL)

	_, err = s.GetBook(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.IncrementBookDownloads(ctx, "book-1"))
	require.NoError(t, s.IncrementBookDownloads(ctx, "book-1"))
	assert.ErrorIs(t, s.IncrementBookDownloads(ctx, "missing"), store.ErrNotFound)

	// Re-saving catalog metadata keeps the tally.
	book.Title = "Dune (Deluxe)"
	require.NoError(t, s.SaveBook(ctx, book))
	got, err = s.GetBook(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune (Deluxe)", got.Title)
	assert.Equal(t, int64(2), got.Downloads)

	ch, err := s.GetChapter(ctx, "ch-2")
	require.NoError(t, err)
	assert.Equal(t, 2, ch.ChapterNumber)

	_, err = s.GetChapter(ctx, "ch-9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	chapters, err := s.GetChaptersByIDs(ctx, []string{"ch-1", "ch-9", "ch-2"})
	require.NoError(t, err)
	assert.Len(t, chapters, 2)
	assert.Equal(t, "Arrakis", chapters["ch-1"].Title)
	assert.Nil(t, chapters["ch-9"])

	empty, err := s.GetChaptersByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDownloadUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	created, err := s.UpsertDownload(ctx, "user-1", "book-1", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		assert.Nil(t, current)
		return domain.NewDownloadRecord("dl-1", "user-1", "book-1", &domain.DeviceInfo{Platform: "ios", DeviceID: "phone"}, base), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dl-1", created.ID)

	updated, err := s.UpsertDownload(ctx, "user-1", "book-1", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		require.NotNil(t, current)
		assert.Equal(t, "dl-1", current.ID)
		require.NotNil(t, current.DeviceInfo)
		assert.Equal(t, "phone", current.DeviceInfo.DeviceID)
		if err := current.ApplyProgress(55, ptr(int64(1<<20)), base.Add(time.Minute)); err != nil {
			return nil, err
		}
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 55, updated.Progress)

	got, err := s.GetDownloadFor(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, "dl-1", got.ID)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, int64(1<<20), got.DownloadSize)
	assert.True(t, got.LastAccessedAt.Equal(base.Add(time.Minute)))

	byID, err := s.GetDownload(ctx, "dl-1")
	require.NoError(t, err)
	assert.Equal(t, "book-1", byID.BookID)

	finalized, err := s.UpdateDownload(ctx, "dl-1", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		if err := current.Finalize(4096, base.Add(time.Hour)); err != nil {
			return nil, err
		}
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCompleted, finalized.Status)

	got, err = s.GetDownload(ctx, "dl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusCompleted, got.Status)
	assert.True(t, got.DownloadedAt.Equal(base.Add(time.Hour)))

	_, err = s.GetDownloadFor(ctx, "user-2", "book-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateDownload(ctx, "dl-missing", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		t.Fatal("mutator must not run for a missing record")
		return nil, nil
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDownloadMutatorControl(t *testing.T, s store.Store) {
	ctx := context.Background()

	// (nil, nil) writes nothing.
	got, err := s.UpsertDownload(ctx, "user-1", "book-1", func(*domain.DownloadRecord) (*domain.DownloadRecord, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, got)
	_, err = s.GetDownloadFor(ctx, "user-1", "book-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpsertDownload(ctx, "user-1", "book-1", func(*domain.DownloadRecord) (*domain.DownloadRecord, error) {
		return domain.NewDownloadRecord("dl-1", "user-1", "book-1", nil, base), nil
	})
	require.NoError(t, err)

	// A mutator error aborts the write and is returned as-is.
	sentinel := fmt.Errorf("refused")
	_, err = s.UpsertDownload(ctx, "user-1", "book-1", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		current.Progress = 99
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err = s.GetDownloadFor(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.DeviceInfo)

	// Unknown statuses are never persisted.
	_, err = s.UpsertDownload(ctx, "user-1", "book-1", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		next := *current
		next.Status = "PAUSED"
		return &next, nil
	})
	require.Error(t, err)

	got, err = s.GetDownloadFor(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadStatusDownloading, got.Status)
}

func testDownloadListing(t *testing.T, s store.Store) {
	ctx := context.Background()

	put := func(userID, bookID, recordID string, at time.Time, finish bool) {
		t.Helper()
		_, err := s.UpsertDownload(ctx, userID, bookID, func(*domain.DownloadRecord) (*domain.DownloadRecord, error) {
			d := domain.NewDownloadRecord(recordID, userID, bookID, nil, at)
			if finish {
				if err := d.Finalize(100, at); err != nil {
					return nil, err
				}
			}
			return d, nil
		})
		require.NoError(t, err)
	}

	put("user-1", "book-a", "dl-a", base, true)
	put("user-1", "book-b", "dl-b", base.Add(2*time.Hour), true)
	put("user-1", "book-c", "dl-c", base.Add(time.Hour), true)
	put("user-1", "book-d", "dl-d", base.Add(3*time.Hour), false)
	put("user-2", "book-a", "dl-e", base.Add(4*time.Hour), true)

	completed, err := s.ListDownloadsByUser(ctx, "user-1", domain.DownloadStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 3)
	assert.Equal(t, "dl-b", completed[0].ID)
	assert.Equal(t, "dl-c", completed[1].ID)
	assert.Equal(t, "dl-a", completed[2].ID)

	// Status changes move records between index entries.
	_, err = s.UpdateDownload(ctx, "dl-b", func(current *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		if err := current.Tombstone(base.Add(5 * time.Hour)); err != nil {
			return nil, err
		}
		return current, nil
	})
	require.NoError(t, err)

	completed, err = s.ListDownloadsByUser(ctx, "user-1", domain.DownloadStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	deleted, err := s.ListDownloadsByUser(ctx, "user-1", domain.DownloadStatusDeleted)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "dl-b", deleted[0].ID)

	downloading, err := s.ListDownloadsByStatus(ctx, domain.DownloadStatusDownloading, 0)
	require.NoError(t, err)
	require.Len(t, downloading, 1)
	assert.Equal(t, "dl-d", downloading[0].ID)

	limited, err := s.ListDownloadsByStatus(ctx, domain.DownloadStatusCompleted, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.ListDownloadsByUser(ctx, "user-3", domain.DownloadStatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testProgressMerge(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
		ChapterID: "ch-1", ChapterNumber: 1, CurrentPosition: 0.25, TotalProgress: ptr(10.0),
		ReadingTimeDelta: 7, At: base,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, int64(7), first.ReadingTime)
	assert.NotNil(t, first.Bookmarks)

	second, err := s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
		ChapterID: "ch-2", ChapterNumber: 2, CurrentPosition: 0.5,
		ReadingTimeDelta: 5, At: base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(12), second.ReadingTime)
	assert.Equal(t, 10.0, second.TotalProgress)
	assert.Equal(t, "ch-2", second.ChapterID)
	assert.False(t, second.IsCompleted)

	done, err := s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
		ChapterID: "ch-9", ChapterNumber: 9, CurrentPosition: 1, TotalProgress: ptr(100.0),
		At: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)

	reread, err := s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
		ChapterID: "ch-1", ChapterNumber: 1, CurrentPosition: 0, TotalProgress: ptr(1.0),
		At: base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	assert.True(t, reread.IsCompleted)
	assert.True(t, reread.CompletedAt.Equal(base.Add(2*time.Minute)))

	stored, err := s.GetProgress(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.TotalProgress)
	assert.True(t, stored.LastReadAt.Equal(base.Add(3*time.Minute)))

	_, err = s.GetProgress(ctx, "user-1", "book-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCheckpoint(t *testing.T, s store.Store) {
	ctx := context.Background()
	stamp := base.Add(time.Hour)

	_, err := s.SaveCheckpoint(ctx, "user-1", "book-1", domain.CheckpointUpdate{
		ChapterID: "ch-4", ChapterNumber: 4, Percentage: ptr(40.0), ClientTime: &stamp, At: base,
	})
	require.NoError(t, err)

	got, err := s.SaveCheckpoint(ctx, "user-1", "book-1", domain.CheckpointUpdate{
		ChapterID: "ch-5", ChapterNumber: 5, At: base.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "ch-5", got.ChapterID)
	require.NotNil(t, got.Percentage)
	assert.Equal(t, 40.0, *got.Percentage)

	// A write stamped before the stored clock keeps the stored position.
	older := stamp.Add(-time.Minute)
	got, err = s.SaveCheckpoint(ctx, "user-1", "book-1", domain.CheckpointUpdate{
		ChapterID: "ch-1", ChapterNumber: 1, Percentage: ptr(5.0), ClientTime: &older, At: base.Add(2 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, "ch-5", got.ChapterID)
	assert.Equal(t, 40.0, *got.Percentage)
	require.NotNil(t, got.PositionClock)
	assert.True(t, got.PositionClock.Equal(stamp))

	stored, err := s.GetProgress(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ChapterNumber)
	assert.True(t, stored.LastReadAt.Equal(base.Add(2*time.Second)))
}

func testAnnotations(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, _, err := s.RemoveBookmarks(ctx, "user-1", "book-1", "ch-1", 0.5)
	assert.ErrorIs(t, err, store.ErrNotFound)

	add := func(bookmarkID, chapterID string, position float64, at time.Time) {
		t.Helper()
		require.NoError(t, s.AppendBookmark(ctx, "user-1", "book-1", domain.Bookmark{
			ID: bookmarkID, ChapterID: chapterID, Position: position, CreatedAt: at,
		}))
	}
	add("bm-1", "ch-1", 0.5, base)
	add("bm-2", "ch-1", 0.5, base.Add(time.Minute))
	add("bm-3", "ch-2", 0.5, base.Add(2*time.Minute))
	add("bm-4", "ch-1", 0.75, base.Add(3*time.Minute))

	require.NoError(t, s.AppendNote(ctx, "user-1", "book-1", domain.Note{
		ID: "note-1", ChapterID: "ch-2", Position: 0.1, Content: "the spice must flow", CreatedAt: base.Add(4 * time.Minute),
	}))

	p, err := s.GetProgress(ctx, "user-1", "book-1")
	require.NoError(t, err)
	require.Len(t, p.Bookmarks, 4)
	assert.Equal(t, "bm-1", p.Bookmarks[0].ID)
	assert.Equal(t, "bm-4", p.Bookmarks[3].ID)
	require.Len(t, p.Notes, 1)
	assert.Equal(t, "the spice must flow", p.Notes[0].Content)
	assert.True(t, p.LastReadAt.Equal(base.Add(4*time.Minute)))

	p, removed, err := s.RemoveBookmarks(ctx, "user-1", "book-1", "ch-1", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.Len(t, p.Bookmarks, 2)
	assert.Equal(t, "bm-3", p.Bookmarks[0].ID)
	assert.Len(t, p.Notes, 1)

	p, removed, err = s.RemoveBookmarks(ctx, "user-1", "book-1", "ch-7", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Len(t, p.Bookmarks, 2)

	p, removed, err = s.RemoveBookmarkByID(ctx, "user-1", "book-1", "bm-4")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Len(t, p.Bookmarks, 1)
	assert.Equal(t, "bm-3", p.Bookmarks[0].ID)

	_, removed, err = s.RemoveBookmarkByID(ctx, "user-1", "book-1", "bm-4")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// Position writes leave annotations alone.
	p, err = s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
		ChapterID: "ch-3", ChapterNumber: 3, CurrentPosition: 0.2, At: base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, p.Bookmarks, 1)
	assert.Len(t, p.Notes, 1)
}

func testConcurrentPositionAndBookmarks(t *testing.T, s store.Store) {
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := range writers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.MergeProgress(ctx, "user-1", "book-1", domain.ProgressUpdate{
				ChapterID: fmt.Sprintf("ch-%d", i), ChapterNumber: i, CurrentPosition: 0.1,
				ReadingTimeDelta: 3, At: base.Add(time.Duration(i) * time.Second),
			})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- s.AppendBookmark(ctx, "user-1", "book-1", domain.Bookmark{
				ID: fmt.Sprintf("bm-%d", i), ChapterID: "ch-1", Position: float64(i) / 10,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, err := s.GetProgress(ctx, "user-1", "book-1")
	require.NoError(t, err)
	assert.Len(t, p.Bookmarks, writers)
	assert.Equal(t, int64(3*writers), p.ReadingTime)
}

func testProgressListing(t *testing.T, s store.Store) {
	ctx := context.Background()

	merge := func(bookID string, at time.Time, total float64) {
		t.Helper()
		_, err := s.MergeProgress(ctx, "user-1", bookID, domain.ProgressUpdate{
			ChapterID: "ch-1", ChapterNumber: 1, CurrentPosition: 0.5, TotalProgress: ptr(total), At: at,
		})
		require.NoError(t, err)
	}
	merge("book-a", base, 20)
	merge("book-b", base.Add(2*time.Hour), 100)
	merge("book-c", base.Add(time.Hour), 50)

	_, err := s.MergeProgress(ctx, "user-2", "book-a", domain.ProgressUpdate{ChapterID: "ch-1", At: base.Add(5 * time.Hour)})
	require.NoError(t, err)

	all, err := s.ListProgress(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "book-b", all[0].BookID)
	assert.Equal(t, "book-c", all[1].BookID)
	assert.Equal(t, "book-a", all[2].BookID)
	for _, p := range all {
		assert.NotNil(t, p.Bookmarks, p.BookID)
		assert.Empty(t, p.Bookmarks, p.BookID)
		assert.NotNil(t, p.Notes, p.BookID)
		assert.Empty(t, p.Notes, p.BookID)
	}

	reading, err := s.ListProgress(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, reading, 2)
	assert.Equal(t, "book-c", reading[0].BookID)
}
