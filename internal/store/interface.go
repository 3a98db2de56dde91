// Package store defines the Document Store contract the download and
// reading-progress services run against.
//
// Every mutation is a single atomic operation keyed by (userID, bookID).
// Backends must apply field-level updates without replacing unrelated parts
// of the record: a position write never drops a concurrently appended
// bookmark, and vice versa.
package store

import (
	"context"

	"github.com/booksyapp/booksy-server/internal/domain"
)

// Store is the full Document Store used by the services.
type Store interface {
	Catalog
	Downloads
	Progress

	Ping(ctx context.Context) error
	Close() error
}

// Catalog is the read side of the external book/chapter collaborator, plus the
// download tally. Save methods exist for seeding.
type Catalog interface {
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	GetChapter(ctx context.Context, id string) (*domain.Chapter, error)
	GetChaptersByIDs(ctx context.Context, ids []string) (map[string]*domain.Chapter, error)
	IncrementBookDownloads(ctx context.Context, bookID string) error
	SaveBook(ctx context.Context, book *domain.Book) error
	SaveChapter(ctx context.Context, chapter *domain.Chapter) error
}

// DownloadMutator receives the current record, or nil when none exists, and
// returns the record to persist. Returning (nil, nil) leaves the store untouched
// and the current record is returned to the caller. A non-nil error aborts the
// write and is returned unchanged. Backends with optimistic transactions may
// call fn more than once, so it must derive its result from current alone.
type DownloadMutator func(current *domain.DownloadRecord) (*domain.DownloadRecord, error)

// Downloads persists DownloadRecords, unique per (userID, bookID).
type Downloads interface {
	GetDownload(ctx context.Context, id string) (*domain.DownloadRecord, error)
	GetDownloadFor(ctx context.Context, userID, bookID string) (*domain.DownloadRecord, error)

	// UpsertDownload runs fn and writes its result atomically with respect to
	// other writers of the same (userID, bookID).
	UpsertDownload(ctx context.Context, userID, bookID string, fn DownloadMutator) (*domain.DownloadRecord, error)

	// UpdateDownload is UpsertDownload addressed by record ID. fn never sees nil;
	// a missing record yields ErrNotFound.
	UpdateDownload(ctx context.Context, id string, fn DownloadMutator) (*domain.DownloadRecord, error)

	// ListDownloadsByUser returns a user's records in status, newest DownloadedAt first.
	ListDownloadsByUser(ctx context.Context, userID string, status domain.DownloadStatus) ([]*domain.DownloadRecord, error)

	// ListDownloadsByStatus scans the status index across all users.
	ListDownloadsByStatus(ctx context.Context, status domain.DownloadStatus, limit int) ([]*domain.DownloadRecord, error)
}

// Progress persists ReadingProgress records, unique per (userID, bookID).
// Upserting methods create the record on first use and assign its ID.
type Progress interface {
	// GetProgress returns the record with bookmarks and notes in insertion order.
	GetProgress(ctx context.Context, userID, bookID string) (*domain.ReadingProgress, error)

	// ListProgress returns a user's records by LastReadAt descending, without annotations.
	ListProgress(ctx context.Context, userID string, onlyInProgress bool) ([]*domain.ReadingProgress, error)

	SaveCheckpoint(ctx context.Context, userID, bookID string, u domain.CheckpointUpdate) (*domain.ReadingProgress, error)
	MergeProgress(ctx context.Context, userID, bookID string, u domain.ProgressUpdate) (*domain.ReadingProgress, error)

	// AppendBookmark and AppendNote append one entry and touch LastReadAt.
	AppendBookmark(ctx context.Context, userID, bookID string, b domain.Bookmark) error
	AppendNote(ctx context.Context, userID, bookID string, n domain.Note) error

	// RemoveBookmarks deletes every bookmark at exactly (chapterID, position) and
	// returns the updated record. ErrNotFound if the record does not exist.
	RemoveBookmarks(ctx context.Context, userID, bookID, chapterID string, position float64) (*domain.ReadingProgress, int, error)

	// RemoveBookmarkByID deletes a single bookmark.
	RemoveBookmarkByID(ctx context.Context, userID, bookID, bookmarkID string) (*domain.ReadingProgress, int, error)
}
