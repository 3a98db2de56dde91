package badgerdb

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/id"
)

// Bookmarks and notes are stored under their own keys, so the progress document
// holds only scalar fields and position writes cannot clobber annotations.

func annotationPrefix(prefix, userID, bookID string) []byte {
	return []byte(prefix + userID + ":" + bookID + ":")
}

func annotationKey(prefix, userID, bookID string, seq uint64) []byte {
	return fmt.Appendf(nil, "%s%s:%s:%020d", prefix, userID, bookID, seq)
}

func getProgressInTxn(txn *badger.Txn, userID, bookID string) (*domain.ReadingProgress, error) {
	var p domain.ReadingProgress
	if err := getJSON(txn, pairKey(progressPrefix, userID, bookID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func putProgressInTxn(txn *badger.Txn, p *domain.ReadingProgress) error {
	doc := *p
	doc.Bookmarks = nil
	doc.Notes = nil
	return setJSON(txn, pairKey(progressPrefix, p.UserID, p.BookID), &doc)
}

func loadAnnotationsInTxn(txn *badger.Txn, p *domain.ReadingProgress) error {
	bookmarks, err := scanPrefix[domain.Bookmark](txn, annotationPrefix(bookmarkPrefix, p.UserID, p.BookID))
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	notes, err := scanPrefix[domain.Note](txn, annotationPrefix(notePrefix, p.UserID, p.BookID))
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}

	p.Bookmarks = make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		p.Bookmarks = append(p.Bookmarks, *b)
	}
	p.Notes = make([]domain.Note, 0, len(notes))
	for _, n := range notes {
		p.Notes = append(p.Notes, *n)
	}
	return nil
}

// upsertProgressInTxn loads or creates the (user, book) record, applies fn and
// writes the scalar document back.
func upsertProgressInTxn(txn *badger.Txn, userID, bookID string, now time.Time, fn func(p *domain.ReadingProgress)) (*domain.ReadingProgress, error) {
	p, err := getProgressInTxn(txn, userID, bookID)
	if errors.Is(err, badger.ErrKeyNotFound) {
		progressID, genErr := id.Generate(id.PrefixProgress)
		if genErr != nil {
			return nil, genErr
		}
		p = domain.NewReadingProgress(progressID, userID, bookID, now)
	} else if err != nil {
		return nil, err
	}

	fn(p)

	if err := putProgressInTxn(txn, p); err != nil {
		return nil, fmt.Errorf("put progress: %w", err)
	}
	return p, nil
}

// GetProgress returns the (user, book) record with its annotations.
func (s *Store) GetProgress(_ context.Context, userID, bookID string) (*domain.ReadingProgress, error) {
	var p *domain.ReadingProgress
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if p, err = getProgressInTxn(txn, userID, bookID); err != nil {
			return err
		}
		return loadAnnotationsInTxn(txn, p)
	})
	if err != nil {
		return nil, notFound(err, "reading progress not found")
	}
	return p, nil
}

// ListProgress returns a user's records, most recently read first.
func (s *Store) ListProgress(_ context.Context, userID string, onlyInProgress bool) ([]*domain.ReadingProgress, error) {
	var records []*domain.ReadingProgress
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scanPrefix[domain.ReadingProgress](txn, []byte(progressPrefix+userID+":"))
		if err != nil {
			return err
		}
		for _, p := range all {
			if onlyInProgress && p.IsCompleted {
				continue
			}
			// Listings carry no annotations.
			p.Bookmarks = []domain.Bookmark{}
			p.Notes = []domain.Note{}
			records = append(records, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}

	slices.SortFunc(records, func(a, b *domain.ReadingProgress) int {
		if c := b.LastReadAt.Compare(a.LastReadAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return records, nil
}

// SaveCheckpoint applies a checkpoint write to the (user, book) record.
func (s *Store) SaveCheckpoint(_ context.Context, userID, bookID string, u domain.CheckpointUpdate) (*domain.ReadingProgress, error) {
	return s.modifyProgress(userID, bookID, u.At, func(p *domain.ReadingProgress) {
		p.ApplyCheckpoint(u)
	})
}

// MergeProgress applies a sync write to the (user, book) record.
func (s *Store) MergeProgress(_ context.Context, userID, bookID string, u domain.ProgressUpdate) (*domain.ReadingProgress, error) {
	return s.modifyProgress(userID, bookID, u.At, func(p *domain.ReadingProgress) {
		p.ApplyUpdate(u)
	})
}

func (s *Store) modifyProgress(userID, bookID string, now time.Time, fn func(p *domain.ReadingProgress)) (*domain.ReadingProgress, error) {
	var result *domain.ReadingProgress
	err := s.update(func(txn *badger.Txn) error {
		p, err := upsertProgressInTxn(txn, userID, bookID, now, fn)
		if err != nil {
			return err
		}
		if err := loadAnnotationsInTxn(txn, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func touch(at time.Time) func(p *domain.ReadingProgress) {
	return func(p *domain.ReadingProgress) {
		p.LastReadAt = at
		p.UpdatedAt = at
	}
}

// AppendBookmark appends a bookmark, creating the progress record if needed.
func (s *Store) AppendBookmark(_ context.Context, userID, bookID string, b domain.Bookmark) error {
	return s.appendAnnotation(userID, bookID, bookmarkPrefix, b.CreatedAt, b)
}

// AppendNote appends a note, creating the progress record if needed.
func (s *Store) AppendNote(_ context.Context, userID, bookID string, n domain.Note) error {
	return s.appendAnnotation(userID, bookID, notePrefix, n.CreatedAt, n)
}

func (s *Store) appendAnnotation(userID, bookID, prefix string, at time.Time, entry any) error {
	seq, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next annotation sequence: %w", err)
	}
	key := annotationKey(prefix, userID, bookID, seq)

	return s.update(func(txn *badger.Txn) error {
		if _, err := upsertProgressInTxn(txn, userID, bookID, at, touch(at)); err != nil {
			return err
		}
		return setJSON(txn, key, entry)
	})
}

// RemoveBookmarks deletes every bookmark at exactly (chapterID, position).
func (s *Store) RemoveBookmarks(_ context.Context, userID, bookID, chapterID string, position float64) (*domain.ReadingProgress, int, error) {
	return s.removeBookmarks(userID, bookID, func(b *domain.Bookmark) bool {
		return b.Matches(chapterID, position)
	})
}

// RemoveBookmarkByID deletes a single bookmark.
func (s *Store) RemoveBookmarkByID(_ context.Context, userID, bookID, bookmarkID string) (*domain.ReadingProgress, int, error) {
	return s.removeBookmarks(userID, bookID, func(b *domain.Bookmark) bool {
		return b.ID == bookmarkID
	})
}

func (s *Store) removeBookmarks(userID, bookID string, match func(b *domain.Bookmark) bool) (*domain.ReadingProgress, int, error) {
	var (
		result  *domain.ReadingProgress
		removed int
	)
	err := s.update(func(txn *badger.Txn) error {
		removed = 0

		p, err := getProgressInTxn(txn, userID, bookID)
		if err != nil {
			return notFound(err, "reading progress not found")
		}

		prefix := annotationPrefix(bookmarkPrefix, userID, bookID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)

		var doomed [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var b domain.Bookmark
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				it.Close()
				return err
			}
			if match(&b) {
				doomed = append(doomed, item.KeyCopy(nil))
			}
		}
		it.Close()

		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete bookmark: %w", err)
			}
		}
		removed = len(doomed)

		if removed > 0 {
			p.UpdatedAt = time.Now()
			if err := putProgressInTxn(txn, p); err != nil {
				return err
			}
		}

		if err := loadAnnotationsInTxn(txn, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result, removed, nil
}
