package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/booksyapp/booksy-server/internal/domain"
)

// GetBook retrieves a catalog book by ID.
func (s *Store) GetBook(_ context.Context, id string) (*domain.Book, error) {
	var b domain.Book
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(bookPrefix+id), &b)
	})
	if err != nil {
		return nil, notFound(err, "book not found")
	}
	return &b, nil
}

// SaveBook inserts or replaces a catalog book, keeping the stored download tally.
func (s *Store) SaveBook(_ context.Context, b *domain.Book) error {
	key := []byte(bookPrefix + b.ID)
	now := time.Now()

	return s.update(func(txn *badger.Txn) error {
		next := *b
		var existing domain.Book
		err := getJSON(txn, key, &existing)
		switch {
		case err == nil:
			next.Downloads = existing.Downloads
			next.CreatedAt = existing.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			if next.CreatedAt.IsZero() {
				next.CreatedAt = now
			}
		default:
			return fmt.Errorf("get book: %w", err)
		}
		next.UpdatedAt = now
		return setJSON(txn, key, &next)
	})
}

// IncrementBookDownloads adds one to the book's download tally.
func (s *Store) IncrementBookDownloads(_ context.Context, bookID string) error {
	key := []byte(bookPrefix + bookID)
	err := s.update(func(txn *badger.Txn) error {
		var b domain.Book
		if err := getJSON(txn, key, &b); err != nil {
			return err
		}
		b.Downloads++
		return setJSON(txn, key, &b)
	})
	return notFound(err, "book not found")
}

// GetChapter retrieves a chapter by ID.
func (s *Store) GetChapter(_ context.Context, id string) (*domain.Chapter, error) {
	var c domain.Chapter
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(chapterPrefix+id), &c)
	})
	if err != nil {
		return nil, notFound(err, "chapter not found")
	}
	return &c, nil
}

// GetChaptersByIDs returns the chapters that still exist, keyed by ID.
func (s *Store) GetChaptersByIDs(_ context.Context, ids []string) (map[string]*domain.Chapter, error) {
	out := make(map[string]*domain.Chapter, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var c domain.Chapter
			err := getJSON(txn, []byte(chapterPrefix+id), &c)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[c.ID] = &c
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get chapters: %w", err)
	}
	return out, nil
}

// SaveChapter inserts or replaces a chapter.
func (s *Store) SaveChapter(_ context.Context, c *domain.Chapter) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return s.update(func(txn *badger.Txn) error {
		return setJSON(txn, []byte(chapterPrefix+c.ID), c)
	})
}
