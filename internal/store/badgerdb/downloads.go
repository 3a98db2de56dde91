package badgerdb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/store"
)

func downloadStatusKey(status domain.DownloadStatus, userID, bookID string) []byte {
	return []byte(downloadByStatusPrefix + string(status) + ":" + userID + ":" + bookID)
}

func getDownloadInTxn(txn *badger.Txn, userID, bookID string) (*domain.DownloadRecord, error) {
	var d domain.DownloadRecord
	if err := getJSON(txn, pairKey(downloadPrefix, userID, bookID), &d); err != nil {
		return nil, err
	}
	if !d.Status.Valid() {
		return nil, fmt.Errorf("download %s has unknown status %q", d.ID, d.Status)
	}
	return &d, nil
}

// resolveDownloadID maps a record ID to its (user, book) pair.
func resolveDownloadID(txn *badger.Txn, id string) (userID, bookID string, err error) {
	item, err := txn.Get([]byte(downloadByIDPrefix + id))
	if err != nil {
		return "", "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", "", err
	}
	userID, bookID, ok := strings.Cut(string(val), ":")
	if !ok {
		return "", "", fmt.Errorf("corrupt download index for %s", id)
	}
	return userID, bookID, nil
}

// GetDownload retrieves a download record by ID.
func (s *Store) GetDownload(_ context.Context, id string) (*domain.DownloadRecord, error) {
	var d *domain.DownloadRecord
	err := s.db.View(func(txn *badger.Txn) error {
		userID, bookID, err := resolveDownloadID(txn, id)
		if err != nil {
			return err
		}
		d, err = getDownloadInTxn(txn, userID, bookID)
		return err
	})
	if err != nil {
		return nil, notFound(err, "download record not found")
	}
	return d, nil
}

// GetDownloadFor retrieves the download record for a (user, book) pair.
func (s *Store) GetDownloadFor(_ context.Context, userID, bookID string) (*domain.DownloadRecord, error) {
	var d *domain.DownloadRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		d, err = getDownloadInTxn(txn, userID, bookID)
		return err
	})
	if err != nil {
		return nil, notFound(err, "download record not found")
	}
	return d, nil
}

// UpsertDownload runs fn against the current (user, book) record and writes its result.
func (s *Store) UpsertDownload(_ context.Context, userID, bookID string, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
	var result *domain.DownloadRecord
	err := s.update(func(txn *badger.Txn) error {
		current, err := getDownloadInTxn(txn, userID, bookID)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		result, err = applyDownload(txn, current, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDownload runs fn against the record with the given ID.
func (s *Store) UpdateDownload(_ context.Context, id string, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
	var result *domain.DownloadRecord
	err := s.update(func(txn *badger.Txn) error {
		userID, bookID, err := resolveDownloadID(txn, id)
		if err != nil {
			return notFound(err, "download record not found")
		}
		current, err := getDownloadInTxn(txn, userID, bookID)
		if err != nil {
			return notFound(err, "download record not found")
		}
		result, err = applyDownload(txn, current, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyDownload(txn *badger.Txn, current *domain.DownloadRecord, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
	var previous domain.DownloadStatus
	if current != nil {
		previous = current.Status
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	if !next.Status.Valid() {
		return nil, fmt.Errorf("download %s: unknown status %q", next.ID, next.Status)
	}

	if err := setJSON(txn, pairKey(downloadPrefix, next.UserID, next.BookID), next); err != nil {
		return nil, fmt.Errorf("set download: %w", err)
	}
	if err := txn.Set([]byte(downloadByIDPrefix+next.ID), []byte(next.UserID+":"+next.BookID)); err != nil {
		return nil, fmt.Errorf("set id index: %w", err)
	}

	if previous != "" && previous != next.Status {
		if err := txn.Delete(downloadStatusKey(previous, next.UserID, next.BookID)); err != nil {
			return nil, fmt.Errorf("delete status index: %w", err)
		}
	}
	if err := txn.Set(downloadStatusKey(next.Status, next.UserID, next.BookID), []byte{}); err != nil {
		return nil, fmt.Errorf("set status index: %w", err)
	}

	return next, nil
}

// ListDownloadsByUser returns a user's records in status, newest download first.
func (s *Store) ListDownloadsByUser(_ context.Context, userID string, status domain.DownloadStatus) ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := scanPrefix[domain.DownloadRecord](txn, []byte(downloadPrefix+userID+":"))
		if err != nil {
			return err
		}
		for _, d := range all {
			if d.Status == status {
				records = append(records, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}

	slices.SortFunc(records, func(a, b *domain.DownloadRecord) int {
		if c := b.DownloadedAt.Compare(a.DownloadedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return records, nil
}

// ListDownloadsByStatus returns up to limit records in status across all users,
// least recently touched first. A limit of zero or less means no limit.
func (s *Store) ListDownloadsByStatus(_ context.Context, status domain.DownloadStatus, limit int) ([]*domain.DownloadRecord, error) {
	var records []*domain.DownloadRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(downloadByStatusPrefix + string(status) + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pair := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			userID, bookID, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			d, err := getDownloadInTxn(txn, userID, bookID)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			records = append(records, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list downloads by status: %w", err)
	}

	slices.SortFunc(records, func(a, b *domain.DownloadRecord) int {
		if c := a.LastAccessedAt.Compare(b.LastAccessedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
