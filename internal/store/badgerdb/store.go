// Package badgerdb implements the document store on an embedded Badger database.
//
// Records are JSON documents under compound keys. Every mutation runs in a
// single optimistic transaction that is retried on write conflict, so two
// writers of the same (user, book) record never lose each other's changes.
package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/booksyapp/booksy-server/internal/store"
)

// Key layout. User and book IDs never contain ':'.
const (
	bookPrefix     = "book:"
	chapterPrefix  = "chapter:"
	downloadPrefix = "dl:"       // dl:{userID}:{bookID}
	progressPrefix = "progress:" // progress:{userID}:{bookID}
	bookmarkPrefix = "bookmark:" // bookmark:{userID}:{bookID}:{seq}
	notePrefix     = "note:"     // note:{userID}:{bookID}:{seq}

	downloadByIDPrefix     = "idx:dl:id:"     // idx:dl:id:{recordID} -> {userID}:{bookID}
	downloadByStatusPrefix = "idx:dl:status:" // idx:dl:status:{status}:{userID}:{bookID}

	annotationSeqKey = "seq:annotations"
)

const maxTxRetries = 50

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a Badger database in the given directory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if logger != nil {
		opts.Logger = slogAdapter{logger: logger}
	}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	seq, err := db.GetSequence([]byte(annotationSeqKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("annotation sequence: %w", err)
	}

	if logger != nil {
		logger.Info("Badger database opened", "path", path)
	}

	return &Store{db: db, seq: seq, logger: logger}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflict.
// fn may run more than once and must not keep state across attempts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for attempt := range maxTxRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return store.ErrTxConflict
}

// getJSON reads and decodes key within txn. It returns badger.ErrKeyNotFound when absent.
func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return txn.Set(key, data)
}

// scanPrefix decodes every value under prefix in key order.
func scanPrefix[T any](txn *badger.Txn, prefix []byte) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}

func pairKey(prefix, userID, bookID string) []byte {
	return []byte(prefix + userID + ":" + bookID)
}

func notFound(err error, msg string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound.WithMessage(msg)
	}
	return err
}
