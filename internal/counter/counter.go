// Package counter keeps the per-book download tally.
//
// The tally is best-effort: callers log increment failures and carry on.
package counter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/booksyapp/booksy-server/internal/domain"
)

// DownloadCounter increments a book's download tally.
type DownloadCounter interface {
	Increment(ctx context.Context, bookID string) error
	Count(ctx context.Context, bookID string) (int64, error)
}

// BookTally is the catalog side of the store used by StoreCounter.
type BookTally interface {
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	IncrementBookDownloads(ctx context.Context, bookID string) error
}

// StoreCounter keeps the tally on the catalog book record.
type StoreCounter struct {
	books BookTally
}

// NewStoreCounter creates a counter writing through the document store.
func NewStoreCounter(books BookTally) *StoreCounter {
	return &StoreCounter{books: books}
}

// Increment implements DownloadCounter.
func (c *StoreCounter) Increment(ctx context.Context, bookID string) error {
	return c.books.IncrementBookDownloads(ctx, bookID)
}

// Count implements DownloadCounter.
func (c *StoreCounter) Count(ctx context.Context, bookID string) (int64, error) {
	book, err := c.books.GetBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return book.Downloads, nil
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
}

// RedisCounter keeps tallies as Redis integers under "<prefix>:downloads:<bookID>".
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter connects to Redis and verifies the connection.
func NewRedisCounter(ctx context.Context, cfg RedisConfig) (*RedisCounter, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis counter requires an address")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "booksy"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCounter{client: rdb, prefix: prefix}, nil
}

func (c *RedisCounter) key(bookID string) string {
	return c.prefix + ":downloads:" + bookID
}

// Increment implements DownloadCounter.
func (c *RedisCounter) Increment(ctx context.Context, bookID string) error {
	if err := c.client.Incr(ctx, c.key(bookID)).Err(); err != nil {
		return fmt.Errorf("incr download counter: %w", err)
	}
	return nil
}

// Count implements DownloadCounter. Unknown books count zero.
func (c *RedisCounter) Count(ctx context.Context, bookID string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(bookID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get download counter: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
