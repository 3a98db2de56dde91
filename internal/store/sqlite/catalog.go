package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/store"
)

const bookColumns = `id, title, author, file_url, file_type, downloads, created_at, updated_at`

func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var (
		b         domain.Book
		createdAt string
		updatedAt string
	)
	err := scanner.Scan(&b.ID, &b.Title, &b.Author, &b.FileURL, &b.FileType, &b.Downloads, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

const chapterColumns = `id, book_id, chapter_number, title, created_at`

func scanChapter(scanner interface{ Scan(dest ...any) error }) (*domain.Chapter, error) {
	var (
		c         domain.Chapter
		createdAt string
	)
	err := scanner.Scan(&c.ID, &c.BookID, &c.ChapterNumber, &c.Title, &createdAt)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBook retrieves a catalog book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// SaveBook inserts or replaces a catalog book. The download tally is preserved on update.
func (s *Store) SaveBook(ctx context.Context, b *domain.Book) error {
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, title, author, file_url, file_type, downloads, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			file_url = excluded.file_url,
			file_type = excluded.file_type,
			updated_at = excluded.updated_at`,
		b.ID, b.Title, b.Author, b.FileURL, b.FileType, b.Downloads,
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

// IncrementBookDownloads adds one to the book's download tally.
func (s *Store) IncrementBookDownloads(ctx context.Context, bookID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET downloads = downloads + 1 WHERE id = ?`, bookID)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound.WithMessage("book not found")
	}
	return nil
}

// GetChapter retrieves a chapter by ID.
func (s *Store) GetChapter(ctx context.Context, id string) (*domain.Chapter, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chapterColumns+` FROM chapters WHERE id = ?`, id)
	c, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("chapter not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	}
	return c, nil
}

// GetChaptersByIDs returns the chapters that still exist, keyed by ID.
func (s *Store) GetChaptersByIDs(ctx context.Context, ids []string) (map[string]*domain.Chapter, error) {
	out := make(map[string]*domain.Chapter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chapters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// SaveChapter inserts or replaces a chapter.
func (s *Store) SaveChapter(ctx context.Context, c *domain.Chapter) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chapters (id, book_id, chapter_number, title, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			book_id = excluded.book_id,
			chapter_number = excluded.chapter_number,
			title = excluded.title`,
		c.ID, c.BookID, c.ChapterNumber, c.Title, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("save chapter: %w", err)
	}
	return nil
}
