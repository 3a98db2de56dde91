package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/id"
	"github.com/booksyapp/booksy-server/internal/store"
)

// progressColumns must match the scan order in scanProgress.
const progressColumns = `id, user_id, book_id, chapter_id, chapter_number, percentage,
	current_position, total_progress, reading_time, is_completed, completed_at,
	position_clock, last_read_at, created_at, updated_at`

func scanProgress(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingProgress, error) {
	var (
		p             domain.ReadingProgress
		percentage    sql.NullFloat64
		isCompleted   int
		completedAt   sql.NullString
		positionClock sql.NullString
		lastReadAt    string
		createdAt     string
		updatedAt     string
	)

	err := scanner.Scan(
		&p.ID,
		&p.UserID,
		&p.BookID,
		&p.ChapterID,
		&p.ChapterNumber,
		&percentage,
		&p.CurrentPosition,
		&p.TotalProgress,
		&p.ReadingTime,
		&isCompleted,
		&completedAt,
		&positionClock,
		&lastReadAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if percentage.Valid {
		v := percentage.Float64
		p.Percentage = &v
	}
	p.IsCompleted = isCompleted != 0

	if p.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, err
	}
	if p.PositionClock, err = parseNullableTime(positionClock); err != nil {
		return nil, err
	}
	if p.LastReadAt, err = parseTime(lastReadAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}

func getProgressRow(ctx context.Context, q querier, userID, bookID string) (*domain.ReadingProgress, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM reading_progress WHERE user_id = ? AND book_id = ?`, userID, bookID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("reading progress not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

// loadAnnotations fills the record's bookmarks and notes in insertion order.
func loadAnnotations(ctx context.Context, q querier, p *domain.ReadingProgress) error {
	p.Bookmarks = []domain.Bookmark{}
	p.Notes = []domain.Note{}

	rows, err := q.QueryContext(ctx, `
		SELECT id, chapter_id, position, note, created_at
		FROM progress_bookmarks WHERE progress_id = ? ORDER BY seq`, p.ID)
	if err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b         domain.Bookmark
			note      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&b.ID, &b.ChapterID, &b.Position, &note, &createdAt); err != nil {
			return err
		}
		b.Note = note.String
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		p.Bookmarks = append(p.Bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	noteRows, err := q.QueryContext(ctx, `
		SELECT id, chapter_id, position, content, created_at
		FROM progress_notes WHERE progress_id = ? ORDER BY seq`, p.ID)
	if err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	for noteRows.Next() {
		var (
			n         domain.Note
			createdAt string
		)
		if err := noteRows.Scan(&n.ID, &n.ChapterID, &n.Position, &n.Content, &createdAt); err != nil {
			return err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		p.Notes = append(p.Notes, n)
	}
	return noteRows.Err()
}

// writeProgressRow upserts the scalar fields only. Annotation tables are untouched.
func writeProgressRow(ctx context.Context, q querier, p *domain.ReadingProgress) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reading_progress (`+progressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, book_id) DO UPDATE SET
			chapter_id = excluded.chapter_id,
			chapter_number = excluded.chapter_number,
			percentage = excluded.percentage,
			current_position = excluded.current_position,
			total_progress = excluded.total_progress,
			reading_time = excluded.reading_time,
			is_completed = excluded.is_completed,
			completed_at = excluded.completed_at,
			position_clock = excluded.position_clock,
			last_read_at = excluded.last_read_at,
			updated_at = excluded.updated_at`,
		p.ID,
		p.UserID,
		p.BookID,
		p.ChapterID,
		p.ChapterNumber,
		nullFloat(p.Percentage),
		p.CurrentPosition,
		p.TotalProgress,
		p.ReadingTime,
		boolToInt(p.IsCompleted),
		nullTimeString(p.CompletedAt),
		nullTimeString(p.PositionClock),
		formatTime(p.LastReadAt),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

// upsertProgress loads or creates the (user, book) record inside tx, applies fn,
// and writes the scalar fields back.
func upsertProgress(ctx context.Context, tx *sql.Tx, userID, bookID string, now time.Time, fn func(p *domain.ReadingProgress)) (*domain.ReadingProgress, error) {
	p, err := getProgressRow(ctx, tx, userID, bookID)
	if errors.Is(err, store.ErrNotFound) {
		progressID, genErr := id.Generate(id.PrefixProgress)
		if genErr != nil {
			return nil, genErr
		}
		p = domain.NewReadingProgress(progressID, userID, bookID, now)
	} else if err != nil {
		return nil, err
	}

	fn(p)

	if err := writeProgressRow(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProgress returns the (user, book) record with its annotations.
func (s *Store) GetProgress(ctx context.Context, userID, bookID string) (*domain.ReadingProgress, error) {
	p, err := getProgressRow(ctx, s.db, userID, bookID)
	if err != nil {
		return nil, err
	}
	if err := loadAnnotations(ctx, s.db, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProgress returns a user's records, most recently read first.
func (s *Store) ListProgress(ctx context.Context, userID string, onlyInProgress bool) ([]*domain.ReadingProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM reading_progress WHERE user_id = ?`
	if onlyInProgress {
		query += ` AND is_completed = 0`
	}
	query += ` ORDER BY last_read_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []*domain.ReadingProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		// Listings carry no annotations.
		p.Bookmarks = []domain.Bookmark{}
		p.Notes = []domain.Note{}
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveCheckpoint applies a checkpoint write to the (user, book) record.
func (s *Store) SaveCheckpoint(ctx context.Context, userID, bookID string, u domain.CheckpointUpdate) (*domain.ReadingProgress, error) {
	return s.modifyProgress(ctx, userID, bookID, u.At, func(p *domain.ReadingProgress) {
		p.ApplyCheckpoint(u)
	})
}

// MergeProgress applies a sync write to the (user, book) record.
func (s *Store) MergeProgress(ctx context.Context, userID, bookID string, u domain.ProgressUpdate) (*domain.ReadingProgress, error) {
	return s.modifyProgress(ctx, userID, bookID, u.At, func(p *domain.ReadingProgress) {
		p.ApplyUpdate(u)
	})
}

func (s *Store) modifyProgress(ctx context.Context, userID, bookID string, now time.Time, fn func(p *domain.ReadingProgress)) (*domain.ReadingProgress, error) {
	var result *domain.ReadingProgress
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := upsertProgress(ctx, tx, userID, bookID, now, fn)
		if err != nil {
			return err
		}
		if err := loadAnnotations(ctx, tx, p); err != nil {
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
func (s *Store) AppendBookmark(ctx context.Context, userID, bookID string, b domain.Bookmark) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := upsertProgress(ctx, tx, userID, bookID, b.CreatedAt, touch(b.CreatedAt))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO progress_bookmarks (id, progress_id, chapter_id, position, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, p.ID, b.ChapterID, b.Position, nullString(b.Note), formatTime(b.CreatedAt))
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists.WithMessage("bookmark already exists")
		}
		if err != nil {
			return fmt.Errorf("insert bookmark: %w", err)
		}
		return nil
	})
}

// AppendNote appends a note, creating the progress record if needed.
func (s *Store) AppendNote(ctx context.Context, userID, bookID string, n domain.Note) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := upsertProgress(ctx, tx, userID, bookID, n.CreatedAt, touch(n.CreatedAt))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO progress_notes (id, progress_id, chapter_id, position, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, p.ID, n.ChapterID, n.Position, n.Content, formatTime(n.CreatedAt))
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists.WithMessage("note already exists")
		}
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		return nil
	})
}

// RemoveBookmarks deletes every bookmark at exactly (chapterID, position).
func (s *Store) RemoveBookmarks(ctx context.Context, userID, bookID, chapterID string, position float64) (*domain.ReadingProgress, int, error) {
	return s.removeBookmarks(ctx, userID, bookID,
		`DELETE FROM progress_bookmarks WHERE progress_id = ? AND chapter_id = ? AND position = ?`,
		chapterID, position)
}

// RemoveBookmarkByID deletes a single bookmark.
func (s *Store) RemoveBookmarkByID(ctx context.Context, userID, bookID, bookmarkID string) (*domain.ReadingProgress, int, error) {
	return s.removeBookmarks(ctx, userID, bookID,
		`DELETE FROM progress_bookmarks WHERE progress_id = ? AND id = ?`,
		bookmarkID)
}

func (s *Store) removeBookmarks(ctx context.Context, userID, bookID, query string, args ...any) (*domain.ReadingProgress, int, error) {
	var (
		result  *domain.ReadingProgress
		removed int
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := getProgressRow(ctx, tx, userID, bookID)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, query, append([]any{p.ID}, args...)...)
		if err != nil {
			return fmt.Errorf("delete bookmarks: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = int(n)

		if removed > 0 {
			p.UpdatedAt = time.Now()
			if _, err := tx.ExecContext(ctx,
				`UPDATE reading_progress SET updated_at = ? WHERE id = ?`, formatTime(p.UpdatedAt), p.ID); err != nil {
				return fmt.Errorf("touch progress: %w", err)
			}
		}

		if err := loadAnnotations(ctx, tx, p); err != nil {
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
