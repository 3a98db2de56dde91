package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/store"
)

// downloadColumns must match the scan order in scanDownload.
const downloadColumns = `id, user_id, book_id, status, progress, download_size, error_message,
	device_platform, device_version, device_id,
	downloaded_at, last_accessed_at, created_at, updated_at`

func scanDownload(scanner interface{ Scan(dest ...any) error }) (*domain.DownloadRecord, error) {
	var (
		d              domain.DownloadRecord
		status         string
		errorMessage   sql.NullString
		platform       sql.NullString
		version        sql.NullString
		deviceID       sql.NullString
		downloadedAt   string
		lastAccessedAt string
		createdAt      string
		updatedAt      string
	)

	err := scanner.Scan(
		&d.ID,
		&d.UserID,
		&d.BookID,
		&status,
		&d.Progress,
		&d.DownloadSize,
		&errorMessage,
		&platform,
		&version,
		&deviceID,
		&downloadedAt,
		&lastAccessedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = domain.DownloadStatus(status)
	if !d.Status.Valid() {
		return nil, fmt.Errorf("download %s has unknown status %q", d.ID, status)
	}
	d.ErrorMessage = errorMessage.String

	if platform.Valid || version.Valid || deviceID.Valid {
		d.DeviceInfo = &domain.DeviceInfo{
			Platform: platform.String,
			Version:  version.String,
			DeviceID: deviceID.String,
		}
	}

	if d.DownloadedAt, err = parseTime(downloadedAt); err != nil {
		return nil, err
	}
	if d.LastAccessedAt, err = parseTime(lastAccessedAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &d, nil
}

// GetDownload retrieves a download record by ID.
func (s *Store) GetDownload(ctx context.Context, id string) (*domain.DownloadRecord, error) {
	return getDownload(ctx, s.db, `id = ?`, id)
}

// GetDownloadFor retrieves the download record for a (user, book) pair.
func (s *Store) GetDownloadFor(ctx context.Context, userID, bookID string) (*domain.DownloadRecord, error) {
	return getDownload(ctx, s.db, `user_id = ? AND book_id = ?`, userID, bookID)
}

func getDownload(ctx context.Context, q querier, where string, args ...any) (*domain.DownloadRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+downloadColumns+` FROM download_records WHERE `+where, args...)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("download record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get download: %w", err)
	}
	return d, nil
}

// UpsertDownload runs fn against the current (user, book) record inside a write transaction.
func (s *Store) UpsertDownload(ctx context.Context, userID, bookID string, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
	var result *domain.DownloadRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getDownload(ctx, tx, `user_id = ? AND book_id = ?`, userID, bookID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		result, err = applyDownload(ctx, tx, current, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateDownload runs fn against the record with the given ID inside a write transaction.
func (s *Store) UpdateDownload(ctx context.Context, id string, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
	var result *domain.DownloadRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getDownload(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		result, err = applyDownload(ctx, tx, current, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func applyDownload(ctx context.Context, tx *sql.Tx, current *domain.DownloadRecord, fn store.DownloadMutator) (*domain.DownloadRecord, error) {
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
	if err := writeDownload(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func writeDownload(ctx context.Context, q querier, d *domain.DownloadRecord) error {
	var platform, version, deviceID sql.NullString
	if d.DeviceInfo != nil {
		platform = nullString(d.DeviceInfo.Platform)
		version = nullString(d.DeviceInfo.Version)
		deviceID = nullString(d.DeviceInfo.DeviceID)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO download_records (`+downloadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, book_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			download_size = excluded.download_size,
			error_message = excluded.error_message,
			device_platform = excluded.device_platform,
			device_version = excluded.device_version,
			device_id = excluded.device_id,
			downloaded_at = excluded.downloaded_at,
			last_accessed_at = excluded.last_accessed_at,
			updated_at = excluded.updated_at`,
		d.ID,
		d.UserID,
		d.BookID,
		string(d.Status),
		d.Progress,
		d.DownloadSize,
		nullString(d.ErrorMessage),
		platform,
		version,
		deviceID,
		formatTime(d.DownloadedAt),
		formatTime(d.LastAccessedAt),
		formatTime(d.CreatedAt),
		formatTime(d.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithCause(err)
	}
	if err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	return nil
}

// ListDownloadsByUser returns a user's records in status, newest download first.
func (s *Store) ListDownloadsByUser(ctx context.Context, userID string, status domain.DownloadStatus) ([]*domain.DownloadRecord, error) {
	return s.listDownloads(ctx, `
		SELECT `+downloadColumns+` FROM download_records
		WHERE user_id = ? AND status = ?
		ORDER BY downloaded_at DESC, id`, userID, string(status))
}

// ListDownloadsByStatus returns up to limit records in status across all users,
// least recently touched first. A limit of zero or less means no limit.
func (s *Store) ListDownloadsByStatus(ctx context.Context, status domain.DownloadStatus, limit int) ([]*domain.DownloadRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listDownloads(ctx, `
		SELECT `+downloadColumns+` FROM download_records
		WHERE status = ?
		ORDER BY last_accessed_at, id
		LIMIT ?`, string(status), limit)
}

func (s *Store) listDownloads(ctx context.Context, query string, args ...any) ([]*domain.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	var records []*domain.DownloadRecord
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
