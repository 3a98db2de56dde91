package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/id"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/store"
	"github.com/booksyapp/booksy-server/internal/validation"
)

const downloadNotFound = "download not found"

// DownloadStore is the slice of the Document Store the download lifecycle needs.
type DownloadStore interface {
	store.Catalog
	store.Downloads
}

// DownloadResult is the answer to a download request.
// Source is set only when the client should start transferring.
type DownloadResult struct {
	Outcome  domain.DownloadOutcome   `json:"status"`
	Download *domain.DownloadRecord   `json:"download"`
	Book     *domain.Book             `json:"book"`
	Source   *domain.SourceDescriptor `json:"source,omitempty"`
}

// DownloadService owns the per-(user, book) download record and its state machine.
type DownloadService struct {
	store     DownloadStore
	resolver  *source.Resolver
	events    store.EventEmitter
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewDownloadService creates a new download service.
func NewDownloadService(
	store DownloadStore,
	resolver *source.Resolver,
	events store.EventEmitter,
	validator *validation.Validator,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:     store,
		resolver:  resolver,
		events:    events,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestDownload creates the user's record for a book or restarts an existing one.
//
// A COMPLETED record answers ALREADY_DOWNLOADED without any write unless Force
// is set. Every other state, including the DELETED tombstone, is reset to
// DOWNLOADING with zero progress. The artifact is resolved before the record is
// touched, so an unknown book, an unsupported format or a missing local file
// leave the store unchanged.
func (s *DownloadService) RequestDownload(ctx context.Context, req RequestDownloadRequest) (*DownloadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	book, err := s.store.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, translate(s.logger, err, "book not found")
	}

	existing, err := s.store.GetDownloadFor(ctx, req.UserID, req.BookID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, translate(s.logger, err, downloadNotFound)
	}
	if existing != nil && existing.IsAvailableOffline() && !req.Force {
		return &DownloadResult{Outcome: domain.OutcomeAlreadyDownloaded, Download: existing, Book: book}, nil
	}

	desc, err := s.resolver.ResolveForDownload(ctx, book)
	if err != nil {
		return nil, err
	}

	recordID, err := id.Generate(id.PrefixDownload)
	if err != nil {
		return nil, fmt.Errorf("generate download ID: %w", err)
	}

	device := req.DeviceInfo.toDomain()
	now := s.now()
	var outcome domain.DownloadOutcome

	record, err := s.store.UpsertDownload(ctx, req.UserID, req.BookID, func(cur *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		outcome = domain.OutcomeReadyToDownload
		if cur == nil {
			return domain.NewDownloadRecord(recordID, req.UserID, req.BookID, device, now), nil
		}
		// Another session may have finished the download since the read above.
		if cur.IsAvailableOffline() && !req.Force {
			outcome = domain.OutcomeAlreadyDownloaded
			return nil, nil
		}
		next := cloneDownload(cur)
		if err := next.Restart(device, now); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, translate(s.logger, err, downloadNotFound)
	}

	result := &DownloadResult{Outcome: outcome, Download: record, Book: book}
	if outcome == domain.OutcomeReadyToDownload {
		result.Source = desc
		s.emit(record)
		s.logger.Debug("download requested",
			"user_id", req.UserID,
			"book_id", req.BookID,
			"record_id", record.ID,
			"force", req.Force,
		)
	}
	return result, nil
}

// GetDownload returns the user's record for a book in any status.
func (s *DownloadService) GetDownload(ctx context.Context, key BookKey) (*domain.DownloadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(key); err != nil {
		return nil, err
	}

	record, err := s.store.GetDownloadFor(ctx, key.UserID, key.BookID)
	if err != nil {
		return nil, translate(s.logger, err, downloadNotFound)
	}
	return record, nil
}

// ListCompleted returns the user's COMPLETED downloads with their books,
// newest first. Records whose book has left the catalog are skipped.
func (s *DownloadService) ListCompleted(ctx context.Context, userID string) ([]domain.DownloadedBook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(userKey{UserID: userID}); err != nil {
		return nil, err
	}

	records, err := s.store.ListDownloadsByUser(ctx, userID, domain.DownloadStatusCompleted)
	if err != nil {
		return nil, translate(s.logger, err, downloadNotFound)
	}

	out := make([]domain.DownloadedBook, 0, len(records))
	for _, r := range records {
		book, err := s.store.GetBook(ctx, r.BookID)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("completed download references missing book",
				"record_id", r.ID,
				"book_id", r.BookID,
			)
			continue
		}
		if err != nil {
			return nil, translate(s.logger, err, "book not found")
		}
		out = append(out, domain.DownloadedBook{Download: r, Book: book})
	}
	return out, nil
}

// ReportProgress records transfer progress. Progress 100 completes the download.
func (s *DownloadService) ReportProgress(ctx context.Context, req ReportProgressRequest) (*domain.DownloadRecord, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	now := s.now()
	return s.mutateOwned(ctx, req.UserID, req.RecordID, "download progress", func(d *domain.DownloadRecord) error {
		return d.ApplyProgress(req.Progress, req.Size, now)
	})
}

// Finalize completes the download with its total size.
func (s *DownloadService) Finalize(ctx context.Context, req FinalizeRequest) (*domain.DownloadRecord, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	now := s.now()
	return s.mutateOwned(ctx, req.UserID, req.RecordID, "download finalized", func(d *domain.DownloadRecord) error {
		return d.Finalize(req.TotalSize, now)
	})
}

// ReportFailure marks a DOWNLOADING record FAILED.
func (s *DownloadService) ReportFailure(ctx context.Context, req ReportFailureRequest) (*domain.DownloadRecord, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	now := s.now()
	return s.mutateOwned(ctx, req.UserID, req.RecordID, "download failed", func(d *domain.DownloadRecord) error {
		return d.Fail(req.Message, now)
	})
}

// SoftDelete tombstones the user's record for a book. Deleting an already
// DELETED record returns it unchanged.
func (s *DownloadService) SoftDelete(ctx context.Context, key BookKey) (*domain.DownloadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(key); err != nil {
		return nil, err
	}

	now := s.now()
	var changed bool
	record, err := s.store.UpsertDownload(ctx, key.UserID, key.BookID, func(cur *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		changed = false
		if cur == nil {
			return nil, store.ErrNotFound
		}
		if cur.Status == domain.DownloadStatusDeleted {
			return nil, nil
		}
		next := cloneDownload(cur)
		if err := next.Tombstone(now); err != nil {
			return nil, err
		}
		changed = true
		return next, nil
	})
	if err != nil {
		return nil, translate(s.logger, err, downloadNotFound)
	}

	if changed {
		s.emit(record)
		s.logger.Debug("download deleted",
			"user_id", key.UserID,
			"book_id", key.BookID,
			"record_id", record.ID,
		)
	}
	return record, nil
}

// mutateOwned applies fn to a record addressed by ID. Records owned by another
// user are reported as not found.
func (s *DownloadService) mutateOwned(ctx context.Context, userID, recordID, action string, fn func(*domain.DownloadRecord) error) (*domain.DownloadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := s.store.UpdateDownload(ctx, recordID, func(cur *domain.DownloadRecord) (*domain.DownloadRecord, error) {
		if cur.UserID != userID {
			return nil, errNotOwned
		}
		next := cloneDownload(cur)
		if err := fn(next); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, translate(s.logger, err, downloadNotFound)
	}

	s.emit(record)
	s.logger.Debug(action,
		"user_id", userID,
		"record_id", record.ID,
		"status", record.Status,
		"progress", record.Progress,
	)
	return record, nil
}

func (s *DownloadService) emit(record *domain.DownloadRecord) {
	s.events.Emit(sse.NewDownloadUpdatedEvent(record))
}

func cloneDownload(d *domain.DownloadRecord) *domain.DownloadRecord {
	next := *d
	if d.DeviceInfo != nil {
		device := *d.DeviceInfo
		next.DeviceInfo = &device
	}
	return &next
}
