package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/store"
	"github.com/booksyapp/booksy-server/internal/validation"
)

const progressNotFound = "no reading progress for this book"

// ProgressService keeps a user's reading position and reading time consistent
// across sessions. Position fields are last-write-wins, reading time only
// accumulates and completion only latches on.
type ProgressService struct {
	store     store.Progress
	events    store.EventEmitter
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewProgressService creates a new progress service.
func NewProgressService(store store.Progress, events store.EventEmitter, validator *validation.Validator, logger *slog.Logger) *ProgressService {
	return &ProgressService{
		store:     store,
		events:    events,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// SaveCheckpoint upserts the record and overwrites chapter and percentage.
func (s *ProgressService) SaveCheckpoint(ctx context.Context, req SaveCheckpointRequest) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p, err := s.store.SaveCheckpoint(ctx, req.UserID, req.BookID, domain.CheckpointUpdate{
		ChapterID:     req.ChapterID,
		ChapterNumber: req.ChapterNumber,
		Percentage:    req.Percentage,
		ClientTime:    req.ClientTime,
		At:            s.now(),
	})
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}

	s.events.Emit(sse.NewCheckpointSavedEvent(p))
	s.logger.Debug("checkpoint saved",
		"user_id", req.UserID,
		"book_id", req.BookID,
		"record_id", p.ID,
		"chapter_id", p.ChapterID,
	)
	return p.Checkpoint(), nil
}

// GetCheckpoint returns the position fields of the user's record for a book.
func (s *ProgressService) GetCheckpoint(ctx context.Context, key BookKey) (*domain.Checkpoint, error) {
	p, err := s.GetProgress(ctx, key)
	if err != nil {
		return nil, err
	}
	return p.Checkpoint(), nil
}

// SyncProgress merges a reading update into the user's record, creating it on first use.
func (s *ProgressService) SyncProgress(ctx context.Context, req SyncProgressRequest) (*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p, err := s.store.MergeProgress(ctx, req.UserID, req.BookID, domain.ProgressUpdate{
		ChapterID:        req.ChapterID,
		ChapterNumber:    req.ChapterNumber,
		CurrentPosition:  req.CurrentPosition,
		TotalProgress:    req.TotalProgress,
		ReadingTimeDelta: req.ReadingTimeDelta,
		ClientTime:       req.ClientTime,
		At:               s.now(),
	})
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}

	s.events.Emit(sse.NewProgressSyncedEvent(p))
	s.logger.Debug("progress synced",
		"user_id", req.UserID,
		"book_id", req.BookID,
		"record_id", p.ID,
		"reading_time", p.ReadingTime,
		"completed", p.IsCompleted,
	)
	return p, nil
}

// GetProgress returns the full record including bookmarks and notes.
func (s *ProgressService) GetProgress(ctx context.Context, key BookKey) (*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(key); err != nil {
		return nil, err
	}

	p, err := s.store.GetProgress(ctx, key.UserID, key.BookID)
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}
	return p, nil
}

// ListProgress returns the user's records, most recently read first.
// With onlyInProgress, completed books are left out.
func (s *ProgressService) ListProgress(ctx context.Context, userID string, onlyInProgress bool) ([]*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(userKey{UserID: userID}); err != nil {
		return nil, err
	}

	list, err := s.store.ListProgress(ctx, userID, onlyInProgress)
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}
	return list, nil
}

type userKey struct {
	UserID string `json:"user_id" validate:"identifier"`
}
