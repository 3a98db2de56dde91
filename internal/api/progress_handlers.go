package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/service"
)

func (s *Server) registerProgressRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress",
		Summary:     "List reading progress",
		Description: "Returns the user's reading progress across books, most recently read first",
		Tags:        []string{"Progress"},
		Security:    bearerSecurity,
	}, s.handleListProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "getProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookId}",
		Summary:     "Get reading progress",
		Description: "Returns the full reading progress record for a book",
		Tags:        []string{"Progress"},
		Security:    bearerSecurity,
	}, s.handleGetProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveCheckpoint",
		Method:      http.MethodPut,
		Path:        "/api/v1/progress/{bookId}/checkpoint",
		Summary:     "Save checkpoint",
		Description: "Overwrites the current chapter and percentage",
		Tags:        []string{"Progress"},
		Security:    bearerSecurity,
	}, s.handleSaveCheckpoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCheckpoint",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookId}/checkpoint",
		Summary:     "Get checkpoint",
		Description: "Returns where the user left off",
		Tags:        []string{"Progress"},
		Security:    bearerSecurity,
	}, s.handleGetCheckpoint)

	huma.Register(s.api, huma.Operation{
		OperationID: "syncProgress",
		Method:      http.MethodPost,
		Path:        "/api/v1/progress/{bookId}/sync",
		Summary:     "Sync reading progress",
		Description: "Merges a reading update: position overwrites, reading time accumulates",
		Tags:        []string{"Progress"},
		Security:    bearerSecurity,
	}, s.handleSyncProgress)
}

// === DTOs ===

// ListProgressInput contains parameters for listing progress.
type ListProgressInput struct {
	InProgress bool `query:"in_progress" doc:"Only books started but not completed"`
}

// ListProgressOutput wraps progress records for Huma.
type ListProgressOutput struct {
	Body []*domain.ReadingProgress
}

// ProgressOutput wraps a progress record for Huma.
type ProgressOutput struct {
	Body *domain.ReadingProgress
}

// CheckpointBody is the request body for saving a checkpoint.
type CheckpointBody struct {
	ChapterID     string     `json:"chapter_id" doc:"Current chapter"`
	ChapterNumber int        `json:"chapter_number" doc:"Current chapter number"`
	Percentage    *float64   `json:"percentage,omitempty" doc:"Progress within the book, 0-100"`
	ClientTime    *time.Time `json:"client_time,omitempty" doc:"Device clock at the time of reading"`
}

// SaveCheckpointInput wraps the checkpoint request for Huma.
type SaveCheckpointInput struct {
	BookID string `path:"bookId" doc:"Book ID"`
	Body   CheckpointBody
}

// CheckpointOutput wraps a checkpoint for Huma.
type CheckpointOutput struct {
	Body *domain.Checkpoint
}

// SyncProgressBody is the request body for syncing progress.
type SyncProgressBody struct {
	ChapterID        string     `json:"chapter_id" doc:"Current chapter"`
	ChapterNumber    int        `json:"chapter_number" doc:"Current chapter number"`
	CurrentPosition  float64    `json:"current_position" doc:"Position within the chapter, 0-1"`
	TotalProgress    *float64   `json:"total_progress,omitempty" doc:"Progress within the book, 0-100"`
	ReadingTimeDelta int64      `json:"reading_time_delta,omitempty" doc:"Minutes read since the last sync"`
	ClientTime       *time.Time `json:"client_time,omitempty" doc:"Device clock at the time of reading"`
}

// SyncProgressInput wraps the sync request for Huma.
type SyncProgressInput struct {
	BookID string `path:"bookId" doc:"Book ID"`
	Body   SyncProgressBody
}

// === Handlers ===

func (s *Server) handleListProgress(ctx context.Context, input *ListProgressInput) (*ListProgressOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.services.Progress.ListProgress(ctx, userID, input.InProgress)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.ReadingProgress{}
	}

	return &ListProgressOutput{Body: records}, nil
}

func (s *Server) handleGetProgress(ctx context.Context, input *BookPathInput) (*ProgressOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.services.Progress.GetProgress(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}

	return &ProgressOutput{Body: p}, nil
}

func (s *Server) handleSaveCheckpoint(ctx context.Context, input *SaveCheckpointInput) (*CheckpointOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	cp, err := s.services.Progress.SaveCheckpoint(ctx, service.SaveCheckpointRequest{
		UserID:        userID,
		BookID:        input.BookID,
		ChapterID:     input.Body.ChapterID,
		ChapterNumber: input.Body.ChapterNumber,
		Percentage:    input.Body.Percentage,
		ClientTime:    input.Body.ClientTime,
	})
	if err != nil {
		return nil, err
	}

	return &CheckpointOutput{Body: cp}, nil
}

func (s *Server) handleGetCheckpoint(ctx context.Context, input *BookPathInput) (*CheckpointOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	cp, err := s.services.Progress.GetCheckpoint(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}

	return &CheckpointOutput{Body: cp}, nil
}

func (s *Server) handleSyncProgress(ctx context.Context, input *SyncProgressInput) (*ProgressOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	p, err := s.services.Progress.SyncProgress(ctx, service.SyncProgressRequest{
		UserID:           userID,
		BookID:           input.BookID,
		ChapterID:        input.Body.ChapterID,
		ChapterNumber:    input.Body.ChapterNumber,
		CurrentPosition:  input.Body.CurrentPosition,
		TotalProgress:    input.Body.TotalProgress,
		ReadingTimeDelta: input.Body.ReadingTimeDelta,
		ClientTime:       input.Body.ClientTime,
	})
	if err != nil {
		return nil, err
	}

	return &ProgressOutput{Body: p}, nil
}
