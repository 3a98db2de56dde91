package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/service"
)

func (s *Server) registerDownloadRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "requestDownload",
		Method:      http.MethodPost,
		Path:        "/api/v1/downloads",
		Summary:     "Request download",
		Description: "Starts or restarts an offline download and returns where to fetch the file",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleRequestDownload)

	huma.Register(s.api, huma.Operation{
		OperationID: "listDownloads",
		Method:      http.MethodGet,
		Path:        "/api/v1/downloads",
		Summary:     "List downloaded books",
		Description: "Returns completed downloads with their books, most recent first",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleListDownloads)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDownload",
		Method:      http.MethodGet,
		Path:        "/api/v1/downloads/{bookId}",
		Summary:     "Get download",
		Description: "Returns the download record for a book in any status",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleGetDownload)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteDownload",
		Method:      http.MethodDelete,
		Path:        "/api/v1/downloads/{bookId}",
		Summary:     "Delete download",
		Description: "Marks the offline copy as removed from the device",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleDeleteDownload)

	huma.Register(s.api, huma.Operation{
		OperationID: "reportDownloadProgress",
		Method:      http.MethodPut,
		Path:        "/api/v1/downloads/records/{recordId}/progress",
		Summary:     "Report download progress",
		Description: "Records transfer progress; 100 completes the download",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleReportDownloadProgress)

	huma.Register(s.api, huma.Operation{
		OperationID: "finalizeDownload",
		Method:      http.MethodPost,
		Path:        "/api/v1/downloads/records/{recordId}/finalize",
		Summary:     "Finalize download",
		Description: "Completes the download with its total size",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleFinalizeDownload)

	huma.Register(s.api, huma.Operation{
		OperationID: "failDownload",
		Method:      http.MethodPost,
		Path:        "/api/v1/downloads/records/{recordId}/failure",
		Summary:     "Report download failure",
		Description: "Marks the download failed with an optional message",
		Tags:        []string{"Downloads"},
		Security:    bearerSecurity,
	}, s.handleReportDownloadFailure)
}

// === DTOs ===

// DeviceInfoBody describes the device holding the offline copy.
type DeviceInfoBody struct {
	Platform string `json:"platform,omitempty" doc:"Client platform, e.g. android"`
	Version  string `json:"version,omitempty" doc:"Client app version"`
	DeviceID string `json:"device_id,omitempty" doc:"Stable device identifier"`
}

// RequestDownloadBody is the request body for requesting a download.
type RequestDownloadBody struct {
	BookID     string          `json:"book_id" doc:"Book to download"`
	Force      bool            `json:"force,omitempty" doc:"Restart even if already downloaded"`
	DeviceInfo *DeviceInfoBody `json:"device_info,omitempty" doc:"Requesting device"`
}

// RequestDownloadInput wraps the request download body for Huma.
type RequestDownloadInput struct {
	Body RequestDownloadBody
}

// RequestDownloadOutput wraps the download result for Huma.
type RequestDownloadOutput struct {
	Body *service.DownloadResult
}

// ListDownloadsOutput wraps completed downloads for Huma.
type ListDownloadsOutput struct {
	Body []domain.DownloadedBook
}

// BookPathInput addresses a book of the authenticated user.
type BookPathInput struct {
	BookID string `path:"bookId" doc:"Book ID"`
}

// DownloadOutput wraps a download record for Huma.
type DownloadOutput struct {
	Body *domain.DownloadRecord
}

// ReportProgressBody is the request body for reporting download progress.
type ReportProgressBody struct {
	Progress int    `json:"progress" doc:"Percent transferred, 0-100"`
	Size     *int64 `json:"size,omitempty" doc:"Bytes transferred so far"`
}

// ReportProgressInput wraps the progress report for Huma.
type ReportProgressInput struct {
	RecordID string `path:"recordId" doc:"Download record ID"`
	Body     ReportProgressBody
}

// FinalizeBody is the request body for finalizing a download.
type FinalizeBody struct {
	TotalSize int64 `json:"total_size" doc:"Final size in bytes"`
}

// FinalizeInput wraps the finalize request for Huma.
type FinalizeInput struct {
	RecordID string `path:"recordId" doc:"Download record ID"`
	Body     FinalizeBody
}

// ReportFailureBody is the request body for reporting a failed download.
type ReportFailureBody struct {
	Message string `json:"message,omitempty" doc:"What went wrong; defaults to \"Download failed\""`
}

// ReportFailureInput wraps the failure report for Huma. The body is optional.
type ReportFailureInput struct {
	RecordID string            `path:"recordId" doc:"Download record ID"`
	Body     ReportFailureBody `required:"false"`
}

// === Handlers ===

func (s *Server) handleRequestDownload(ctx context.Context, input *RequestDownloadInput) (*RequestDownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.RequestDownloadRequest{
		UserID: userID,
		BookID: input.Body.BookID,
		Force:  input.Body.Force,
	}
	if d := input.Body.DeviceInfo; d != nil {
		req.DeviceInfo = &service.DeviceInfoRequest{Platform: d.Platform, Version: d.Version, DeviceID: d.DeviceID}
	}

	result, err := s.services.Downloads.RequestDownload(ctx, req)
	if err != nil {
		return nil, err
	}

	return &RequestDownloadOutput{Body: result}, nil
}

func (s *Server) handleListDownloads(ctx context.Context, _ *struct{}) (*ListDownloadsOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	books, err := s.services.Downloads.ListCompleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []domain.DownloadedBook{}
	}

	return &ListDownloadsOutput{Body: books}, nil
}

func (s *Server) handleGetDownload(ctx context.Context, input *BookPathInput) (*DownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.services.Downloads.GetDownload(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}

	return &DownloadOutput{Body: record}, nil
}

func (s *Server) handleDeleteDownload(ctx context.Context, input *BookPathInput) (*DownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.services.Downloads.SoftDelete(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}

	return &DownloadOutput{Body: record}, nil
}

func (s *Server) handleReportDownloadProgress(ctx context.Context, input *ReportProgressInput) (*DownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.services.Downloads.ReportProgress(ctx, service.ReportProgressRequest{
		UserID:   userID,
		RecordID: input.RecordID,
		Progress: input.Body.Progress,
		Size:     input.Body.Size,
	})
	if err != nil {
		return nil, err
	}

	return &DownloadOutput{Body: record}, nil
}

func (s *Server) handleFinalizeDownload(ctx context.Context, input *FinalizeInput) (*DownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.services.Downloads.Finalize(ctx, service.FinalizeRequest{
		UserID:    userID,
		RecordID:  input.RecordID,
		TotalSize: input.Body.TotalSize,
	})
	if err != nil {
		return nil, err
	}

	return &DownloadOutput{Body: record}, nil
}

func (s *Server) handleReportDownloadFailure(ctx context.Context, input *ReportFailureInput) (*DownloadOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.services.Downloads.ReportFailure(ctx, service.ReportFailureRequest{
		UserID:   userID,
		RecordID: input.RecordID,
		Message:  input.Body.Message,
	})
	if err != nil {
		return nil, err
	}

	return &DownloadOutput{Body: record}, nil
}
