package service

import (
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
)

// BookKey addresses a (user, book) pair.
type BookKey struct {
	UserID string `json:"user_id" validate:"identifier"`
	BookID string `json:"book_id" validate:"identifier"`
}

// RecordKey addresses a download record on behalf of a user.
type RecordKey struct {
	UserID   string `json:"user_id" validate:"identifier"`
	RecordID string `json:"record_id" validate:"identifier"`
}

// DeviceInfoRequest describes the client device holding the offline copy.
type DeviceInfoRequest struct {
	Platform string `json:"platform" validate:"max=64"`
	Version  string `json:"version" validate:"max=64"`
	DeviceID string `json:"device_id" validate:"max=128"`
}

func (d *DeviceInfoRequest) toDomain() *domain.DeviceInfo {
	if d == nil {
		return nil
	}
	return &domain.DeviceInfo{Platform: d.Platform, Version: d.Version, DeviceID: d.DeviceID}
}

// RequestDownloadRequest starts or restarts an offline download.
// Force restarts a COMPLETED download instead of answering ALREADY_DOWNLOADED.
type RequestDownloadRequest struct {
	UserID     string             `json:"user_id" validate:"identifier"`
	BookID     string             `json:"book_id" validate:"identifier"`
	Force      bool               `json:"force"`
	DeviceInfo *DeviceInfoRequest `json:"device_info"`
}

// ReportProgressRequest reports transfer progress. Size is optional.
type ReportProgressRequest struct {
	UserID   string `json:"user_id" validate:"identifier"`
	RecordID string `json:"record_id" validate:"identifier"`
	Progress int    `json:"progress" validate:"gte=0,lte=100"`
	Size     *int64 `json:"size" validate:"omitempty,gte=0"`
}

// FinalizeRequest completes a download with its total size.
type FinalizeRequest struct {
	UserID    string `json:"user_id" validate:"identifier"`
	RecordID  string `json:"record_id" validate:"identifier"`
	TotalSize int64  `json:"total_size" validate:"gte=0"`
}

// ReportFailureRequest marks a download FAILED. An empty message stores the default.
type ReportFailureRequest struct {
	UserID   string `json:"user_id" validate:"identifier"`
	RecordID string `json:"record_id" validate:"identifier"`
	Message  string `json:"message" validate:"max=1000"`
}

// SaveCheckpointRequest overwrites the checkpoint fields.
type SaveCheckpointRequest struct {
	UserID        string     `json:"user_id" validate:"identifier"`
	BookID        string     `json:"book_id" validate:"identifier"`
	ChapterID     string     `json:"chapter_id" validate:"identifier"`
	ChapterNumber int        `json:"chapter_number" validate:"gte=0"`
	Percentage    *float64   `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	ClientTime    *time.Time `json:"client_time"`
}

// SyncProgressRequest merges a reading update. CurrentPosition is within the
// chapter (0-1), TotalProgress within the book (0-100), ReadingTimeDelta in minutes.
type SyncProgressRequest struct {
	UserID           string     `json:"user_id" validate:"identifier"`
	BookID           string     `json:"book_id" validate:"identifier"`
	ChapterID        string     `json:"chapter_id" validate:"identifier"`
	ChapterNumber    int        `json:"chapter_number" validate:"gte=0"`
	CurrentPosition  float64    `json:"current_position" validate:"gte=0,lte=1"`
	TotalProgress    *float64   `json:"total_progress" validate:"omitempty,gte=0,lte=100"`
	ReadingTimeDelta int64      `json:"reading_time_delta" validate:"gte=0"`
	ClientTime       *time.Time `json:"client_time"`
}

// AddBookmarkRequest appends a bookmark.
type AddBookmarkRequest struct {
	UserID    string  `json:"user_id" validate:"identifier"`
	BookID    string  `json:"book_id" validate:"identifier"`
	ChapterID string  `json:"chapter_id" validate:"identifier"`
	Position  float64 `json:"position" validate:"gte=0,lte=1"`
	Note      string  `json:"note" validate:"max=2000"`
}

// RemoveBookmarkRequest removes every bookmark at exactly (ChapterID, Position).
type RemoveBookmarkRequest struct {
	UserID    string  `json:"user_id" validate:"identifier"`
	BookID    string  `json:"book_id" validate:"identifier"`
	ChapterID string  `json:"chapter_id" validate:"identifier"`
	Position  float64 `json:"position" validate:"gte=0,lte=1"`
}

// RemoveBookmarkByIDRequest removes a single bookmark entry.
type RemoveBookmarkByIDRequest struct {
	UserID     string `json:"user_id" validate:"identifier"`
	BookID     string `json:"book_id" validate:"identifier"`
	BookmarkID string `json:"bookmark_id" validate:"required,uuid"`
}

// AddNoteRequest appends a note.
type AddNoteRequest struct {
	UserID    string  `json:"user_id" validate:"identifier"`
	BookID    string  `json:"book_id" validate:"identifier"`
	ChapterID string  `json:"chapter_id" validate:"identifier"`
	Position  float64 `json:"position" validate:"gte=0,lte=1"`
	Content   string  `json:"content" validate:"required,max=10000"`
}
