package domain

import (
	"errors"
	"fmt"
	"time"
)

// DownloadStatus is the lifecycle state of a user's offline copy of a book.
type DownloadStatus string

const (
	DownloadStatusDownloading DownloadStatus = "DOWNLOADING"
	DownloadStatusCompleted   DownloadStatus = "COMPLETED"
	DownloadStatusFailed      DownloadStatus = "FAILED"
	DownloadStatusDeleted     DownloadStatus = "DELETED"
)

// downloadStatusNone is the status of a record that does not exist yet.
const downloadStatusNone DownloadStatus = ""

// Valid reports whether s is one of the four known statuses.
func (s DownloadStatus) Valid() bool {
	switch s {
	case DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed, DownloadStatusDeleted:
		return true
	default:
		return false
	}
}

// DownloadTrigger names the operation driving a status change.
type DownloadTrigger string

const (
	TriggerRequest  DownloadTrigger = "request"
	TriggerProgress DownloadTrigger = "progress"
	TriggerFinalize DownloadTrigger = "finalize"
	TriggerFailure  DownloadTrigger = "failure"
	TriggerDelete   DownloadTrigger = "delete"
)

type downloadTransition struct {
	from    DownloadStatus
	trigger DownloadTrigger
	to      DownloadStatus
}

// downloadTransitions is the complete set of legal edges. Anything absent is rejected.
var downloadTransitions = map[downloadTransition]struct{}{
	{downloadStatusNone, TriggerRequest, DownloadStatusDownloading}:        {},
	{DownloadStatusDownloading, TriggerRequest, DownloadStatusDownloading}: {},
	{DownloadStatusCompleted, TriggerRequest, DownloadStatusDownloading}:   {},
	{DownloadStatusFailed, TriggerRequest, DownloadStatusDownloading}:      {},
	{DownloadStatusDeleted, TriggerRequest, DownloadStatusDownloading}:     {},

	{DownloadStatusDownloading, TriggerProgress, DownloadStatusDownloading}: {},
	{DownloadStatusDownloading, TriggerProgress, DownloadStatusCompleted}:   {},
	{DownloadStatusDownloading, TriggerFinalize, DownloadStatusCompleted}:   {},
	{DownloadStatusDownloading, TriggerFailure, DownloadStatusFailed}:       {},

	{DownloadStatusDownloading, TriggerDelete, DownloadStatusDeleted}: {},
	{DownloadStatusCompleted, TriggerDelete, DownloadStatusDeleted}:   {},
	{DownloadStatusFailed, TriggerDelete, DownloadStatusDeleted}:      {},
}

// CanTransition reports whether trigger may move a record from one status to another.
func CanTransition(from, to DownloadStatus, trigger DownloadTrigger) bool {
	_, ok := downloadTransitions[downloadTransition{from: from, trigger: trigger, to: to}]
	return ok
}

// TransitionError is returned when a trigger is not allowed from the record's current status.
type TransitionError struct {
	From    DownloadStatus
	To      DownloadStatus
	Trigger DownloadTrigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move download from %s to %s on %s", e.From, e.To, e.Trigger)
}

// ErrProgressOutOfRange is returned for progress values outside 0..100.
var ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")

// DefaultFailureMessage is stored when a failure is reported without a message.
const DefaultFailureMessage = "Download failed"

// DownloadOutcome tags the result of a download request.
type DownloadOutcome string

const (
	OutcomeAlreadyDownloaded DownloadOutcome = "ALREADY_DOWNLOADED"
	OutcomeReadyToDownload   DownloadOutcome = "READY_TO_DOWNLOAD"
)

// DeviceInfo identifies the client device holding the offline copy.
type DeviceInfo struct {
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// DownloadRecord tracks one user's offline copy of one book.
// At most one record exists per (UserID, BookID); removal is a DELETED tombstone.
type DownloadRecord struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`

	Status       DownloadStatus `json:"status"`
	Progress     int            `json:"progress"`      // 0-100, meaningful while DOWNLOADING
	DownloadSize int64          `json:"download_size"` // bytes
	ErrorMessage string         `json:"error_message,omitempty"`
	DeviceInfo   *DeviceInfo    `json:"device_info,omitempty"`

	DownloadedAt   time.Time `json:"downloaded_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewDownloadRecord creates a record in DOWNLOADING for a first request.
func NewDownloadRecord(id, userID, bookID string, device *DeviceInfo, now time.Time) *DownloadRecord {
	return &DownloadRecord{
		ID:             id,
		UserID:         userID,
		BookID:         bookID,
		Status:         DownloadStatusDownloading,
		DeviceInfo:     device,
		DownloadedAt:   now,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsAvailableOffline reports whether the copy finished downloading.
func (d *DownloadRecord) IsAvailableOffline() bool {
	return d.Status == DownloadStatusCompleted
}

func (d *DownloadRecord) moveTo(to DownloadStatus, trigger DownloadTrigger, now time.Time) error {
	if !CanTransition(d.Status, to, trigger) {
		return &TransitionError{From: d.Status, To: to, Trigger: trigger}
	}
	d.Status = to
	d.LastAccessedAt = now
	d.UpdatedAt = now
	return nil
}

// Restart resets the record to DOWNLOADING with zero progress.
// Callers decide beforehand whether a COMPLETED record should be restarted at all.
func (d *DownloadRecord) Restart(device *DeviceInfo, now time.Time) error {
	if err := d.moveTo(DownloadStatusDownloading, TriggerRequest, now); err != nil {
		return err
	}
	d.Progress = 0
	d.DownloadSize = 0
	d.ErrorMessage = ""
	if device != nil {
		d.DeviceInfo = device
	}
	return nil
}

// ApplyProgress records transfer progress. Progress 100 completes the download.
// A nil size leaves DownloadSize untouched.
func (d *DownloadRecord) ApplyProgress(progress int, size *int64, now time.Time) error {
	if progress < 0 || progress > 100 {
		return ErrProgressOutOfRange
	}
	to := DownloadStatusDownloading
	if progress == 100 {
		to = DownloadStatusCompleted
	}
	if err := d.moveTo(to, TriggerProgress, now); err != nil {
		return err
	}
	d.Progress = progress
	if size != nil {
		d.DownloadSize = *size
	}
	if to == DownloadStatusCompleted {
		d.DownloadedAt = now
	}
	return nil
}

// Finalize completes the download with its final size.
func (d *DownloadRecord) Finalize(totalSize int64, now time.Time) error {
	if err := d.moveTo(DownloadStatusCompleted, TriggerFinalize, now); err != nil {
		return err
	}
	d.Progress = 100
	d.DownloadSize = totalSize
	d.DownloadedAt = now
	return nil
}

// Fail marks the download FAILED. Progress is kept so clients can show where it stopped.
func (d *DownloadRecord) Fail(message string, now time.Time) error {
	if err := d.moveTo(DownloadStatusFailed, TriggerFailure, now); err != nil {
		return err
	}
	if message == "" {
		message = DefaultFailureMessage
	}
	d.ErrorMessage = message
	return nil
}

// Tombstone marks the record DELETED, keeping it as history.
func (d *DownloadRecord) Tombstone(now time.Time) error {
	return d.moveTo(DownloadStatusDeleted, TriggerDelete, now)
}

// IsStale reports whether a DOWNLOADING record has not been touched since cutoff.
func (d *DownloadRecord) IsStale(cutoff time.Time) bool {
	return d.Status == DownloadStatusDownloading && d.LastAccessedAt.Before(cutoff)
}

// DownloadedBook pairs a completed record with its catalog entry.
type DownloadedBook struct {
	Download *DownloadRecord `json:"download"`
	Book     *Book           `json:"book"`
}
