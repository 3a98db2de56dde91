// Package sse fans out download and reading-progress changes to a user's
// connected sessions over Server-Sent Events.
package sse

import (
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventDownloadUpdated is sent whenever a download record changes state or progress.
	EventDownloadUpdated EventType = "download.updated"

	// EventProgressSynced is sent after a syncProgress merge.
	EventProgressSynced EventType = "progress.synced"
	// EventCheckpointSaved is sent after a saveCheckpoint write.
	EventCheckpointSaved EventType = "checkpoint.saved"

	EventBookmarkAdded   EventType = "bookmark.added"
	EventBookmarkRemoved EventType = "bookmark.removed"
	EventNoteAdded       EventType = "note.added"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// UserID limits delivery to that user's sessions. Empty means every session.
	UserID string `json:"-"`
}

// DownloadEventData is the data payload for download events.
type DownloadEventData struct {
	Download *domain.DownloadRecord `json:"download"`
}

// ProgressEventData is the data payload for progress and checkpoint events.
type ProgressEventData struct {
	BookID      string             `json:"book_id"`
	Checkpoint  *domain.Checkpoint `json:"checkpoint"`
	ReadingTime int64              `json:"reading_time"`
	IsCompleted bool               `json:"is_completed"`
}

// BookmarkEventData is the data payload for bookmark.added.
type BookmarkEventData struct {
	BookID   string          `json:"book_id"`
	Bookmark domain.Bookmark `json:"bookmark"`
}

// BookmarkRemovedEventData is the data payload for bookmark.removed.
// Either BookmarkID or the (ChapterID, Position) pair identifies what was removed.
type BookmarkRemovedEventData struct {
	BookID     string   `json:"book_id"`
	BookmarkID string   `json:"bookmark_id,omitempty"`
	ChapterID  string   `json:"chapter_id,omitempty"`
	Position   *float64 `json:"position,omitempty"`
	Removed    int      `json:"removed"`
}

// NoteEventData is the data payload for note.added.
type NoteEventData struct {
	BookID string      `json:"book_id"`
	Note   domain.Note `json:"note"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newUserEvent(userID string, eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		UserID:    userID,
	}
}

// NewDownloadUpdatedEvent creates a download.updated event for the record's owner.
func NewDownloadUpdatedEvent(d *domain.DownloadRecord) Event {
	return newUserEvent(d.UserID, EventDownloadUpdated, DownloadEventData{Download: d})
}

// NewProgressSyncedEvent creates a progress.synced event.
func NewProgressSyncedEvent(p *domain.ReadingProgress) Event {
	return newUserEvent(p.UserID, EventProgressSynced, progressData(p))
}

// NewCheckpointSavedEvent creates a checkpoint.saved event.
func NewCheckpointSavedEvent(p *domain.ReadingProgress) Event {
	return newUserEvent(p.UserID, EventCheckpointSaved, progressData(p))
}

func progressData(p *domain.ReadingProgress) ProgressEventData {
	return ProgressEventData{
		BookID:      p.BookID,
		Checkpoint:  p.Checkpoint(),
		ReadingTime: p.ReadingTime,
		IsCompleted: p.IsCompleted,
	}
}

// NewBookmarkAddedEvent creates a bookmark.added event.
func NewBookmarkAddedEvent(userID, bookID string, b domain.Bookmark) Event {
	return newUserEvent(userID, EventBookmarkAdded, BookmarkEventData{BookID: bookID, Bookmark: b})
}

// NewBookmarkRemovedEvent creates a bookmark.removed event.
func NewBookmarkRemovedEvent(userID string, data BookmarkRemovedEventData) Event {
	return newUserEvent(userID, EventBookmarkRemoved, data)
}

// NewNoteAddedEvent creates a note.added event.
func NewNoteAddedEvent(userID, bookID string, n domain.Note) Event {
	return newUserEvent(userID, EventNoteAdded, NoteEventData{BookID: bookID, Note: n})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: now},
		Timestamp: now,
	}
}
