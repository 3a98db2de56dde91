package domain

import (
	"slices"
	"time"
)

// CompletionThreshold is the totalProgress value at which a book counts as finished.
const CompletionThreshold = 100.0

// ReadingProgress is the per-(user, book) reading state shared by all of a user's devices.
//
// Position fields follow last-write-wins. ReadingTime only accumulates and
// IsCompleted only latches on. Bookmarks and Notes are independent lists that
// position writes never touch.
type ReadingProgress struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`

	ChapterID       string   `json:"chapter_id"`
	ChapterNumber   int      `json:"chapter_number"`
	Percentage      *float64 `json:"percentage,omitempty"` // checkpoint percentage, 0-100
	CurrentPosition float64  `json:"current_position"`     // within chapter, 0-1
	TotalProgress   float64  `json:"total_progress"`       // within book, 0-100

	ReadingTime int64      `json:"reading_time"` // minutes
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PositionClock is the newest client time that wrote position fields.
	PositionClock *time.Time `json:"position_clock,omitempty"`

	LastReadAt time.Time `json:"last_read_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Bookmarks []Bookmark `json:"bookmarks"`
	Notes     []Note     `json:"notes"`
}

// NewReadingProgress creates an empty record for a (user, book) pair.
func NewReadingProgress(id, userID, bookID string, now time.Time) *ReadingProgress {
	return &ReadingProgress{
		ID:         id,
		UserID:     userID,
		BookID:     bookID,
		LastReadAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bookmarks:  []Bookmark{},
		Notes:      []Note{},
	}
}

// CheckpointUpdate is a saveCheckpoint write.
type CheckpointUpdate struct {
	ChapterID     string
	ChapterNumber int
	Percentage    *float64
	ClientTime    *time.Time
	At            time.Time
}

// ProgressUpdate is a syncProgress write.
type ProgressUpdate struct {
	ChapterID        string
	ChapterNumber    int
	CurrentPosition  float64
	TotalProgress    *float64
	ReadingTimeDelta int64
	ClientTime       *time.Time
	At               time.Time
}

// Completes reports whether the update trips the completion latch.
func (u ProgressUpdate) Completes() bool {
	return u.TotalProgress != nil && *u.TotalProgress >= CompletionThreshold
}

// AcceptsPosition reports whether a write stamped with clientTime may overwrite
// position fields. Unstamped writes, and writes to records that were never
// stamped, always win.
func (p *ReadingProgress) AcceptsPosition(clientTime *time.Time) bool {
	return clientTime == nil || p.PositionClock == nil || !clientTime.Before(*p.PositionClock)
}

func (p *ReadingProgress) stampClock(clientTime *time.Time) {
	if clientTime != nil {
		t := *clientTime
		p.PositionClock = &t
	}
}

// ApplyCheckpoint overwrites the checkpoint fields. A nil Percentage keeps the stored one.
func (p *ReadingProgress) ApplyCheckpoint(u CheckpointUpdate) {
	if p.AcceptsPosition(u.ClientTime) {
		p.ChapterID = u.ChapterID
		p.ChapterNumber = u.ChapterNumber
		if u.Percentage != nil {
			v := *u.Percentage
			p.Percentage = &v
		}
		p.stampClock(u.ClientTime)
	}
	p.LastReadAt = u.At
	p.UpdatedAt = u.At
}

// ApplyUpdate merges a sync write: overwrite position, add reading time, latch completion.
func (p *ReadingProgress) ApplyUpdate(u ProgressUpdate) {
	if p.AcceptsPosition(u.ClientTime) {
		p.ChapterID = u.ChapterID
		p.ChapterNumber = u.ChapterNumber
		p.CurrentPosition = u.CurrentPosition
		if u.TotalProgress != nil {
			p.TotalProgress = *u.TotalProgress
		}
		p.stampClock(u.ClientTime)
	}

	p.ReadingTime += u.ReadingTimeDelta

	if u.Completes() && !p.IsCompleted {
		p.IsCompleted = true
		at := u.At
		p.CompletedAt = &at
	}

	p.LastReadAt = u.At
	p.UpdatedAt = u.At
}

// Checkpoint is the position summary returned by getCheckpoint.
type Checkpoint struct {
	ChapterID       string    `json:"chapter_id"`
	ChapterNumber   int       `json:"chapter_number"`
	Percentage      *float64  `json:"percentage,omitempty"`
	CurrentPosition float64   `json:"current_position"`
	TotalProgress   float64   `json:"total_progress"`
	LastReadAt      time.Time `json:"last_read_at"`
}

// Checkpoint returns the record's position fields.
func (p *ReadingProgress) Checkpoint() *Checkpoint {
	return &Checkpoint{
		ChapterID:       p.ChapterID,
		ChapterNumber:   p.ChapterNumber,
		Percentage:      p.Percentage,
		CurrentPosition: p.CurrentPosition,
		TotalProgress:   p.TotalProgress,
		LastReadAt:      p.LastReadAt,
	}
}

// newestFirst returns a copy of items ordered by creation time descending.
// Entries created at the same instant keep reverse insertion order.
func newestFirst[T any](items []T, createdAt func(T) time.Time) []T {
	out := slices.Clone(items)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b T) int {
		return createdAt(b).Compare(createdAt(a))
	})
	return out
}
