package domain

import "time"

// Bookmark marks a position inside a chapter. Several bookmarks may share a position.
type Bookmark struct {
	ID        string    `json:"id"`
	ChapterID string    `json:"chapter_id"`
	Position  float64   `json:"position"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Matches reports whether the bookmark sits at exactly (chapterID, position).
func (b Bookmark) Matches(chapterID string, position float64) bool {
	return b.ChapterID == chapterID && b.Position == position
}

// Note is free text attached to a position inside a chapter. Notes are append-only.
type Note struct {
	ID        string    `json:"id"`
	ChapterID string    `json:"chapter_id"`
	Position  float64   `json:"position"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolvedBookmark is a bookmark with its chapter looked up.
// Chapter is nil when the chapter has since been removed from the catalog.
type ResolvedBookmark struct {
	Bookmark
	Chapter *ChapterRef `json:"chapter,omitempty"`
}

// ResolvedNote is a note with its chapter looked up.
type ResolvedNote struct {
	Note
	Chapter *ChapterRef `json:"chapter,omitempty"`
}

// BookmarksNewestFirst returns the bookmarks ordered by CreatedAt descending.
func BookmarksNewestFirst(bookmarks []Bookmark) []Bookmark {
	return newestFirst(bookmarks, func(b Bookmark) time.Time { return b.CreatedAt })
}

// NotesNewestFirst returns the notes ordered by CreatedAt descending.
func NotesNewestFirst(notes []Note) []Note {
	return newestFirst(notes, func(n Note) time.Time { return n.CreatedAt })
}

// ChapterIDs returns the distinct chapter IDs referenced by bookmarks and notes.
func ChapterIDs(bookmarks []Bookmark, notes []Note) []string {
	seen := make(map[string]struct{}, len(bookmarks)+len(notes))
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, b := range bookmarks {
		add(b.ChapterID)
	}
	for _, n := range notes {
		add(n.ChapterID)
	}
	return ids
}
