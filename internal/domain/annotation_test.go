package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBookmarksNewestFirst(t *testing.T) {
	bookmarks := []Bookmark{
		{ID: "a", CreatedAt: t0},
		{ID: "b", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "c", CreatedAt: t0.Add(time.Minute)},
		{ID: "d", CreatedAt: t0.Add(2 * time.Minute)},
	}

	got := BookmarksNewestFirst(bookmarks)

	ids := make([]string, len(got))
	for i, b := range got {
		ids[i] = b.ID
	}
	// Ties keep reverse insertion order: d was appended after b.
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
	assert.Equal(t, "a", bookmarks[0].ID, "input must not be reordered")
}

func TestNotesNewestFirst(t *testing.T) {
	notes := []Note{
		{ID: "n1", CreatedAt: t0},
		{ID: "n2", CreatedAt: t0.Add(time.Second)},
	}

	got := NotesNewestFirst(notes)

	assert.Equal(t, "n2", got[0].ID)
	assert.Equal(t, "n1", got[1].ID)
}

func TestBookmark_Matches(t *testing.T) {
	b := Bookmark{ChapterID: "ch-1", Position: 0.3}

	assert.True(t, b.Matches("ch-1", 0.3))
	assert.False(t, b.Matches("ch-1", 0.31))
	assert.False(t, b.Matches("ch-2", 0.3))
}

func TestChapterIDs_Distinct(t *testing.T) {
	ids := ChapterIDs(
		[]Bookmark{{ChapterID: "ch-1"}, {ChapterID: "ch-2"}, {ChapterID: "ch-1"}},
		[]Note{{ChapterID: "ch-3"}, {ChapterID: "ch-2"}},
	)

	assert.Equal(t, []string{"ch-1", "ch-2", "ch-3"}, ids)
}

func TestParseFileType(t *testing.T) {
	tests := []struct {
		in   string
		want FileType
		ok   bool
	}{
		{"EPUB", FileTypeEPUB, true},
		{"epub", FileTypeEPUB, true},
		{" Pdf ", FileTypePDF, true},
		{"MOBI", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFileType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "application/epub+zip", FileTypeEPUB.ContentType())
	assert.Equal(t, "application/pdf", FileTypePDF.ContentType())
	assert.Equal(t, "pdf", FileTypePDF.Extension())
}
