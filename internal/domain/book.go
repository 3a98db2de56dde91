package domain

import (
	"strings"
	"time"
)

// FileType is a supported downloadable artifact format.
type FileType string

const (
	FileTypeEPUB FileType = "EPUB"
	FileTypePDF  FileType = "PDF"
)

// ParseFileType normalizes a declared type. Matching is case-insensitive;
// ok is false for anything other than EPUB or PDF.
func ParseFileType(declared string) (ft FileType, ok bool) {
	switch FileType(strings.ToUpper(strings.TrimSpace(declared))) {
	case FileTypeEPUB:
		return FileTypeEPUB, true
	case FileTypePDF:
		return FileTypePDF, true
	default:
		return "", false
	}
}

// Extension returns the lower-case file extension without a dot.
func (f FileType) Extension() string {
	return strings.ToLower(string(f))
}

// ContentType returns the MIME type served for the format.
func (f FileType) ContentType() string {
	switch f {
	case FileTypePDF:
		return "application/pdf"
	case FileTypeEPUB:
		return "application/epub+zip"
	default:
		return "application/octet-stream"
	}
}

// Book is the catalog entry the sync engine reads. FileURL is the artifact
// reference: an http(s) URL or a local storage key. FileType is the declared
// type exactly as cataloged, which may be unsupported.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	FileURL   string    `json:"file_url"`
	FileType  string    `json:"file_type"`
	Downloads int64     `json:"downloads"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is a catalog chapter that bookmarks and notes point into.
type Chapter struct {
	ID            string    `json:"id"`
	BookID        string    `json:"book_id"`
	ChapterNumber int       `json:"chapter_number"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChapterRef is the chapter summary embedded in resolved annotations.
type ChapterRef struct {
	ID            string `json:"id"`
	ChapterNumber int    `json:"chapter_number"`
	Title         string `json:"title"`
}

// Ref returns the chapter's summary.
func (c *Chapter) Ref() *ChapterRef {
	return &ChapterRef{ID: c.ID, ChapterNumber: c.ChapterNumber, Title: c.Title}
}
