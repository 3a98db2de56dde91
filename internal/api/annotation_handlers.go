package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/service"
)

func (s *Server) registerAnnotationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBookmarks",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookId}/bookmarks",
		Summary:     "List bookmarks",
		Description: "Returns bookmarks newest first with their chapters",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleListBookmarks)

	huma.Register(s.api, huma.Operation{
		OperationID: "addBookmark",
		Method:      http.MethodPost,
		Path:        "/api/v1/progress/{bookId}/bookmarks",
		Summary:     "Add bookmark",
		Description: "Bookmarks a position inside a chapter",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleAddBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeBookmark",
		Method:      http.MethodDelete,
		Path:        "/api/v1/progress/{bookId}/bookmarks",
		Summary:     "Remove bookmark",
		Description: "Removes every bookmark at exactly the given chapter and position",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleRemoveBookmark)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeBookmarkById",
		Method:      http.MethodDelete,
		Path:        "/api/v1/progress/{bookId}/bookmarks/{bookmarkId}",
		Summary:     "Remove bookmark by ID",
		Description: "Removes a single bookmark",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleRemoveBookmarkByID)

	huma.Register(s.api, huma.Operation{
		OperationID: "listNotes",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress/{bookId}/notes",
		Summary:     "List notes",
		Description: "Returns notes newest first with their chapters",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleListNotes)

	huma.Register(s.api, huma.Operation{
		OperationID: "addNote",
		Method:      http.MethodPost,
		Path:        "/api/v1/progress/{bookId}/notes",
		Summary:     "Add note",
		Description: "Attaches a note to a position inside a chapter",
		Tags:        []string{"Annotations"},
		Security:    bearerSecurity,
	}, s.handleAddNote)
}

// === DTOs ===

// AddBookmarkBody is the request body for adding a bookmark.
type AddBookmarkBody struct {
	ChapterID string  `json:"chapter_id" doc:"Chapter holding the bookmark"`
	Position  float64 `json:"position" doc:"Position within the chapter, 0-1"`
	Note      string  `json:"note,omitempty" doc:"Optional label"`
}

// AddBookmarkInput wraps the add bookmark request for Huma.
type AddBookmarkInput struct {
	BookID string `path:"bookId" doc:"Book ID"`
	Body   AddBookmarkBody
}

// BookmarkOutput wraps a bookmark for Huma.
type BookmarkOutput struct {
	Body *domain.ResolvedBookmark
}

// BookmarksOutput wraps a bookmark list for Huma.
type BookmarksOutput struct {
	Body []domain.ResolvedBookmark
}

// RemoveBookmarkInput contains parameters for removing bookmarks at a position.
type RemoveBookmarkInput struct {
	BookID    string  `path:"bookId" doc:"Book ID"`
	ChapterID string  `query:"chapter_id" required:"true" doc:"Chapter holding the bookmarks"`
	Position  float64 `query:"position" required:"true" doc:"Exact position, 0-1"`
}

// RemoveBookmarkByIDInput contains parameters for removing one bookmark.
type RemoveBookmarkByIDInput struct {
	BookID     string `path:"bookId" doc:"Book ID"`
	BookmarkID string `path:"bookmarkId" doc:"Bookmark ID"`
}

// BookmarkRemovalOutput wraps a removal result for Huma.
type BookmarkRemovalOutput struct {
	Body *service.BookmarkRemoval
}

// AddNoteBody is the request body for adding a note.
type AddNoteBody struct {
	ChapterID string  `json:"chapter_id" doc:"Chapter holding the note"`
	Position  float64 `json:"position" doc:"Position within the chapter, 0-1"`
	Content   string  `json:"content" doc:"Note text"`
}

// AddNoteInput wraps the add note request for Huma.
type AddNoteInput struct {
	BookID string `path:"bookId" doc:"Book ID"`
	Body   AddNoteBody
}

// NoteOutput wraps a note for Huma.
type NoteOutput struct {
	Body *domain.ResolvedNote
}

// NotesOutput wraps a note list for Huma.
type NotesOutput struct {
	Body []domain.ResolvedNote
}

// === Handlers ===

func (s *Server) handleListBookmarks(ctx context.Context, input *BookPathInput) (*BookmarksOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	bookmarks, err := s.services.Annotations.ListBookmarks(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}
	if bookmarks == nil {
		bookmarks = []domain.ResolvedBookmark{}
	}

	return &BookmarksOutput{Body: bookmarks}, nil
}

func (s *Server) handleAddBookmark(ctx context.Context, input *AddBookmarkInput) (*BookmarkOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	bookmark, err := s.services.Annotations.AddBookmark(ctx, service.AddBookmarkRequest{
		UserID:    userID,
		BookID:    input.BookID,
		ChapterID: input.Body.ChapterID,
		Position:  input.Body.Position,
		Note:      input.Body.Note,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkOutput{Body: bookmark}, nil
}

func (s *Server) handleRemoveBookmark(ctx context.Context, input *RemoveBookmarkInput) (*BookmarkRemovalOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	removal, err := s.services.Annotations.RemoveBookmark(ctx, service.RemoveBookmarkRequest{
		UserID:    userID,
		BookID:    input.BookID,
		ChapterID: input.ChapterID,
		Position:  input.Position,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkRemovalOutput{Body: removal}, nil
}

func (s *Server) handleRemoveBookmarkByID(ctx context.Context, input *RemoveBookmarkByIDInput) (*BookmarkRemovalOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	removal, err := s.services.Annotations.RemoveBookmarkByID(ctx, service.RemoveBookmarkByIDRequest{
		UserID:     userID,
		BookID:     input.BookID,
		BookmarkID: input.BookmarkID,
	})
	if err != nil {
		return nil, err
	}

	return &BookmarkRemovalOutput{Body: removal}, nil
}

func (s *Server) handleListNotes(ctx context.Context, input *BookPathInput) (*NotesOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	notes, err := s.services.Annotations.ListNotes(ctx, service.BookKey{UserID: userID, BookID: input.BookID})
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.ResolvedNote{}
	}

	return &NotesOutput{Body: notes}, nil
}

func (s *Server) handleAddNote(ctx context.Context, input *AddNoteInput) (*NoteOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	note, err := s.services.Annotations.AddNote(ctx, service.AddNoteRequest{
		UserID:    userID,
		BookID:    input.BookID,
		ChapterID: input.Body.ChapterID,
		Position:  input.Body.Position,
		Content:   input.Body.Content,
	})
	if err != nil {
		return nil, err
	}

	return &NoteOutput{Body: note}, nil
}
