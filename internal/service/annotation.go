package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/sse"
	"github.com/booksyapp/booksy-server/internal/store"
	"github.com/booksyapp/booksy-server/internal/validation"
)

// AnnotationStore is the slice of the Document Store annotations need.
type AnnotationStore interface {
	GetChapter(ctx context.Context, id string) (*domain.Chapter, error)
	GetChaptersByIDs(ctx context.Context, ids []string) (map[string]*domain.Chapter, error)
	store.Progress
}

// BookmarkRemoval reports how many bookmarks a removal took out and what is left.
type BookmarkRemoval struct {
	Removed   int                       `json:"removed"`
	Bookmarks []domain.ResolvedBookmark `json:"bookmarks"`
}

// AnnotationService appends and removes bookmarks and notes. It writes only the
// annotation lists, so a concurrent position update is never lost.
type AnnotationService struct {
	store     AnnotationStore
	events    store.EventEmitter
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnnotationService creates a new annotation service.
func NewAnnotationService(store AnnotationStore, events store.EventEmitter, validator *validation.Validator, logger *slog.Logger) *AnnotationService {
	return &AnnotationService{
		store:     store,
		events:    events,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// AddBookmark appends a bookmark after checking the chapter exists.
// Bookmarks at the same position are all kept.
func (s *AnnotationService) AddBookmark(ctx context.Context, req AddBookmarkRequest) (*domain.ResolvedBookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	chapter, err := s.store.GetChapter(ctx, req.ChapterID)
	if err != nil {
		return nil, translate(s.logger, err, "chapter not found")
	}

	bookmark := domain.Bookmark{
		ID:        uuid.NewString(),
		ChapterID: req.ChapterID,
		Position:  req.Position,
		Note:      req.Note,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendBookmark(ctx, req.UserID, req.BookID, bookmark); err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}

	s.events.Emit(sse.NewBookmarkAddedEvent(req.UserID, req.BookID, bookmark))
	s.logger.Debug("bookmark added",
		"user_id", req.UserID,
		"book_id", req.BookID,
		"bookmark_id", bookmark.ID,
	)
	return &domain.ResolvedBookmark{Bookmark: bookmark, Chapter: chapter.Ref()}, nil
}

// RemoveBookmark removes every bookmark at exactly (chapter, position).
// Matching nothing is not an error, and neither is a book never read.
func (s *AnnotationService) RemoveBookmark(ctx context.Context, req RemoveBookmarkRequest) (*BookmarkRemoval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p, removed, err := s.store.RemoveBookmarks(ctx, req.UserID, req.BookID, req.ChapterID, req.Position)
	if errors.Is(err, store.ErrNotFound) {
		return &BookmarkRemoval{Removed: 0, Bookmarks: []domain.ResolvedBookmark{}}, nil
	}
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}

	position := req.Position
	return s.finishRemoval(ctx, p, removed, sse.BookmarkRemovedEventData{
		BookID:    req.BookID,
		ChapterID: req.ChapterID,
		Position:  &position,
		Removed:   removed,
	})
}

// RemoveBookmarkByID removes a single bookmark entry.
func (s *AnnotationService) RemoveBookmarkByID(ctx context.Context, req RemoveBookmarkByIDRequest) (*BookmarkRemoval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p, removed, err := s.store.RemoveBookmarkByID(ctx, req.UserID, req.BookID, req.BookmarkID)
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}
	if removed == 0 {
		return nil, translate(s.logger, store.ErrNotFound, "bookmark not found")
	}

	return s.finishRemoval(ctx, p, removed, sse.BookmarkRemovedEventData{
		BookID:     req.BookID,
		BookmarkID: req.BookmarkID,
		Removed:    removed,
	})
}

func (s *AnnotationService) finishRemoval(ctx context.Context, p *domain.ReadingProgress, removed int, event sse.BookmarkRemovedEventData) (*BookmarkRemoval, error) {
	if removed > 0 {
		s.events.Emit(sse.NewBookmarkRemovedEvent(p.UserID, event))
		s.logger.Debug("bookmarks removed",
			"user_id", p.UserID,
			"book_id", p.BookID,
			"removed", removed,
		)
	}

	bookmarks, _, err := s.resolve(ctx, p.Bookmarks, nil)
	if err != nil {
		return nil, err
	}
	return &BookmarkRemoval{Removed: removed, Bookmarks: bookmarks}, nil
}

// ListBookmarks returns the user's bookmarks for a book, newest first, with
// chapters resolved. A book never synced has no bookmarks.
func (s *AnnotationService) ListBookmarks(ctx context.Context, key BookKey) ([]domain.ResolvedBookmark, error) {
	p, err := s.load(ctx, key)
	if err != nil || p == nil {
		return []domain.ResolvedBookmark{}, err
	}
	bookmarks, _, err := s.resolve(ctx, p.Bookmarks, nil)
	return bookmarks, err
}

// AddNote appends a note after checking the chapter exists. Notes cannot be removed.
func (s *AnnotationService) AddNote(ctx context.Context, req AddNoteRequest) (*domain.ResolvedNote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	chapter, err := s.store.GetChapter(ctx, req.ChapterID)
	if err != nil {
		return nil, translate(s.logger, err, "chapter not found")
	}

	note := domain.Note{
		ID:        uuid.NewString(),
		ChapterID: req.ChapterID,
		Position:  req.Position,
		Content:   req.Content,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendNote(ctx, req.UserID, req.BookID, note); err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}

	s.events.Emit(sse.NewNoteAddedEvent(req.UserID, req.BookID, note))
	s.logger.Debug("note added",
		"user_id", req.UserID,
		"book_id", req.BookID,
		"note_id", note.ID,
	)
	return &domain.ResolvedNote{Note: note, Chapter: chapter.Ref()}, nil
}

// ListNotes returns the user's notes for a book, newest first, with chapters resolved.
func (s *AnnotationService) ListNotes(ctx context.Context, key BookKey) ([]domain.ResolvedNote, error) {
	p, err := s.load(ctx, key)
	if err != nil || p == nil {
		return []domain.ResolvedNote{}, err
	}
	_, notes, err := s.resolve(ctx, nil, p.Notes)
	return notes, err
}

// load returns nil without error when the user has no record for the book.
func (s *AnnotationService) load(ctx context.Context, key BookKey) (*domain.ReadingProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(key); err != nil {
		return nil, err
	}

	p, err := s.store.GetProgress(ctx, key.UserID, key.BookID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(s.logger, err, progressNotFound)
	}
	return p, nil
}

// resolve orders annotations newest first and attaches their chapters in one
// catalog lookup. Chapters missing from the catalog leave Chapter nil.
func (s *AnnotationService) resolve(ctx context.Context, bookmarks []domain.Bookmark, notes []domain.Note) ([]domain.ResolvedBookmark, []domain.ResolvedNote, error) {
	chapters := map[string]*domain.Chapter{}
	if ids := domain.ChapterIDs(bookmarks, notes); len(ids) > 0 {
		var err error
		chapters, err = s.store.GetChaptersByIDs(ctx, ids)
		if err != nil {
			return nil, nil, translate(s.logger, err, "chapter not found")
		}
	}
	ref := func(chapterID string) *domain.ChapterRef {
		if c, ok := chapters[chapterID]; ok {
			return c.Ref()
		}
		return nil
	}

	resolvedBookmarks := make([]domain.ResolvedBookmark, 0, len(bookmarks))
	for _, b := range domain.BookmarksNewestFirst(bookmarks) {
		resolvedBookmarks = append(resolvedBookmarks, domain.ResolvedBookmark{Bookmark: b, Chapter: ref(b.ChapterID)})
	}
	resolvedNotes := make([]domain.ResolvedNote, 0, len(notes))
	for _, n := range domain.NotesNewestFirst(notes) {
		resolvedNotes = append(resolvedNotes, domain.ResolvedNote{Note: n, Chapter: ref(n.ChapterID)})
	}
	return resolvedBookmarks, resolvedNotes, nil
}
