package service

import (
	"context"
	"log/slog"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/source"
	"github.com/booksyapp/booksy-server/internal/store"
	"github.com/booksyapp/booksy-server/internal/validation"
)

// SourceService resolves and opens catalog book artifacts.
type SourceService struct {
	books     store.Catalog
	resolver  *source.Resolver
	opener    *source.Opener
	validator *validation.Validator
	logger    *slog.Logger
}

// NewSourceService creates a new source service.
func NewSourceService(books store.Catalog, resolver *source.Resolver, opener *source.Opener, validator *validation.Validator, logger *slog.Logger) *SourceService {
	return &SourceService{
		books:     books,
		resolver:  resolver,
		opener:    opener,
		validator: validator,
		logger:    logger,
	}
}

// ResolveSource builds the descriptor for a raw artifact reference.
func (s *SourceService) ResolveSource(ctx context.Context, ref, declaredType string) (*domain.SourceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, ref, declaredType)
}

// ResolveBook builds the descriptor for a catalog book. It does not count a download.
func (s *SourceService) ResolveBook(ctx context.Context, bookID string) (*domain.SourceDescriptor, error) {
	book, err := s.book(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return s.resolver.ResolveBook(ctx, book)
}

// OpenBook resolves a catalog book and starts the byte transfer.
// The caller must close the returned artifact's Body.
func (s *SourceService) OpenBook(ctx context.Context, bookID string) (*source.Artifact, error) {
	desc, err := s.ResolveBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	artifact, err := s.opener.Open(ctx, desc)
	if err != nil {
		s.logger.Warn("failed to open book file",
			"book_id", bookID,
			"retrieval_method", desc.RetrievalMethod,
			"error", err,
		)
		return nil, err
	}
	return artifact, nil
}

func (s *SourceService) book(ctx context.Context, bookID string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(bookRef{BookID: bookID}); err != nil {
		return nil, err
	}
	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, translate(s.logger, err, "book not found")
	}
	return book, nil
}

type bookRef struct {
	BookID string `json:"book_id" validate:"identifier"`
}
