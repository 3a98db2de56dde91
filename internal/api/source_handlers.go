package api

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/booksyapp/booksy-server/internal/domain"
	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/http/response"
)

func (s *Server) registerSourceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getBookSource",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookId}/source",
		Summary:     "Get book source",
		Description: "Describes where the book file lives and how to fetch it",
		Tags:        []string{"Books"},
		Security:    bearerSecurity,
	}, s.handleGetBookSource)
}

// SourceOutput wraps a source descriptor for Huma.
type SourceOutput struct {
	Body *domain.SourceDescriptor
}

func (s *Server) handleGetBookSource(ctx context.Context, input *BookPathInput) (*SourceOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}

	desc, err := s.services.Sources.ResolveBook(ctx, input.BookID)
	if err != nil {
		return nil, err
	}

	return &SourceOutput{Body: desc}, nil
}

// handleStreamBookFile streams the book's bytes from local storage or the remote origin.
func (s *Server) handleStreamBookFile(w http.ResponseWriter, r *http.Request) {
	userID, err := requestUser(r)
	if err != nil {
		response.Unauthorized(w, "authentication required", s.logger)
		return
	}
	bookID := chi.URLParam(r, "bookId")

	artifact, err := s.services.Sources.OpenBook(r.Context(), bookID)
	if err != nil {
		response.DomainError(w, StatusFor(domainerrors.CodeOf(err)), err, s.logger)
		return
	}
	defer artifact.Body.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName}))
	w.Header().Set("Cache-Control", "private, no-store")
	if artifact.Length >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Length, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, artifact.Body)
	if err != nil {
		s.logger.Warn("book file stream interrupted",
			"user_id", userID,
			"book_id", bookID,
			"bytes_sent", n,
			"error", err,
		)
	}
}
