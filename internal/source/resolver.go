// Package source decides where a book's artifact lives and opens it for transfer.
package source

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/booksyapp/booksy-server/internal/counter"
	"github.com/booksyapp/booksy-server/internal/domain"
	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/normalize"
	"github.com/booksyapp/booksy-server/internal/storage"
)

// counterTimeout bounds the best-effort tally update.
const counterTimeout = 2 * time.Second

var remoteSchemes = []string{"http://", "https://"}

// Resolver classifies artifact references and builds SourceDescriptors.
type Resolver struct {
	backend storage.Backend
	counter counter.DownloadCounter
	logger  *slog.Logger
}

// NewResolver creates a resolver over the local artifact backend.
func NewResolver(backend storage.Backend, counter counter.DownloadCounter, logger *slog.Logger) *Resolver {
	return &Resolver{backend: backend, counter: counter, logger: logger}
}

// IsRemote reports whether ref names a remote-fetchable resource.
// Scheme matching is case-sensitive.
func IsRemote(ref string) bool {
	for _, scheme := range remoteSchemes {
		if strings.HasPrefix(ref, scheme) {
			return true
		}
	}
	return false
}

// Resolve builds the descriptor for a raw artifact reference.
//
// The format gate runs first, so an unsupported type never touches storage.
// Local references are reduced to their base name and must exist in the
// backend. Remote references are not pre-checked.
func (r *Resolver) Resolve(ctx context.Context, ref, declaredType string) (*domain.SourceDescriptor, error) {
	fileType, ok := domain.ParseFileType(declaredType)
	if !ok {
		return nil, domainerrors.UnsupportedFormatf("unsupported file type %q: only EPUB and PDF are supported", declaredType)
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domainerrors.NotFound("book has no file reference")
	}

	if IsRemote(ref) {
		return &domain.SourceDescriptor{
			IsRemote:        true,
			RetrievalTarget: ref,
			ContentType:     fileType.ContentType(),
			FileName:        remoteFileName(ref),
			ByteLength:      domain.UnknownLength,
			RetrievalMethod: domain.RetrievalRemoteFetch,
		}, nil
	}

	key := normalize.BaseName(ref)
	info, err := r.backend.Stat(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return nil, domainerrors.NotFoundf("book file %q not found", key)
	}
	if err != nil {
		return nil, domainerrors.Wrapf(err, domainerrors.CodeRetrieval, "check book file %q", key)
	}

	if info.ContentType != "" && !strings.HasPrefix(info.ContentType, fileType.ContentType()) {
		r.logger.Warn("stored artifact does not match declared type",
			"key", key,
			"declared", fileType,
			"detected", info.ContentType,
		)
	}

	return &domain.SourceDescriptor{
		IsRemote:        false,
		RetrievalTarget: key,
		ContentType:     fileType.ContentType(),
		FileName:        key,
		ByteLength:      info.Size,
		RetrievalMethod: domain.RetrievalLocalStorage,
	}, nil
}

// ResolveBook resolves a catalog book and names the file after the book.
func (r *Resolver) ResolveBook(ctx context.Context, book *domain.Book) (*domain.SourceDescriptor, error) {
	desc, err := r.Resolve(ctx, book.FileURL, book.FileType)
	if err != nil {
		return nil, err
	}
	fileType, _ := domain.ParseFileType(book.FileType)
	desc.FileName = normalize.FileName(book.Title, book.Author, fileType.Extension())
	return desc, nil
}

// ResolveForDownload is ResolveBook plus the best-effort download tally.
// A tally failure is logged and never fails the resolve.
func (r *Resolver) ResolveForDownload(ctx context.Context, book *domain.Book) (*domain.SourceDescriptor, error) {
	desc, err := r.ResolveBook(ctx, book)
	if err != nil {
		return nil, err
	}
	r.countDownload(ctx, book.ID)
	return desc, nil
}

func (r *Resolver) countDownload(ctx context.Context, bookID string) {
	if r.counter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), counterTimeout)
	defer cancel()

	if err := r.counter.Increment(ctx, bookID); err != nil {
		r.logger.Warn("failed to increment download counter",
			"book_id", bookID,
			"error", err,
		)
	}
}

func remoteFileName(ref string) string {
	path := ref
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return normalize.BaseName(path)
}
