package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/storage"
)

// Artifact is an open artifact stream. The caller must close Body.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
	// Length is the byte count, or domain.UnknownLength.
	Length int64
}

// Opener fetches artifact bytes for a resolved descriptor.
type Opener struct {
	client  *http.Client
	backend storage.Backend
}

// NewOpener creates an opener. Remote fetches use an HTTP client with the given timeout.
func NewOpener(backend storage.Backend, timeout time.Duration) *Opener {
	return &Opener{
		client:  &http.Client{Timeout: timeout},
		backend: backend,
	}
}

// Open starts the transfer. Remote non-2xx responses and artifacts missing
// from storage are RETRIEVAL errors; no download record is touched here.
func (o *Opener) Open(ctx context.Context, desc *domain.SourceDescriptor) (*Artifact, error) {
	if desc.IsRemote {
		return o.fetchRemote(ctx, desc)
	}
	return o.openLocal(ctx, desc)
}

func (o *Opener) fetchRemote(ctx context.Context, desc *domain.SourceDescriptor) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.RetrievalTarget, nil)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeRetrieval, "invalid remote file address")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeRetrieval, "failed to fetch remote file")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, domainerrors.Retrievalf("remote file returned status %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	length := domain.UnknownLength
	if resp.ContentLength >= 0 {
		length = resp.ContentLength
	}

	return &Artifact{
		Body:        resp.Body,
		ContentType: desc.ContentType,
		FileName:    desc.FileName,
		Length:      length,
	}, nil
}

func (o *Opener) openLocal(ctx context.Context, desc *domain.SourceDescriptor) (*Artifact, error) {
	rc, info, err := o.backend.Open(ctx, desc.RetrievalTarget)
	if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return nil, domainerrors.Retrievalf("book file %q is missing from storage", desc.RetrievalTarget)
	}
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeRetrieval, fmt.Sprintf("open book file %q", desc.RetrievalTarget))
	}

	return &Artifact{
		Body:        rc,
		ContentType: desc.ContentType,
		FileName:    desc.FileName,
		Length:      info.Size,
	}, nil
}
