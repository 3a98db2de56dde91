// Package service implements the offline download lifecycle, reading-progress
// synchronization and annotation operations on top of the Document Store.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/booksyapp/booksy-server/internal/domain"
	domainerrors "github.com/booksyapp/booksy-server/internal/errors"
	"github.com/booksyapp/booksy-server/internal/store"
)

// errNotOwned is returned from mutators when a record ID belongs to another user.
var errNotOwned = errors.New("record belongs to another user")

// translate converts store and state-machine errors into domain errors.
// notFound is the message used when the addressed record does not exist.
func translate(logger *slog.Logger, err error, notFound string) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var transition *domain.TransitionError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errNotOwned):
		return domainerrors.NotFound(notFound)
	case errors.As(err, &transition):
		return domainerrors.Conflictf("download is %s and cannot accept %s", describeStatus(transition.From), transition.Trigger).
			WithDetails(map[string]string{
				"status":  string(transition.From),
				"trigger": string(transition.Trigger),
			})
	case errors.Is(err, domain.ErrProgressOutOfRange):
		return domainerrors.Validation(err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Wrap(err, domainerrors.CodeConflict, "record already exists")
	case errors.Is(err, store.ErrTxConflict):
		return domainerrors.Wrap(err, domainerrors.CodeConflict, "record is being modified concurrently, retry")
	default:
		logger.Error("store operation failed", "error", err)
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "internal error")
	}
}

func describeStatus(s domain.DownloadStatus) string {
	if s == "" {
		return "absent"
	}
	return string(s)
}
