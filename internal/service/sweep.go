package service

import (
	"context"
	"errors"
	"time"

	"github.com/booksyapp/booksy-server/internal/domain"
	"github.com/booksyapp/booksy-server/internal/store"
)

// AbandonedMessage is stored on downloads failed by the stale sweep.
const AbandonedMessage = "Download abandoned"

// SweepStale fails DOWNLOADING records not touched within staleAfter.
// At most limit records are examined per run; limit <= 0 examines all.
// It returns the number of records failed.
func (s *DownloadService) SweepStale(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.now()
	cutoff := now.Add(-staleAfter)

	candidates, err := s.store.ListDownloadsByStatus(ctx, domain.DownloadStatusDownloading, limit)
	if err != nil {
		return 0, translate(s.logger, err, downloadNotFound)
	}

	swept := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		// Oldest first, so the first fresh record ends the scan.
		if !c.IsStale(cutoff) {
			break
		}

		var changed bool
		record, err := s.store.UpdateDownload(ctx, c.ID, func(cur *domain.DownloadRecord) (*domain.DownloadRecord, error) {
			changed = false
			// The client may have reported progress since the scan.
			if !cur.IsStale(cutoff) {
				return nil, nil
			}
			next := cloneDownload(cur)
			if err := next.Fail(AbandonedMessage, now); err != nil {
				return nil, err
			}
			changed = true
			return next, nil
		})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return swept, translate(s.logger, err, downloadNotFound)
		}
		if changed {
			swept++
			s.emit(record)
		}
	}

	if swept > 0 {
		s.logger.Info("stale downloads failed",
			"count", swept,
			"stale_after", staleAfter,
		)
	}
	return swept, nil
}
