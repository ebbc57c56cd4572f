package ps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/swamp/pkg/queue"
)

// Run consumes candidates until ctx is done or uploads is closed and drained.
// Each receive waits at most timeout; a timeout only keeps the loop alive.
// A candidate that fails to be handled is logged at debug level and the loop
// moves on; the service middleware reports it in full.
// Candidates still queued when ctx is canceled are dropped.
func Run(ctx context.Context, svc Service, uploads queue.Receiver[[]byte], timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		payload, err := uploads.Receive(ctx, timeout)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrTimeout):
			logger.Debug("No candidate received", slog.String("timeout", timeout.String()))

			continue
		case errors.Is(err, queue.ErrClosed):
			logger.Info("Upload queue closed, parameter server stopping")

			return nil
		case ctx.Err() != nil:
			logger.Info("Parameter server stopping", slog.Int("dropped", pending(uploads)))

			return nil
		default:
			return err
		}

		if _, err := svc.Handle(ctx, payload); err != nil {
			logger.Debug("Candidate not handled", slog.Any("error", err))
		}
	}
}

func pending(r queue.Receiver[[]byte]) int {
	if l, ok := r.(interface{ Len() int }); ok {
		return l.Len()
	}

	return 0
}
