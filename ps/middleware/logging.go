package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/ps"
)

var _ ps.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    ps.Service
}

func Logging(logger *slog.Logger, svc ps.Service) ps.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Handle(ctx context.Context, payload []byte) (d ps.Decision, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("candidate",
				slog.String("trainer", d.TrainerID),
				slog.Float64("loss", d.CandidateLoss),
				slog.Int("size", len(payload)),
			),
			slog.String("outcome", string(d.Outcome)),
			slog.Float64("score", d.PreviousScore),
		}
		if d.Validated {
			args = append(args, slog.Float64("double_check_loss", d.DoubleCheckLoss))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Handle candidate failed", args...)

			return
		}
		if d.Outcome == ps.OutcomeAccepted {
			args = append(args, slog.Uint64("version", d.Version))
			lm.logger.Info("Published new best model", args...)

			return
		}
		lm.logger.Debug("Handle candidate completed", args...)
	}(time.Now())

	return lm.svc.Handle(ctx, payload)
}

func (lm *loggingMiddleware) Best(ctx context.Context) (s model.State, ok bool) {
	defer func(begin time.Time) {
		lm.logger.Debug("Read best model completed",
			slog.String("duration", time.Since(begin).String()),
			slog.Bool("published", ok),
			slog.Uint64("version", s.Version()),
		)
	}(time.Now())

	return lm.svc.Best(ctx)
}

func (lm *loggingMiddleware) Score(ctx context.Context) float64 {
	return lm.svc.Score(ctx)
}
