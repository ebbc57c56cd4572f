package middleware

import (
	"context"

	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/ps"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ ps.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    ps.Service
}

func Tracing(tracer trace.Tracer, svc ps.Service) ps.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Handle(ctx context.Context, payload []byte) (d ps.Decision, err error) {
	ctx, span := tm.tracer.Start(ctx, "handle-candidate", trace.WithAttributes(
		attribute.Int("size", len(payload)),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", string(d.Outcome)),
			attribute.String("trainer", d.TrainerID),
			attribute.Float64("candidate_loss", d.CandidateLoss),
		)
		if d.Outcome == ps.OutcomeAccepted {
			span.SetAttributes(attribute.Int64("version", int64(d.Version)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return tm.svc.Handle(ctx, payload)
}

func (tm *tracing) Best(ctx context.Context) (model.State, bool) {
	ctx, span := tm.tracer.Start(ctx, "best")
	defer span.End()

	return tm.svc.Best(ctx)
}

func (tm *tracing) Score(ctx context.Context) float64 {
	return tm.svc.Score(ctx)
}
