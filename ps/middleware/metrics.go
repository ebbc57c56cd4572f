package middleware

import (
	"context"
	"time"

	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/ps"
	"github.com/go-kit/kit/metrics"
)

var _ ps.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     ps.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc ps.Service) ps.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

// Handle is counted under "handle-<outcome>" so accepted, rejected, discarded
// and malformed candidates are told apart.
func (mm *metricsMiddleware) Handle(ctx context.Context, payload []byte) (d ps.Decision, err error) {
	defer func(begin time.Time) {
		method := "handle-" + string(d.Outcome)
		mm.counter.With("method", method).Add(1)
		mm.latency.With("method", method).Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Handle(ctx, payload)
}

func (mm *metricsMiddleware) Best(ctx context.Context) (model.State, bool) {
	defer func(begin time.Time) {
		mm.counter.With("method", "best").Add(1)
		mm.latency.With("method", "best").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Best(ctx)
}

func (mm *metricsMiddleware) Score(ctx context.Context) float64 {
	return mm.svc.Score(ctx)
}
