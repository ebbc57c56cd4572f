package ps

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/model"
	"github.com/go-kit/kit/metrics"
)

// PublishHook observes every accepted candidate after it has been published.
// Hook errors are logged and never undo a publish.
type PublishHook interface {
	OnPublish(ctx context.Context, published model.State) error
}

type PublishHookFunc func(ctx context.Context, published model.State) error

func (f PublishHookFunc) OnPublish(ctx context.Context, published model.State) error {
	return f(ctx, published)
}

type snapshotHook struct {
	runID string
	repo  history.SnapshotRepository
}

// SnapshotHook persists every published version under runID so it can be
// re-evaluated later.
func SnapshotHook(runID string, repo history.SnapshotRepository) PublishHook {
	return &snapshotHook{runID: runID, repo: repo}
}

func (h *snapshotHook) OnPublish(ctx context.Context, published model.State) error {
	payload, err := model.Encode(published)
	if err != nil {
		return err
	}

	if err := h.repo.Save(ctx, history.Snapshot{
		RunID:       h.runID,
		Version:     published.Version(),
		Loss:        published.Loss(),
		TrainerID:   published.TrainerID(),
		PublishedAt: time.Now().UTC(),
		Payload:     payload,
	}); err != nil {
		return fmt.Errorf("save snapshot %d: %w", published.Version(), err)
	}

	return nil
}

// GaugeHook exposes the published score and version as gauges.
func GaugeHook(score, version metrics.Gauge) PublishHook {
	return PublishHookFunc(func(_ context.Context, published model.State) error {
		score.Set(published.Loss())
		version.Set(float64(published.Version()))

		return nil
	})
}
