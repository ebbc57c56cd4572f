package coordinator_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/swamp/coordinator"
	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weights = []float64{1.5, -2, 0.5}

func config() coordinator.Config {
	return coordinator.Config{
		RunID:              "run-1",
		RunName:            "test-run",
		Trainers:           4,
		Epochs:             3,
		BatchSize:          8,
		ValidateBatchSize:  16,
		FreeTrialSteps:     2,
		PullProbability:    0.5,
		LossSampleInterval: 1,
		Seed:               1,
		DrainOnFinish:      true,
		UsageInterval:      5 * time.Millisecond,
		PS: ps.Config{
			ValidateMaxBatches: 4,
			ReceiveTimeout:     10 * time.Millisecond,
		},
	}
}

func deps(sink series.Sink, hooks ...ps.PublishHook) coordinator.Dependencies {
	return coordinator.Dependencies{
		Factory:    optim.LinearFactory(len(weights), 0.05, 0.5),
		Train:      data.Linear(512, weights, 0.25, 0.01, 1),
		Validation: data.Linear(64, weights, 0.25, 0.01, 2),
		Sink:       sink,
		Hooks:      hooks,
	}
}

func TestRun(t *testing.T) {
	sink := series.NewMemorySink()
	var published []model.State
	hook := ps.PublishHookFunc(func(_ context.Context, s model.State) error {
		published = append(published, s)

		return nil
	})

	c, err := coordinator.New(config(), deps(sink, hook))
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "test-run", report.RunName)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Trainers, 4)
	for _, s := range report.Trainers {
		// 128 samples per shard in batches of 8, three epochs.
		assert.Equal(t, 48, s.Steps, s.ID)
		assert.Empty(t, s.Err)
		assert.Positive(t, s.Exchanges)
	}

	require.NotNil(t, report.Best)
	require.NotEmpty(t, published)
	assert.Equal(t, uint64(len(published)), report.Published)
	assert.Equal(t, report.Published, report.Best.Version)
	for i := 1; i < len(published); i++ {
		assert.Less(t, published[i].Loss(), published[i-1].Loss())
	}
	assert.InDelta(t, report.Best.Loss, report.LowestPSLoss, 1e-6)

	assert.GreaterOrEqual(t, report.Usage.Samples, 2)
	assert.Positive(t, report.Usage.MaxHeapBytes)

	actors, err := sink.Actors(context.Background())
	require.NoError(t, err)
	assert.Contains(t, actors, series.PSActor)
	assert.Contains(t, actors, "trainer-0")
}

// flakyFactory hands out a failing optimizer on the given call.
func flakyFactory(failOn int32) optim.Factory {
	base := optim.LinearFactory(len(weights), 0.05, 0.5)
	var calls atomic.Int32

	return func() (optim.LocalOptimizer, error) {
		opt, err := base()
		if calls.Add(1) == failOn {
			return failingOptimizer{opt}, err
		}

		return opt, err
	}
}

type failingOptimizer struct {
	optim.LocalOptimizer
}

func (failingOptimizer) TrainStep(data.Batch) (float64, error) {
	return 0, errors.New("diverged")
}

func TestFailingTrainerEndsOnlyItself(t *testing.T) {
	d := deps(series.NewMemorySink())
	// The first call builds the scratch optimizer, the second trainer-0.
	d.Factory = flakyFactory(2)

	c, err := coordinator.New(config(), d)
	require.NoError(t, err)

	report, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.Trainers[0].Err)
	for _, s := range report.Trainers[1:] {
		assert.Empty(t, s.Err)
		assert.Equal(t, 48, s.Steps)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := coordinator.New(config(), deps(nil))
	require.NoError(t, err)

	report, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report.Best)
	assert.True(t, math.IsInf(report.LowestPSLoss, 1))
}

func TestReportJSON(t *testing.T) {
	cfg := config()
	cfg.Trainers = 1
	cfg.Epochs = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := coordinator.New(cfg, deps(nil))
	require.NoError(t, err)
	report, _ := c.Run(ctx)

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Nil(t, decoded["lowest_ps_loss"])
	trainers := decoded["trainers"].([]any)
	require.Len(t, trainers, 1)
	assert.Nil(t, trainers[0].(map[string]any)["score"])
}

func TestDefaultsGenerateRunIdentity(t *testing.T) {
	cfg := config()
	cfg.RunID, cfg.RunName = "", ""

	c, err := coordinator.New(cfg, deps(nil))
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID())
	assert.NotEmpty(t, c.RunName())
}

func TestNewInvalid(t *testing.T) {
	cases := []struct {
		desc string
		cfg  func(*coordinator.Config)
		deps func(*coordinator.Dependencies)
	}{
		{desc: "no trainers", cfg: func(c *coordinator.Config) { c.Trainers = 0 }},
		{desc: "zero batch size", cfg: func(c *coordinator.Config) { c.BatchSize = 0 }},
		{desc: "zero validation batch size", cfg: func(c *coordinator.Config) { c.ValidateBatchSize = 0 }},
		{desc: "zero validation cap", cfg: func(c *coordinator.Config) { c.PS.ValidateMaxBatches = 0 }},
		{desc: "no factory", deps: func(d *coordinator.Dependencies) { d.Factory = nil }},
		{desc: "no training data", deps: func(d *coordinator.Dependencies) { d.Train = nil }},
		{desc: "no validation data", deps: func(d *coordinator.Dependencies) { d.Validation = nil }},
		{desc: "fewer samples than trainers", deps: func(d *coordinator.Dependencies) { d.Train = d.Train[:3] }},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, d := config(), deps(nil)
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			if tc.deps != nil {
				tc.deps(&d)
			}
			_, err := coordinator.New(cfg, d)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
		})
	}
}
