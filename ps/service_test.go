package ps_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errShape = errors.New("shape mismatch")

// lossOptimizer validates every batch at the loss encoded in its loaded
// params, so a candidate's double-check loss is chosen by the test.
type lossOptimizer struct {
	mu    sync.Mutex
	loss  float64
	evals int
}

func (o *lossOptimizer) TrainStep(data.Batch) (float64, error) { return o.loss, nil }

func (o *lossOptimizer) Evaluate(data.Batch) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evals++

	return o.loss, nil
}

func (o *lossOptimizer) Snapshot() ([]byte, []byte, error) { return params(o.loss), nil, nil }

func (o *lossOptimizer) Load(p, _ []byte) error {
	if len(p) != 8 {
		return errShape
	}
	o.loss = math.Float64frombits(binary.LittleEndian.Uint64(p))

	return nil
}

func (o *lossOptimizer) evaluations() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.evals
}

func params(loss float64) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(loss))
}

// candidate encodes a push reporting loss whose validation loss is validated.
func candidate(t *testing.T, trainer string, loss, validated float64) []byte {
	t.Helper()
	payload, err := model.Encode(model.New(trainer, params(validated), []byte{1}, loss))
	require.NoError(t, err)

	return payload
}

type fixture struct {
	svc     ps.Service
	best    *register.Register
	scratch *lossOptimizer
	sink    series.Sink
}

func newFixture(t *testing.T, hooks ...ps.PublishHook) fixture {
	t.Helper()
	src, err := data.NewSliceSource(data.Linear(8, []float64{1}, 0, 0, 1), 2)
	require.NoError(t, err)

	f := fixture{best: register.New(), scratch: &lossOptimizer{}, sink: series.NewMemorySink()}
	f.svc, err = ps.NewService(ps.Config{ValidateMaxBatches: 3}, f.best, f.scratch, src, f.sink, slog.Default(), hooks...)
	require.NoError(t, err)

	return f
}

// Empty register: a candidate validating below +Inf is published as version 1
// carrying its double-check loss.
func TestFirstCandidateIsPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.svc.Handle(ctx, candidate(t, "trainer-0", 2.0, 1.9))
	require.NoError(t, err)
	assert.Equal(t, ps.OutcomeAccepted, d.Outcome)
	assert.Equal(t, uint64(1), d.Version)
	assert.True(t, d.Validated)
	assert.Equal(t, 1.9, d.DoubleCheckLoss)
	assert.True(t, math.IsInf(d.PreviousScore, 1))

	best, ok := f.svc.Best(ctx)
	require.True(t, ok)
	assert.Equal(t, uint64(1), best.Version())
	assert.Equal(t, 1.9, best.Loss())
	assert.Equal(t, "trainer-0", best.TrainerID())
	assert.Equal(t, 1.9, f.svc.Score(ctx))

	samples, err := f.sink.Series(ctx, series.PSActor)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.9, samples[0].Loss)
}

func TestHandleOutcomes(t *testing.T) {
	cases := []struct {
		desc      string
		payload   func(t *testing.T) []byte
		outcome   ps.Outcome
		validated bool
		err       error
	}{
		{
			desc:    "cheap gate discards a worse reported loss",
			payload: func(t *testing.T) []byte { return candidate(t, "trainer-1", 1.2, 0.1) },
			outcome: ps.OutcomeDiscarded,
		},
		{
			desc:    "cheap gate discards an equal reported loss",
			payload: func(t *testing.T) []byte { return candidate(t, "trainer-1", 1.0, 0.1) },
			outcome: ps.OutcomeDiscarded,
		},
		{
			desc:      "double check rejects a worse validation loss",
			payload:   func(t *testing.T) []byte { return candidate(t, "trainer-1", 0.9, 1.05) },
			outcome:   ps.OutcomeRejected,
			validated: true,
		},
		{
			desc:      "double check rejects an equal validation loss",
			payload:   func(t *testing.T) []byte { return candidate(t, "trainer-1", 0.9, 1.0) },
			outcome:   ps.OutcomeRejected,
			validated: true,
		},
		{
			desc:    "undecodable payload",
			payload: func(*testing.T) []byte { return []byte("not a model") },
			outcome: ps.OutcomeMalformed,
			err:     model.ErrMalformed,
		},
		{
			desc: "params that do not fit the scratch optimizer",
			payload: func(t *testing.T) []byte {
				p, err := model.Encode(model.New("trainer-1", []byte{1, 2}, nil, 0.5))
				require.NoError(t, err)

				return p
			},
			outcome: ps.OutcomeMalformed,
			err:     errShape,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			_, err := f.svc.Handle(ctx, candidate(t, "trainer-0", 1.0, 1.0))
			require.NoError(t, err)
			evals := f.scratch.evaluations()

			d, err := f.svc.Handle(ctx, tc.payload(t))
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.outcome, d.Outcome)
			assert.Equal(t, tc.validated, d.Validated)
			assert.Equal(t, 1.0, d.PreviousScore)

			if !tc.validated {
				assert.Equal(t, evals, f.scratch.evaluations(), "no validation expected")
			}

			best, ok := f.svc.Best(ctx)
			require.True(t, ok)
			assert.Equal(t, uint64(1), best.Version())
			assert.Equal(t, 1.0, f.svc.Score(ctx))
		})
	}
}

// The score a later candidate must beat is the published double-check loss,
// never the loss the accepted trainer reported.
func TestScoreIsDoubleCheckLoss(t *testing.T) {
	cases := []struct {
		desc      string
		reported  float64
		validated float64
		outcome   ps.Outcome
		version   uint64
		score     float64
	}{
		{
			desc:      "better reported loss that validates above the published score",
			reported:  1.2,
			validated: 1.5,
			outcome:   ps.OutcomeRejected,
			version:   1,
			score:     1.45,
		},
		{
			desc:      "better reported loss that validates at the published score",
			reported:  1.2,
			validated: 1.45,
			outcome:   ps.OutcomeRejected,
			version:   1,
			score:     1.45,
		},
		{
			desc:      "reported loss between the published score and the claimed loss",
			reported:  1.47,
			validated: 1.0,
			outcome:   ps.OutcomeDiscarded,
			version:   1,
			score:     1.45,
		},
		{
			desc:      "better reported loss that validates below the published score",
			reported:  1.2,
			validated: 1.3,
			outcome:   ps.OutcomeAccepted,
			version:   2,
			score:     1.3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			first, err := f.svc.Handle(ctx, candidate(t, "trainer-0", 1.5, 1.45))
			require.NoError(t, err)
			require.Equal(t, ps.OutcomeAccepted, first.Outcome)
			require.Equal(t, 1.45, first.DoubleCheckLoss)

			d, err := f.svc.Handle(ctx, candidate(t, "trainer-1", tc.reported, tc.validated))
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, d.Outcome)
			assert.Equal(t, 1.45, d.PreviousScore)

			best, ok := f.svc.Best(ctx)
			require.True(t, ok)
			assert.Equal(t, tc.version, best.Version())
			assert.Equal(t, tc.score, f.svc.Score(ctx))
		})
	}
}

// Validation runs on the candidate's state, not on whatever the scratch
// optimizer held before.
func TestScratchIsReloadedPerCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, loss := range []float64{3, 2, 1} {
		d, err := f.svc.Handle(ctx, candidate(t, "trainer-0", loss, loss))
		require.NoError(t, err)
		assert.Equal(t, ps.OutcomeAccepted, d.Outcome)
		assert.Equal(t, uint64(i+1), d.Version)
	}
	assert.Equal(t, 1.0, f.svc.Score(ctx))
}

func TestAcceptedLossesStrictlyDecrease(t *testing.T) {
	ctx := context.Background()
	var (
		mu        sync.Mutex
		published []model.State
	)
	hook := ps.PublishHookFunc(func(_ context.Context, s model.State) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, s)

		return nil
	})
	f := newFixture(t, hook)

	rng := rand.New(rand.NewPCG(7, 7))
	for i := range 300 {
		reported := rng.Float64() * 10
		validated := reported + rng.NormFloat64()
		_, err := f.svc.Handle(ctx, candidate(t, fmt.Sprintf("trainer-%d", i%4), reported, validated))
		require.NoError(t, err)
	}

	require.NotEmpty(t, published)
	for i := 1; i < len(published); i++ {
		assert.Less(t, published[i].Loss(), published[i-1].Loss())
		assert.Equal(t, published[i-1].Version()+1, published[i].Version())
	}

	samples, err := f.sink.Series(ctx, series.PSActor)
	require.NoError(t, err)
	assert.Len(t, samples, len(published))
}

func TestHookErrorKeepsPublish(t *testing.T) {
	ctx := context.Background()
	calls := 0
	failing := ps.PublishHookFunc(func(context.Context, model.State) error {
		calls++

		return errors.New("broker unavailable")
	})
	f := newFixture(t, failing, failing)

	d, err := f.svc.Handle(ctx, candidate(t, "trainer-0", 1, 1))
	require.NoError(t, err)
	assert.Equal(t, ps.OutcomeAccepted, d.Outcome)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(1), f.best.Version())
}

func TestValidate(t *testing.T) {
	samples := data.Linear(10, []float64{2}, 1, 0.1, 3)
	opt := optim.NewLinear(1, 0.05, 0.9)
	train, err := data.NewSliceSource(samples, 2)
	require.NoError(t, err)
	for b := range train.Batches() {
		_, err := opt.TrainStep(b)
		require.NoError(t, err)
	}

	cases := []struct {
		desc       string
		batchSize  int
		maxBatches int
		batches    int
		samples    int
		exhausted  bool
	}{
		{desc: "capped", batchSize: 3, maxBatches: 2, batches: 2, samples: 6},
		{desc: "source shorter than cap", batchSize: 3, maxBatches: 10, batches: 4, samples: 10, exhausted: true},
		{desc: "cap equals source", batchSize: 5, maxBatches: 2, batches: 2, samples: 10},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			src, err := data.NewSliceSource(samples, tc.batchSize)
			require.NoError(t, err)

			first, err := ps.Validate(context.Background(), opt, src, tc.maxBatches)
			require.NoError(t, err)
			second, err := ps.Validate(context.Background(), opt, src, tc.maxBatches)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, tc.batches, first.Batches)
			assert.Equal(t, tc.samples, first.Samples)
			assert.Equal(t, tc.exhausted, first.Exhausted)
		})
	}
}

func TestValidatePerSampleAverage(t *testing.T) {
	samples := []data.Sample{
		{Features: []float64{0}, Target: 1},
		{Features: []float64{0}, Target: 1},
		{Features: []float64{0}, Target: 3},
	}
	src, err := data.NewSliceSource(samples, 2)
	require.NoError(t, err)

	// A zero model predicts 0, so squared errors are 1, 1 and 9.
	v, err := ps.Validate(context.Background(), optim.NewLinear(1, 0.1, 0), src, 5)
	require.NoError(t, err)
	assert.InDelta(t, 11.0/3.0, v.Loss, 1e-9)
}

func TestValidateWithoutData(t *testing.T) {
	src, err := data.NewSliceSource(nil, 2)
	require.NoError(t, err)

	_, err = ps.Validate(context.Background(), &lossOptimizer{}, src, 3)
	assert.ErrorIs(t, err, ps.ErrNoValidationData)
}

func TestInvalidConfig(t *testing.T) {
	src, err := data.NewSliceSource(nil, 1)
	require.NoError(t, err)

	_, err = ps.NewService(ps.Config{}, register.New(), &lossOptimizer{}, src, nil, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = ps.NewService(ps.Config{ValidateMaxBatches: 1}, nil, &lossOptimizer{}, src, nil, nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}

// countingService records every payload handed to it.
type countingService struct {
	ps.Service
	mu       sync.Mutex
	payloads map[string]int
}

func (c *countingService) Handle(ctx context.Context, payload []byte) (ps.Decision, error) {
	c.mu.Lock()
	c.payloads[string(payload)]++
	c.mu.Unlock()

	return c.Service.Handle(ctx, payload)
}

// Candidates from many concurrent trainers are each handled exactly once.
func TestRunHandlesEveryCandidateOnce(t *testing.T) {
	const (
		trainers = 8
		pushes   = 50
	)
	f := newFixture(t)
	svc := &countingService{Service: f.svc, payloads: map[string]int{}}
	uploads := queue.NewUnbounded[[]byte]()

	done := make(chan error, 1)
	go func() {
		done <- ps.Run(context.Background(), svc, uploads, 10*time.Millisecond, slog.Default())
	}()

	var wg sync.WaitGroup
	for i := range trainers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range pushes {
				loss := float64(trainers*pushes - (i*pushes + j))
				assert.NoError(t, uploads.Send(candidate(t, fmt.Sprintf("trainer-%d", i), loss, loss)))
			}
		}()
	}
	wg.Wait()
	uploads.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("parameter server did not stop after the queue closed")
	}

	assert.Len(t, svc.payloads, trainers*pushes)
	for _, n := range svc.payloads {
		assert.Equal(t, 1, n)
	}
	_, ok := f.svc.Best(context.Background())
	assert.True(t, ok)
}

func TestRunSurvivesMalformedCandidate(t *testing.T) {
	f := newFixture(t)
	uploads := queue.NewUnbounded[[]byte]()
	require.NoError(t, uploads.Send([]byte("not a model")))
	require.NoError(t, uploads.Send(candidate(t, "trainer-0", 2.0, 1.9)))
	uploads.Close()

	done := make(chan error, 1)
	go func() {
		done <- ps.Run(context.Background(), f.svc, uploads, 10*time.Millisecond, slog.Default())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("parameter server did not stop after the queue closed")
	}

	best, ok := f.svc.Best(context.Background())
	require.True(t, ok)
	assert.Equal(t, uint64(1), best.Version())
	assert.Equal(t, "trainer-0", best.TrainerID())
	assert.Equal(t, 1.9, best.Loss())
	assert.Equal(t, uint64(1), f.best.Version())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	uploads := queue.NewUnbounded[[]byte]()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ps.Run(ctx, f.svc, uploads, time.Hour, nil)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("parameter server did not stop on cancel")
	}
}
