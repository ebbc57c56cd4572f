// Package testutil holds fixtures and behaviour checks shared by the storage
// backends' tests.
package testutil

import (
	"context"
	"testing"
	"time"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/series"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T, runID string, version uint64) history.Snapshot {
	t.Helper()

	loss := 1 / float64(version+1)
	payload, err := model.Encode(model.New("trainer-0", []byte{byte(version)}, nil, loss).WithVersion(version))
	require.NoError(t, err)

	return history.Snapshot{
		RunID:       runID,
		Version:     version,
		Loss:        loss,
		TrainerID:   "trainer-0",
		PublishedAt: time.Now().UTC(),
		Payload:     payload,
	}
}

// SeriesSuite checks a series sink opened per run with open.
func SeriesSuite(t *testing.T, open func(runID string) series.Sink) {
	ctx := context.Background()
	runID := uuid.NewString()
	repo := open(runID)
	actor := "trainer-0"
	pull := series.PullActor(actor)

	start := time.Now()
	rec := series.NewRecorder(repo, actor, start)
	for _, loss := range []float64{3, 2, 1} {
		require.NoError(t, rec.Record(ctx, loss))
	}
	require.NoError(t, series.NewRecorder(repo, pull, start).Record(ctx, 0.5))

	got, err := repo.Series(ctx, actor)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []float64{3, 2, 1} {
		assert.Equal(t, want, got[i].Loss)
		assert.Equal(t, actor, got[i].Actor)
		assert.WithinDuration(t, start, got[i].At, time.Minute)
	}

	actors, err := repo.Actors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{actor, pull}, actors)

	other := open(uuid.NewString())
	actors, err = other.Actors(ctx)
	require.NoError(t, err)
	assert.Empty(t, actors)
	got, err = other.Series(ctx, actor)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, repo.Append(ctx, series.Sample{Loss: 1}), series.ErrEmptyActor)
}

func SnapshotSuite(t *testing.T, repo history.SnapshotRepository) {
	ctx := context.Background()
	runID := uuid.NewString()

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, repo.Save(ctx, TestSnapshot(t, runID, v)))
	}
	// Saving a version again replaces it.
	replaced := TestSnapshot(t, runID, 3)
	replaced.TrainerID = "trainer-7"
	require.NoError(t, repo.Save(ctx, replaced))

	cases := []struct {
		desc    string
		runID   string
		version uint64
		err     error
	}{
		{desc: "existing version", runID: runID, version: 2},
		{desc: "missing version", runID: runID, version: 9, err: pkgerrors.ErrNotFound},
		{desc: "empty run", runID: "", version: 1, err: pkgerrors.ErrEmptyKey},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s, err := repo.Get(ctx, tc.runID, tc.version)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.version, s.Version)

			decoded, err := model.Decode(s.Payload)
			require.NoError(t, err)
			assert.Equal(t, tc.version, decoded.Version())
		})
	}

	page, total, err := repo.List(ctx, runID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].Version)
	assert.Equal(t, uint64(3), page[1].Version)
	assert.Equal(t, "trainer-7", page[1].TrainerID)

	page, total, err = repo.List(ctx, uuid.NewString(), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)

	assert.ErrorIs(t, repo.Save(ctx, history.Snapshot{Version: 1}), pkgerrors.ErrEmptyKey)
}

func EvalSuite(t *testing.T, repo history.EvalRepository) {
	ctx := context.Background()
	runID := uuid.NewString()
	now := time.Now().UTC()

	require.NoError(t, repo.Save(ctx, history.EvalResult{RunID: runID, Version: 1, Loss: 0.7, EvaluatedAt: now}))
	require.NoError(t, repo.Save(ctx, history.EvalResult{RunID: runID, Version: 1, Loss: 0.6, EvaluatedAt: now}))
	require.NoError(t, repo.Save(ctx, history.EvalResult{
		RunID:       runID,
		Version:     2,
		Loss:        0.4,
		Batches:     3,
		Samples:     40,
		Elapsed:     1500 * time.Microsecond,
		EvaluatedAt: now,
	}))

	results, total, err := repo.List(ctx, runID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	require.Len(t, results, 2)
	assert.Equal(t, 0.6, results[0].Loss)
	assert.Equal(t, 0.4, results[1].Loss)
	assert.Equal(t, 3, results[1].Batches)
	assert.Equal(t, 40, results[1].Samples)
	assert.Equal(t, 1500*time.Microsecond, results[1].Elapsed)

	assert.ErrorIs(t, repo.Save(ctx, history.EvalResult{}), pkgerrors.ErrEmptyKey)
}
