package series_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/absmach/swamp/pkg/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkPartitionsByActor(t *testing.T) {
	ctx := context.Background()
	sink := series.NewMemorySink()
	start := time.Now()

	const perActor = 200
	actors := []string{"trainer-0", "trainer-1", series.PullActor("trainer-0"), series.PSActor}

	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := series.NewRecorder(sink, a, start)
			for i := range perActor {
				assert.NoError(t, rec.Record(ctx, float64(perActor-i)))
			}
		}()
	}
	wg.Wait()

	got, err := sink.Actors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ps", "trainer-0", "trainer-0-pull", "trainer-1"}, got)

	for _, a := range actors {
		samples, err := sink.Series(ctx, a)
		require.NoError(t, err)
		require.Len(t, samples, perActor)
		for i, s := range samples {
			assert.Equal(t, a, s.Actor)
			assert.Equal(t, float64(perActor-i), s.Loss)
		}
	}
}

func TestMemorySinkEmptyActor(t *testing.T) {
	sink := series.NewMemorySink()

	err := sink.Append(context.Background(), series.Sample{Loss: 1})
	assert.ErrorIs(t, err, series.ErrEmptyActor)

	samples, err := sink.Series(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestLowest(t *testing.T) {
	assert.True(t, math.IsInf(series.Lowest(nil), 1))
	assert.Equal(t, 0.5, series.Lowest([]series.Sample{{Loss: 2}, {Loss: 0.5}, {Loss: 1}}))
}

func TestRecorderRoundsLoss(t *testing.T) {
	ctx := context.Background()
	sink := series.NewMemorySink()
	rec := series.NewRecorder(sink, "ps", time.Now())

	require.NoError(t, rec.Record(ctx, 1.23456789))
	samples, err := sink.Series(ctx, "ps")
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1.234568, samples[0].Loss)
	assert.GreaterOrEqual(t, samples[0].Elapsed, time.Duration(0))
}
