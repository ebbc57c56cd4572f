package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/swamp/api"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/storage/badger"
	"github.com/absmach/swamp/ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runID = "run-1"

type fakePS struct {
	best atomic.Pointer[model.State]
}

func (f *fakePS) Handle(context.Context, []byte) (ps.Decision, error) {
	return ps.Decision{}, nil
}

func (f *fakePS) Best(context.Context) (model.State, bool) {
	s := f.best.Load()
	if s == nil {
		return model.State{}, false
	}

	return *s, true
}

func (f *fakePS) Score(context.Context) float64 {
	return 0
}

type fixture struct {
	server *httptest.Server
	ps     *fakePS
	sink   series.Sink
	repos  *badger.Repositories
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repos := badger.NewRepositories(db, runID)

	f := fixture{ps: &fakePS{}, sink: series.NewMemorySink(), repos: repos}
	f.server = httptest.NewServer(api.MakeHandler(api.Sources{
		PS:        f.ps,
		Sink:      f.sink,
		Snapshots: repos.Snapshots,
		Evals:     repos.Evals,
		RunID:     runID,
	}, slog.Default(), "instance-1"))
	t.Cleanup(f.server.Close)

	return f
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}

	return res.StatusCode
}

func TestBest(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, get(t, f.server.URL+"/best", nil))

	best := model.New("trainer-2", []byte{1}, nil, 0.25).WithVersion(4)
	f.ps.best.Store(&best)

	var body struct {
		Version   uint64  `json:"version"`
		Loss      float64 `json:"loss"`
		TrainerID string  `json:"trainer_id"`
	}
	require.Equal(t, http.StatusOK, get(t, f.server.URL+"/best", &body))
	assert.Equal(t, uint64(4), body.Version)
	assert.Equal(t, 0.25, body.Loss)
	assert.Equal(t, "trainer-2", body.TrainerID)
}

func TestSeries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var actors struct {
		Actors []string `json:"actors"`
	}
	require.Equal(t, http.StatusOK, get(t, f.server.URL+"/series", &actors))
	assert.Empty(t, actors.Actors)

	start := time.Now()
	rec := series.NewRecorder(f.sink, "trainer-0", start)
	for _, l := range []float64{3, 1, 2} {
		require.NoError(t, rec.Record(ctx, l))
	}
	require.NoError(t, series.NewRecorder(f.sink, series.PSActor, start).Record(ctx, 0.5))

	require.Equal(t, http.StatusOK, get(t, f.server.URL+"/series", &actors))
	assert.Equal(t, []string{series.PSActor, "trainer-0"}, actors.Actors)

	type seriesBody struct {
		Total   uint64          `json:"total"`
		Lowest  *float64        `json:"lowest"`
		Samples []series.Sample `json:"samples"`
	}

	cases := []struct {
		desc   string
		query  string
		status int
		losses []float64
	}{
		{desc: "whole series", query: "/series/trainer-0", status: http.StatusOK, losses: []float64{3, 1, 2}},
		{desc: "paged", query: "/series/trainer-0?offset=1&limit=1", status: http.StatusOK, losses: []float64{1}},
		{desc: "offset past the end", query: "/series/trainer-0?offset=10", status: http.StatusOK, losses: []float64{}},
		{desc: "unknown actor", query: "/series/trainer-9", status: http.StatusNotFound},
		{desc: "bad offset", query: "/series/trainer-0?offset=abc", status: http.StatusBadRequest},
		{desc: "limit too large", query: "/series/trainer-0?limit=100000", status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			var body seriesBody
			status := get(t, f.server.URL+tc.query, &body)
			require.Equal(t, tc.status, status)
			if status != http.StatusOK {
				return
			}
			assert.Equal(t, uint64(3), body.Total)
			require.NotNil(t, body.Lowest)
			assert.Equal(t, 1.0, *body.Lowest)
			losses := []float64{}
			for _, s := range body.Samples {
				losses = append(losses, s.Loss)
			}
			assert.Equal(t, tc.losses, losses)
		})
	}
}

func TestSnapshotsAndEvals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for v := uint64(1); v <= 3; v++ {
		require.NoError(t, f.repos.Snapshots.Save(ctx, history.Snapshot{
			RunID:   runID,
			Version: v,
			Loss:    1 / float64(v),
			Payload: make([]byte, v),
		}))
	}
	require.NoError(t, f.repos.Evals.Save(ctx, history.EvalResult{RunID: runID, Version: 2, Loss: 0.4}))

	var snapshots struct {
		Total     uint64 `json:"total"`
		Snapshots []struct {
			Version uint64 `json:"version"`
			Size    int    `json:"size"`
		} `json:"snapshots"`
	}
	require.Equal(t, http.StatusOK, get(t, f.server.URL+"/snapshots?offset=1", &snapshots))
	assert.Equal(t, uint64(3), snapshots.Total)
	require.Len(t, snapshots.Snapshots, 2)
	assert.Equal(t, uint64(2), snapshots.Snapshots[0].Version)
	assert.Equal(t, 2, snapshots.Snapshots[0].Size)

	var evals struct {
		Total   uint64              `json:"total"`
		Results []history.EvalResult `json:"results"`
	}
	require.Equal(t, http.StatusOK, get(t, f.server.URL+"/evals", &evals))
	assert.Equal(t, uint64(1), evals.Total)
	require.Len(t, evals.Results, 1)
	assert.Equal(t, 0.4, evals.Results[0].Loss)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, get(t, fmt.Sprintf("%s%s", f.server.URL, path), nil))
		})
	}
}
