package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/storage"
	"github.com/absmach/swamp/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositories(t *testing.T) {
	repos, err := storage.NewRepositories(storage.Config{Type: "memory"}, "run")
	require.NoError(t, err)
	defer repos.Close()

	testutil.SnapshotSuite(t, repos.Snapshots)
	testutil.EvalSuite(t, repos.Evals)
}

func TestMemorySeries(t *testing.T) {
	testutil.SeriesSuite(t, func(string) series.Sink {
		return series.NewMemorySink()
	})
}

func TestNewRepositories(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		desc       string
		cfg        storage.Config
		persistent bool
		err        bool
	}{
		{desc: "default", cfg: storage.Config{}},
		{desc: "memory", cfg: storage.Config{Type: "memory"}},
		{desc: "badger", cfg: storage.Config{Type: "badger", BadgerPath: filepath.Join(dir, "badger")}, persistent: true},
		{desc: "sqlite", cfg: storage.Config{Type: "sqlite", SQLitePath: filepath.Join(dir, "swamp.db")}, persistent: true},
		{desc: "unknown", cfg: storage.Config{Type: "etcd"}, persistent: true, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.persistent, tc.cfg.Persistent())

			repos, err := storage.NewRepositories(tc.cfg, "run")
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			assert.NotNil(t, repos.Series)
			assert.NotNil(t, repos.Snapshots)
			assert.NotNil(t, repos.Evals)
			assert.Equal(t, tc.persistent, repos.Closer != nil)
			assert.NoError(t, repos.Close())
		})
	}
}
