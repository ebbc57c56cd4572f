package badger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/storage/badger"
	"github.com/absmach/swamp/pkg/storage/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *badger.Database

func TestMain(m *testing.M) {
	dbPath := filepath.Join(os.TempDir(), "swamp_badger_test_"+uuid.NewString())

	var err error
	testDB, err = badger.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dbPath)

	os.Exit(code)
}

func TestSeriesRepository(t *testing.T) {
	testutil.SeriesSuite(t, func(runID string) series.Sink {
		return badger.NewSeriesRepository(testDB, runID)
	})
}

func TestSnapshotRepository(t *testing.T) {
	testutil.SnapshotSuite(t, badger.NewSnapshotRepository(testDB))
}

func TestEvalRepository(t *testing.T) {
	testutil.EvalSuite(t, badger.NewEvalRepository(testDB))
}

// Keys of one run must not match another run whose ID extends it.
func TestRunPrefixesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	repo := badger.NewSnapshotRepository(testDB)
	runID := uuid.NewString()

	require.NoError(t, repo.Save(ctx, testutil.TestSnapshot(t, runID, 1)))
	require.NoError(t, repo.Save(ctx, testutil.TestSnapshot(t, runID+"x", 1)))

	_, total, err := repo.List(ctx, runID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	_, err = repo.Get(ctx, runID, 2)
	assert.ErrorIs(t, err, badger.ErrNotFound)
}
