package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/uvotredux/internal/conf"
	"github.com/tphakala/uvotredux/internal/errors"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	store, err := Open(Config{
		Enabled: true,
		Driver:  "sqlite",
		Path:    filepath.Join(t.TempDir(), "ledger", "uvotredux.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openTestStore(t)

	run, err := store.StartRun(ctx, "SN2023ixf", "/data/SN2023ixf")
	require.NoError(t, err)
	require.Len(t, run.ID, 36)
	assert.Equal(t, RunRunning, run.Status)

	outcomes := []StageOutcome{
		{ObsID: "00012345001", Filter: "UW1", Stage: "image", Status: "created", Duration: 2 * time.Second},
		{ObsID: "00012345001", Filter: "UW1", Stage: "photometry", Status: "failed", Message: "exit status 1"},
		{ObsID: "00012345002", Stage: "xrt", Status: "skipped"},
	}
	for i := range outcomes {
		require.NoError(t, store.RecordStage(ctx, run.ID, &outcomes[i]))
	}

	require.NoError(t, store.FinishRun(ctx, run.ID, RunCompleted, 2, 7, ""))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "SN2023ixf", got.Target)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, 2, got.Observations)
	assert.Equal(t, 7, got.Records)
	require.NotNil(t, got.FinishedAt)

	require.Len(t, got.Stages, 3)
	assert.Equal(t, "image", got.Stages[0].Stage)
	assert.Equal(t, 2*time.Second, got.Stages[0].Duration)
	assert.Equal(t, "exit status 1", got.Stages[1].Message)
	assert.Equal(t, "xrt", got.Stages[2].Stage)
	assert.Empty(t, got.Stages[2].Filter)
	for _, s := range got.Stages {
		assert.Equal(t, run.ID, s.RunID)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openTestStore(t)

	var ids []string
	for _, target := range []string{"a", "b", "c"} {
		run, err := store.StartRun(ctx, target, "/data/"+target)
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Empty(t, runs[0].Stages)

	runs, err = store.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestUnknownRun(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	store := openTestStore(t)

	_, err := store.GetRun(ctx, "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRunNotFound)
	assert.True(t, errors.IsNotFound(err))

	err = store.FinishRun(ctx, "missing", RunFailed, 0, 0, "boom")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestDisabledLedger(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	store, err := Open(Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, NoopStore{}, store)

	run, err := store.StartRun(ctx, "target", "/data/target")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	require.NoError(t, store.RecordStage(ctx, run.ID, &StageOutcome{Stage: "image"}))
	require.NoError(t, store.FinishRun(ctx, run.ID, RunCompleted, 0, 0, ""))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = store.GetRun(ctx, run.ID)
	require.ErrorIs(t, err, ErrRunNotFound)
	require.NoError(t, store.Close())
}

func TestUnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Enabled: true, Driver: "postgres"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.DataDir = "/data"
	settings.Ledger = conf.LedgerSettings{Enabled: true, Driver: "SQLite", Path: "uvotredux.db"}

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, filepath.Join("/data", "uvotredux.db"), cfg.Path)
	assert.Equal(t, "sqlite", cfg.Driver)

	settings.Ledger.Path = "/var/lib/uvotredux.db"
	assert.Equal(t, "/var/lib/uvotredux.db", ConfigFromSettings(settings).Path)
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(&conf.MySQLSettings{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "uvot"})
	assert.Equal(t, "u:p@tcp(db:3306)/uvot?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}
