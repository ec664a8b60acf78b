package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanimpact/hii-stats/services/stats/internal/models"
)

func fp(v float64) *float64 { return &v }

func testBatch() models.OutputBatch {
	taskDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sliceDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.OutputBatch{
		RunID:    "run-42",
		TaskDate: taskDate,
		Scope:    models.ScopeCountry,
		Path:     models.CumulativeBatchPath(taskDate, models.ScopeCountry),
		Records: []models.RegionStats{
			{Region: models.Region{ID: "AAA", Name: "A", Properties: map[string]any{"pop": 3}}, Stats: models.StatRecord{Mean: fp(1.5)}, SliceDate: &sliceDate},
			{Region: models.Region{ID: "BBB"}, Error: "boom"},
		},
	}
}

func TestBuildStatRows(t *testing.T) {
	rows, err := BuildStatRows(testBatch())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "AAA", rows[0].RegionID)
	assert.Equal(t, 1.5, *rows[0].Mean)
	assert.Nil(t, rows[0].Min)
	assert.Nil(t, rows[0].Error)
	assert.JSONEq(t, `{"pop":3}`, string(rows[0].Properties))
	require.NotNil(t, rows[0].SliceDate)

	require.NotNil(t, rows[1].Error)
	assert.Equal(t, "boom", *rows[1].Error)
}

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "stats.db")
	database, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer database.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLiteInsertBatch(t *testing.T) {
	ctx := context.Background()
	database, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	defer database.Close()

	batch := testBatch()
	v, err := database.InsertBatch(ctx, batch, "hii-stats", batch.Path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = database.InsertBatch(ctx, batch, "hii-stats", batch.Path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = database.InsertBatch(ctx, batch, "other", batch.Path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "versions are per dataset")

	var (
		runID, taskDate, sliceDate string
		mean                       float64
		min                        *float64
	)
	err = database.QueryRowContext(ctx,
		`SELECT run_id, task_date, slice_date, mean, min FROM zonal_stats WHERE dataset = ? AND version = 2 AND region_id = 'AAA'`,
		"hii-stats").Scan(&runID, &taskDate, &sliceDate, &mean, &min)
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)
	assert.Equal(t, "2024-06-01", taskDate)
	assert.Equal(t, "2024-01-01", sliceDate)
	assert.Equal(t, 1.5, mean)
	assert.Nil(t, min)

	var errText string
	require.NoError(t, database.QueryRowContext(ctx,
		`SELECT error FROM zonal_stats WHERE region_id = 'BBB' LIMIT 1`).Scan(&errText))
	assert.Equal(t, "boom", errText)

	v, err = database.InsertBatch(ctx, batch, "hii-stats", batch.Path, true)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	var count int
	require.NoError(t, database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM zonal_stats WHERE dataset = 'hii-stats'`).Scan(&count))
	assert.Equal(t, 2, count)
}
