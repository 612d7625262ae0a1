package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/types"
)

func testRecord(jobID string) *types.TradeRecord {
	return &types.TradeRecord{
		JobID:           jobID,
		Date:            time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Pair:            "XRP/BTC",
		Venue:           "paymium",
		SignalPrice:     100,
		ReferencePrice:  43000,
		Budget:          10,
		TradeTimeSecs:   86400,
		EstimatedProfit: 5,
		IterationSecs:   1.1,
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	rec := testRecord("job-1")
	rec.PlacedBuyOrder = true
	rec.Bought = true
	rec.BuyOrderID = "ord-7"
	rec.BuyPrice = 101.5
	rec.WorkTimeSecs = 12.3
	require.NoError(t, store.Save(rec))

	recs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)

	got := recs[0]
	assert.Equal(t, rec.JobID, got.JobID)
	assert.Equal(t, rec.Pair, got.Pair)
	assert.True(t, got.PlacedBuyOrder)
	assert.True(t, got.Bought)
	assert.False(t, got.PlacedSellOrder)
	assert.Equal(t, "ord-7", got.BuyOrderID)
	assert.Equal(t, 101.5, got.BuyPrice)
	assert.Equal(t, 12.3, got.WorkTimeSecs)
	assert.True(t, rec.Date.Equal(got.Date))
}

func TestSaveReplacesPreviousCheckpoint(t *testing.T) {
	store := NewStore(t.TempDir())

	rec := testRecord("job-1")
	require.NoError(t, store.Save(rec))
	rec.Bought = true
	require.NoError(t, store.Save(rec))

	recs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Bought)
}

func TestLoadAllSortsByJobID(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Save(testRecord("job-c")))
	require.NoError(t, store.Save(testRecord("job-a")))
	require.NoError(t, store.Save(testRecord("job-b")))

	recs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "job-a", recs[0].JobID)
	assert.Equal(t, "job-b", recs[1].JobID)
	assert.Equal(t, "job-c", recs[2].JobID)
}

func TestLoadAllSkipsCorruptAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testRecord("job-1")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	recs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "job-1", recs[0].JobID)
}

func TestLoadAllMissingDirIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	recs, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	rec := testRecord("job-1")
	require.NoError(t, store.Save(rec))
	require.NoError(t, store.Delete(rec))
	require.NoError(t, store.Delete(rec))

	recs, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestJobIDSanitizedInFilename(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	rec := testRecord("job/../1")
	require.NoError(t, store.Save(rec))

	_, err := os.Stat(filepath.Join(dir, "job____1.json"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(rec))
	recs, err := store.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, recs)
}
