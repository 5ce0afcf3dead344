package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trial-scout/storage"
)

func writeShard(t *testing.T, dir string, rows []map[string]any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, storage.WriteJSONLRows(filepath.Join(dir, "trials.jsonl"), rows))
	return dir
}

func TestMergeShardsDedupBySignature(t *testing.T) {
	base := t.TempDir()
	rowA := map[string]any{"cid": float64(2244), "id": "NCT00000001", "phase": "Phase 2"}
	rowB := map[string]any{"cid": float64(2244), "id": "NCT00000002"}
	rowC := map[string]any{"cid": float64(3672), "id": "NCT00000003"}

	shard1 := writeShard(t, filepath.Join(base, "shard1"), []map[string]any{rowA, rowB})
	// Shard 2 wiederholt rowA vollständig und variiert rowB um ein Feld.
	rowBVariant := map[string]any{"cid": float64(2244), "id": "NCT00000002", "status": "RECRUITING"}
	shard2 := writeShard(t, filepath.Join(base, "shard2"), []map[string]any{rowA, rowBVariant, rowC})

	outDir := filepath.Join(base, "merged")
	summary, err := MergeShards([]string{shard1, shard2}, outDir, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SchemaVersion)
	assert.Equal(t, "merged_from_shards", summary.Mode)
	assert.Equal(t, 2, summary.NShards)
	assert.Equal(t, 5, summary.NInputRows)
	// Exakte Duplikate fallen weg, die Feldvariante bleibt eigenständig.
	assert.Equal(t, 4, summary.NRows)
	assert.Equal(t, 2, summary.NCIDs)

	rows, err := storage.ReadJSONL(filepath.Join(outDir, "trials.jsonl"))
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	cids, err := os.ReadFile(filepath.Join(outDir, "cids.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2244\n3672\n", string(cids))
}

func TestMergeShardsSubsetYieldsNoNewRows(t *testing.T) {
	base := t.TempDir()
	rows := []map[string]any{
		{"cid": float64(1), "id": "NCT00000001"},
		{"cid": float64(2), "id": "NCT00000002"},
	}
	full := writeShard(t, filepath.Join(base, "full"), rows)
	subset := writeShard(t, filepath.Join(base, "subset"), rows[:1])

	summary, err := MergeShards([]string{full, subset}, filepath.Join(base, "merged"), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.NInputRows)
	assert.Equal(t, 2, summary.NRows)
}

func TestMergeShardsJSONFallback(t *testing.T) {
	base := t.TempDir()
	shardDir := filepath.Join(base, "shard")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))
	require.NoError(t, storage.WriteJSON(filepath.Join(shardDir, "trials.json"), []map[string]any{
		{"cid": float64(42), "id": "NCT00000042"},
	}))

	summary, err := MergeShards([]string{shardDir}, filepath.Join(base, "merged"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NRows)
	assert.Equal(t, 1, summary.NCIDs)
}

func TestMergeShardsMissingInputs(t *testing.T) {
	base := t.TempDir()
	emptyShard := filepath.Join(base, "empty")
	require.NoError(t, os.MkdirAll(emptyShard, 0o755))

	_, err := MergeShards([]string{emptyShard}, filepath.Join(base, "merged"), zap.NewNop())
	require.Error(t, err)

	_, err = MergeShards(nil, filepath.Join(base, "merged"), zap.NewNop())
	require.Error(t, err)
}
