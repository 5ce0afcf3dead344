package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"trial-scout/models"
	"trial-scout/storage"
)

// shardRows liest die Zeilen eines Shard-Verzeichnisses: trials.jsonl
// bevorzugt, trials.json als Fallback. Fehlen beide, ist das ein Fehler.
func shardRows(shardDir string) ([]map[string]any, error) {
	jsonlPath := filepath.Join(shardDir, "trials.jsonl")
	if _, err := os.Stat(jsonlPath); err == nil {
		return storage.ReadJSONL(jsonlPath)
	}

	jsonPath := filepath.Join(shardDir, "trials.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("weder trials.jsonl noch trials.json in shard %s", shardDir)
		}
		return nil, err
	}
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("trials.json in shard %s: %w", shardDir, err)
	}
	return arr, nil
}

// MergeShards fasst unabhängig gesammelte Shard-Datasets zu einem
// deduplizierten Gesamt-Dataset zusammen. Dedup-Schlüssel ist die
// kanonische JSON-Signatur der vollen Zeile, nicht die Trial-ID, weil
// unterschiedlich bezogene Zeilen derselben Studie verschiedene
// Feldmengen tragen können.
func MergeShards(shardDirs []string, outDir string, logger *zap.Logger) (*models.MergeSummary, error) {
	if len(shardDirs) == 0 {
		return nil, fmt.Errorf("mindestens ein shard-verzeichnis erforderlich")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	var merged []map[string]any
	seen := make(map[string]bool)
	inputRows := 0

	for _, shard := range shardDirs {
		rows, err := shardRows(shard)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			inputRows++
			sig, err := storage.RowSignature(row)
			if err != nil {
				return nil, err
			}
			if seen[sig] {
				continue
			}
			seen[sig] = true
			merged = append(merged, row)
		}
	}

	header := UnionHeader(merged, PreferredTrialHeader)

	jsonlPath := filepath.Join(outDir, "trials.jsonl")
	jsonPath := filepath.Join(outDir, "trials.json")
	csvPath := filepath.Join(outDir, "trials.csv")
	cidsTxt := filepath.Join(outDir, "cids.txt")
	summaryPath := filepath.Join(outDir, "summary.json")

	if err := storage.WriteJSONLRows(jsonlPath, merged); err != nil {
		return nil, err
	}
	if err := storage.WriteJSON(jsonPath, merged); err != nil {
		return nil, err
	}
	if _, err := storage.WriteCSVFromJSONL(jsonlPath, csvPath, header); err != nil {
		return nil, err
	}

	cidSet := make(map[int]bool)
	for _, row := range merged {
		if cid, ok := jsonNumberAsInt(row["cid"]); ok {
			cidSet[cid] = true
		}
	}
	cids := make([]int, 0, len(cidSet))
	for cid := range cidSet {
		cids = append(cids, cid)
	}
	sort.Ints(cids)
	lines := make([]string, 0, len(cids))
	for _, cid := range cids {
		lines = append(lines, strconv.Itoa(cid))
	}
	if err := storage.WriteLines(cidsTxt, lines); err != nil {
		return nil, err
	}

	summary := &models.MergeSummary{
		SchemaVersion: 1,
		Mode:          "merged_from_shards",
		ShardDirs:     shardDirs,
		NShards:       len(shardDirs),
		NInputRows:    inputRows,
		NRows:         len(merged),
		NCIDs:         len(cids),
		JSONL:         jsonlPath,
		JSON:          jsonPath,
		CSV:           csvPath,
		CIDsTxt:       cidsTxt,
	}
	if err := storage.WriteJSON(summaryPath, summary); err != nil {
		return nil, err
	}

	logger.Info("Shards zusammengeführt",
		zap.Int("shards", len(shardDirs)), zap.Int("input_rows", inputRows),
		zap.Int("rows", len(merged)), zap.Int("cids", len(cids)))
	return summary, nil
}
