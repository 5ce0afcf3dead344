package models

// CollectionState ist der pro logischem Datensatz persistierte
// History-Tracking-Zustand (collection_state.json).
type CollectionState struct {
	SchemaVersion   int    `json:"schema_version"`
	LastCollected   string `json:"last_collected_at"`
	LastChanged     string `json:"last_changed_at"`
	LatestFile      string `json:"latest_file"`
	LatestChecksum  string `json:"latest_checksum"`
	LatestRowCount  int    `json:"latest_row_count"`
	HistoryCount    int    `json:"history_count"`
	LastPrunedCount int    `json:"last_pruned_count"`
	LatestSnapshot  string `json:"latest_snapshot"`
}

// MergeSummary fasst einen Shard-Merge-Lauf zusammen (summary.json).
type MergeSummary struct {
	SchemaVersion int      `json:"schema_version"`
	Mode          string   `json:"mode"`
	ShardDirs     []string `json:"shard_dirs"`
	NShards       int      `json:"n_shards"`
	NInputRows    int      `json:"n_input_rows"`
	NRows         int      `json:"n_rows"`
	NCIDs         int      `json:"n_cids"`
	JSONL         string   `json:"jsonl"`
	JSON          string   `json:"json"`
	CSV           string   `json:"csv"`
	CIDsTxt       string   `json:"cids_txt"`
}
