package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"trial-scout/models"
	"trial-scout/storage"
)

const snapshotTimeLayout = "20060102T150405Z"

// HistoryConfig beschreibt einen History-Update-Lauf für ein Dataset.
type HistoryConfig struct {
	DatasetFile      string
	StateFile        string
	LatestFile       string
	HistoryDir       string
	Timestamp        string // ISO-8601-Override, leer = jetzt (UTC)
	RetentionDays    int    // negativ = Pruning deaktiviert
	ChangedFlagPath  string
	SnapshotOnChange bool
}

// HistoryResult fasst einen History-Update-Lauf zusammen.
type HistoryResult struct {
	Changed  bool
	Snapshot string
	Pruned   int
	State    models.CollectionState
}

func nowUTCISO() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// datasetRowCount zählt Zeilen eines Datasets: nicht-leere Zeilen für
// JSONL, Array-Länge für JSON (Nicht-Array zählt als eine Zeile).
func datasetRowCount(path string) (int, error) {
	if strings.HasSuffix(path, ".jsonl") {
		return storage.CountNonEmptyLines(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		return len(arr), nil
	}
	return 1, nil
}

func readState(path string) (models.CollectionState, error) {
	var state models.CollectionState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, err
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("state-datei %s: %w", path, err)
	}
	return state, nil
}

// parseSnapshotTime liest den Zeitstempel-Token aus einem Snapshot-Namen
// der Form <prefix>_<YYYYMMDDTHHMMSSZ><ext>.
func parseSnapshotTime(name, prefix, ext string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix+"_") || !strings.HasSuffix(name, ext) {
		return time.Time{}, false
	}
	token := name[len(prefix)+1 : len(name)-len(ext)]
	t, err := time.Parse(snapshotTimeLayout, token)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// pruneSnapshots löscht Snapshots, deren Dateinamens-Zeitstempel älter
// als die Aufbewahrungsfrist ist. Dateien ohne parsebaren Token bleiben
// unangetastet.
func pruneSnapshots(historyDir, prefix, ext string, now time.Time, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(historyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseSnapshotTime(e.Name(), prefix, ext)
		if !ok {
			continue
		}
		if ts.Before(cutoff) {
			if err := os.Remove(filepath.Join(historyDir, e.Name())); err != nil && !os.IsNotExist(err) {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}

func countSnapshots(historyDir, prefix, ext string) (int, error) {
	entries, err := os.ReadDir(historyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix+"_") && strings.HasSuffix(e.Name(), ext) {
			n++
		}
	}
	return n, nil
}

// UpdateHistory prüft ein frisch gesammeltes Dataset per SHA-256 gegen
// den gespeicherten Zustand, kopiert es nach latest, legt optional einen
// zeitgestempelten Snapshot ab, entfernt abgelaufene Snapshots und
// überschreibt den Zustandsdatensatz. Ein leerer vorheriger Zustand
// (erster Lauf) zählt als Änderung.
func UpdateHistory(cfg HistoryConfig, logger *zap.Logger) (*HistoryResult, error) {
	if _, err := os.Stat(cfg.DatasetFile); err != nil {
		return nil, fmt.Errorf("dataset-datei fehlt: %w", err)
	}

	ts := cfg.Timestamp
	if ts == "" {
		ts = nowUTCISO()
	}
	safeTS := strings.NewReplacer(":", "", "-", "").Replace(ts)
	now, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("zeitstempel %q: %w", ts, err)
	}
	now = now.UTC()

	checksum, err := storage.Checksum(cfg.DatasetFile)
	if err != nil {
		return nil, err
	}
	rowCount, err := datasetRowCount(cfg.DatasetFile)
	if err != nil {
		return nil, err
	}

	prev, err := readState(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	_, latestErr := os.Stat(cfg.LatestFile)
	changed := latestErr != nil || checksum != prev.LatestChecksum

	if err := os.MkdirAll(filepath.Dir(cfg.LatestFile), 0o755); err != nil {
		return nil, err
	}
	if err := storage.CopyFile(cfg.DatasetFile, cfg.LatestFile); err != nil {
		return nil, err
	}

	ext := filepath.Ext(cfg.LatestFile)
	prefix := strings.TrimSuffix(filepath.Base(cfg.LatestFile), ext)

	snapshotPath := ""
	if changed || !cfg.SnapshotOnChange {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return nil, err
		}
		snapshotPath = filepath.Join(cfg.HistoryDir, fmt.Sprintf("%s_%s%s", prefix, safeTS, ext))
		if err := storage.CopyFile(cfg.DatasetFile, snapshotPath); err != nil {
			return nil, err
		}
	}

	pruned, err := pruneSnapshots(cfg.HistoryDir, prefix, ext, now, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	historyCount, err := countSnapshots(cfg.HistoryDir, prefix, ext)
	if err != nil {
		return nil, err
	}

	lastChanged := prev.LastChanged
	if changed || lastChanged == "" {
		lastChanged = ts
	}
	latestSnapshot := snapshotPath
	if latestSnapshot == "" {
		latestSnapshot = prev.LatestSnapshot
	}

	state := models.CollectionState{
		SchemaVersion:   1,
		LastCollected:   ts,
		LastChanged:     lastChanged,
		LatestFile:      cfg.LatestFile,
		LatestChecksum:  checksum,
		LatestRowCount:  rowCount,
		HistoryCount:    historyCount,
		LastPrunedCount: pruned,
		LatestSnapshot:  latestSnapshot,
	}
	if err := storage.WriteJSON(cfg.StateFile, &state); err != nil {
		return nil, err
	}

	if cfg.ChangedFlagPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.ChangedFlagPath), 0o755); err != nil {
			return nil, err
		}
		flag := "false\n"
		if changed {
			flag = "true\n"
		}
		if err := os.WriteFile(cfg.ChangedFlagPath, []byte(flag), 0o644); err != nil {
			return nil, err
		}
	}

	logger.Info("History aktualisiert",
		zap.Bool("changed", changed), zap.String("latest", cfg.LatestFile),
		zap.Int("rows", rowCount), zap.Int("pruned_snapshots", pruned),
		zap.String("checksum", checksum))

	return &HistoryResult{Changed: changed, Snapshot: snapshotPath, Pruned: pruned, State: state}, nil
}
