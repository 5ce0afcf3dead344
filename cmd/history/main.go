package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"trial-scout/services"
)

// Aktualisiert den History-Zustand eines frisch gesammelten Datasets:
// Checksummen-Vergleich, Latest-Kopie, Snapshot und Pruning.
func main() {
	datasetFile := flag.String("dataset-file", "", "Pfad des frisch gesammelten Datasets")
	stateFile := flag.String("state-file", "snapshots/trials/collection_state.json", "Pfad der State-Datei")
	latestFile := flag.String("latest-file", "snapshots/trials/latest/trials.json", "Pfad der Latest-Kopie")
	historyDir := flag.String("history-dir", "snapshots/trials/history", "Snapshot-Verzeichnis")
	timestamp := flag.String("timestamp", "", "UTC-Zeitstempel-Override (ISO 8601)")
	retentionDays := flag.Int("retention-days", 365, "Snapshots älter als n Tage löschen (negativ deaktiviert)")
	changedFlagPath := flag.String("changed-flag-path", "", "true/false-Flagdatei für Workflows")
	snapshotOnChange := flag.Bool("snapshot-on-change", false, "Snapshot nur bei geändertem Inhalt")
	flag.Parse()

	if *datasetFile == "" {
		log.Fatal("-dataset-file ist erforderlich")
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Fehler beim Initialisieren des Loggers: %v", err)
	}
	defer logging.Sync()

	res, err := services.UpdateHistory(services.HistoryConfig{
		DatasetFile:      *datasetFile,
		StateFile:        *stateFile,
		LatestFile:       *latestFile,
		HistoryDir:       *historyDir,
		Timestamp:        *timestamp,
		RetentionDays:    *retentionDays,
		ChangedFlagPath:  *changedFlagPath,
		SnapshotOnChange: *snapshotOnChange,
	}, logging)
	if err != nil {
		log.Fatalf("History-Update fehlgeschlagen: %v", err)
	}

	log.Printf("geändert: %t", res.Changed)
	log.Printf("Zeilen: %d", res.State.LatestRowCount)
	log.Printf("Checksumme: %s", res.State.LatestChecksum)
	if res.Snapshot != "" {
		log.Printf("Snapshot: %s", res.Snapshot)
	}
	log.Printf("Snapshots entfernt: %d", res.Pruned)
}
