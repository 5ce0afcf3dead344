package main

import (
	"flag"
	"log"
	"strings"

	"go.uber.org/zap"

	"trial-scout/services"
)

// Führt unabhängig gesammelte Shard-Verzeichnisse zu einem Dataset zusammen.
func main() {
	shardDirsFlag := flag.String("shard-dirs", "", "Kommagetrennte Shard-Ausgabeverzeichnisse")
	outDir := flag.String("out-dir", "", "Zielverzeichnis für das zusammengeführte Dataset")
	flag.Parse()

	var shardDirs []string
	for _, s := range strings.Split(*shardDirsFlag, ",") {
		if t := strings.TrimSpace(s); t != "" {
			shardDirs = append(shardDirs, t)
		}
	}
	if len(shardDirs) == 0 || *outDir == "" {
		log.Fatal("-shard-dirs und -out-dir sind erforderlich")
	}

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Fehler beim Initialisieren des Loggers: %v", err)
	}
	defer logging.Sync()

	summary, err := services.MergeShards(shardDirs, *outDir, logging)
	if err != nil {
		log.Fatalf("Merge fehlgeschlagen: %v", err)
	}

	log.Printf("Shards: %d", summary.NShards)
	log.Printf("Eingabezeilen: %d", summary.NInputRows)
	log.Printf("Zeilen: %d", summary.NRows)
	log.Printf("CIDs: %d", summary.NCIDs)
	log.Printf("Ausgabe: %s", summary.JSONL)
}
