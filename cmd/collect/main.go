package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/providers/ctgov"
	"trial-scout/providers/pubchem"
	"trial-scout/providers/pugview"
	"trial-scout/providers/sdq"
	"trial-scout/services"
	"trial-scout/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// Einmaliger Sammellauf ohne HTTP-Server, für Cron-Jobs und CI-Workflows.
func main() {
	log.Println("Starte Sammellauf...")

	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Fehler beim Initialisieren des Loggers: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	pubchemFetcher := pubchem.NewFetcher(cfg, logging)
	pugViewFetcher := pugview.NewFetcher(cfg, logging)
	sdqFetcher := sdq.NewFetcher(cfg, logging)
	ctgovFetcher := ctgov.NewFetcher(cfg, logging)

	resolver := services.NewResolver(pugViewFetcher, sdqFetcher, logging)
	resolver.SDQLimit = cfg.SDQLimitPerCIDCall

	linker := services.NewCompoundTrialLinker(ctgovFetcher, logging)
	linker.Config = services.LinkerConfigFromEnv(cfg)

	collector := &services.Collector{
		Classification: pubchemFetcher,
		Compounds:      pubchemFetcher,
		Registry:       ctgovFetcher,
		Resolver:       resolver,
		Linker:         linker,
		Logger:         logging,
	}
	builder := &services.DatasetBuilder{
		Classification: pubchemFetcher,
		Compounds:      pubchemFetcher,
		Registry:       ctgovFetcher,
		Web:            sdqFetcher,
		Depiction:      pubchemFetcher,
		Linker:         linker,
		Logger:         logging,
	}

	var s3Client *awss3.Client
	if cfg.S3Enabled {
		s3Client, err = storage.NewS3Client(cfg)
		if err != nil {
			log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
		}
	}

	svc := services.NewCollectService(cfg, collector, builder, s3Client, logging)
	res, err := svc.RunOnce(context.Background())
	if err != nil {
		log.Fatalf("Sammellauf fehlgeschlagen: %v", err)
	}

	log.Printf("CIDs verarbeitet: %d", res.Collect.CIDCount)
	log.Printf("Studien geholt: %d (angefragt: %d)", res.Collect.NCTFetched, res.Collect.NCTRequested)
	log.Printf("Export-Zeilen: %d", res.Export.NRows)
	log.Printf("Dataset geändert: %t", res.Changed)
	log.Println("Sammellauf erfolgreich abgeschlossen.")
}
