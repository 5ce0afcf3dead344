package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"trial-scout/config"
	"trial-scout/models"
	"trial-scout/providers/ctgov"
	"trial-scout/providers/pubchem"
	"trial-scout/providers/pugview"
	"trial-scout/providers/sdq"
	"trial-scout/services"
	"trial-scout/storage"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	collectionRunsCounter     prometheus.Counter
	compoundsProcessedCounter prometheus.Counter
	studiesFetchedCounter     prometheus.Counter
)

func init() {
	collectionRunsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collection_runs_total",
			Help: "Total number of completed collection runs.",
		},
	)
	compoundsProcessedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "compounds_processed_total",
			Help: "Total number of compounds processed across collection runs.",
		},
	)
	studiesFetchedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studies_fetched_total",
			Help: "Total number of trial documents fetched from ClinicalTrials.gov.",
		},
	)
	prometheus.MustRegister(collectionRunsCounter, compoundsProcessedCounter, studiesFetchedCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Providers
	pubchemFetcher := pubchem.NewFetcher(cfg, logging)
	pugViewFetcher := pugview.NewFetcher(cfg, logging)
	sdqFetcher := sdq.NewFetcher(cfg, logging)
	ctgovFetcher := ctgov.NewFetcher(cfg, logging)

	// Setup Services
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
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
	}
	collectService := services.NewCollectService(cfg, collector, builder, s3Client, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupHealthRoutes(router)
	setupArtifactRoutes(router, cfg, logging)
	setupCollectRoutes(router, collectService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled collection job...")
		res, err := collectService.RunOnce(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
			return
		}
		logging.Info("Cron job completed",
			zap.Int("cids", res.Collect.CIDCount),
			zap.Int("studies_fetched", res.Collect.NCTFetched),
			zap.Bool("changed", res.Changed))
		collectionRunsCounter.Inc()
		compoundsProcessedCounter.Add(float64(res.Collect.CIDCount))
		studiesFetchedCounter.Add(float64(res.Collect.NCTFetched))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupHealthRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// setupArtifactRoutes serviert die zuletzt gesammelten Artefakte direkt
// von Platte, damit Konsumenten keinen Dateisystemzugriff brauchen.
func setupArtifactRoutes(router *gin.Engine, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/api")

	rg.GET("/state", func(c *gin.Context) {
		var state models.CollectionState
		if err := readJSONFile(cfg.StateFile(), &state); err != nil {
			log.Warn("State-Datei nicht lesbar", zap.Error(err))
			c.JSON(http.StatusNotFound, gin.H{"error": "no collection state yet"})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	rg.GET("/summary", func(c *gin.Context) {
		var summary map[string]any
		if err := readJSONFile(filepath.Join(cfg.OutDir, "summary.json"), &summary); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no summary yet"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	rg.GET("/trials", func(c *gin.Context) {
		latest := filepath.Join(cfg.OutDir, "latest", "trials.json")
		if _, err := os.Stat(latest); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no trials dataset yet"})
			return
		}
		c.File(latest)
	})
}

func setupCollectRoutes(router *gin.Engine, svc *services.CollectService, log *zap.Logger) {
	rg := router.Group("/api")

	rg.POST("/collect", func(c *gin.Context) {
		res, err := svc.RunOnce(c.Request.Context())
		if err != nil {
			log.Error("Manueller Lauf fehlgeschlagen", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		collectionRunsCounter.Inc()
		compoundsProcessedCounter.Add(float64(res.Collect.CIDCount))
		studiesFetchedCounter.Add(float64(res.Collect.NCTFetched))
		c.JSON(http.StatusOK, res)
	})
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
