package services

import (
	"context"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/storage"
)

// CollectService bündelt die Pipeline-Bausteine zu einem kompletten Lauf:
// Dokumentsammlung, Trials-Export, History-Update und optionaler
// S3-Upload der aktuellen Artefakte.
type CollectService struct {
	Config    *config.Config
	Collector *Collector
	Builder   *DatasetBuilder
	S3Client  *s3.Client
	Logger    *zap.Logger
}

// NewCollectService erstellt den Orchestrierungs-Service. s3Client darf
// nil sein, dann entfällt der Upload.
func NewCollectService(cfg *config.Config, collector *Collector, builder *DatasetBuilder, s3Client *s3.Client, logger *zap.Logger) *CollectService {
	return &CollectService{
		Config:    cfg,
		Collector: collector,
		Builder:   builder,
		S3Client:  s3Client,
		Logger:    logger,
	}
}

// RunResult fasst einen kompletten Lauf zusammen.
type RunResult struct {
	Collect *CollectResult `json:"collect"`
	Export  *ExportSummary `json:"export"`
	History *HistoryResult `json:"-"`
	Changed bool           `json:"changed"`
}

// RunOnce führt Sammlung, Export und History-Update sequenziell aus.
func (s *CollectService) RunOnce(ctx context.Context) (*RunResult, error) {
	cfg := s.Config

	collectRes, err := s.Collector.Run(ctx, CollectorConfig{
		HNIDs:            cfg.HNIDList(),
		OutDir:           filepath.Join(cfg.OutDir, "docs"),
		LimitCIDs:        cfg.LimitCIDs,
		LimitNCTs:        cfg.LimitNCTs,
		UseCTGovFallback: cfg.UseCTGovFallback,
		Resume:           cfg.Resume,
		FailFast:         cfg.FailFast,
		ProgressEvery:    cfg.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}

	exportRes, err := s.Builder.ExportTrialsDataset(ctx, ExportConfig{
		HNIDs:              cfg.HNIDList(),
		OutDir:             cfg.OutDir,
		Collections:        cfg.SDQCollectionList(),
		LimitCIDs:          cfg.LimitCIDs,
		LimitPerCollection: cfg.SDQLimitPerCIDCall,
		FetchImages:        cfg.FetchImages,
		ImageSize:          cfg.ImageSize,
		Resume:             cfg.Resume,
		ProgressEvery:      cfg.ProgressEvery,
	})
	if err != nil {
		return nil, err
	}

	historyRes, err := UpdateHistory(HistoryConfig{
		DatasetFile:      exportRes.JSON,
		StateFile:        cfg.StateFile(),
		LatestFile:       filepath.Join(cfg.OutDir, "latest", "trials.json"),
		HistoryDir:       cfg.HistoryDir,
		RetentionDays:    cfg.RetentionDays,
		SnapshotOnChange: cfg.SnapshotOnChange,
	}, s.Logger)
	if err != nil {
		return nil, err
	}

	if s.S3Client != nil && cfg.S3Enabled {
		if err := s.publish(ctx, historyRes); err != nil {
			// Upload-Fehler machen den Lauf nicht kaputt, die lokalen
			// Artefakte sind bereits vollständig geschrieben.
			s.Logger.Error("S3-Upload fehlgeschlagen", zap.Error(err))
		}
	}

	return &RunResult{
		Collect: collectRes,
		Export:  exportRes,
		History: historyRes,
		Changed: historyRes.Changed,
	}, nil
}

func (s *CollectService) publish(ctx context.Context, history *HistoryResult) error {
	latest := history.State.LatestFile
	link, err := storage.UploadFile(ctx, s.S3Client, s.Config, "latest/"+filepath.Base(latest), latest)
	if err != nil {
		return err
	}
	s.Logger.Info("Latest-Datensatz hochgeladen", zap.String("link", link))

	if history.Snapshot != "" {
		link, err := storage.UploadFile(ctx, s.S3Client, s.Config, "history/"+filepath.Base(history.Snapshot), history.Snapshot)
		if err != nil {
			return err
		}
		s.Logger.Info("Snapshot hochgeladen", zap.String("link", link))
	}
	return nil
}
