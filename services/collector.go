package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trial-scout/models"
	"trial-scout/providers"
	"trial-scout/providers/ctgov"
	"trial-scout/storage"
)

// CollectorConfig steuert einen Sammellauf über Klassifikations-Knoten.
type CollectorConfig struct {
	HNIDs            []int
	OutDir           string
	LimitCIDs        int
	LimitNCTs        int
	CTGovFields      []string
	UseCTGovFallback bool
	Resume           bool
	FailFast         bool
	ProgressEvery    int
}

// CollectResult fasst einen abgeschlossenen Sammellauf zusammen.
type CollectResult struct {
	OutDir                  string            `json:"out_dir"`
	CIDCount                int               `json:"cids_count"`
	NCTTotalMapped          int               `json:"nct_ids_total_mapped"`
	NCTUniqueSeen           int               `json:"nct_unique_seen"`
	NCTRequested            int               `json:"nct_requested"`
	NCTFetched              int               `json:"nct_fetched"`
	NCTExistingBeforeResume int               `json:"nct_existing_before_resume"`
	ElapsedSec              float64           `json:"elapsed_sec"`
	Paths                   map[string]string `json:"paths"`
}

// Collector treibt die Streaming-Pipeline: CIDs aus Klassifikations-Knoten
// aufzählen, pro CID Trial-IDs auflösen, Studien-Dokumente nachladen.
// Alle Ausgaben werden sofort angehängt, nie gepuffert; Resume baut den
// Fortschritt ausschließlich aus den vorhandenen Ausgabedateien wieder auf.
type Collector struct {
	Classification providers.ClassificationSource
	Compounds      providers.CompoundSource
	Registry       providers.TrialRegistry
	Resolver       *Resolver
	Linker         *CompoundTrialLinker
	Logger         *zap.Logger
}

// enumerateCIDs zählt alle HNIDs auf, dedupliziert CIDs in
// First-Seen-Reihenfolge und schreibt cids.txt plus cids.jsonl mit den
// Herkunfts-HNIDs pro CID.
func (c *Collector) enumerateCIDs(ctx context.Context, cfg CollectorConfig) ([]int, map[string]string, error) {
	cidHNIDs := make(map[int]map[int]bool)
	var ordered []int

	for _, hnid := range cfg.HNIDs {
		cids, err := c.Classification.CIDsForNode(ctx, hnid)
		if err != nil {
			return nil, nil, fmt.Errorf("cids für hnid %d: %w", hnid, err)
		}
		for _, cid := range cids {
			if _, ok := cidHNIDs[cid]; !ok {
				cidHNIDs[cid] = make(map[int]bool)
				ordered = append(ordered, cid)
			}
			cidHNIDs[cid][hnid] = true
		}
	}

	if cfg.LimitCIDs > 0 && len(ordered) > cfg.LimitCIDs {
		ordered = ordered[:cfg.LimitCIDs]
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, nil, err
	}
	cidsTxt := filepath.Join(cfg.OutDir, "cids.txt")
	cidsJSONL := filepath.Join(cfg.OutDir, "cids.jsonl")

	lines := make([]string, 0, len(ordered))
	records := make([]models.CIDRecord, 0, len(ordered))
	for _, cid := range ordered {
		lines = append(lines, strconv.Itoa(cid))
		hnids := make([]int, 0, len(cidHNIDs[cid]))
		for h := range cidHNIDs[cid] {
			hnids = append(hnids, h)
		}
		sort.Ints(hnids)
		records = append(records, models.CIDRecord{CID: cid, SourceHNIDs: hnids})
	}
	if err := storage.WriteLines(cidsTxt, lines); err != nil {
		return nil, nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]any{"cid": r.CID, "source_hnids": r.SourceHNIDs})
	}
	if err := storage.WriteJSONLRows(cidsJSONL, rows); err != nil {
		return nil, nil, err
	}

	return ordered, map[string]string{"cids_txt": cidsTxt, "cids_jsonl": cidsJSONL}, nil
}

// MapCIDRecord baut den Link-Datensatz einer CID: Fallback-Kette, optional
// Fuzzy-Linker, optional Compound-Eigenschaften. Fehler werden im
// Nicht-FailFast-Modus als Strings in den Zeilen abgelegt und der Lauf
// geht weiter.
func (c *Collector) MapCIDRecord(ctx context.Context, cid int, useLinker, failFast bool) (models.CIDNCTLink, *models.Compound, error) {
	res := c.Resolver.Resolve(ctx, cid)
	var linkErr string
	if res.Err != nil {
		// Tier-Fehler sind erst fatal, wenn die gesamte Kette leer blieb.
		if failFast && len(res.NCTIDs) == 0 {
			return models.CIDNCTLink{}, nil, res.Err
		}
		linkErr = res.Err.Error()
	}

	nctIDs := res.NCTIDs
	source := res.Source

	var compound *models.Compound
	if len(nctIDs) == 0 && useLinker && c.Linker != nil {
		comp, err := c.fetchCompoundForLinker(ctx, cid)
		var links []models.LinkResult
		if err == nil {
			links, err = c.Linker.LinkCompound(ctx, comp)
		}
		if err != nil {
			fallbackErr := fmt.Sprintf("ctgov_fallback_error:%v", err)
			if failFast {
				return models.CIDNCTLink{}, nil, fmt.Errorf("ctgov_fallback_error:%w", err)
			}
			if linkErr != "" {
				linkErr = linkErr + "|" + fallbackErr
			} else {
				linkErr = fallbackErr
			}
		} else {
			compound = comp
			set := make(map[string]bool, len(links))
			for _, l := range links {
				set[l.NCTID] = true
			}
			if len(set) > 0 {
				nctIDs = sortedIDs(set)
				source = SourceLinkerFallback
			}
		}
	}

	link := models.CIDNCTLink{
		CID:    cid,
		NCTIDs: nctIDs,
		NNCT:   len(nctIDs),
		Source: source,
		Error:  linkErr,
	}

	if compound == nil {
		props, err := c.Compounds.CompoundProperties(ctx, cid)
		if err != nil {
			if failFast {
				return models.CIDNCTLink{}, nil, fmt.Errorf("compound_props_error:%w", err)
			}
			compound = &models.Compound{CID: cid, Error: fmt.Sprintf("compound_props_error:%v", err)}
		} else {
			compound = &props
		}
	}

	return link, compound, nil
}

func (c *Collector) fetchCompoundForLinker(ctx context.Context, cid int) (*models.Compound, error) {
	comp, err := c.Compounds.CompoundProperties(ctx, cid)
	if err != nil {
		return nil, fmt.Errorf("compound_props_error:%w", err)
	}
	syns, err := c.Compounds.Synonyms(ctx, cid, c.Linker.Config.MaxSynonyms)
	if err != nil {
		return nil, fmt.Errorf("synonyms_error:%w", err)
	}
	comp.Synonyms = syns
	return &comp, nil
}

// Run führt den kompletten Sammellauf gegen die konfigurierten HNIDs aus.
func (c *Collector) Run(ctx context.Context, cfg CollectorConfig) (*CollectResult, error) {
	start := time.Now()

	linksPath := filepath.Join(cfg.OutDir, "cid_nct_links.jsonl")
	compoundsPath := filepath.Join(cfg.OutDir, "compounds.jsonl")
	mapCSVPath := filepath.Join(cfg.OutDir, "cid_nct_map.csv")
	studiesPath := filepath.Join(cfg.OutDir, "studies.jsonl")

	c.Logger.Info("Lade CIDs aus Klassifikations-Knoten", zap.Ints("hnids", cfg.HNIDs))
	cids, paths, err := c.enumerateCIDs(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("CID-Aufzählung abgeschlossen", zap.Int("cids", len(cids)))

	if err := ensureMapCSVHeader(mapCSVPath); err != nil {
		return nil, err
	}

	processedCIDs := make(map[int]bool)
	studyCache := make(map[string]map[string]any)
	if cfg.Resume {
		if processedCIDs, err = loadProcessedCIDs(linksPath); err != nil {
			return nil, err
		}
		if studyCache, err = loadStudyCache(studiesPath); err != nil {
			return nil, err
		}
	}
	existingBefore := len(studyCache)

	fetchLimit := cfg.LimitNCTs
	if fetchLimit <= 0 {
		fetchLimit = int(^uint(0) >> 1)
	}
	var nctRequested, nctFetched, nctTotalMapped int
	total := len(cids)

	c.Logger.Info("Streaming CID -> NCT -> Studien-Dokumente")
	for idx, cid := range cids {
		if processedCIDs[cid] {
			c.logProgress(cfg, idx+1, total, "übersprungen (resume)", cid, 0, nctFetched)
			continue
		}

		link, compound, err := c.MapCIDRecord(ctx, cid, cfg.UseCTGovFallback, cfg.FailFast)
		if err != nil {
			return nil, fmt.Errorf("cid %d: %w", cid, err)
		}
		nctTotalMapped += len(link.NCTIDs)

		if err := storage.AppendJSONL(linksPath, link); err != nil {
			return nil, err
		}
		if compound != nil {
			if err := storage.AppendJSONL(compoundsPath, compound); err != nil {
				return nil, err
			}
		}
		if err := appendMapCSVRows(mapCSVPath, cid, link.NCTIDs); err != nil {
			return nil, err
		}

		// Pro referenzierender CID wird die Studie einmal emittiert,
		// bewusst denormalisiert. Nach Erreichen des globalen Limits
		// werden keine neuen Dokumente mehr geholt, gecachte aber
		// weiterhin geschrieben.
		for _, nct := range link.NCTIDs {
			study, cached := studyCache[nct]
			if !cached {
				if nctRequested >= fetchLimit {
					break
				}
				nctRequested++
				study, err = c.Registry.GetStudy(ctx, nct, cfg.CTGovFields)
				if err != nil {
					return nil, fmt.Errorf("studie %s: %w", nct, err)
				}
				studyCache[nct] = study
				nctFetched++
			}
			out := make(map[string]any, len(study)+1)
			for k, v := range study {
				out[k] = v
			}
			out["cid"] = cid
			if err := storage.AppendJSONL(studiesPath, out); err != nil {
				return nil, err
			}
		}

		c.logProgress(cfg, idx+1, total, "verarbeitet", cid, len(link.NCTIDs), nctFetched)
	}

	paths["cid_nct_links"] = linksPath
	paths["cid_nct_map_csv"] = mapCSVPath
	paths["compounds"] = compoundsPath
	paths["studies"] = studiesPath

	return &CollectResult{
		OutDir:                  cfg.OutDir,
		CIDCount:                len(cids),
		NCTTotalMapped:          nctTotalMapped,
		NCTUniqueSeen:           len(studyCache),
		NCTRequested:            nctRequested,
		NCTFetched:              nctFetched,
		NCTExistingBeforeResume: existingBefore,
		ElapsedSec:              time.Since(start).Seconds(),
		Paths:                   paths,
	}, nil
}

func (c *Collector) logProgress(cfg CollectorConfig, idx, total int, what string, cid, nctFound, nctFetched int) {
	if cfg.ProgressEvery <= 0 {
		return
	}
	if idx%cfg.ProgressEvery != 0 && idx != total {
		return
	}
	c.Logger.Info("Stream-Fortschritt",
		zap.String("status", what),
		zap.Int("idx", idx), zap.Int("total", total),
		zap.Int("cid", cid), zap.Int("nct_found", nctFound),
		zap.Int("nct_fetched_total", nctFetched))
}

func ensureMapCSVHeader(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"cid", "nct_id"}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func appendMapCSVRows(path string, cid int, nctIDs []string) error {
	if len(nctIDs) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, nct := range nctIDs {
		if err := w.Write([]string{strconv.Itoa(cid), nct}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// loadProcessedCIDs sammelt die bereits verarbeiteten CIDs aus einer
// früheren Links-Datei. Fehlende Datei bedeutet leerer Zustand.
func loadProcessedCIDs(path string) (map[int]bool, error) {
	seen := make(map[int]bool)
	err := storage.ForEachJSONL(path, func(row map[string]any) error {
		if cid, ok := jsonNumberAsInt(row["cid"]); ok {
			seen[cid] = true
		}
		return nil
	})
	return seen, err
}

// loadStudyCache rekonstruiert den Studien-Cache aus einer früheren
// studies.jsonl. Pro NCT-ID gewinnt das erste Dokument.
func loadStudyCache(path string) (map[string]map[string]any, error) {
	cache := make(map[string]map[string]any)
	err := storage.ForEachJSONL(path, func(row map[string]any) error {
		nct := strings.TrimSpace(ctgov.ExtractNCTID(row))
		if nct != "" {
			if _, ok := cache[nct]; !ok {
				cache[nct] = row
			}
		}
		return nil
	})
	return cache, err
}

func jsonNumberAsInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
