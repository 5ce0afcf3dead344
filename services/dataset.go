package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"trial-scout/providers"
	"trial-scout/providers/sdq"
	"trial-scout/storage"
)

// DatasetBuilder baut die Compound/Link/Studien-Artefakte und den
// Trials-Export. Alle Abhängigkeiten kommen als Capability-Interfaces
// herein, damit Tests mit Stubs arbeiten können.
type DatasetBuilder struct {
	Classification providers.ClassificationSource
	Compounds      providers.CompoundSource
	Registry       providers.TrialRegistry
	Web            providers.WebFallbackSource
	Depiction      providers.DepictionSource
	Linker         *CompoundTrialLinker
	Logger         *zap.Logger
}

// BuildDatasetForCIDs erzeugt für eine CID-Liste drei JSONL-Artefakte:
// compounds.jsonl, links.jsonl (mit voller Evidenz) und studies.jsonl.
// Jedes Studien-Dokument wird pro Batch genau einmal geholt, der Cache
// lebt über den gesamten Batch.
func (b *DatasetBuilder) BuildDatasetForCIDs(ctx context.Context, cids []int, outDir string) (map[string]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	compoundsPath := filepath.Join(outDir, "compounds.jsonl")
	linksPath := filepath.Join(outDir, "links.jsonl")
	studiesPath := filepath.Join(outDir, "studies.jsonl")

	var compoundRows []map[string]any
	var linkRows []map[string]any
	var studyRows []map[string]any
	studyCache := make(map[string]map[string]any)

	for _, cid := range cids {
		comp, err := b.Compounds.CompoundProperties(ctx, cid)
		if err != nil {
			return nil, fmt.Errorf("compound %d: %w", cid, err)
		}
		syns, err := b.Compounds.Synonyms(ctx, cid, b.Linker.Config.MaxSynonyms)
		if err != nil {
			return nil, fmt.Errorf("synonyme %d: %w", cid, err)
		}
		comp.Synonyms = syns
		compoundRows = append(compoundRows, map[string]any{
			"cid":              comp.CID,
			"inchikey":         comp.InChIKey,
			"canonical_smiles": comp.CanonicalSMILES,
			"iupac_name":       comp.IUPACName,
			"synonyms":         comp.Synonyms,
		})

		links, err := b.Linker.LinkCompound(ctx, &comp)
		if err != nil {
			return nil, fmt.Errorf("linker %d: %w", cid, err)
		}
		for _, row := range LinkRowsFor(links) {
			linkRows = append(linkRows, map[string]any{
				"cid":        row.CID,
				"nct_id":     row.NCTID,
				"match_term": row.MatchTerm,
				"query_mode": row.QueryMode,
				"score":      row.Score,
				"reasons":    row.Reasons,
			})
		}

		for _, l := range links {
			if _, ok := studyCache[l.NCTID]; ok {
				continue
			}
			study, err := b.Registry.GetStudy(ctx, l.NCTID, nil)
			if err != nil {
				return nil, fmt.Errorf("studie %s: %w", l.NCTID, err)
			}
			studyCache[l.NCTID] = study
			studyRows = append(studyRows, study)
		}
	}

	if err := storage.WriteJSONLRows(compoundsPath, compoundRows); err != nil {
		return nil, err
	}
	if err := storage.WriteJSONLRows(linksPath, linkRows); err != nil {
		return nil, err
	}
	if err := storage.WriteJSONLRows(studiesPath, studyRows); err != nil {
		return nil, err
	}

	return map[string]string{
		"compounds": compoundsPath,
		"links":     linksPath,
		"studies":   studiesPath,
	}, nil
}

// ExportConfig steuert den Trials-Dataset-Export über SDQ-Register.
type ExportConfig struct {
	HNIDs              []int
	OutDir             string
	Collections        []string
	LimitCIDs          int
	LimitPerCollection int
	FetchImages        bool
	ImageSize          string
	Resume             bool
	ProgressEvery      int
}

// ExportSummary ist der Inhalt von summary.json nach einem Export.
type ExportSummary struct {
	HNIDs           []int    `json:"hnids"`
	Collections     []string `json:"collections"`
	NCIDs           int      `json:"n_cids"`
	NRows           int      `json:"n_rows"`
	NCIDsWithTrials int      `json:"n_cids_with_trials"`
	NErrorRows      int      `json:"n_error_rows"`
	JSONL           string   `json:"jsonl"`
	CSV             string   `json:"csv"`
	JSON            string   `json:"json"`
	CSVRows         int      `json:"csv_rows"`
	JSONRows        int      `json:"json_rows"`
}

// sanitizeTrialRow entfernt die Roh-Aliase, deren Inhalt bereits in den
// kanonischen Feldern id und date steckt.
func sanitizeTrialRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch k {
		case "ctid", "eudractnumber", "updatedate":
			continue
		}
		out[k] = v
	}
	return out
}

// trialsUnion holt pro Collection die SDQ-Zeilen einer CID und normalisiert
// sie in die Union-Form (kanonische Felder plus alle Roh-Restfelder).
func (b *DatasetBuilder) trialsUnion(ctx context.Context, cid int, collections []string, limit int) ([]map[string]any, error) {
	var rows []map[string]any
	for _, coll := range collections {
		payload, err := b.Web.SDQPayload(ctx, cid, coll, limit)
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", coll, err)
		}
		for _, raw := range sdq.ExtractRows(payload) {
			rows = append(rows, sdq.NormalizeTrialRowUnion(raw, coll))
		}
	}
	return rows, nil
}

// ExportTrialsDataset baut pro CID die Union der normalisierten
// Registerzeilen plus Stoffeigenschaften und optionalem Strukturbild,
// hängt sie an trials.jsonl an und leitet am Ende CSV, JSON-Array und
// summary.json daraus ab. Resume überspringt CIDs, die bereits in
// trials.jsonl stehen.
func (b *DatasetBuilder) ExportTrialsDataset(ctx context.Context, cfg ExportConfig) (*ExportSummary, error) {
	if len(cfg.Collections) == 0 {
		return nil, fmt.Errorf("mindestens eine collection erforderlich")
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, err
	}

	cidsTxt := filepath.Join(cfg.OutDir, "cids.txt")
	jsonlPath := filepath.Join(cfg.OutDir, "trials.jsonl")
	csvPath := filepath.Join(cfg.OutDir, "trials.csv")
	jsonPath := filepath.Join(cfg.OutDir, "trials.json")
	summaryPath := filepath.Join(cfg.OutDir, "summary.json")

	var cids []int
	seen := make(map[int]bool)
	for _, hnid := range cfg.HNIDs {
		nodeCIDs, err := b.Classification.CIDsForNode(ctx, hnid)
		if err != nil {
			return nil, fmt.Errorf("cids für hnid %d: %w", hnid, err)
		}
		for _, cid := range nodeCIDs {
			if !seen[cid] {
				seen[cid] = true
				cids = append(cids, cid)
			}
		}
	}
	if cfg.LimitCIDs > 0 && len(cids) > cfg.LimitCIDs {
		cids = cids[:cfg.LimitCIDs]
	}
	lines := make([]string, 0, len(cids))
	for _, cid := range cids {
		lines = append(lines, strconv.Itoa(cid))
	}
	if err := storage.WriteLines(cidsTxt, lines); err != nil {
		return nil, err
	}

	processed := make(map[int]bool)
	if cfg.Resume {
		if err := storage.ForEachJSONL(jsonlPath, func(row map[string]any) error {
			if cid, ok := jsonNumberAsInt(row["cid"]); ok {
				processed[cid] = true
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}

	b.Logger.Info("Trials-Export startet",
		zap.Ints("hnids", cfg.HNIDs), zap.Strings("collections", cfg.Collections),
		zap.Int("cids", len(cids)), zap.Bool("resume", cfg.Resume))

	var totalRows, withTrials, errorRows int
	for idx, cid := range cids {
		if processed[cid] {
			continue
		}

		var smiles, inchikey, iupacName, compoundError any
		props, err := b.Compounds.CompoundProperties(ctx, cid)
		if err != nil {
			compoundError = fmt.Sprintf("compound_props_error:%v", err)
		} else {
			smiles = props.CanonicalSMILES
			inchikey = props.InChIKey
			iupacName = props.IUPACName
		}

		var imageBase64 any
		if cfg.FetchImages && b.Depiction != nil {
			uri, err := b.Depiction.CompoundPNGDataURI(ctx, cid, cfg.ImageSize)
			if err == nil {
				imageBase64 = uri
			}
		}

		unionRows, err := b.trialsUnion(ctx, cid, cfg.Collections, cfg.LimitPerCollection)
		if err != nil {
			errRow := map[string]any{
				"cid":            cid,
				"collections":    cfg.Collections,
				"error":          fmt.Sprintf("trials_union_error:%v", err),
				"smiles":         smiles,
				"inchikey":       inchikey,
				"iupac_name":     iupacName,
				"compound_error": compoundError,
				"image_base64":   imageBase64,
			}
			if err := storage.AppendJSONL(jsonlPath, errRow); err != nil {
				return nil, err
			}
			totalRows++
			errorRows++
			continue
		}

		if len(unionRows) > 0 {
			withTrials++
		} else {
			// Platzhalterzeile, damit jede CID im Export nachvollziehbar bleibt.
			unionRows = []map[string]any{{
				"collection": nil, "id": nil, "title": nil, "phase": nil,
				"status": nil, "date": nil, "id_url": nil, "cids": nil,
				"note": "no_trials_found",
			}}
		}

		for _, r := range unionRows {
			row := sanitizeTrialRow(r)
			row["cid"] = cid
			row["smiles"] = smiles
			row["inchikey"] = inchikey
			row["iupac_name"] = iupacName
			row["compound_error"] = compoundError
			row["image_base64"] = imageBase64
			if err := storage.AppendJSONL(jsonlPath, row); err != nil {
				return nil, err
			}
			totalRows++
		}

		if cfg.ProgressEvery > 0 && ((idx+1)%cfg.ProgressEvery == 0 || idx+1 == len(cids)) {
			b.Logger.Info("Export-Fortschritt",
				zap.Int("idx", idx+1), zap.Int("total", len(cids)), zap.Int("rows", totalRows))
		}
	}

	allRows, err := storage.ReadJSONL(jsonlPath)
	if err != nil {
		return nil, err
	}
	header := UnionHeader(allRows, PreferredTrialHeader)
	csvRows, err := storage.WriteCSVFromJSONL(jsonlPath, csvPath, header)
	if err != nil {
		return nil, err
	}
	jsonRows, err := storage.WriteJSONArrayFromJSONL(jsonlPath, jsonPath)
	if err != nil {
		return nil, err
	}

	summary := &ExportSummary{
		HNIDs:           cfg.HNIDs,
		Collections:     cfg.Collections,
		NCIDs:           len(cids),
		NRows:           totalRows,
		NCIDsWithTrials: withTrials,
		NErrorRows:      errorRows,
		JSONL:           jsonlPath,
		CSV:             csvPath,
		JSON:            jsonPath,
		CSVRows:         csvRows,
		JSONRows:        jsonRows,
	}
	if err := storage.WriteJSON(summaryPath, summary); err != nil {
		return nil, err
	}
	return summary, nil
}
