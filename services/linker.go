package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/models"
	"trial-scout/providers"
	"trial-scout/providers/ctgov"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// LinkerConfig steuert die unscharfe Verknüpfung Compound -> Studie.
type LinkerConfig struct {
	MaxSynonyms    int
	PageSize       int
	MaxPagesPerTerm int
	MinScore       int
	MaxLinksPerCID int
}

// LinkerConfigFromEnv übernimmt die Linker-Parameter aus der Konfiguration.
func LinkerConfigFromEnv(cfg *config.Config) LinkerConfig {
	return LinkerConfig{
		MaxSynonyms:     cfg.LinkerMaxSynonyms,
		PageSize:        cfg.LinkerPageSize,
		MaxPagesPerTerm: cfg.LinkerMaxPagesPerTerm,
		MinScore:        cfg.LinkerMinScore,
		MaxLinksPerCID:  cfg.LinkerMaxLinksPerCID,
	}
}

// DefaultLinkerConfig liefert die konservativen Standardwerte.
func DefaultLinkerConfig() LinkerConfig {
	return LinkerConfig{MaxSynonyms: 20, PageSize: 100, MaxPagesPerTerm: 2, MinScore: 2, MaxLinksPerCID: 50}
}

// CompoundTrialLinker sucht Studien per Volltext über Compound-Namen und
// bewertet jeden Treffer gegen die Kernfelder des Studien-Dokuments.
// Direkte ID-Auflösung ist immer vorzuziehen; der Linker ist der letzte
// Ausweg für Compounds ohne annotierte Trial-IDs.
type CompoundTrialLinker struct {
	Registry providers.TrialRegistry
	Logger   *zap.Logger
	Config   LinkerConfig
}

// NewCompoundTrialLinker erstellt einen Linker mit Default-Parametern.
func NewCompoundTrialLinker(registry providers.TrialRegistry, logger *zap.Logger) *CompoundTrialLinker {
	return &CompoundTrialLinker{Registry: registry, Logger: logger, Config: DefaultLinkerConfig()}
}

// SearchTerms baut die Suchterm-Liste eines Compounds: Synonyme bis zum
// Cap, davor der IUPAC-Name, falls kurz genug und noch nicht enthalten.
// Lange IUPAC-Namen sind systematische Nomenklatur und als Suchbegriff
// nutzlos.
func (l *CompoundTrialLinker) SearchTerms(c *models.Compound) []string {
	max := l.Config.MaxSynonyms
	if max <= 0 {
		max = 20
	}
	terms := make([]string, 0, max+1)
	seen := make(map[string]bool)
	for _, s := range c.Synonyms {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		terms = append(terms, s)
		seen[strings.ToLower(s)] = true
		if len(terms) >= max {
			break
		}
	}
	iupac := strings.TrimSpace(c.IUPACName)
	if iupac != "" && len(iupac) <= 40 && !seen[strings.ToLower(iupac)] {
		terms = append([]string{iupac}, terms...)
	}
	return terms
}

// normalizeBlob faltet die bewertungsrelevanten Kernfelder eines
// Studien-Dokuments in einen normalisierten Text: Klein geschrieben,
// Whitespace kollabiert.
func normalizeBlob(study map[string]any) string {
	var parts []string
	if proto, ok := study["protocolSection"].(map[string]any); ok {
		if ident, ok := proto["identificationModule"].(map[string]any); ok {
			if s, ok := ident["briefTitle"].(string); ok {
				parts = append(parts, s)
			}
			if s, ok := ident["officialTitle"].(string); ok {
				parts = append(parts, s)
			}
		}
		if status, ok := proto["statusModule"].(map[string]any); ok {
			if s, ok := status["overallStatus"].(string); ok {
				parts = append(parts, s)
			}
		}
		if conds, ok := proto["conditionsModule"].(map[string]any); ok {
			if list, ok := conds["conditions"].([]any); ok {
				for _, c := range list {
					if s, ok := c.(string); ok {
						parts = append(parts, s)
					}
				}
			}
		}
		if im, ok := proto["interventionsModule"].(map[string]any); ok {
			if list, ok := im["interventions"].([]any); ok {
				for _, iv := range list {
					if m, ok := iv.(map[string]any); ok {
						if s, ok := m["name"].(string); ok {
							parts = append(parts, s)
						}
					}
				}
			}
		}
	}
	blob := strings.ToLower(strings.Join(parts, " "))
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(blob, " "))
}

// ScoreStudy bewertet ein Studien-Dokument gegen einen Suchterm:
// +2 für Substring-Treffer in den Kernfeldern, +1 zusätzlich für einen
// Ganzwort-Treffer.
func ScoreStudy(study map[string]any, term string) (int, []string) {
	blob := normalizeBlob(study)
	needle := strings.TrimSpace(whitespaceRE.ReplaceAllString(strings.ToLower(term), " "))
	if needle == "" || blob == "" {
		return 0, nil
	}
	score := 0
	var reasons []string
	if strings.Contains(blob, needle) {
		score += 2
		reasons = append(reasons, "term_found_in_core_fields(+2)")
		wordRE, err := regexp.Compile(`(^|[^a-z0-9])` + regexp.QuoteMeta(needle) + `([^a-z0-9]|$)`)
		if err == nil && wordRE.MatchString(blob) {
			score++
			reasons = append(reasons, "term_whole_word_match(+1)")
		}
	}
	return score, reasons
}

// LinkCompound durchläuft pro Term die Query-Modi "intr" und "term",
// bewertet jeden Treffer und sammelt Links ab MinScore. Pro (CID, NCT)
// gewinnt der erste Treffer; das Cap MaxLinksPerCID beendet die gesamte
// Suche des Compounds sofort.
func (l *CompoundTrialLinker) LinkCompound(ctx context.Context, c *models.Compound) ([]models.LinkResult, error) {
	cfg := l.Config
	if cfg.MinScore <= 0 {
		cfg.MinScore = 2
	}
	if cfg.MaxLinksPerCID <= 0 {
		cfg.MaxLinksPerCID = 50
	}

	var links []models.LinkResult
	seen := make(map[string]bool)
	capped := false

	for _, term := range l.SearchTerms(c) {
		if capped {
			break
		}
		for _, mode := range []string{"intr", "term"} {
			if capped {
				break
			}
			query := providers.StudyQuery{
				PageSize: cfg.PageSize,
				MaxPages: cfg.MaxPagesPerTerm,
			}
			switch mode {
			case "intr":
				query.Intr = term
			default:
				query.Term = term
			}

			err := l.Registry.ForEachStudy(ctx, query, func(study map[string]any) (bool, error) {
				nctID := ctgov.ExtractNCTID(study)
				if nctID == "" {
					return true, nil
				}
				if seen[nctID] {
					return true, nil
				}
				score, reasons := ScoreStudy(study, term)
				if score < cfg.MinScore {
					return true, nil
				}
				seen[nctID] = true
				links = append(links, models.LinkResult{
					CID:   c.CID,
					NCTID: nctID,
					Evidence: models.LinkEvidence{
						Term:      term,
						QueryMode: mode,
						Score:     score,
						Reasons:   reasons,
					},
				})
				if len(links) >= cfg.MaxLinksPerCID {
					capped = true
					return false, nil
				}
				return true, nil
			})
			if err != nil {
				l.Logger.Warn("Linker-Suche für Term fehlgeschlagen",
					zap.Int("cid", c.CID), zap.String("term", term),
					zap.String("mode", mode), zap.Error(err))
			}
		}
	}

	l.Logger.Debug("Linker abgeschlossen",
		zap.Int("cid", c.CID), zap.Int("links", len(links)), zap.Bool("capped", capped))
	return links, nil
}

// LinkRowsFor wandelt Linker-Ergebnisse in flache Zeilen für links.jsonl.
func LinkRowsFor(results []models.LinkResult) []models.LinkRow {
	rows := make([]models.LinkRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, models.LinkRow{
			CID:       r.CID,
			NCTID:     r.NCTID,
			MatchTerm: r.Evidence.Term,
			QueryMode: r.Evidence.QueryMode,
			Score:     r.Evidence.Score,
			Reasons:   r.Evidence.Reasons,
		})
	}
	return rows
}
