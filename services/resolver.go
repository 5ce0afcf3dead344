package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"trial-scout/providers"
	"trial-scout/providers/pugview"
	"trial-scout/providers/sdq"
)

// Provenienz-Labels der Auflösungs-Tiers. Downstream-Auswertungen hängen
// an den exakten Strings, daher hier zentral definiert.
const (
	SourcePugViewAnnotations = "PubChem PUG-View annotations"
	SourceSDQClinicalTrials  = "PubChem web clinicaltrials endpoint fallback (sdq)"
	SourceSDQEURegister      = "PubChem web EU Clinical Trials Register endpoint fallback (sdq)"
	SourceSDQJapanNIPH       = "PubChem web NIPH Clinical Trials Search of Japan endpoint fallback (sdq)"
	SourceCompoundPageHTML   = "PubChem web compound page fallback (html)"
	SourceNone               = "PubChem web fallback (empty)"
	SourceLinkerFallback     = "CTGov term-link fallback (no PUG-View NCT IDs)"
)

var sdqSourceLabels = map[string]string{
	sdq.CollectionClinicalTrials: SourceSDQClinicalTrials,
	sdq.CollectionEURegister:     SourceSDQEURegister,
	sdq.CollectionJapanNIPH:      SourceSDQJapanNIPH,
}

// Resolution ist das Ergebnis der Fallback-Kette für eine CID: sortierte,
// eindeutige Trial-IDs plus das Label des erfolgreichen Tiers. Err trägt
// den ersten Tier-Fehler als Information; die Kette selbst bricht auf
// Tier-Fehler nie ab.
type Resolution struct {
	NCTIDs []string
	Source string
	Err    error
}

// Resolver löst eine CID über vier Tiers abnehmender Verlässlichkeit in
// Trial-IDs auf: strukturierte PUG-View-Annotationen, heading-skopierte
// Nachabfragen, SDQ-Registersuche, rohes Compound-Seiten-HTML.
type Resolver struct {
	PugView  providers.DisplayRecordSource
	Web      providers.WebFallbackSource
	Logger   *zap.Logger
	SDQLimit int
}

// NewResolver erstellt einen Resolver mit Default-SDQ-Limit.
func NewResolver(pugView providers.DisplayRecordSource, web providers.WebFallbackSource, logger *zap.Logger) *Resolver {
	return &Resolver{PugView: pugView, Web: web, Logger: logger, SDQLimit: 200}
}

type tierOutcome struct {
	ids    []string
	source string
	err    error
}

// Resolve führt die Tiers in fester Prioritätsreihenfolge aus und bricht
// beim ersten nicht-leeren Ergebnis ab. Ein fehlgeschlagener Tier zählt
// als leer; erst wenn alle Tiers leer bleiben, ist das Ergebnis leer
// (mit Source "PubChem web fallback (empty)").
func (r *Resolver) Resolve(ctx context.Context, cid int) Resolution {
	tiers := []struct {
		name string
		run  func(context.Context, int) tierOutcome
	}{
		{"pug_view", r.resolvePugView},
		{"sdq_" + sdq.CollectionClinicalTrials, r.sdqTier(sdq.CollectionClinicalTrials)},
		{"sdq_" + sdq.CollectionEURegister, r.sdqTier(sdq.CollectionEURegister)},
		{"sdq_" + sdq.CollectionJapanNIPH, r.sdqTier(sdq.CollectionJapanNIPH)},
		{"compound_page_html", r.resolveHTML},
	}

	var firstErr error
	for _, tier := range tiers {
		out := tier.run(ctx, cid)
		if out.err != nil {
			r.Logger.Warn("Auflösungs-Tier fehlgeschlagen, nächster Tier",
				zap.Int("cid", cid), zap.String("tier", tier.name), zap.Error(out.err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s_error:%w", tier.name, out.err)
			}
			continue
		}
		if len(out.ids) > 0 {
			return Resolution{NCTIDs: out.ids, Source: out.source, Err: firstErr}
		}
	}
	return Resolution{NCTIDs: []string{}, Source: SourceNone, Err: firstErr}
}

// resolvePugView deckt Tier 1 und 2 ab: Annotationen des vollen
// Display-Records plus heading-skopierte Nachabfragen, wenn der Record
// leer ist oder eine externe Clinical-Trials-Tabelle referenziert.
// Fehler einzelner Headings werden verschluckt und das Heading übersprungen.
func (r *Resolver) resolvePugView(ctx context.Context, cid int) tierOutcome {
	payload, err := r.PugView.CompoundRecord(ctx, cid)
	if err != nil {
		return tierOutcome{err: err}
	}

	set := make(map[string]bool)
	for _, id := range pugview.ExtractNCTIDs(payload) {
		set[id] = true
	}

	if len(set) == 0 || pugview.HasExternalClinicalTrialsRef(payload) {
		for _, heading := range pugview.CandidateClinicalHeadings(payload) {
			section, err := r.PugView.CompoundRecordByHeading(ctx, cid, heading)
			if err != nil {
				r.Logger.Debug("Heading-Abfrage übersprungen",
					zap.Int("cid", cid), zap.String("heading", heading), zap.Error(err))
				continue
			}
			for _, id := range pugview.ExtractNCTIDs(section) {
				set[id] = true
			}
		}
	}

	return tierOutcome{ids: sortedIDs(set), source: SourcePugViewAnnotations}
}

func (r *Resolver) sdqTier(collection string) func(context.Context, int) tierOutcome {
	return func(ctx context.Context, cid int) tierOutcome {
		payload, err := r.Web.SDQPayload(ctx, cid, collection, r.SDQLimit)
		if err != nil {
			return tierOutcome{err: err}
		}
		return tierOutcome{
			ids:    sdq.ExtractNCTIDsFromPayload(payload),
			source: sdqSourceLabels[collection],
		}
	}
}

func (r *Resolver) resolveHTML(ctx context.Context, cid int) tierOutcome {
	html, err := r.Web.CompoundPageHTML(ctx, cid)
	if err != nil {
		return tierOutcome{err: err}
	}
	return tierOutcome{ids: sdq.ExtractNCTIDsFromHTML(html), source: SourceCompoundPageHTML}
}

func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
