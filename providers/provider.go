package providers

import (
	"context"

	"trial-scout/models"
)

// StudyQuery beschreibt eine Suche gegen die ClinicalTrials.gov v2 API.
// Genau eines der Felder Cond/Intr/Term ist üblicherweise gesetzt.
type StudyQuery struct {
	Cond       string
	Intr       string
	Term       string
	Fields     []string
	Sort       string
	PageSize   int
	PageToken  string
	MaxPages   int // 0 = unbegrenzt
	MaxResults int // 0 = unbegrenzt
}

// ClassificationSource liefert CID-Listen für PubChem-Klassifikationsknoten.
type ClassificationSource interface {
	CIDsForNode(ctx context.Context, hnid int) ([]int, error)
}

// CompoundSource liefert Stoffeigenschaften und Synonyme aus PubChem PUG REST.
type CompoundSource interface {
	CompoundProperties(ctx context.Context, cid int) (models.Compound, error)
	Synonyms(ctx context.Context, cid int, maxItems int) ([]string, error)
	CIDsByName(ctx context.Context, name string) ([]int, error)
}

// DisplayRecordSource liefert die strukturierten PUG-View-Display-Records,
// optional auf eine Heading-Sektion eingeschränkt.
type DisplayRecordSource interface {
	CompoundRecord(ctx context.Context, cid int) (any, error)
	CompoundRecordByHeading(ctx context.Context, cid int, heading string) (any, error)
}

// WebFallbackSource ist der letzte Ausweg: öffentliche SDQ-Suchendpunkte
// pro Register plus das rohe Compound-Seiten-HTML.
type WebFallbackSource interface {
	SDQPayload(ctx context.Context, cid int, collection string, limit int) (map[string]any, error)
	CompoundPageHTML(ctx context.Context, cid int) (string, error)
}

// TrialRegistry kapselt die ClinicalTrials.gov v2 API. ForEachStudy ruft fn
// für jedes Studiendokument der paginierten Suche auf; liefert fn false,
// bricht die Iteration ab (weitere Seiten werden nicht mehr geholt).
type TrialRegistry interface {
	ForEachStudy(ctx context.Context, q StudyQuery, fn func(study map[string]any) (bool, error)) error
	GetStudy(ctx context.Context, nctID string, fields []string) (map[string]any, error)
}

// DepictionSource liefert 2D-Strukturbilder als data-URI.
type DepictionSource interface {
	CompoundPNGDataURI(ctx context.Context, cid int, imageSize string) (string, error)
}
