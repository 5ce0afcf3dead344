package models

// LinkEvidence beschreibt, wodurch ein Treffer des Fuzzy-Linkers zustande kam.
type LinkEvidence struct {
	Term      string   `json:"term"`
	QueryMode string   `json:"query_mode"` // "intr" oder "term"
	Score     int      `json:"score"`
	Reasons   []string `json:"reasons"`
}

// LinkResult ist ein einzelner CID->NCT-Treffer des Fuzzy-Linkers.
type LinkResult struct {
	CID      int          `json:"cid"`
	NCTID    string       `json:"nct_id"`
	Evidence LinkEvidence `json:"evidence"`
}

// LinkRow ist die flache Export-Zeile für links.jsonl.
type LinkRow struct {
	CID       int      `json:"cid"`
	NCTID     string   `json:"nct_id"`
	MatchTerm string   `json:"match_term"`
	QueryMode string   `json:"query_mode"`
	Score     int      `json:"score"`
	Reasons   []string `json:"reasons"`
}

// CIDNCTLink ist die grobkörnige Zuordnung einer CID zu allen aufgelösten
// Registry-IDs, inklusive Provenienz-Label des erfolgreichen Tiers.
type CIDNCTLink struct {
	CID    int      `json:"cid"`
	NCTIDs []string `json:"nct_ids"`
	NNCT   int      `json:"n_nct"`
	Source string   `json:"source"`
	Error  string   `json:"error,omitempty"`
}
