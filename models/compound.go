package models

// Compound repräsentiert die Basis-Eigenschaften einer PubChem-Verbindung.
type Compound struct {
	CID             int      `json:"cid"`
	InChIKey        string   `json:"inchikey,omitempty"`
	CanonicalSMILES string   `json:"canonical_smiles,omitempty"`
	IUPACName       string   `json:"iupac_name,omitempty"`
	Synonyms        []string `json:"synonyms,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// CIDRecord hält eine CID samt Herkunfts-HNIDs aus der Klassifikation.
type CIDRecord struct {
	CID         int   `json:"cid"`
	SourceHNIDs []int `json:"source_hnids"`
}
