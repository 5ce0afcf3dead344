package pubchem

// propertyTableResponse ist die Antwort des property-Endpunkts.
type propertyTableResponse struct {
	PropertyTable struct {
		Properties []propertyRow `json:"Properties"`
	} `json:"PropertyTable"`
}

type propertyRow struct {
	CID                int    `json:"CID"`
	CanonicalSMILES    string `json:"CanonicalSMILES"`
	ConnectivitySMILES string `json:"ConnectivitySMILES"`
	InChIKey           string `json:"InChIKey"`
	IUPACName          string `json:"IUPACName"`
}

// synonymsResponse ist die Antwort des synonyms-Endpunkts.
type synonymsResponse struct {
	InformationList struct {
		Information []struct {
			CID     int      `json:"CID"`
			Synonym []string `json:"Synonym"`
		} `json:"Information"`
	} `json:"InformationList"`
}

// identifierListResponse ist die Antwort der Namens- und CID-Listen-Endpunkte.
type identifierListResponse struct {
	IdentifierList struct {
		CID []int `json:"CID"`
	} `json:"IdentifierList"`
}
