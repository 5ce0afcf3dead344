package ctgov

import "strings"

// CompactStudy ist die flache Projektion eines Studiendokuments auf die
// für Auswertungen relevanten Felder.
type CompactStudy struct {
	NCTID          string   `json:"nct_id"`
	BriefTitle     string   `json:"brief_title"`
	OfficialTitle  string   `json:"official_title"`
	OverallStatus  string   `json:"overall_status"`
	StartDate      string   `json:"start_date"`
	CompletionDate string   `json:"completion_date"`
	Conditions     []string `json:"conditions"`
	Interventions  []string `json:"interventions"`
	LeadSponsor    string   `json:"lead_sponsor"`
	Collaborators  []string `json:"collaborators"`
}

// Sortierfelder der v2 API.
const SortLastUpdatePostDate = "LastUpdatePostDate"

// SortAsc und SortDesc bauen Sortier-Ausdrücke für die v2 API.
func SortAsc(field string) string  { return field + ":asc" }
func SortDesc(field string) string { return field + ":desc" }

func section(study map[string]any, keys ...string) map[string]any {
	cur := study
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, x := range arr {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ExtractNCTID liest die NCT-ID eines Studiendokuments. Neben dem primären
// Feld in der identificationModule werden drei Legacy-Top-Level-Varianten
// toleriert.
func ExtractNCTID(study map[string]any) string {
	ident := section(study, "protocolSection", "identificationModule")
	if id := strings.TrimSpace(str(ident, "nctId")); id != "" {
		return id
	}
	for _, key := range []string{"nctId", "NCTId", "nct_id"} {
		if id := strings.TrimSpace(str(study, key)); id != "" {
			return id
		}
	}
	return ""
}

// ExtractCompact projiziert ein volles Studiendokument auf CompactStudy.
func ExtractCompact(study map[string]any) CompactStudy {
	ident := section(study, "protocolSection", "identificationModule")
	status := section(study, "protocolSection", "statusModule")
	conditions := section(study, "protocolSection", "conditionsModule")
	sponsors := section(study, "protocolSection", "sponsorsModule")

	var interventionNames []string
	im := section(study, "protocolSection", "interventionsModule")
	if arr, ok := im["interventions"].([]any); ok {
		for _, it := range arr {
			if m, ok := it.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					interventionNames = append(interventionNames, name)
				}
			}
		}
	}

	var collaboratorNames []string
	if arr, ok := sponsors["collaborators"].([]any); ok {
		for _, c := range arr {
			if m, ok := c.(map[string]any); ok {
				if name, ok := m["name"].(string); ok {
					collaboratorNames = append(collaboratorNames, name)
				}
			}
		}
	}
	lead := map[string]any{}
	if m, ok := sponsors["leadSponsor"].(map[string]any); ok {
		lead = m
	}

	return CompactStudy{
		NCTID:          str(ident, "nctId"),
		BriefTitle:     str(ident, "briefTitle"),
		OfficialTitle:  str(ident, "officialTitle"),
		OverallStatus:  str(status, "overallStatus"),
		StartDate:      str(section(status, "startDateStruct"), "date"),
		CompletionDate: str(section(status, "completionDateStruct"), "date"),
		Conditions:     stringList(conditions["conditions"]),
		Interventions:  interventionNames,
		LeadSponsor:    str(lead, "name"),
		Collaborators:  collaboratorNames,
	}
}
