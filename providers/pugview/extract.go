package pugview

import (
	"regexp"
	"sort"
	"strings"
)

var (
	nctRE            = regexp.MustCompile(`(?i)\bNCT\d{8}\b`)
	ctgovHostRE      = regexp.MustCompile(`(?i)clinicaltrials\.gov`)
	clinicalTrialsRE = regexp.MustCompile(`(?i)clinical\s*trials?(\.gov)?`)
	drugMedInfoRE    = regexp.MustCompile(`(?i)drug(?:\s|-|&|and)+medication(?:\s|-)+information`)
)

// Feste Heading-Kandidaten für die gezielte Nachabfrage; dynamisch im
// Record entdeckte Headings kommen hinzu.
var defaultClinicalHeadings = []string{
	"ClinicalTrials.gov",
	"Clinical Trials",
	"ClinicalTrials",
	"Drug and Medication Information",
	"Drug-and-Medication-Information",
}

// walk besucht rekursiv jeden Wert einer beliebig verschachtelten
// JSON-Struktur (Objekte, Arrays, Skalare).
func walk(v any, visit func(any)) {
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			visit(child)
			walk(child, visit)
		}
	case []any:
		for _, child := range t {
			visit(child)
			walk(child, visit)
		}
	}
}

// ExtractNCTIDsFromText sammelt alle NCT-IDs eines Strings:
// dedupliziert, großgeschrieben, sortiert.
func ExtractNCTIDsFromText(text string) []string {
	set := make(map[string]bool)
	for _, m := range nctRE.FindAllString(text, -1) {
		set[strings.ToUpper(m)] = true
	}
	return sortedKeys(set)
}

// ExtractNCTIDs durchsucht einen dekodierten JSON-Payload nach NCT-IDs.
// Berücksichtigt werden URL-Felder mit ClinicalTrials.gov-Host sowie
// String-Werte, deren Kontext auf Trials hindeutet.
func ExtractNCTIDs(payload any) []string {
	set := make(map[string]bool)

	walk(payload, func(v any) {
		if m, ok := v.(map[string]any); ok {
			if u, ok := m["URL"].(string); ok && ctgovHostRE.MatchString(u) {
				for _, id := range ExtractNCTIDsFromText(u) {
					set[id] = true
				}
			}
		}
	})

	walk(payload, func(v any) {
		if s, ok := v.(string); ok {
			lower := strings.ToLower(s)
			if strings.Contains(lower, "nct") || strings.Contains(lower, "clinicaltrials.gov") {
				for _, id := range ExtractNCTIDsFromText(s) {
					set[id] = true
				}
			}
		}
	})

	return sortedKeys(set)
}

// HasExternalClinicalTrialsRef prüft, ob der Record eine externe
// Clinical-Trials-Tabelle referenziert. Bei solchen Compounds fehlen die
// NCT-IDs oft im Default-Payload.
func HasExternalClinicalTrialsRef(payload any) bool {
	found := false
	walk(payload, func(v any) {
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		if name, ok := m["ExternalTableName"].(string); ok && clinicalTrialsRE.MatchString(name) {
			found = true
		}
	})
	return found
}

// CandidateClinicalHeadings liefert die Heading-Labels für die
// heading-skopierte Nachabfrage: feste Kandidaten plus alle im Record
// entdeckten Trials- oder Arzneimittel-Headings, sortiert.
func CandidateClinicalHeadings(payload any) []string {
	set := make(map[string]bool)
	for _, h := range defaultClinicalHeadings {
		set[h] = true
	}

	headingKeys := []string{"TOCHeading", "Name", "Heading", "Title"}
	walk(payload, func(v any) {
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		for _, key := range headingKeys {
			val, ok := m[key].(string)
			if !ok {
				continue
			}
			if clinicalTrialsRE.MatchString(val) || drugMedInfoRE.MatchString(val) {
				set[strings.TrimSpace(val)] = true
			}
		}
	})

	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
