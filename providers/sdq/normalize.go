package sdq

import (
	"regexp"
	"sort"
	"strings"
)

// SDQ-Collections der drei bekannten Trial-Register.
const (
	CollectionClinicalTrials = "clinicaltrials"
	CollectionEURegister     = "clinicaltrials_eu"
	CollectionJapanNIPH      = "clinicaltrials_jp"
)

// CollectionLabels rendert Collection-Codes als lesbare Labels.
// Unbekannte Codes laufen unverändert als Label durch.
var CollectionLabels = map[string]string{
	CollectionClinicalTrials: "ClinicalTrials.gov",
	CollectionEURegister:     "EU Clinical Trials Register",
	CollectionJapanNIPH:      "NIPH Clinical Trials Search of Japan",
}

// DefaultCollections ist die Prioritätsreihenfolge der Register:
// Heimat-Register zuerst, dann EU, dann Japan.
var DefaultCollections = []string{
	CollectionClinicalTrials,
	CollectionEURegister,
	CollectionJapanNIPH,
}

var nctRE = regexp.MustCompile(`(?i)\bNCT\d{8}\b`)

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

// ExtractNCTIDsFromHTML sammelt alle NCT-IDs aus rohem HTML.
func ExtractNCTIDsFromHTML(html string) []string {
	set := make(map[string]bool)
	for _, m := range nctRE.FindAllString(html, -1) {
		set[strings.ToUpper(m)] = true
	}
	return sortedSet(set)
}

// ExtractNCTIDsFromPayload sammelt NCT-IDs aus allen String-Werten eines
// SDQ-Payloads.
func ExtractNCTIDsFromPayload(payload map[string]any) []string {
	set := make(map[string]bool)
	walk(payload, func(v any) {
		if s, ok := v.(string); ok {
			for _, m := range nctRE.FindAllString(s, -1) {
				set[strings.ToUpper(m)] = true
			}
		}
	})
	return sortedSet(set)
}

// ExtractRows zieht die Ergebniszeilen aus der SDQ-Antwortstruktur
// {SDQOutputSet: [{rows: [...]}]}.
func ExtractRows(payload map[string]any) []map[string]any {
	outputSet, ok := payload["SDQOutputSet"].([]any)
	if !ok || len(outputSet) == 0 {
		return nil
	}
	first, ok := outputSet[0].(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := first["rows"].([]any)
	if !ok {
		return nil
	}
	var rows []map[string]any
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}

// NormalizeTrialRow projiziert eine rohe Registerzeile auf das kanonische
// Zeilenschema. Das EU-Register bevorzugt eudractnumber als Identifier,
// alle anderen ctid; date fällt auf updatedate zurück, id_url auf link.
func NormalizeTrialRow(row map[string]any, collection string) map[string]any {
	var trialID any
	if collection == CollectionEURegister {
		trialID = firstNonNil(row["eudractnumber"], row["ctid"])
	} else {
		trialID = firstNonNil(row["ctid"], row["eudractnumber"])
	}

	dateVal := row["date"]
	if dateVal == nil {
		dateVal = row["updatedate"]
	}

	linkVal := firstNonNil(row["id_url"], row["link"])

	label, ok := CollectionLabels[collection]
	if !ok {
		label = collection
	}

	return map[string]any{
		"collection":      label,
		"collection_code": collection,
		"id":              trialID,
		"title":           row["title"],
		"phase":           row["phase"],
		"status":          row["status"],
		"date":            dateVal,
		"id_url":          linkVal,
		"cids":            row["cids"],
	}
}

// NormalizeTrialRowUnion behält zusätzlich alle Originalfelder, die nicht
// bereits in der kanonischen Projektion stecken.
func NormalizeTrialRowUnion(row map[string]any, collection string) map[string]any {
	out := NormalizeTrialRow(row, collection)
	for k, v := range row {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func firstNonNil(vals ...any) any {
	for _, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		return v
	}
	return nil
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
