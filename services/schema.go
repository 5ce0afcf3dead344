package services

import "sort"

// PreferredTrialHeader ist die bevorzugte Spaltenreihenfolge der
// Trials-Datensätze; nicht vorkommende Spalten werden übersprungen,
// alle übrigen folgen lexikographisch.
var PreferredTrialHeader = []string{
	"cid",
	"collection",
	"id",
	"id_url",
	"title",
	"phase",
	"status",
	"date",
	"smiles",
	"inchikey",
	"iupac_name",
	"image_base64",
	"compound_error",
}

// UnionHeader berechnet die Schlüssel-Vereinigung aller Zeilen:
// bevorzugte Keys zuerst (nur die tatsächlich vorkommenden), der Rest
// lexikographisch sortiert. Stabil: gleicher Input ergibt gleiche
// Spaltenreihenfolge.
func UnionHeader(rows []map[string]any, preferred []string) []string {
	keys := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			keys[k] = true
		}
	}
	if len(keys) == 0 {
		return nil
	}

	var header []string
	inHeader := make(map[string]bool)
	for _, k := range preferred {
		if keys[k] {
			header = append(header, k)
			inHeader[k] = true
		}
	}

	var rest []string
	for k := range keys {
		if !inHeader[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(header, rest...)
}

// AlignRows projiziert jede Zeile auf den vollen Header; fehlende Keys
// werden mit nil aufgefüllt. Fixpunkt: bereits ausgerichtete Zeilen
// bleiben unverändert.
func AlignRows(rows []map[string]any, header []string) []map[string]any {
	aligned := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out := make(map[string]any, len(header))
		for _, k := range header {
			out[k] = row[k]
		}
		aligned = append(aligned, out)
	}
	return aligned
}

// AlignRowsToUnionSchema vereinigt beide Schritte: Header lexikographisch
// (ohne Präferenzliste) und Projektion aller Zeilen darauf.
func AlignRowsToUnionSchema(rows []map[string]any) ([]map[string]any, []string) {
	header := UnionHeader(rows, nil)
	return AlignRows(rows, header), header
}
