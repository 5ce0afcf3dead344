package sdq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTrialRowUS(t *testing.T) {
	row := map[string]any{
		"ctid":       "NCT01561508",
		"updatedate": "2012-12-24",
		"link":       "https://clinicaltrials.gov/study/NCT01561508",
	}
	out := NormalizeTrialRow(row, CollectionClinicalTrials)

	assert.Equal(t, "NCT01561508", out["id"])
	assert.Equal(t, "2012-12-24", out["date"])
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT01561508", out["id_url"])
	assert.Equal(t, "ClinicalTrials.gov", out["collection"])
	assert.Equal(t, CollectionClinicalTrials, out["collection_code"])
}

func TestNormalizeTrialRowEUPrefersEudract(t *testing.T) {
	row := map[string]any{
		"ctid":          "NCT00000001",
		"eudractnumber": "2011-000001-11",
	}
	out := NormalizeTrialRow(row, CollectionEURegister)
	assert.Equal(t, "2011-000001-11", out["id"])
	assert.Equal(t, "EU Clinical Trials Register", out["collection"])
}

func TestNormalizeTrialRowUSPrefersCtid(t *testing.T) {
	row := map[string]any{
		"ctid":          "NCT00000001",
		"eudractnumber": "2011-000001-11",
	}
	out := NormalizeTrialRow(row, CollectionClinicalTrials)
	assert.Equal(t, "NCT00000001", out["id"])
}

func TestNormalizeTrialRowFallsBackAcrossEmptyStrings(t *testing.T) {
	row := map[string]any{
		"ctid":          "",
		"eudractnumber": "2014-000123-42",
		"date":          nil,
		"updatedate":    "2014-06-01",
	}
	out := NormalizeTrialRow(row, CollectionClinicalTrials)
	assert.Equal(t, "2014-000123-42", out["id"])
	assert.Equal(t, "2014-06-01", out["date"])
}

func TestNormalizeTrialRowUnknownCollectionPassthrough(t *testing.T) {
	out := NormalizeTrialRow(map[string]any{"ctid": "X1"}, "clinicaltrials_kr")
	assert.Equal(t, "clinicaltrials_kr", out["collection"])
	assert.Equal(t, "clinicaltrials_kr", out["collection_code"])
}

func TestNormalizeTrialRowUnionKeepsRawFields(t *testing.T) {
	row := map[string]any{
		"ctid":      "NCT01561508",
		"sponsor":   "Acme Pharma",
		"enrollmnt": float64(120),
	}
	out := NormalizeTrialRowUnion(row, CollectionClinicalTrials)
	assert.Equal(t, "NCT01561508", out["id"])
	assert.Equal(t, "Acme Pharma", out["sponsor"])
	assert.Equal(t, float64(120), out["enrollmnt"])
	// Die kanonische Projektion darf nicht von Rohfeldern überschrieben werden.
	assert.Equal(t, "ClinicalTrials.gov", out["collection"])
}

func TestExtractRows(t *testing.T) {
	payload := map[string]any{
		"SDQOutputSet": []any{
			map[string]any{
				"rows": []any{
					map[string]any{"ctid": "NCT00000001"},
					map[string]any{"ctid": "NCT00000002"},
				},
			},
		},
	}
	rows := ExtractRows(payload)
	require.Len(t, rows, 2)
	assert.Equal(t, "NCT00000001", rows[0]["ctid"])
}

func TestExtractRowsMalformedShapes(t *testing.T) {
	assert.Nil(t, ExtractRows(map[string]any{}))
	assert.Nil(t, ExtractRows(map[string]any{"SDQOutputSet": []any{}}))
	assert.Nil(t, ExtractRows(map[string]any{"SDQOutputSet": []any{map[string]any{}}}))
}

func TestExtractNCTIDsFromPayload(t *testing.T) {
	payload := map[string]any{
		"SDQOutputSet": []any{
			map[string]any{
				"rows": []any{
					map[string]any{"ctid": "nct01561508", "title": "Aspirin and NCT01561508 follow-up"},
				},
			},
		},
	}
	assert.Equal(t, []string{"NCT01561508"}, ExtractNCTIDsFromPayload(payload))
}

func TestExtractNCTIDsFromHTML(t *testing.T) {
	html := `<a href="/study/NCT04267848">NCT04267848</a> <span>nct00000001</span>`
	assert.Equal(t, []string{"NCT00000001", "NCT04267848"}, ExtractNCTIDsFromHTML(html))
}
