package ctgov

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullStudyDoc() map[string]any {
	return map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{
				"nctId":         "NCT01561508",
				"briefTitle":    "Tiotropium in COPD",
				"officialTitle": "A Randomized Trial of Tiotropium Bromide",
			},
			"statusModule": map[string]any{
				"overallStatus":        "COMPLETED",
				"startDateStruct":      map[string]any{"date": "2011-03"},
				"completionDateStruct": map[string]any{"date": "2012-09"},
			},
			"conditionsModule": map[string]any{
				"conditions": []any{"COPD", "Asthma"},
			},
			"interventionsModule": map[string]any{
				"interventions": []any{
					map[string]any{"name": "Tiotropium", "type": "DRUG"},
					map[string]any{"name": "Placebo"},
				},
			},
			"sponsorsModule": map[string]any{
				"leadSponsor": map[string]any{"name": "Boehringer Ingelheim"},
				"collaborators": []any{
					map[string]any{"name": "University Hospital A"},
					map[string]any{"name": "University Hospital B"},
				},
			},
		},
	}
}

func TestExtractNCTIDPrimaryField(t *testing.T) {
	assert.Equal(t, "NCT01561508", ExtractNCTID(fullStudyDoc()))
}

func TestExtractNCTIDLegacyVariants(t *testing.T) {
	for _, key := range []string{"nctId", "NCTId", "nct_id"} {
		doc := map[string]any{key: "NCT00000123"}
		assert.Equal(t, "NCT00000123", ExtractNCTID(doc), key)
	}
}

func TestExtractNCTIDTrimsWhitespace(t *testing.T) {
	doc := map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{"nctId": "  NCT00000123\n"},
		},
	}
	assert.Equal(t, "NCT00000123", ExtractNCTID(doc))
}

func TestExtractNCTIDPrefersIdentificationModule(t *testing.T) {
	doc := fullStudyDoc()
	doc["nctId"] = "NCT99999999"
	assert.Equal(t, "NCT01561508", ExtractNCTID(doc))
}

func TestExtractNCTIDEmptyDoc(t *testing.T) {
	assert.Equal(t, "", ExtractNCTID(map[string]any{}))
	assert.Equal(t, "", ExtractNCTID(map[string]any{"nctId": "   "}))
}

func TestExtractCompactFullDoc(t *testing.T) {
	compact := ExtractCompact(fullStudyDoc())

	assert.Equal(t, "NCT01561508", compact.NCTID)
	assert.Equal(t, "Tiotropium in COPD", compact.BriefTitle)
	assert.Equal(t, "A Randomized Trial of Tiotropium Bromide", compact.OfficialTitle)
	assert.Equal(t, "COMPLETED", compact.OverallStatus)
	assert.Equal(t, "2011-03", compact.StartDate)
	assert.Equal(t, "2012-09", compact.CompletionDate)
	assert.Equal(t, []string{"COPD", "Asthma"}, compact.Conditions)
	assert.Equal(t, []string{"Tiotropium", "Placebo"}, compact.Interventions)
	assert.Equal(t, "Boehringer Ingelheim", compact.LeadSponsor)
	assert.Equal(t, []string{"University Hospital A", "University Hospital B"}, compact.Collaborators)
}

func TestExtractCompactSparseDoc(t *testing.T) {
	compact := ExtractCompact(map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{"nctId": "NCT00000001"},
		},
	})

	assert.Equal(t, "NCT00000001", compact.NCTID)
	assert.Empty(t, compact.BriefTitle)
	assert.Empty(t, compact.OverallStatus)
	assert.Nil(t, compact.Conditions)
	assert.Nil(t, compact.Interventions)
	assert.Nil(t, compact.Collaborators)
}

func TestExtractCompactIgnoresMalformedEntries(t *testing.T) {
	doc := map[string]any{
		"protocolSection": map[string]any{
			"conditionsModule": map[string]any{
				"conditions": []any{"COPD", 42, nil},
			},
			"interventionsModule": map[string]any{
				"interventions": []any{"kein Objekt", map[string]any{"type": "DRUG"}},
			},
		},
	}
	compact := ExtractCompact(doc)
	assert.Equal(t, []string{"COPD"}, compact.Conditions)
	assert.Nil(t, compact.Interventions)
}

func TestSortExpressions(t *testing.T) {
	assert.Equal(t, "LastUpdatePostDate:asc", SortAsc(SortLastUpdatePostDate))
	assert.Equal(t, "LastUpdatePostDate:desc", SortDesc(SortLastUpdatePostDate))
}
