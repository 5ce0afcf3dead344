package pugview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNCTIDsFromText(t *testing.T) {
	ids := ExtractNCTIDsFromText("Referenced study NCT76543210 and also NCT00000001")
	assert.Equal(t, []string{"NCT00000001", "NCT76543210"}, ids)
}

func TestExtractNCTIDsFromTextDedupAndCase(t *testing.T) {
	ids := ExtractNCTIDsFromText("nct01234567 NCT01234567 and nct01234567 again")
	assert.Equal(t, []string{"NCT01234567"}, ids)
}

func TestExtractNCTIDsFromTextIgnoresPartialMatches(t *testing.T) {
	assert.Empty(t, ExtractNCTIDsFromText("NCT123 is too short, NCT123456789 too long"))
}

func TestExtractNCTIDsFromURLFields(t *testing.T) {
	payload := map[string]any{
		"Record": map[string]any{
			"Section": []any{
				map[string]any{
					"URL": "https://clinicaltrials.gov/study/NCT01561508",
				},
				map[string]any{
					// URL eines fremden Hosts darf nichts beitragen.
					"URL": "https://example.org/NCT99999999",
				},
			},
		},
	}
	assert.Equal(t, []string{"NCT01561508"}, ExtractNCTIDs(payload))
}

func TestExtractNCTIDsFromHintedStrings(t *testing.T) {
	payload := map[string]any{
		"Information": []any{
			map[string]any{
				"Value": map[string]any{
					"StringWithMarkup": []any{
						map[string]any{"String": "See NCT04267848 on ClinicalTrials.gov"},
					},
				},
			},
			// Ohne Trials-Hinweis im String bleibt die ID unberücksichtigt.
			map[string]any{"Comment": "reference 04267999"},
		},
	}
	assert.Equal(t, []string{"NCT04267848"}, ExtractNCTIDs(payload))
}

func TestHasExternalClinicalTrialsRef(t *testing.T) {
	withRef := map[string]any{
		"Section": []any{
			map[string]any{"ExternalTableName": "clinicaltrials"},
		},
	}
	withoutRef := map[string]any{
		"Section": []any{
			map[string]any{"ExternalTableName": "patents"},
		},
	}
	assert.True(t, HasExternalClinicalTrialsRef(withRef))
	assert.False(t, HasExternalClinicalTrialsRef(withoutRef))
}

func TestCandidateClinicalHeadings(t *testing.T) {
	payload := map[string]any{
		"Record": map[string]any{
			"Section": []any{
				map[string]any{"TOCHeading": "Clinical Trials DataBank"},
				map[string]any{"TOCHeading": "Safety and Hazards"},
				map[string]any{"Name": "Drug and Medication Information"},
			},
		},
	}
	headings := CandidateClinicalHeadings(payload)

	require.Contains(t, headings, "Clinical Trials DataBank")
	assert.NotContains(t, headings, "Safety and Hazards")
	for _, h := range defaultClinicalHeadings {
		assert.Contains(t, headings, h)
	}
	assert.IsIncreasing(t, headings)
}

func TestCandidateClinicalHeadingsEmptyPayload(t *testing.T) {
	headings := CandidateClinicalHeadings(map[string]any{})
	assert.Len(t, headings, len(defaultClinicalHeadings))
}
