package ctgov

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/providers"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{CTGovBaseURL: srv.URL, UserAgent: "trial-scout-test"}
	return NewFetcher(cfg, zap.NewNop()), srv
}

func studiesPage(nctIDs []string, nextToken string) map[string]any {
	var studies []any
	for _, id := range nctIDs {
		studies = append(studies, map[string]any{
			"protocolSection": map[string]any{
				"identificationModule": map[string]any{"nctId": id},
			},
		})
	}
	page := map[string]any{"studies": studies}
	if nextToken != "" {
		page["nextPageToken"] = nextToken
	}
	return page
}

func TestSearchStudiesQueryParams(t *testing.T) {
	var got url.Values
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(studiesPage(nil, ""))
	})

	_, err := f.SearchStudies(context.Background(), providers.StudyQuery{
		Cond:   "COPD",
		Intr:   "tiotropium",
		Term:   "bromide",
		Sort:   SortDesc(SortLastUpdatePostDate),
		Fields: []string{"NCTId", " NCTId ", "", "BriefTitle"},
	})
	require.NoError(t, err)

	assert.Equal(t, "50", got.Get("pageSize"))
	assert.Equal(t, "false", got.Get("countTotal"))
	assert.Equal(t, "COPD", got.Get("query.cond"))
	assert.Equal(t, "tiotropium", got.Get("query.intr"))
	assert.Equal(t, "bromide", got.Get("query.term"))
	assert.Equal(t, "LastUpdatePostDate:desc", got.Get("sort"))
	assert.Equal(t, "NCTId,BriefTitle", got.Get("fields"))
	assert.Empty(t, got.Get("pageToken"))
}

func TestSearchStudiesClampsPageSize(t *testing.T) {
	var got url.Values
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode(studiesPage(nil, ""))
	})

	_, err := f.SearchStudies(context.Background(), providers.StudyQuery{PageSize: 5000})
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Get("pageSize"))
}

func TestSearchStudiesHTTPError(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := f.SearchStudies(context.Background(), providers.StudyQuery{Term: "x"})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Error(), "HTTP 404")
}

func TestForEachStudyFollowsPagination(t *testing.T) {
	var tokens []string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("pageToken")
		tokens = append(tokens, token)
		switch token {
		case "":
			json.NewEncoder(w).Encode(studiesPage([]string{"NCT00000001", "NCT00000002"}, "p2"))
		case "p2":
			json.NewEncoder(w).Encode(studiesPage([]string{"NCT00000003"}, ""))
		default:
			t.Errorf("unerwarteter pageToken %q", token)
		}
	})

	var seen []string
	err := f.ForEachStudy(context.Background(), providers.StudyQuery{Term: "x"}, func(study map[string]any) (bool, error) {
		seen = append(seen, ExtractNCTID(study))
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"NCT00000001", "NCT00000002", "NCT00000003"}, seen)
	assert.Equal(t, []string{"", "p2"}, tokens)
}

func TestForEachStudyStopsWhenCallbackReturnsFalse(t *testing.T) {
	requests := 0
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(studiesPage([]string{"NCT00000001", "NCT00000002"}, "p2"))
	})

	var seen []string
	err := f.ForEachStudy(context.Background(), providers.StudyQuery{Term: "x"}, func(study map[string]any) (bool, error) {
		seen = append(seen, ExtractNCTID(study))
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"NCT00000001"}, seen)
	assert.Equal(t, 1, requests)
}

func TestForEachStudyHonorsMaxResultsAndMaxPages(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(studiesPage([]string{"NCT00000001", "NCT00000002"}, "next"))
	})

	var seen int
	err := f.ForEachStudy(context.Background(), providers.StudyQuery{Term: "x", MaxResults: 1}, func(study map[string]any) (bool, error) {
		seen++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	seen = 0
	err = f.ForEachStudy(context.Background(), providers.StudyQuery{Term: "x", MaxPages: 2}, func(study map[string]any) (bool, error) {
		seen++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, seen)
}

func TestForEachStudyPropagatesCallbackError(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(studiesPage([]string{"NCT00000001"}, ""))
	})

	err := f.ForEachStudy(context.Background(), providers.StudyQuery{Term: "x"}, func(study map[string]any) (bool, error) {
		return false, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetStudyEscapesPathAndFilters(t *testing.T) {
	var gotPath string
	var gotFields string
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotFields = r.URL.Query().Get("fields")
		json.NewEncoder(w).Encode(fullStudyDoc())
	})

	study, err := f.GetStudy(context.Background(), "NCT0156/1508", []string{"protocolSection"})
	require.NoError(t, err)
	assert.Equal(t, "/studies/NCT0156%2F1508", gotPath)
	assert.Equal(t, "protocolSection", gotFields)
	assert.Equal(t, "NCT01561508", ExtractNCTID(study))
}

func TestGetStudyCompact(t *testing.T) {
	f, _ := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fullStudyDoc())
	})

	compact, err := f.GetStudyCompact(context.Background(), "NCT01561508", nil)
	require.NoError(t, err)
	assert.Equal(t, "NCT01561508", compact.NCTID)
	assert.Equal(t, "COMPLETED", compact.OverallStatus)
}
