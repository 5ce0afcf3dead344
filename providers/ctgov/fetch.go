package ctgov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/providers"
)

const maxPageSize = 1000

// Error kennzeichnet Fehler der ClinicalTrials.gov v2 API.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Fetcher kapselt die ClinicalTrials.gov v2 API (Suche, Pagination,
// Einzelabruf von Studiendokumenten).
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient *http.Client
}

// NewFetcher erstellt einen neuen ClinicalTrials.gov-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		httpClient: providers.NewHTTPClient(cfg.UserAgent, 0),
	}
}

func (f *Fetcher) getJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	u := f.Config.CTGovBaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, &Error{msg: fmt.Sprintf("HTTP %d for %s: %s", resp.StatusCode, u, string(body))}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{msg: fmt.Sprintf("invalid JSON response for %s: %v", u, err)}
	}
	return payload, nil
}

// normalizeFields entfernt Leerstrings und Duplikate unter Erhalt der
// Reihenfolge.
func normalizeFields(fields []string) string {
	seen := make(map[string]bool)
	var unique []string
	for _, f := range fields {
		t := strings.TrimSpace(f)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}
	return strings.Join(unique, ",")
}

// SearchStudies führt eine einzelne Suchseite gegen /studies aus.
func (f *Fetcher) SearchStudies(ctx context.Context, q providers.StudyQuery) (map[string]any, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := url.Values{}
	params.Set("pageSize", fmt.Sprintf("%d", pageSize))
	params.Set("countTotal", "false")
	if q.Cond != "" {
		params.Set("query.cond", q.Cond)
	}
	if q.Intr != "" {
		params.Set("query.intr", q.Intr)
	}
	if q.Term != "" {
		params.Set("query.term", q.Term)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if val := normalizeFields(q.Fields); val != "" {
		params.Set("fields", val)
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}
	return f.getJSON(ctx, "/studies", params)
}

// ForEachStudy iteriert über die paginierten Suchergebnisse und ruft fn
// für jedes Studiendokument auf. Liefert fn false, endet die Iteration
// sofort; MaxPages und MaxResults begrenzen die Suche zusätzlich.
func (f *Fetcher) ForEachStudy(ctx context.Context, q providers.StudyQuery, fn func(study map[string]any) (bool, error)) error {
	token := q.PageToken
	pages := 0
	yielded := 0

	for {
		page := q
		page.PageToken = token
		payload, err := f.SearchStudies(ctx, page)
		if err != nil {
			return err
		}

		studies, _ := payload["studies"].([]any)
		for _, s := range studies {
			study, ok := s.(map[string]any)
			if !ok {
				continue
			}
			cont, err := fn(study)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
			yielded++
			if q.MaxResults > 0 && yielded >= q.MaxResults {
				return nil
			}
		}

		next, _ := payload["nextPageToken"].(string)
		pages++
		if next == "" {
			return nil
		}
		if q.MaxPages > 0 && pages >= q.MaxPages {
			return nil
		}
		token = next
	}
}

// GetStudy holt das volle Dokument einer Studie, optional auf Felder
// eingeschränkt.
func (f *Fetcher) GetStudy(ctx context.Context, nctID string, fields []string) (map[string]any, error) {
	params := url.Values{}
	if val := normalizeFields(fields); val != "" {
		params.Set("fields", val)
	}
	f.Logger.Debug("Hole Studiendokument", zap.String("nct_id", nctID))
	return f.getJSON(ctx, "/studies/"+url.PathEscape(nctID), params)
}

// GetStudyCompact holt ein Studiendokument und projiziert es kompakt.
func (f *Fetcher) GetStudyCompact(ctx context.Context, nctID string, fields []string) (CompactStudy, error) {
	study, err := f.GetStudy(ctx, nctID, fields)
	if err != nil {
		return CompactStudy{}, err
	}
	return ExtractCompact(study), nil
}
