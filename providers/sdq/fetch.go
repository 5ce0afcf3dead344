package sdq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/providers"
)

// Error kennzeichnet Fehler der PubChem-SDQ-Endpunkte.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Fetcher spricht die öffentlichen PubChem-Suchendpunkte an: die
// SDQ-Abfrage pro Register-Collection und als letzten Ausweg das rohe
// Compound-Seiten-HTML.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient *http.Client
}

// NewFetcher erstellt einen neuen SDQ-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		httpClient: providers.NewHTTPClient(cfg.UserAgent, 0),
	}
}

// sdqQuery ist das an sphinxql.cgi übergebene strukturierte Query-Objekt.
type sdqQuery struct {
	Select       string         `json:"select"`
	Collection   string         `json:"collection"`
	Order        []string       `json:"order"`
	Start        int            `json:"start"`
	Limit        int            `json:"limit"`
	NullAtBottom int            `json:"nullatbottom"`
	Where        map[string]any `json:"where"`
	Width        int            `json:"width"`
}

// SDQPayload führt die strukturierte Registersuche für eine CID aus.
// EU und Japan sortieren nach date, das US-Register nach updatedate.
func (f *Fetcher) SDQPayload(ctx context.Context, cid int, collection string, limit int) (map[string]any, error) {
	order := []string{"updatedate,desc"}
	if collection == CollectionEURegister || collection == CollectionJapanNIPH {
		order = []string{"date,desc"}
	}
	if limit <= 0 {
		limit = 200
	}

	q := sdqQuery{
		Select:       "*",
		Collection:   collection,
		Order:        order,
		Start:        1,
		Limit:        limit,
		NullAtBottom: 1,
		Where:        map[string]any{"ands": []any{map[string]any{"cid": fmt.Sprintf("%d", cid)}}},
		Width:        1000000,
	}
	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("infmt", "json")
	params.Set("outfmt", "json")
	params.Set("query", string(queryJSON))
	u := fmt.Sprintf("%s/sdq/sphinxql.cgi?%s", f.Config.PubChemWebBaseURL, params.Encode())

	f.Logger.Debug("Rufe SDQ-Endpunkt ab",
		zap.Int("cid", cid), zap.String("collection", collection), zap.Int("limit", limit))

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

// CompoundPageHTML holt die öffentliche Compound-Seite als rohes HTML.
func (f *Fetcher) CompoundPageHTML(ctx context.Context, cid int) (string, error) {
	u := fmt.Sprintf("%s/compound/%d", f.Config.PubChemWebBaseURL, cid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", &Error{msg: fmt.Sprintf("HTTP %d for %s: %s", resp.StatusCode, u, string(body))}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// NormalizedTrials holt und normalisiert die Registerzeilen einer
// Collection für eine CID.
func (f *Fetcher) NormalizedTrials(ctx context.Context, cid int, collection string, limit int) ([]map[string]any, error) {
	payload, err := f.SDQPayload(ctx, cid, collection, limit)
	if err != nil {
		return nil, err
	}
	rows := ExtractRows(payload)
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, NormalizeTrialRow(r, collection))
	}
	return out, nil
}
