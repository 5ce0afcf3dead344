package pugview

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

// Error kennzeichnet Fehler der PUG-View API.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

// Fetcher holt strukturierte Display-Records aus PubChem PUG-View.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient *http.Client
}

// NewFetcher erstellt einen neuen PUG-View-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		httpClient: providers.NewHTTPClient(cfg.UserAgent, 0),
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
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
		return nil, &Error{msg: fmt.Sprintf("HTTP %d for %s: %s", resp.StatusCode, rawURL, string(body))}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{msg: fmt.Sprintf("invalid JSON response for %s: %v", rawURL, err)}
	}
	return payload, nil
}

// CompoundRecord holt den vollständigen Display-Record einer CID.
func (f *Fetcher) CompoundRecord(ctx context.Context, cid int) (any, error) {
	u := fmt.Sprintf("%s/data/compound/%d/JSON/?response_type=display", f.Config.PubChemPugViewBaseURL, cid)
	f.Logger.Debug("Rufe PUG-View Display-Record ab", zap.Int("cid", cid))
	return f.get(ctx, u)
}

// CompoundRecordByHeading holt den auf eine Heading-Sektion eingeschränkten
// Display-Record einer CID.
func (f *Fetcher) CompoundRecordByHeading(ctx context.Context, cid int, heading string) (any, error) {
	u := fmt.Sprintf("%s/data/compound/%d/JSON/?heading=%s&response_type=display",
		f.Config.PubChemPugViewBaseURL, cid, url.QueryEscape(heading))
	f.Logger.Debug("Rufe PUG-View Heading-Sektion ab", zap.Int("cid", cid), zap.String("heading", heading))
	return f.get(ctx, u)
}
