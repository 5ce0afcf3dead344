package pubchem

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"trial-scout/config"
	"trial-scout/models"
	"trial-scout/providers"
)

// Error kennzeichnet Fehler der PubChem PUG REST API.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Fetcher kapselt die PubChem PUG REST API (Eigenschaften, Synonyme,
// Namensauflösung, Klassifikationsknoten, Strukturbilder).
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger

	httpClient *http.Client
}

// NewFetcher erstellt eine neue Instanz des PubChem-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Logger:     logger,
		httpClient: providers.NewHTTPClient(cfg.UserAgent, 0),
	}
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return errorf("HTTP %d for %s: %s", resp.StatusCode, rawURL, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errorf("invalid JSON response for %s: %v", rawURL, err)
	}
	return nil
}

// CompoundProperties holt SMILES, InChIKey und IUPAC-Namen für eine CID.
func (f *Fetcher) CompoundProperties(ctx context.Context, cid int) (models.Compound, error) {
	props := "CanonicalSMILES,ConnectivitySMILES,InChIKey,IUPACName"
	u := fmt.Sprintf("%s/compound/cid/%d/property/%s/JSON", f.Config.PubChemBaseURL, cid, props)

	var pr propertyTableResponse
	if err := f.getJSON(ctx, u, &pr); err != nil {
		return models.Compound{}, err
	}
	rows := pr.PropertyTable.Properties
	if len(rows) == 0 {
		return models.Compound{}, errorf("no properties for CID %d", cid)
	}
	row := rows[0]

	// Manche CIDs liefern nur ConnectivitySMILES; auf CanonicalSMILES normalisieren.
	smiles := row.CanonicalSMILES
	if smiles == "" {
		smiles = row.ConnectivitySMILES
	}
	return models.Compound{
		CID:             cid,
		InChIKey:        row.InChIKey,
		CanonicalSMILES: smiles,
		IUPACName:       row.IUPACName,
	}, nil
}

// Synonyms liefert bis zu maxItems deduplizierte Synonyme einer CID.
func (f *Fetcher) Synonyms(ctx context.Context, cid int, maxItems int) ([]string, error) {
	u := fmt.Sprintf("%s/compound/cid/%d/synonyms/JSON", f.Config.PubChemBaseURL, cid)

	var sr synonymsResponse
	if err := f.getJSON(ctx, u, &sr); err != nil {
		return nil, err
	}
	if len(sr.InformationList.Information) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, s := range sr.InformationList.Information[0].Synonym {
		t := strings.TrimSpace(s)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

// CIDsByName löst einen Stoffnamen in CIDs auf.
func (f *Fetcher) CIDsByName(ctx context.Context, name string) ([]int, error) {
	u := fmt.Sprintf("%s/compound/name/%s/cids/JSON", f.Config.PubChemBaseURL, url.PathEscape(name))

	var ir identifierListResponse
	if err := f.getJSON(ctx, u, &ir); err != nil {
		return nil, err
	}
	return ir.IdentifierList.CID, nil
}

// CIDsForNode liefert die CID-Liste eines Klassifikationsknotens (HNID),
// im TXT-Format: eine CID pro Zeile.
func (f *Fetcher) CIDsForNode(ctx context.Context, hnid int) ([]int, error) {
	u := fmt.Sprintf("%s/classification/hnid/%d/cids/TXT", f.Config.PubChemBaseURL, hnid)

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
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, errorf("HTTP %d for %s: %s", resp.StatusCode, u, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var cids []int
	for _, tok := range strings.Fields(string(body)) {
		if n, err := strconv.Atoi(tok); err == nil {
			cids = append(cids, n)
		}
	}
	f.Logger.Debug("CID-Liste für HNID geladen", zap.Int("hnid", hnid), zap.Int("count", len(cids)))
	return cids, nil
}

// CompoundPNGDataURI holt das 2D-Strukturbild einer CID als data-URI.
func (f *Fetcher) CompoundPNGDataURI(ctx context.Context, cid int, imageSize string) (string, error) {
	u := fmt.Sprintf("%s/compound/cid/%d/PNG?image_size=%s", f.Config.PubChemBaseURL, cid, url.QueryEscape(imageSize))

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
		return "", errorf("image_http_error:%d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
