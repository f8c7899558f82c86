// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaNburger/paperscraper-sub002/internal/httputil"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// patentsViewBase is the PatentsView patent search endpoint. Declared as
// a var so tests can substitute an httptest server.
var patentsViewBase = "https://search.patentsview.org/api/v1/patent/"

// patentsViewFields lists the fields requested from the API.
const patentsViewFields = `["patent_id","patent_title","patent_abstract","patent_date","patent_type","patent_num_claims","inventors.inventor_name_last","inventors.inventor_name_first"]`

const (
	patentsViewDefaultPageSize = 100
	patentsViewMaxPageSize     = 1000
)

// PatentsView pulls patent pages via PatentsView "after" pagination:
// results are sorted by patent_id and the cursor holds the last id seen.
type PatentsView struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	gate      *rateGate
}

// NewPatentsView builds the connector from shared source settings.
func NewPatentsView(cfg types.SourceConfig) *PatentsView {
	return &PatentsView{
		Client:    &http.Client{Timeout: cfg.Timeout},
		APIKey:    cfg.PatentsViewAPIKey,
		UserAgent: cfg.UserAgent,
		gate:      &rateGate{minDelay: cfg.MinFetchDelay},
	}
}

// Name returns the connector identifier.
func (c *PatentsView) Name() string { return "patentsview" }

// Fetch retrieves one page of patents.
func (c *PatentsView) Fetch(ctx context.Context, cursor types.Cursor, filters types.SourceFilters, limit int) (types.Batch, error) {
	if err := c.gate.wait(ctx); err != nil {
		return types.Batch{}, err
	}

	limit = clampLimit(limit, patentsViewDefaultPageSize, patentsViewMaxPageSize)

	q := buildPatentsViewQuery(filters)
	if q == "" {
		return types.Batch{}, fmt.Errorf("empty PatentsView query")
	}

	opts := fmt.Sprintf(`{"size":%d}`, limit)
	if after := cursor["after"]; after != "" {
		opts = fmt.Sprintf(`{"size":%d,"after":"%s"}`, limit, escapeJSON(after))
	}

	params := url.Values{
		"q": {q},
		"f": {patentsViewFields},
		"s": {`[{"patent_id":"asc"}]`},
		"o": {opts},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, patentsViewBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.Batch{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return types.Batch{}, fmt.Errorf("PatentsView API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Batch{}, fmt.Errorf("PatentsView API returned HTTP %d", resp.StatusCode)
	}

	var pvr struct {
		Patents []json.RawMessage `json:"patents"`
		Count   int               `json:"count"`
		Total   int               `json:"total_hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pvr); err != nil {
		return types.Batch{}, fmt.Errorf("parsing PatentsView response: %w", err)
	}

	batch := types.Batch{
		CursorBefore: cursor.Clone(),
		CursorAfter:  cursor.Clone(),
	}
	var lastID string
	for _, raw := range pvr.Patents {
		batch.Records = append(batch.Records, types.RawRecord{Source: c.Name(), Payload: raw})
		var idOnly struct {
			PatentID string `json:"patent_id"`
		}
		if err := json.Unmarshal(raw, &idOnly); err == nil && idOnly.PatentID != "" {
			lastID = idOnly.PatentID
		}
	}
	if lastID != "" && len(pvr.Patents) == limit {
		batch.HasMore = true
		batch.CursorAfter = types.Cursor{"after": lastID}
	}
	return batch, nil
}

// buildPatentsViewQuery constructs the JSON query parameter from the
// filter set using PatentsView operators.
func buildPatentsViewQuery(f types.SourceFilters) string {
	var conditions []string

	if f.Query != "" {
		conditions = append(conditions,
			fmt.Sprintf(`{"_or":[{"_text_any":{"patent_title":"%s"}},{"_text_any":{"patent_abstract":"%s"}}]}`,
				escapeJSON(f.Query), escapeJSON(f.Query)))
	}
	if f.DateFrom != "" {
		conditions = append(conditions,
			fmt.Sprintf(`{"_gte":{"patent_date":"%s"}}`, f.DateFrom))
	}
	if f.DateTo != "" {
		conditions = append(conditions,
			fmt.Sprintf(`{"_lte":{"patent_date":"%s"}}`, f.DateTo))
	}
	// Opaque passthrough: raw PatentsView conditions supplied verbatim.
	if v := f.Extra["q"]; v != "" {
		conditions = append(conditions, v)
	}

	if len(conditions) == 0 {
		return ""
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return fmt.Sprintf(`{"_and":[%s]}`, strings.Join(conditions, ","))
}

// escapeJSON escapes a string for safe inclusion in a JSON string value.
func escapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
