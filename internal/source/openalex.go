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

// openAlexBase is the OpenAlex Works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexBase = "https://api.openalex.org/works"

const (
	openAlexDefaultPageSize = 50
	openAlexMaxPageSize     = 200
	// openAlexStartCursor begins cursor pagination from the first page.
	openAlexStartCursor = "*"
)

// OpenAlex pulls works pages via OpenAlex cursor pagination.
type OpenAlex struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
	gate      *rateGate
}

// NewOpenAlex builds the connector from shared source settings.
func NewOpenAlex(cfg types.SourceConfig) *OpenAlex {
	return &OpenAlex{
		Client:    &http.Client{Timeout: cfg.Timeout},
		Email:     cfg.OpenAlexEmail,
		UserAgent: cfg.UserAgent,
		gate:      &rateGate{minDelay: cfg.MinFetchDelay},
	}
}

// Name returns the connector identifier.
func (c *OpenAlex) Name() string { return "openalex" }

// Fetch retrieves one page of works. The cursor holds OpenAlex's opaque
// next_cursor token; a nil cursor starts from "*".
func (c *OpenAlex) Fetch(ctx context.Context, cursor types.Cursor, filters types.SourceFilters, limit int) (types.Batch, error) {
	if err := c.gate.wait(ctx); err != nil {
		return types.Batch{}, err
	}

	limit = clampLimit(limit, openAlexDefaultPageSize, openAlexMaxPageSize)

	cur := cursor["cursor"]
	if cur == "" {
		cur = openAlexStartCursor
	}

	params := url.Values{
		"search":   {filters.Query},
		"per-page": {fmt.Sprintf("%d", limit)},
		"cursor":   {cur},
	}

	var ff []string
	if filters.DateFrom != "" {
		ff = append(ff, "from_publication_date:"+filters.DateFrom)
	}
	if filters.DateTo != "" {
		ff = append(ff, "to_publication_date:"+filters.DateTo)
	}
	for k, v := range filters.Extra {
		ff = append(ff, k+":"+v)
	}
	if len(ff) > 0 {
		params.Set("filter", strings.Join(ff, ","))
	}
	if c.Email != "" {
		params.Set("mailto", c.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.Batch{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return types.Batch{}, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Batch{}, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar struct {
		Meta struct {
			NextCursor string `json:"next_cursor"`
		} `json:"meta"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return types.Batch{}, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	batch := types.Batch{
		CursorBefore: cursor.Clone(),
		CursorAfter:  cursor.Clone(),
		HasMore:      oar.Meta.NextCursor != "" && len(oar.Results) > 0,
	}
	for _, raw := range oar.Results {
		batch.Records = append(batch.Records, types.RawRecord{Source: c.Name(), Payload: raw})
	}
	if batch.HasMore {
		batch.CursorAfter = types.Cursor{"cursor": oar.Meta.NextCursor}
	}
	return batch, nil
}
