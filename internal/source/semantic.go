// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/BaNburger/paperscraper-sub002/internal/httputil"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// semanticBase is the Semantic Scholar paper search endpoint. Declared as
// a var so tests can substitute an httptest server.
var semanticBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "paperId,title,abstract,authors,externalIds,year,publicationDate,citationCount,referenceCount"

const (
	semanticDefaultPageSize = 50
	semanticMaxPageSize     = 100
)

// SemanticScholar pulls paper pages via Semantic Scholar offset
// pagination.
type SemanticScholar struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	gate      *rateGate
}

// NewSemanticScholar builds the connector from shared source settings.
func NewSemanticScholar(cfg types.SourceConfig) *SemanticScholar {
	return &SemanticScholar{
		Client:    &http.Client{Timeout: cfg.Timeout},
		APIKey:    cfg.SemanticScholarAPIKey,
		UserAgent: cfg.UserAgent,
		gate:      &rateGate{minDelay: cfg.MinFetchDelay},
	}
}

// Name returns the connector identifier.
func (c *SemanticScholar) Name() string { return "semantic_scholar" }

// Fetch retrieves one page of papers. The cursor holds the numeric offset
// of the next page.
func (c *SemanticScholar) Fetch(ctx context.Context, cursor types.Cursor, filters types.SourceFilters, limit int) (types.Batch, error) {
	if err := c.gate.wait(ctx); err != nil {
		return types.Batch{}, err
	}

	limit = clampLimit(limit, semanticDefaultPageSize, semanticMaxPageSize)

	offset := 0
	if v := cursor["offset"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.Batch{}, fmt.Errorf("invalid semantic_scholar cursor offset %q: %w", v, err)
		}
		offset = n
	}

	params := url.Values{
		"query":  {filters.Query},
		"limit":  {fmt.Sprintf("%d", limit)},
		"offset": {fmt.Sprintf("%d", offset)},
		"fields": {semanticFields},
	}
	if yr := yearRange(filters.DateFrom, filters.DateTo); yr != "" {
		params.Set("year", yr)
	}
	if len(filters.FieldsOfStudy) > 0 {
		params.Set("fieldsOfStudy", strings.Join(filters.FieldsOfStudy, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.Batch{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return types.Batch{}, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Batch{}, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr struct {
		Total int               `json:"total"`
		Next  int               `json:"next"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return types.Batch{}, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	batch := types.Batch{
		CursorBefore: cursor.Clone(),
		CursorAfter:  cursor.Clone(),
	}
	for _, raw := range sr.Data {
		batch.Records = append(batch.Records, types.RawRecord{Source: c.Name(), Payload: raw})
	}
	next := offset + len(sr.Data)
	if len(sr.Data) > 0 && next < sr.Total {
		batch.HasMore = true
		batch.CursorAfter = types.Cursor{"offset": strconv.Itoa(next)}
	}
	return batch, nil
}

// yearRange converts YYYY-MM-DD bounds into the API's "from-to" year form.
func yearRange(from, to string) string {
	y := func(s string) string {
		if len(s) >= 4 {
			return s[:4]
		}
		return ""
	}
	fy, ty := y(from), y(to)
	switch {
	case fy == "" && ty == "":
		return ""
	case fy == "":
		return "-" + ty
	case ty == "":
		return fy + "-"
	default:
		return fy + "-" + ty
	}
}
