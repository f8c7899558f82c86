// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/BaNburger/paperscraper-sub002/internal/httputil"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// arxivBase is the arXiv search endpoint. Declared as a var so tests can
// substitute an httptest server.
var arxivBase = "https://export.arxiv.org/api/query"

const (
	arxivDefaultPageSize = 50
	arxivMaxPageSize     = 1000
)

// Arxiv pulls Atom feed pages via arXiv start-offset pagination. Entries
// are re-encoded as JSON objects so the ledger stores one payload format
// across sources.
type Arxiv struct {
	Client    *http.Client
	UserAgent string
	gate      *rateGate
}

// NewArxiv builds the connector from shared source settings.
func NewArxiv(cfg types.SourceConfig) *Arxiv {
	return &Arxiv{
		Client:    &http.Client{Timeout: cfg.Timeout},
		UserAgent: cfg.UserAgent,
		gate:      &rateGate{minDelay: cfg.MinFetchDelay},
	}
}

// Name returns the connector identifier.
func (c *Arxiv) Name() string { return "arxiv" }

// Fetch retrieves one feed page. The cursor holds the numeric start
// offset of the next page.
func (c *Arxiv) Fetch(ctx context.Context, cursor types.Cursor, filters types.SourceFilters, limit int) (types.Batch, error) {
	if err := c.gate.wait(ctx); err != nil {
		return types.Batch{}, err
	}

	limit = clampLimit(limit, arxivDefaultPageSize, arxivMaxPageSize)

	start := 0
	if v := cursor["start"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return types.Batch{}, fmt.Errorf("invalid arxiv cursor start %q: %w", v, err)
		}
		start = n
	}

	q := buildArxivQuery(filters)
	if q == "" {
		return types.Batch{}, fmt.Errorf("empty arXiv query")
	}

	params := url.Values{
		"search_query": {q},
		"start":        {strconv.Itoa(start)},
		"max_results":  {strconv.Itoa(limit)},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"ascending"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivBase+"?"+params.Encode(), nil)
	if err != nil {
		return types.Batch{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, 0)
	if err != nil {
		return types.Batch{}, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Batch{}, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return types.Batch{}, fmt.Errorf("parsing arXiv response: %w", err)
	}

	batch := types.Batch{
		CursorBefore: cursor.Clone(),
		CursorAfter:  cursor.Clone(),
	}
	for _, entry := range feed.Entries {
		payload, err := json.Marshal(arxivRecord{
			ID:        entry.ID,
			Title:     strings.TrimSpace(entry.Title),
			Summary:   strings.TrimSpace(entry.Summary),
			Published: entry.Published,
			DOI:       entry.DOI,
			Authors:   entry.AuthorNames(),
		})
		if err != nil {
			return types.Batch{}, fmt.Errorf("encoding arXiv entry: %w", err)
		}
		batch.Records = append(batch.Records, types.RawRecord{Source: c.Name(), Payload: payload})
	}

	next := start + len(feed.Entries)
	if len(feed.Entries) > 0 && next < feed.TotalResults {
		batch.HasMore = true
		batch.CursorAfter = types.Cursor{"start": strconv.Itoa(next)}
	}
	return batch, nil
}

// buildArxivQuery constructs the search_query parameter.
func buildArxivQuery(f types.SourceFilters) string {
	var parts []string
	if f.Query != "" {
		terms := strings.Fields(f.Query)
		parts = append(parts, "all:"+strings.Join(terms, "+"))
	}
	for _, cat := range f.FieldsOfStudy {
		parts = append(parts, "cat:"+cat)
	}
	if v := f.Extra["search_query"]; v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, "+AND+")
}

// arxivRecord is the JSON form of one Atom entry as stored in the ledger.
type arxivRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Published string   `json:"published"`
	DOI       string   `json:"doi,omitempty"`
	Authors   []string `json:"authors,omitempty"`
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	TotalResults int          `xml:"totalResults"`
	Entries      []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	DOI       string        `xml:"doi"`
	Authors   []arxivAuthor `xml:"author"`
}

func (e arxivEntry) AuthorNames() []string {
	var names []string
	for _, a := range e.Authors {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

type arxivAuthor struct {
	Name string `xml:"name"`
}
