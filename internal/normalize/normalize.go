// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize maps raw source payloads into canonical bundles the
// entity resolver consumes. Normalization is pure: the same payload always
// produces the same bundle, and a payload with no derivable identity fails
// loudly rather than being silently skipped.
package normalize

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// UnknownAuthor is the sentinel name for authors whose source record
// omits a name. A missing name never fails the whole bundle.
const UnknownAuthor = "Unknown"

// Normalize converts one raw payload from the named source into a
// canonical bundle. It fails when the payload is not valid JSON or when
// no identity can be derived (no source id, generic id, DOI, or title).
func Normalize(source string, payload json.RawMessage) (types.NormalizedBundle, error) {
	var b types.NormalizedBundle
	var err error

	switch source {
	case "openalex":
		b, err = normalizeOpenAlex(payload)
	case "semantic_scholar":
		b, err = normalizeSemanticScholar(payload)
	case "arxiv":
		b, err = normalizeArxiv(payload)
	case "patentsview":
		b, err = normalizePatentsView(payload)
	default:
		b, err = normalizeGeneric(payload)
	}
	if err != nil {
		return types.NormalizedBundle{}, fmt.Errorf("normalizing %s record: %w", source, err)
	}

	b.Source = source
	b.DOI = NormalizeDOI(b.DOI)

	// Identity priority: explicit source id, then DOI, then title.
	if b.SourceRecordID == "" {
		b.SourceRecordID = b.DOI
	}
	if b.SourceRecordID == "" {
		b.SourceRecordID = NormalizeTitle(b.Title)
	}
	if b.SourceRecordID == "" {
		return types.NormalizedBundle{}, fmt.Errorf("record from %s has no derivable identity (no id, DOI, or title)", source)
	}

	for i := range b.Authors {
		if strings.TrimSpace(b.Authors[i].Name) == "" {
			b.Authors[i].Name = UnknownAuthor
		}
	}
	return b, nil
}

// NormalizeDOI lowercases a DOI and strips resolver URL prefixes.
// Returns "" for empty or whitespace-only input.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(doi)
}

// NormalizeTitle returns a lowercased, punctuation-stripped,
// whitespace-collapsed version of the title for identity matching.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// ContentHash digests a canonicalized (key-sorted) serialization of the
// payload, so field-order differences between fetches do not create
// spurious ledger rows.
func ContentHash(payload json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", fmt.Errorf("content hash: payload is not valid JSON: %w", err)
	}
	// encoding/json writes map keys in sorted order, which canonicalizes
	// the nested object structure.
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum), nil
}

// parseDate tries the date formats the sources emit.
func parseDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// --- per-source normalizers ---

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	ReferencedWorksCount  int              `json:"referenced_works_count"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
			ORCID       string `json:"orcid"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`
}

func normalizeOpenAlex(payload json.RawMessage) (types.NormalizedBundle, error) {
	var w openAlexWork
	if err := json.Unmarshal(payload, &w); err != nil {
		return types.NormalizedBundle{}, err
	}

	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	b := types.NormalizedBundle{
		SourceRecordID: strings.TrimPrefix(w.ID, "https://openalex.org/"),
		Title:          title,
		Abstract:       reconstructAbstract(w.AbstractInvertedIndex),
		DOI:            w.DOI,
		CitationCount:  w.CitedByCount,
		ReferenceCount: w.ReferencedWorksCount,
	}

	if w.PublicationDate != "" {
		b.Published = parseDate(w.PublicationDate)
	}
	if b.Published.IsZero() && w.PublicationYear > 0 {
		b.Published = time.Date(w.PublicationYear, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	for _, as := range w.Authorships {
		a := types.Author{Name: as.Author.DisplayName}
		if as.Author.ORCID != "" {
			a.ORCID = strings.TrimPrefix(as.Author.ORCID, "https://orcid.org/")
		}
		if as.Author.ID != "" {
			a.SourceIDs = map[string]string{"openalex": strings.TrimPrefix(as.Author.ID, "https://openalex.org/")}
		}
		for _, inst := range as.Institutions {
			if inst.DisplayName != "" {
				a.Affiliations = append(a.Affiliations, inst.DisplayName)
			}
		}
		b.Authors = append(b.Authors, a)
	}
	return b, nil
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to its positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}
	max := 0
	for _, positions := range invertedIndex {
		for _, pos := range positions {
			if pos > max {
				max = pos
			}
		}
	}
	words := make([]string, max+1)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			if pos >= 0 && pos < len(words) {
				words[pos] = word
			}
		}
	}
	return strings.TrimSpace(strings.Join(words, " "))
}

type semanticPaper struct {
	PaperID         string `json:"paperId"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	Year            int    `json:"year"`
	PublicationDate string `json:"publicationDate"`
	CitationCount   int    `json:"citationCount"`
	ReferenceCount  int    `json:"referenceCount"`
	ExternalIDs     struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
	Authors []struct {
		AuthorID string `json:"authorId"`
		Name     string `json:"name"`
	} `json:"authors"`
}

func normalizeSemanticScholar(payload json.RawMessage) (types.NormalizedBundle, error) {
	var p semanticPaper
	if err := json.Unmarshal(payload, &p); err != nil {
		return types.NormalizedBundle{}, err
	}

	b := types.NormalizedBundle{
		SourceRecordID: p.PaperID,
		Title:          p.Title,
		Abstract:       p.Abstract,
		DOI:            p.ExternalIDs.DOI,
		CitationCount:  p.CitationCount,
		ReferenceCount: p.ReferenceCount,
	}
	if p.ExternalIDs.ArXiv != "" {
		b.Metadata = map[string]any{"arxiv_id": p.ExternalIDs.ArXiv}
	}

	if p.PublicationDate != "" {
		b.Published = parseDate(p.PublicationDate)
	}
	if b.Published.IsZero() && p.Year > 0 {
		b.Published = time.Date(p.Year, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	for _, a := range p.Authors {
		na := types.Author{Name: a.Name}
		if a.AuthorID != "" {
			na.SourceIDs = map[string]string{"semantic_scholar": a.AuthorID}
		}
		b.Authors = append(b.Authors, na)
	}
	return b, nil
}

type arxivRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Published string   `json:"published"`
	DOI       string   `json:"doi"`
	Authors   []string `json:"authors"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041v1").
func extractArxivID(idURL string) string {
	if i := strings.LastIndex(idURL, "/abs/"); i >= 0 {
		return idURL[i+len("/abs/"):]
	}
	return idURL
}

func normalizeArxiv(payload json.RawMessage) (types.NormalizedBundle, error) {
	var r arxivRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return types.NormalizedBundle{}, err
	}

	b := types.NormalizedBundle{
		SourceRecordID: extractArxivID(r.ID),
		Title:          r.Title,
		Abstract:       r.Summary,
		DOI:            r.DOI,
	}
	if r.Published != "" {
		b.Published = parseDate(r.Published)
	}
	for _, name := range r.Authors {
		b.Authors = append(b.Authors, types.Author{Name: name})
	}
	return b, nil
}

type patentsViewPatent struct {
	PatentID       string `json:"patent_id"`
	PatentTitle    string `json:"patent_title"`
	PatentAbstract string `json:"patent_abstract"`
	PatentDate     string `json:"patent_date"`
	PatentType     string `json:"patent_type"`
	NumClaims      int    `json:"patent_num_claims"`
	Inventors      []struct {
		First string `json:"inventor_name_first"`
		Last  string `json:"inventor_name_last"`
	} `json:"inventors"`
}

func normalizePatentsView(payload json.RawMessage) (types.NormalizedBundle, error) {
	var p patentsViewPatent
	if err := json.Unmarshal(payload, &p); err != nil {
		return types.NormalizedBundle{}, err
	}

	b := types.NormalizedBundle{
		SourceRecordID: p.PatentID,
		Title:          p.PatentTitle,
		Abstract:       p.PatentAbstract,
	}
	if p.PatentType != "" || p.NumClaims > 0 {
		b.Metadata = map[string]any{
			"patent_type": p.PatentType,
			"num_claims":  p.NumClaims,
		}
	}
	if p.PatentDate != "" {
		b.Published = parseDate(p.PatentDate)
	}
	for _, inv := range p.Inventors {
		name := strings.TrimSpace(inv.First + " " + inv.Last)
		b.Authors = append(b.Authors, types.Author{Name: name})
	}
	return b, nil
}

// genericRecord covers sources the core has no dedicated mapping for.
type genericRecord struct {
	SourceID string   `json:"source_id"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	DOI      string   `json:"doi"`
	Date     string   `json:"date"`
	Authors  []string `json:"authors"`
}

func normalizeGeneric(payload json.RawMessage) (types.NormalizedBundle, error) {
	var g genericRecord
	if err := json.Unmarshal(payload, &g); err != nil {
		return types.NormalizedBundle{}, err
	}

	// Identity priority: explicit source id, then generic id field; DOI
	// and title fallbacks are applied by Normalize.
	id := g.SourceID
	if id == "" {
		id = g.ID
	}

	b := types.NormalizedBundle{
		SourceRecordID: id,
		Title:          g.Title,
		Abstract:       g.Abstract,
		DOI:            g.DOI,
	}
	if g.Date != "" {
		b.Published = parseDate(g.Date)
	}
	for _, name := range g.Authors {
		b.Authors = append(b.Authors, types.Author{Name: name})
	}
	return b, nil
}
