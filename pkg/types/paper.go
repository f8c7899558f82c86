// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paperscraper
// ingestion pipeline: the canonical catalog entry (Paper), the raw-record
// ledger row (SourceRecord), ingestion run bookkeeping (IngestRun), and
// the configuration structs consumed by each stage.
package types

import "time"

// Paper is the canonical, deduplicated catalog entry for one paper or
// patent. Within a scope there is at most one entry per normalized DOI
// and at most one per (source, source_record_id); entries admitted before
// those rules held are merged by the dedup job.
type Paper struct {
	// ID is a generated UUID, stable across enrichment and merges.
	ID string `json:"id" yaml:"id"`

	// Scope is the tenant boundary. Empty string means the entry is
	// globally shared.
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`

	// Title is the paper or patent title as normalized from the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the abstract or summary text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// DOI is the case-normalized (lowercase) DOI, empty when the source
	// did not provide one.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Source identifies the connector that first sighted the entry
	// (e.g. "openalex", "patentsview").
	Source string `json:"source" yaml:"source"`

	// SourceRecordID is the stable identifier within Source.
	SourceRecordID string `json:"source_record_id,omitempty" yaml:"source_record_id,omitempty"`

	// Published is the publication or grant date.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`

	// CitationCount and ReferenceCount are enrichment fields filled by
	// later resolver passes when sources report them.
	CitationCount  int `json:"citation_count" yaml:"citation_count"`
	ReferenceCount int `json:"reference_count" yaml:"reference_count"`

	// HasEmbedding reports whether an embedding vector has been stored.
	HasEmbedding bool `json:"has_embedding" yaml:"has_embedding"`

	// Embedding is the stored vector, nil until the embedding engine
	// processes the entry.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`

	// CreatedBy records the initiator of the run that created the entry.
	CreatedBy string `json:"created_by,omitempty" yaml:"created_by,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Year returns the publication year, or 0 when the date is unknown.
func (p Paper) Year() int {
	if p.Published.IsZero() {
		return 0
	}
	return p.Published.Year()
}

// Author is a normalized author or inventor attached to a bundle.
type Author struct {
	// Name is the display name. Sources that omit the name get the
	// sentinel "Unknown" rather than failing the whole bundle.
	Name string `json:"name" yaml:"name"`

	// ORCID is the author's ORCID iD when the source provides one.
	ORCID string `json:"orcid,omitempty" yaml:"orcid,omitempty"`

	// SourceIDs maps source name to that source's author identifier.
	SourceIDs map[string]string `json:"source_ids,omitempty" yaml:"source_ids,omitempty"`

	// Affiliations lists institution names in source order.
	Affiliations []string `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
}

// NormalizedBundle is the canonical form of one raw source record, produced
// by the normalizer and consumed by the entity resolver.
type NormalizedBundle struct {
	// Source is the connector name the record came from.
	Source string `json:"source" yaml:"source"`

	// SourceRecordID is derived with priority: explicit source id,
	// generic id field, DOI, title.
	SourceRecordID string `json:"source_record_id" yaml:"source_record_id"`

	// Title is the record title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the abstract or summary text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// DOI is the lowercase DOI without resolver prefix, empty if absent.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// Published is the publication date, zero when unknown.
	Published time.Time `json:"published,omitempty" yaml:"published,omitempty"`

	// CitationCount and ReferenceCount are carried through for catalog
	// enrichment when the source reports them.
	CitationCount  int `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
	ReferenceCount int `json:"reference_count,omitempty" yaml:"reference_count,omitempty"`

	// Metadata holds source-specific fields the core does not interpret.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// Authors lists normalized authors in source order.
	Authors []Author `json:"authors,omitempty" yaml:"authors,omitempty"`
}
