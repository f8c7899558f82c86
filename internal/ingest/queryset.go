// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// QuerySet is the on-disk representation of a reusable ingestion plan:
// a set of queries to pull from a set of sources. Teams check these
// files in next to their scope configuration and re-run them as sources
// publish new records.
type QuerySet struct {
	Scope   string      `yaml:"scope,omitempty"`
	Sources []string    `yaml:"sources"`
	Queries []QuerySpec `yaml:"queries"`
}

// QuerySpec is one query within a set.
type QuerySpec struct {
	Query         string            `yaml:"query"`
	DateFrom      string            `yaml:"date_from,omitempty"`
	DateTo        string            `yaml:"date_to,omitempty"`
	FieldsOfStudy []string          `yaml:"fields_of_study,omitempty"`
	Extra         map[string]string `yaml:"extra,omitempty"`
}

// Filters converts the stored spec into connector filters.
func (q QuerySpec) Filters() types.SourceFilters {
	return types.SourceFilters{
		Query:         q.Query,
		DateFrom:      q.DateFrom,
		DateTo:        q.DateTo,
		FieldsOfStudy: append([]string(nil), q.FieldsOfStudy...),
		Extra:         q.Extra,
	}
}

// ReadQuerySet loads and validates a query-set file.
func ReadQuerySet(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query set: %w", err)
	}
	var qs QuerySet
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("parsing query set %s: %w", path, err)
	}
	if len(qs.Sources) == 0 {
		return nil, fmt.Errorf("query set %s lists no sources", path)
	}
	if len(qs.Queries) == 0 {
		return nil, fmt.Errorf("query set %s lists no queries", path)
	}
	for i, q := range qs.Queries {
		if q.Query == "" {
			return nil, fmt.Errorf("query set %s: query %d has no query text", path, i+1)
		}
	}
	return &qs, nil
}
