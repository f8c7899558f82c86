// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedupe

import (
	"context"
	"fmt"

	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/normalize"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
)

// Report summarizes one merge job run.
type Report struct {
	Cleaned      int64
	Groups       int
	Merged       int
	RefsRemapped int
	RefsDeleted  int
}

// Job folds duplicate catalog rows into their earliest-created member.
// Rows group on (scope, normalized DOI) and on (scope, source, source
// record id);
// groups overlap through union-find, so a row sharing a DOI with one
// row and a source id with another folds all three together.
type Job struct {
	store *store.Store
	log   *logging.Logger
}

func NewJob(st *store.Store, log *logging.Logger) *Job {
	return &Job{store: st, log: log}
}

// Run executes one merge pass. Re-running over an already-merged
// catalog finds no groups and writes nothing.
func (j *Job) Run(ctx context.Context) (Report, error) {
	var report Report

	cleaned, err := j.store.CleanEmptyPaperIdentifiers(ctx)
	if err != nil {
		return report, err
	}
	report.Cleaned = cleaned

	keys, err := j.store.LoadAllPaperKeys(ctx)
	if err != nil {
		return report, err
	}

	groups := groupDuplicates(keys)
	report.Groups = len(groups)
	for _, g := range groups {
		counts, err := j.store.MergePapers(ctx, g.Canonical, g.Duplicates)
		if err != nil {
			return report, fmt.Errorf("merging into %s: %w", g.Canonical, err)
		}
		report.Merged += counts.Deleted
		report.RefsRemapped += counts.RefsRemapped
		report.RefsDeleted += counts.RefsDeleted
		j.log.Info("merged duplicate group", "canonical", g.Canonical,
			"duplicates", len(g.Duplicates), "refs_remapped", counts.RefsRemapped)
	}

	j.log.Info("dedup merge finished", "cleaned", report.Cleaned,
		"groups", report.Groups, "merged", report.Merged)
	return report, nil
}

// groupDuplicates unions rows sharing an identity key. Keys are loaded
// in creation order, so the union-find ordering string is the row's
// position in that order.
func groupDuplicates(keys []store.PaperKey) []Group {
	a := newArena()
	byDOI := make(map[string]int)
	bySource := make(map[string]int)

	for i, k := range keys {
		order := fmt.Sprintf("%012d", i)
		n := a.add(k.ID, order)
		// Rows admitted before normalization ran may carry raw DOIs;
		// group on the normalized form.
		if doi := normalize.NormalizeDOI(k.DOI); doi != "" {
			key := k.Scope + "\x00" + doi
			if prev, ok := byDOI[key]; ok {
				a.union(prev, n)
			} else {
				byDOI[key] = n
			}
		}
		if k.SourceID != "" {
			key := k.Scope + "\x00" + k.Source + "\x00" + k.SourceID
			if prev, ok := bySource[key]; ok {
				a.union(prev, n)
			} else {
				bySource[key] = n
			}
		}
	}
	return a.groups()
}
