// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BaNburger/paperscraper-sub002/internal/ingest"
	"github.com/BaNburger/paperscraper-sub002/internal/source"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull records from external sources into the catalog",
	Long: `Ingest fetches pages of records from a source (openalex, semantic_scholar,
arxiv, patentsview), appends them to the raw-record ledger, and resolves each
new record into the catalog. Each run covers one page and checkpoints its
cursor; --max-pages loops runs until the source is exhausted or the limit
is reached.

Queries come from --query flags or from a --query-file YAML listing sources
and queries to pull together.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("source", "", "source to pull from (openalex, semantic_scholar, arxiv, patentsview)")
	ingestCmd.Flags().String("query", "", "free-text query")
	ingestCmd.Flags().String("query-file", "", "YAML query-set file (overrides --source/--query)")
	ingestCmd.Flags().String("scope", "", "tenant scope (empty for the global catalog)")
	ingestCmd.Flags().String("from", "", "publication date range start (YYYY-MM-DD)")
	ingestCmd.Flags().String("to", "", "publication date range end (YYYY-MM-DD)")
	ingestCmd.Flags().Int("page-size", 0, "records per page (clamped per source)")
	ingestCmd.Flags().Int("max-pages", 1, "maximum pages to pull per source/query")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	scope, _ := cmd.Flags().GetString("scope")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	queryFile, _ := cmd.Flags().GetString("query-file")

	var sources []string
	var queries []ingest.QuerySpec
	if queryFile != "" {
		qs, err := ingest.ReadQuerySet(queryFile)
		if err != nil {
			return err
		}
		if qs.Scope != "" {
			scope = qs.Scope
		}
		sources = qs.Sources
		queries = qs.Queries
	} else {
		name, _ := cmd.Flags().GetString("source")
		query, _ := cmd.Flags().GetString("query")
		if name == "" || query == "" {
			return fmt.Errorf("either --query-file or both --source and --query are required")
		}
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		sources = []string{name}
		queries = []ingest.QuerySpec{{Query: query, DateFrom: from, DateTo: to}}
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	cps, closeCps, err := openCheckpoints(cfg.Checkpoint, st, "ingest")
	if err != nil {
		return err
	}
	defer closeCps()

	orch := ingest.NewOrchestrator(st, cps, log, cfg.Ingest)

	var failed []string
	for _, name := range sources {
		conn, err := source.New(name, cfg.Source)
		if err != nil {
			return err
		}
		for _, q := range queries {
			if err := ingestPages(cmd, orch, conn, scope, q, pageSize, maxPages); err != nil {
				failed = append(failed, fmt.Sprintf("%s %q: %v", name, q.Query, err))
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("ingestion failed for %d source/query pairs:\n  %s",
			len(failed), strings.Join(failed, "\n  "))
	}
	return nil
}

// ingestPages loops page-bounded runs for one source/query pair until
// the source reports no more pages or maxPages is reached.
func ingestPages(cmd *cobra.Command, orch *ingest.Orchestrator, conn source.Connector, scope string, q ingest.QuerySpec, pageSize, maxPages int) error {
	if maxPages < 1 {
		maxPages = 1
	}
	for page := 0; page < maxPages; page++ {
		run, err := orch.Run(cmd.Context(), ingest.Request{
			Connector: conn,
			Scope:     scope,
			Filters:   q.Filters(),
			PageSize:  pageSize,
		})
		if err != nil {
			return err
		}
		printRunSummary(run)
		if run.Stats.Inserted == 0 {
			// No new ledger rows: either the source is exhausted or we
			// are replaying an already-ingested page.
			return nil
		}
	}
	return nil
}

func printRunSummary(run types.IngestRun) {
	fmt.Fprintf(os.Stdout, "run %s [%s] %s: fetched=%d inserted=%d duplicates=%d created=%d matched=%d failed=%d\n",
		run.ID, run.Source, run.Status, run.Stats.Fetched, run.Stats.Inserted,
		run.Stats.Duplicates, run.Stats.PapersCreated, run.Stats.PapersMatched, run.Stats.Failed)
}
