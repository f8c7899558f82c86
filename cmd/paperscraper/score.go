// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BaNburger/paperscraper-sub002/internal/bulk"
	"github.com/BaNburger/paperscraper-sub002/internal/provider"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score catalog entries through the Claude API",
	Long: `Score sends every catalog entry missing a configured dimension to the
Claude API and stores the per-dimension results. Work runs under a bounded
concurrency limit and checkpoints per chunk, so an interrupted job resumes
where it stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Scoring.APIKey == "" {
			return fmt.Errorf("no Claude API key: add claude-api-key to .secrets/ or set scoring.api_key")
		}
		if dims, _ := cmd.Flags().GetString("dimensions"); dims != "" {
			cfg.Scoring.Dimensions = strings.Split(dims, ",")
		}
		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		st, err := store.Open(cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		cps, closeCps, err := openCheckpoints(cfg.Checkpoint, st, "scoring")
		if err != nil {
			return err
		}
		defer closeCps()

		scope, _ := cmd.Flags().GetString("scope")
		scorer := &provider.ClaudeScorer{APIKey: cfg.Scoring.APIKey, Model: cfg.Scoring.Model}
		engine := bulk.NewScoringEngine(st, cps, scorer, log, cfg.Scoring)

		jobs, err := engine.Run(cmd.Context(), scope)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			fmt.Printf("scoring job %s [%s]: completed=%d failed=%d\n",
				job.ID, job.Status, job.Completed, job.Failed)
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().String("scope", "", "tenant scope (empty for the global catalog)")
	scoreCmd.Flags().String("dimensions", "", "comma-separated dimensions (overrides config)")

	rootCmd.AddCommand(scoreCmd)
}
