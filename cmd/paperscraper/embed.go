// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BaNburger/paperscraper-sub002/internal/bulk"
	"github.com/BaNburger/paperscraper-sub002/internal/provider"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embeddings for catalog entries",
	Long: `Embed sends the title and abstract of every catalog entry without a
vector to the OpenAI embeddings API in batches. Batch calls run under a
bounded concurrency limit and checkpoint per chunk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("no OpenAI API key: add openai-api-key to .secrets/ or set embedding.api_key")
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

		cps, closeCps, err := openCheckpoints(cfg.Checkpoint, st, "embedding")
		if err != nil {
			return err
		}
		defer closeCps()

		scope, _ := cmd.Flags().GetString("scope")
		embedder := &provider.OpenAIEmbedder{APIKey: cfg.Embedding.APIKey, Model: cfg.Embedding.Model}
		engine := bulk.NewEmbeddingEngine(st, cps, embedder, log, cfg.Embedding)

		report, err := engine.Run(cmd.Context(), scope)
		if err != nil {
			return err
		}
		fmt.Printf("embed: embedded=%d failed=%d\n", report.Embedded, report.Failed)
		return nil
	},
}

func init() {
	embedCmd.Flags().String("scope", "", "tenant scope (empty for the global catalog)")

	rootCmd.AddCommand(embedCmd)
}
