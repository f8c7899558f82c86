// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperscraper CLI. Each pipeline
// stage is a subcommand: ingest pulls source pages into the catalog,
// dedup folds duplicate entries, score and embed enrich entries through
// AI providers, and runs inspects the audit trail.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BaNburger/paperscraper-sub002/internal/logging"
	"github.com/BaNburger/paperscraper-sub002/internal/secrets"
	"github.com/BaNburger/paperscraper-sub002/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the paperscraper CLI.
var rootCmd = &cobra.Command{
	Use:   "paperscraper",
	Short: "Ingestion and entity-resolution pipeline for papers and patents",
	Long: `paperscraper pulls bibliographic and patent records from external sources
into a deduplicated catalog. Raw records land in an append-only ledger, an
entity resolver folds them into canonical catalog entries, and batch jobs
merge duplicates, score entries, and compute embeddings.

Each pipeline stage is a subcommand: ingest, dedup, score, embed, and runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperscraper.yaml or ~/.config/paperscraper/config.yaml)")
	rootCmd.PersistentFlags().String("log", "production", "log mode: production, development, or off")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperscraper")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperscraper"))
		}
	}

	viper.SetEnvPrefix("PAPERSCRAPER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig materializes the pipeline configuration from viper and
// fills secrets that the file left empty.
func loadConfig() (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = "data/catalog.db"
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = types.CheckpointSQLite
	}
	cfg.Source.OpenAlexEmail = secretDefault("openalex-email", cfg.Source.OpenAlexEmail)
	cfg.Source.SemanticScholarAPIKey = secretDefault("semantic-scholar-api-key", cfg.Source.SemanticScholarAPIKey)
	cfg.Source.PatentsViewAPIKey = secretDefault("patentsview-api-key", cfg.Source.PatentsViewAPIKey)
	cfg.Scoring.APIKey = secretDefault("claude-api-key", cfg.Scoring.APIKey)
	cfg.Embedding.APIKey = secretDefault("openai-api-key", cfg.Embedding.APIKey)
	return cfg, nil
}

// newLogger builds the process logger from the --log flag.
func newLogger() (*logging.Logger, error) {
	mode, _ := rootCmd.PersistentFlags().GetString("log")
	if mode == "off" {
		return logging.Nop(), nil
	}
	return logging.New(mode)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
