// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BaNburger/paperscraper-sub002/internal/dedupe"
	"github.com/BaNburger/paperscraper-sub002/internal/store"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Merge duplicate catalog entries",
	Long: `Dedup folds catalog entries that share a DOI or a source record id within
one scope into the earliest-created entry. Foreign references move to the
canonical entry and the duplicates are deleted. Safe to re-run: a clean
catalog produces no writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
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

		report, err := dedupe.NewJob(st, log).Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("dedup: cleaned=%d groups=%d merged=%d refs_remapped=%d refs_deleted=%d\n",
			report.Cleaned, report.Groups, report.Merged, report.RefsRemapped, report.RefsDeleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dedupCmd)
}
