package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"meetingrelay/internal/archive"
	"meetingrelay/internal/store"
)

var exportStdout bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all sent-task records as JSONL to the archive destination or stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		repo := store.NewSQLiteRepo(db)

		dest, err := newArchive(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if exportStdout || dest == nil {
			_, err := archive.ExportJSONL(cmd.Context(), repo, cmd.OutOrStdout(), time.Now())
			return err
		}
		name, n, err := archive.Export(cmd.Context(), repo, dest, time.Now())
		if err != nil {
			return err
		}
		log.Info().Str("name", name).Int("records", n).Msg("sent tasks exported")
		return nil
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "write to stdout even when an archive is configured")
}
