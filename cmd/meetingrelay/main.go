package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"meetingrelay/internal/archive"
	"meetingrelay/internal/config"
)

var (
	envFile string
	dbPath  string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "meetingrelay",
	Short:         "Receive meeting-note webhooks and forward the tasks they contain",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotenv(envFile); err != nil {
			return err
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			c.DBPath = dbPath
		}
		cfg = c
		setupLogging(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "meetingrelay.db", "SQLite DB path (overrides RELAY_DB_PATH)")
	rootCmd.AddCommand(serveCmd, parseCmd, exportCmd)
}

func setupLogging(c *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(c.LogLevel)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// newArchive returns the configured archive destination, or nil when none is set.
func newArchive(ctx context.Context, c *config.Config) (archive.Destination, error) {
	switch {
	case c.ArchiveS3Bucket != "":
		dest, err := archive.NewS3Destination(ctx, c.ArchiveS3Bucket, c.ArchiveS3Prefix, c.ArchiveS3Region, c.ArchiveS3Endpoint)
		if err != nil {
			return nil, err
		}
		return dest, nil
	case c.ArchiveDir != "":
		return archive.DirDestination{Dir: c.ArchiveDir}, nil
	}
	return nil, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
