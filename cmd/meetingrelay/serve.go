package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"meetingrelay/internal/api"
	"meetingrelay/internal/events"
	"meetingrelay/internal/export"
	"meetingrelay/internal/forwarder"
	"meetingrelay/internal/metrics"
	"meetingrelay/internal/pipeline"
	"meetingrelay/internal/store"
)

var serveFlags struct {
	addr       string
	forwardURL string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.HTTPAddr = serveFlags.addr
		}
		if cmd.Flags().Changed("forward-url") {
			cfg.ForwardURL = serveFlags.forwardURL
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", ":5000", "HTTP bind address")
	serveCmd.Flags().StringVar(&serveFlags.forwardURL, "forward-url", "", "downstream webhook URL")
}

func serve(ctx context.Context) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := store.NewSQLiteRepo(db)

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		log.Info().Str("nats_url", cfg.NATSURL).Msg("events enabled")
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []pipeline.Option{
		pipeline.WithPublisher(publisher),
		pipeline.WithMetrics(metrics.New(reg)),
	}
	dest, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if dest != nil {
		opts = append(opts, pipeline.WithArchive(dest))
	}
	if cfg.ForwardURL == "" {
		log.Warn().Msg("RELAY_FORWARD_URL not set; every task will be recorded as undelivered")
	}
	p := pipeline.New(repo, forwarder.New(cfg.ForwardURL), opts...)

	ctx, cancel := context.WithCancel(ctx)
	// The export service must stop before the deferred db.Close runs.
	var exportDone <-chan struct{}
	defer func() {
		cancel()
		if exportDone != nil {
			<-exportDone
		}
	}()

	if cfg.ExportCron != "" {
		if dest == nil {
			log.Warn().Str("schedule", cfg.ExportCron).Msg("export schedule ignored: no archive destination configured")
		} else {
			svc, err := export.NewService(repo, dest, cfg.ExportCron)
			if err != nil {
				return err
			}
			if next, err := export.NextRun(cfg.ExportCron, time.Now()); err == nil {
				log.Info().Time("next_run", next).Msg("export scheduled")
			}
			exportDone = background(ctx, svc.Start)
		}
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewServer(repo, p, reg)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-errCh:
		return err
	}
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	return srv.Shutdown(ctxTimeout)
}

// background runs fn on its own goroutine and returns a channel closed when fn returns.
func background(ctx context.Context, fn func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return done
}
