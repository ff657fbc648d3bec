// Package export periodically writes all sent-task records to an archive
// destination as JSONL.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"meetingrelay/internal/archive"
	"meetingrelay/internal/store"
)

type Service struct {
	repo store.Repository
	dest archive.Destination
	cron *cron.Cron
	spec string
	now  func() time.Time
}

// NewService schedules exports on a standard five-field cron expression.
func NewService(repo store.Repository, dest archive.Destination, spec string) (*Service, error) {
	s := &Service{
		repo: repo,
		dest: dest,
		cron: cron.New(),
		spec: spec,
		now:  time.Now,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runScheduled() }); err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is done, then waits for a running export.
func (s *Service) Start(ctx context.Context) {
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Msg("export service started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info().Msg("export service stopped")
}

// RunOnce exports immediately and returns the written name and record count.
func (s *Service) RunOnce(ctx context.Context) (string, int, error) {
	return archive.Export(ctx, s.repo, s.dest, s.now())
}

func (s *Service) runScheduled() {
	name, n, err := s.RunOnce(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("failed to export sent tasks")
		return
	}
	log.Info().Str("name", name).Int("records", n).Msg("sent tasks exported")
}

// NextRun reports when the schedule fires next after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
