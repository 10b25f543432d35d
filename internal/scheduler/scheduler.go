package scheduler

import (
	"context"
	"fmt"
	"time"

	"busmate/internal/repository"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler runs the nightly maintenance jobs, currently just pruning old
// daily access ledger rows.
type Scheduler struct {
	inner  gocron.Scheduler
	logger zerolog.Logger
}

func New(access repository.AccessRepository, retentionDays int, logger zerolog.Logger) (*Scheduler, error) {
	log := logger.With().Str("component", "scheduler").Logger()

	inner, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = inner.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
			n, err := access.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Str("cutoff", cutoff).Msg("Pruning access ledger failed")
				return
			}
			log.Info().Str("cutoff", cutoff).Int64("rows", n).Msg("Pruned access ledger")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("registering ledger prune job: %w", err)
	}

	return &Scheduler{inner: inner, logger: log}, nil
}

func (s *Scheduler) Start() {
	s.inner.Start()
	s.logger.Info().Msg("Scheduler started")
}

func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}
