package chatstore

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SyncScheduler periodically embeds messages that have no vector yet, so
// semantic search stays current as new exports arrive.
type SyncScheduler struct {
	cron   *cron.Cron
	store  *Store
	logger zerolog.Logger
}

// NewSyncScheduler creates a scheduler running SyncEmbeddings on the given
// cron spec (e.g. "@every 5m").
func NewSyncScheduler(store *Store, spec string, logger zerolog.Logger) (*SyncScheduler, error) {
	s := &SyncScheduler{
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}

	return s, nil
}

// Start begins scheduled syncing.
func (s *SyncScheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Embedding sync scheduler started")
}

// Stop halts scheduling and waits for a running sync to finish.
func (s *SyncScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Embedding sync scheduler stopped")
}

func (s *SyncScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	total := 0
	for {
		n, err := s.store.SyncEmbeddings(ctx, 64)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Embedding sync failed")
			return
		}
		total += n
		if n == 0 {
			break
		}
	}

	if total > 0 {
		s.logger.Info().Int("embedded", total).Msg("Embedding sync completed")
	}
}
