// Package scheduler periodically sweeps every channel's staged per-request
// records and folds them into the canonical channel record (C8), grounded
// on the teacher's periodic-ticker drift-correction pattern.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dhali/claimengine/internal/consolidator"
	"github.com/dhali/claimengine/internal/metrics"
	"github.com/dhali/claimengine/internal/store"
)

// channelsCollection is where every channel's canonical private record
// lives; its document ids are the CIDs the sweep iterates over.
const channelsCollection = "payment_channels"

// subcollections are swept, in order, for each channel on every run.
var subcollections = []string{"estimate", "exact"}

// Scheduler drives periodic consolidation sweeps across every channel the
// store knows about.
type Scheduler struct {
	store  store.TransactionalStore
	log    zerolog.Logger
	stopCh chan struct{}
}

// New returns a Scheduler bound to store, logging through logger.
func New(s store.TransactionalStore, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  s,
		log:    logger.With().Str("component", "scheduler").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start launches a background goroutine that runs RunOnce every interval
// until Stop is called.
func (s *Scheduler) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.log.Info().Dur("interval", interval).Msg("starting periodic consolidation sweep")

	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				if err := s.RunOnce(ctx); err != nil {
					s.log.Error().Err(err).Msg("consolidation sweep failed")
				}
				cancel()
			case <-s.stopCh:
				ticker.Stop()
				s.log.Info().Msg("consolidation sweep stopped")
				return
			}
		}
	}()
}

// Stop halts the background sweep started by Start.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// RunOnce sweeps every channel once: for each channel document, every
// staged estimate and exact record is folded into the channel's canonical
// private/public record. Per-channel failures are logged and do not abort
// the sweep of the remaining channels.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	channels, err := s.store.ListCollection(ctx, channelsCollection)
	if err != nil {
		metrics.ConsolidationRuns.WithLabelValues("list_failed").Inc()
		return err
	}

	var swept, failed int
	for _, channelRef := range channels {
		cid := channelRef.ID()
		privTarget := store.Doc(channelsCollection, cid)
		pubTarget := store.Doc("public_claim_info", cid)

		for _, sub := range subcollections {
			sources, err := s.store.ListCollection(ctx, channelsCollection+"/"+cid+"/"+sub)
			if err != nil {
				s.log.Error().Err(err).Str("cid", cid).Str("subcollection", sub).Msg("failed to list staged records")
				failed++
				continue
			}
			if len(sources) == 0 {
				continue
			}

			if err := consolidator.Consolidate(ctx, s.store, sources, privTarget, pubTarget); err != nil {
				s.log.Error().Err(err).Str("cid", cid).Str("subcollection", sub).Msg("consolidation failed")
				failed++
				continue
			}
			metrics.ConsolidatedSources.Observe(float64(len(sources)))
			swept++
		}
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "partial_failure"
	}
	metrics.ConsolidationRuns.WithLabelValues(outcome).Inc()

	s.log.Info().
		Int("channels_swept", swept).
		Int("failures", failed).
		Dur("duration", time.Since(start)).
		Msg("consolidation sweep complete")

	return nil
}
