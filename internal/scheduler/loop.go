// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/models"
)

// LoopService is a suture-supervised ticker loop running all sources of
// one cadence. A panic or storage failure inside a pass is contained by
// the supervisor's restart policy instead of taking down the process.
type LoopService struct {
	sched    *Scheduler
	style    models.UpdateStyle
	interval time.Duration
	name     string
}

// NewHourlyLoop builds the loop for hourly-cadence sources.
func NewHourlyLoop(sched *Scheduler) *LoopService {
	return &LoopService{
		sched:    sched,
		style:    models.UpdateHourly,
		interval: sched.cfg.Sync.HourlyInterval,
		name:     "sync-loop-hourly",
	}
}

// NewDailyLoop builds the loop for daily-cadence sources.
func NewDailyLoop(sched *Scheduler) *LoopService {
	return &LoopService{
		sched:    sched,
		style:    models.UpdateDaily,
		interval: sched.cfg.Sync.DailyInterval,
		name:     "sync-loop-daily",
	}
}

// Serve implements suture.Service: run the due sources once at startup,
// then on every tick, until the context is cancelled.
func (s *LoopService) Serve(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%s: non-positive interval", s.name)
	}

	logging.Info().Str("loop", s.name).Dur("interval", s.interval).Msg("Sync loop started")
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("loop", s.name).Msg("Sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *LoopService) runOnce(ctx context.Context) {
	results := s.sched.RunDue(ctx, s.style)
	for name, r := range results {
		logging.Info().Str("loop", s.name).Str("source", name).
			Int("pulled", r.Pulled).Int("created", r.Created).
			Int("updated", r.Updated).Int("unchanged", r.Unchanged).
			Msg("Scheduled sync pass complete")
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *LoopService) String() string {
	return s.name
}
