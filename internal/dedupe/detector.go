// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package dedupe finds probable duplicate events. Detection is coarse on
// purpose: two active events sharing (zip, UTC start) are a suggestion
// for a reviewer, never an automatic merge. Recording a pair twice is a
// no-op, so passes can overlap old ground freely.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/metrics"
	"github.com/eventroller/eventroller/internal/models"
)

// Store is the storage surface the detector needs.
type Store interface {
	FindDupeGroups(ctx context.Context) ([]models.DupeGroup, error)
	FindDupeGroupsSince(ctx context.Context, since time.Time) ([]models.DupeGroup, error)
	InsertDupeGuess(ctx context.Context, sourceEventID, dupeEventID int64) (bool, error)
}

// Summary reports one detection pass.
type Summary struct {
	Incremental   bool
	Groups        int
	PairsNew      int
	PairsReplayed int
	Duration      time.Duration
}

// String renders the operator-facing one-liner.
func (s *Summary) String() string {
	mode := "full"
	if s.Incremental {
		mode = "incremental"
	}
	return fmt.Sprintf("dedupe %s pass: %d collision groups, %d new pairs, %d already recorded (%s)",
		mode, s.Groups, s.PairsNew, s.PairsReplayed, s.Duration.Round(time.Millisecond))
}

// Detector runs duplicate detection passes over the event store.
type Detector struct {
	store Store

	mu sync.Mutex
	// lastRun bounds the next incremental pass. Zero means no pass has
	// completed yet, so the first incremental pass inspects everything.
	lastRun time.Time
}

// New builds a Detector.
func New(store Store) *Detector {
	return &Detector{store: store}
}

// RunFull sweeps the whole table for collision groups and records every
// pair. This is the ground truth; incremental passes only narrow which
// events get inspected, never which collisions count.
func (d *Detector) RunFull(ctx context.Context) (*Summary, error) {
	return d.run(ctx, false)
}

// RunIncremental inspects only events changed since the previous pass.
// Each changed event is still matched against the whole table, so a new
// event colliding with an old one is found.
func (d *Detector) RunIncremental(ctx context.Context) (*Summary, error) {
	return d.run(ctx, true)
}

func (d *Detector) run(ctx context.Context, incremental bool) (*Summary, error) {
	// One pass at a time. Concurrent passes would be harmless for
	// correctness (pair inserts are idempotent) but would double the
	// table scans for nothing.
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()

	var groups []models.DupeGroup
	var err error
	if incremental {
		groups, err = d.store.FindDupeGroupsSince(ctx, d.lastRun)
	} else {
		groups, err = d.store.FindDupeGroups(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find dupe groups: %w", err)
	}

	summary := &Summary{Incremental: incremental, Groups: len(groups)}
	for _, g := range groups {
		created, replayed, err := d.recordGroup(ctx, g)
		if err != nil {
			return nil, err
		}
		summary.PairsNew += created
		summary.PairsReplayed += replayed
	}
	summary.Duration = time.Since(start)

	d.lastRun = start
	metrics.RecordDedupeRun(summary.Duration, summary.Groups, summary.PairsNew, summary.PairsReplayed)
	logging.Info().Int("groups", summary.Groups).Int("new_pairs", summary.PairsNew).
		Int("replayed", summary.PairsReplayed).Bool("incremental", incremental).
		Msg("Dedupe pass complete")
	return summary, nil
}

// recordGroup records every unordered pair in a collision group. Event
// ids arrive ascending, so the lower id is always the pair's source
// event; a re-encounter of the same two events can never produce the
// reversed pair.
func (d *Detector) recordGroup(ctx context.Context, g models.DupeGroup) (created, replayed int, err error) {
	for i := 0; i < len(g.EventIDs); i++ {
		for j := i + 1; j < len(g.EventIDs); j++ {
			fresh, err := d.store.InsertDupeGuess(ctx, g.EventIDs[i], g.EventIDs[j])
			if err != nil {
				return created, replayed, fmt.Errorf("failed to record dupe pair (%d, %d): %w",
					g.EventIDs[i], g.EventIDs[j], err)
			}
			if fresh {
				created++
			} else {
				replayed++
			}
		}
	}
	return created, replayed, nil
}
