// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventroller/eventroller/internal/models"
)

// FindDupeGroups performs the full ground-truth sweep: all active events
// with a zip and a UTC start, grouped by (zip, starts_at_utc), keeping
// groups with more than one member. Event ids within a group come back
// ascending, which fixes pair roles downstream.
func (db *DB) FindDupeGroups(ctx context.Context) ([]models.DupeGroup, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT id, zip, starts_at_utc FROM events
		WHERE status = 'active' AND zip <> '' AND starts_at_utc IS NOT NULL
		ORDER BY zip, starts_at_utc, id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan for dupe groups: %w", err)
	}
	defer rows.Close()

	var groups []models.DupeGroup
	var current *models.DupeGroup
	for rows.Next() {
		var id int64
		var zip string
		var startsAtUTC time.Time
		if err := rows.Scan(&id, &zip, &startsAtUTC); err != nil {
			return nil, fmt.Errorf("failed to scan dupe candidate: %w", err)
		}
		if current != nil && current.Zip == zip && current.StartsAtUTC.Equal(startsAtUTC) {
			current.EventIDs = append(current.EventIDs, id)
			continue
		}
		if current != nil && len(current.EventIDs) > 1 {
			groups = append(groups, *current)
		}
		current = &models.DupeGroup{Zip: zip, StartsAtUTC: startsAtUTC, EventIDs: []int64{id}}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dupe candidates: %w", err)
	}
	if current != nil && len(current.EventIDs) > 1 {
		groups = append(groups, *current)
	}
	return groups, nil
}

// dupeCandidate is one changed event the incremental pass inspects.
type dupeCandidate struct {
	ID          int64
	Zip         string
	StartsAtUTC time.Time
}

// findChangedCandidates returns events touched since the given time that
// have a usable collision key and no dupe pointer yet.
func (db *DB) findChangedCandidates(ctx context.Context, since time.Time) ([]dupeCandidate, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, zip, starts_at_utc FROM events
		 WHERE updated_at >= ? AND dupe_id IS NULL
		   AND status = 'active' AND zip <> '' AND starts_at_utc IS NOT NULL
		 ORDER BY id`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed events: %w", err)
	}
	defer rows.Close()

	var candidates []dupeCandidate
	for rows.Next() {
		var c dupeCandidate
		if err := rows.Scan(&c.ID, &c.Zip, &c.StartsAtUTC); err != nil {
			return nil, fmt.Errorf("failed to scan changed event: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changed events: %w", err)
	}
	return candidates, nil
}

// findCollisionIDs returns ids of all active events sharing a collision
// key, ascending.
func (db *DB) findCollisionIDs(ctx context.Context, zip string, startsAtUTC time.Time) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id FROM events
		 WHERE status = 'active' AND zip = ? AND starts_at_utc = ?
		 ORDER BY id`, zip, startsAtUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to query collisions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan collision id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collisions: %w", err)
	}
	return ids, nil
}

// FindDupeGroupsSince is the incremental variant: only events updated
// since the given time are inspected, but each is matched against the
// whole table via the (zip, starts_at_utc) index. A group is emitted once
// even when several of its members changed.
func (db *DB) FindDupeGroupsSince(ctx context.Context, since time.Time) ([]models.DupeGroup, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	candidates, err := db.findChangedCandidates(ctx, since)
	if err != nil {
		return nil, err
	}

	var groups []models.DupeGroup
	seen := make(map[string]bool)
	for _, c := range candidates {
		key := c.Zip + "|" + c.StartsAtUTC.UTC().Format(time.RFC3339)
		if seen[key] {
			continue
		}
		seen[key] = true

		ids, err := db.findCollisionIDs(ctx, c.Zip, c.StartsAtUTC)
		if err != nil {
			return nil, err
		}
		if len(ids) > 1 {
			groups = append(groups, models.DupeGroup{
				Zip:         c.Zip,
				StartsAtUTC: c.StartsAtUTC,
				EventIDs:    ids,
			})
		}
	}
	return groups, nil
}

// InsertDupeGuess records one suggested pair. Returns false when the pair
// already exists; the unique constraint makes recording idempotent, and a
// replay is a benign no-op for callers.
func (db *DB) InsertDupeGuess(ctx context.Context, sourceEventID, dupeEventID int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO event_dupe_guesses (created_at, source_event_id, dupe_event_id, decision)
		 VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		time.Now().UTC(), sourceEventID, dupeEventID, int(models.DupeUndecided))
	if err != nil {
		return false, fmt.Errorf("failed to insert dupe guess (%d, %d): %w", sourceEventID, dupeEventID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// GetDupeGuess fetches one guess by id.
func (db *DB) GetDupeGuess(ctx context.Context, id int64) (*models.EventDupeGuess, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	g := &models.EventDupeGuess{}
	var decision int
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at, source_event_id, dupe_event_id, decision, decided_by, decided_at
		 FROM event_dupe_guesses WHERE id = ?`, id,
	).Scan(&g.ID, &g.CreatedAt, &g.SourceEventID, &g.DupeEventID, &decision, &g.DecidedBy, &g.DecidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dupe guess %d: %w", id, err)
	}
	g.Decision = models.DupeDecision(decision)
	return g, nil
}

// ListUndecidedDupeGuesses returns guesses awaiting review, oldest first.
func (db *DB) ListUndecidedDupeGuesses(ctx context.Context, limit int) ([]*models.EventDupeGuess, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, created_at, source_event_id, dupe_event_id, decision, decided_by, decided_at
		 FROM event_dupe_guesses WHERE decision = ? ORDER BY id LIMIT ?`,
		int(models.DupeUndecided), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dupe guesses: %w", err)
	}
	defer rows.Close()

	var guesses []*models.EventDupeGuess
	for rows.Next() {
		g := &models.EventDupeGuess{}
		var decision int
		if err := rows.Scan(&g.ID, &g.CreatedAt, &g.SourceEventID, &g.DupeEventID,
			&decision, &g.DecidedBy, &g.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dupe guess: %w", err)
		}
		g.Decision = models.DupeDecision(decision)
		guesses = append(guesses, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dupe guesses: %w", err)
	}
	return guesses, nil
}

// DecideDupeGuess records a reviewer's verdict on a guess. When the pair
// is confirmed, the higher-id event gets its dupe_id pointed at the
// lower-id event, satisfying the invariant that a decision record
// justifies every dupe pointer. Reverting to not-a-duplicate clears it.
func (db *DB) DecideDupeGuess(ctx context.Context, id int64, decision models.DupeDecision, reviewer string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	guess, err := db.GetDupeGuess(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE event_dupe_guesses SET decision = ?, decided_by = ?, decided_at = ? WHERE id = ?`,
		int(decision), reviewer, now, id)
	if err != nil {
		return fmt.Errorf("failed to decide dupe guess %d: %w", id, err)
	}

	switch decision {
	case models.DupeConfirmed:
		return db.SetEventDupe(ctx, guess.DupeEventID, &guess.SourceEventID)
	case models.DupeNotDuplicate:
		return db.SetEventDupe(ctx, guess.DupeEventID, nil)
	}
	return nil
}

// CountDupeGuesses returns the total number of recorded guesses.
func (db *DB) CountDupeGuesses(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_dupe_guesses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count dupe guesses: %w", err)
	}
	return count, nil
}
