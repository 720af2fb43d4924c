// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eventroller/eventroller/internal/models"
)

const reviewColumns = `id, created_at, content_type, object_id, organization,
	reviewer, review_key, decision, visibility_level, obsoleted_at`

func scanReview(row rowScanner) (*models.Review, error) {
	r := &models.Review{}
	err := row.Scan(
		&r.ID, &r.CreatedAt, &r.ContentType, &r.ObjectID, &r.Organization,
		&r.Reviewer, &r.Key, &r.Decision, &r.VisibilityLevel, &r.ObsoletedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ReviewDecision is one (key, decision) pair to record.
type ReviewDecision struct {
	Key      string
	Decision string
}

// SaveReviewParams collects everything one save operation writes.
type SaveReviewParams struct {
	Organization string
	ContentType  string
	ObjectID     int64
	Reviewer     string
	Decisions    []ReviewDecision

	// LogMessage, when non-empty, adds a ReviewLog annotation in the
	// same transaction.
	LogMessage string
	LogType    models.LogType
	Subject    string

	VisibilityLevel int
}

// SaveReview appends one Review row per decision key, obsoleting the
// prior current row for each key in the same transaction, and optionally
// records an annotation. Review rows are never mutated: obsoleted_at is
// the only stamp an old row ever receives.
func (db *DB) SaveReview(ctx context.Context, p SaveReviewParams) ([]*models.Review, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	reviews := make([]*models.Review, 0, len(p.Decisions))
	for _, d := range p.Decisions {
		if _, err := tx.ExecContext(ctx,
			`UPDATE reviews SET obsoleted_at = ?
			 WHERE organization = ? AND content_type = ? AND object_id = ? AND review_key = ?
			   AND obsoleted_at IS NULL`,
			now, p.Organization, p.ContentType, p.ObjectID, d.Key); err != nil {
			return nil, fmt.Errorf("failed to obsolete prior reviews: %w", err)
		}

		r := &models.Review{
			CreatedAt:       now,
			ContentType:     p.ContentType,
			ObjectID:        p.ObjectID,
			Organization:    p.Organization,
			Reviewer:        p.Reviewer,
			Key:             d.Key,
			Decision:        d.Decision,
			VisibilityLevel: p.VisibilityLevel,
		}
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO reviews (created_at, content_type, object_id, organization, reviewer, review_key, decision, visibility_level)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
			now, p.ContentType, p.ObjectID, p.Organization, p.Reviewer,
			d.Key, d.Decision, p.VisibilityLevel,
		).Scan(&r.ID); err != nil {
			return nil, fmt.Errorf("failed to insert review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if p.LogMessage != "" {
		logType := p.LogType
		if logType == "" {
			logType = models.LogTypeNote
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO review_logs (created_at, content_type, object_id, organization, reviewer, log_type, subject, message, visibility_level)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			now, p.ContentType, p.ObjectID, p.Organization, p.Reviewer,
			string(logType), p.Subject, p.LogMessage, p.VisibilityLevel); err != nil {
			return nil, fmt.Errorf("failed to insert review log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit review transaction: %w", err)
	}
	return reviews, nil
}

// CurrentReviews returns the newest non-obsoleted rows for an
// organization, most recent first, capped at limit rows. Used for the
// cold-start cache backfill.
func (db *DB) CurrentReviews(ctx context.Context, organization string, limit int) ([]*models.Review, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE organization = ? AND obsoleted_at IS NULL
		 ORDER BY id DESC LIMIT ?`, organization, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query current reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

// ReviewsForObjects returns current (non-obsoleted) rows for the given
// objects of one content type.
func (db *DB) ReviewsForObjects(ctx context.Context, organization, contentType string, objectIDs []int64) ([]*models.Review, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(objectIDs)), ",")
	query := `SELECT ` + reviewColumns + ` FROM reviews
		WHERE organization = ? AND content_type = ? AND obsoleted_at IS NULL
		  AND object_id IN (` + placeholders + `)
		ORDER BY id`

	args := make([]interface{}, 0, len(objectIDs)+2)
	args = append(args, organization, contentType)
	for _, id := range objectIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews for objects: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return reviews, nil
}

// ReviewHistory returns every row (current and obsoleted) for one object,
// newest first. The obsoleted rows are the audit trail.
func (db *DB) ReviewHistory(ctx context.Context, organization, contentType string, objectID int64) ([]*models.Review, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE organization = ? AND content_type = ? AND object_id = ?
		 ORDER BY id DESC`, organization, contentType, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query review history: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review history: %w", err)
	}
	return reviews, nil
}

// ReviewLogsForObject returns annotations for one object visible at or
// below maxVisibility, newest first.
func (db *DB) ReviewLogsForObject(ctx context.Context, organization, contentType string, objectID int64, maxVisibility int) ([]*models.ReviewLog, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, created_at, content_type, object_id, organization, reviewer, log_type, subject, message, visibility_level
		 FROM review_logs
		 WHERE organization = ? AND content_type = ? AND object_id = ? AND visibility_level <= ?
		 ORDER BY id DESC`, organization, contentType, objectID, maxVisibility)
	if err != nil {
		return nil, fmt.Errorf("failed to query review logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ReviewLog
	for rows.Next() {
		l := &models.ReviewLog{}
		var logType string
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.ContentType, &l.ObjectID,
			&l.Organization, &l.Reviewer, &logType, &l.Subject, &l.Message,
			&l.VisibilityLevel); err != nil {
			return nil, fmt.Errorf("failed to scan review log: %w", err)
		}
		l.LogType = models.LogType(logType)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review logs: %w", err)
	}
	return logs, nil
}

// InsertReviewGroup links a group to an organization's review scope.
func (db *DB) InsertReviewGroup(ctx context.Context, g *models.ReviewGroup) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO review_groups (organization, group_name, visibility_level)
		 VALUES (?, ?, ?) RETURNING id`,
		g.Organization, g.Group, g.VisibilityLevel).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("failed to insert review group: %w", err)
	}
	return nil
}

// VisibilityForGroups checks whether any of the caller's groups may
// review for the organization; when authorized it also returns the
// highest visibility tier among the matching groups.
func (db *DB) VisibilityForGroups(ctx context.Context, organization string, groups []string) (int, bool, error) {
	if len(groups) == 0 {
		return 0, false, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groups)), ",")
	query := `SELECT max(visibility_level), COUNT(*) FROM review_groups
		WHERE organization = ? AND group_name IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(groups)+1)
	args = append(args, organization)
	for _, g := range groups {
		args = append(args, g)
	}

	var maxLevel *int
	var count int64
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&maxLevel, &count); err != nil {
		return 0, false, fmt.Errorf("failed to check review groups: %w", err)
	}
	if count == 0 || maxLevel == nil {
		return 0, false, nil
	}
	return *maxLevel, true, nil
}
