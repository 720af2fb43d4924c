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

	"github.com/goccy/go-json"

	"github.com/eventroller/eventroller/internal/models"
)

const sourceColumns = `id, created_at, updated_at,
	name, organization, osdi_name, crm_type, data_json, update_style, allows_updates, last_update`

func scanSource(row rowScanner) (*models.EventSource, error) {
	s := &models.EventSource{}
	var dataJSON sql.NullString
	var updateStyle int
	err := row.Scan(
		&s.ID, &s.CreatedAt, &s.UpdatedAt,
		&s.Name, &s.Organization, &s.OSDIName, &s.CRMType, &dataJSON,
		&updateStyle, &s.AllowsUpdates, &s.LastUpdate,
	)
	if err != nil {
		return nil, err
	}
	s.UpdateStyle = models.UpdateStyle(updateStyle)
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &s.Data); err != nil {
			return nil, fmt.Errorf("failed to decode source data blob: %w", err)
		}
	}
	return s, nil
}

func marshalSourceData(data map[string]string) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode source data blob: %w", err)
	}
	return string(b), nil
}

// GetSourceByName fetches a source by its unique name.
func (db *DB) GetSourceByName(ctx context.Context, name string) (*models.EventSource, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	s, err := scanSource(db.conn.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM event_sources WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source %s: %w", name, err)
	}
	return s, nil
}

// ListSourcesByStyle returns all sources with the given sync cadence.
func (db *DB) ListSourcesByStyle(ctx context.Context, style models.UpdateStyle) ([]*models.EventSource, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM event_sources WHERE update_style = ? ORDER BY name`, int(style))
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.EventSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return sources, nil
}

// InsertSource creates a new event source row.
func (db *DB) InsertSource(ctx context.Context, s *models.EventSource) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	dataBlob, err := marshalSourceData(s.Data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = db.conn.QueryRowContext(ctx,
		`INSERT INTO event_sources (created_at, updated_at, name, organization, osdi_name, crm_type, data_json, update_style, allows_updates, last_update)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		now, now, s.Name, s.Organization, s.OSDIName, s.CRMType, dataBlob,
		int(s.UpdateStyle), s.AllowsUpdates, s.LastUpdate,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert source %s: %w", s.Name, err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// UpdateSource overwrites a source's configuration fields.
func (db *DB) UpdateSource(ctx context.Context, s *models.EventSource) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	dataBlob, err := marshalSourceData(s.Data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := db.conn.ExecContext(ctx,
		`UPDATE event_sources SET updated_at = ?, organization = ?, osdi_name = ?, crm_type = ?,
			data_json = ?, update_style = ?, allows_updates = ?, last_update = ?
		 WHERE id = ?`,
		now, s.Organization, s.OSDIName, s.CRMType, dataBlob,
		int(s.UpdateStyle), s.AllowsUpdates, s.LastUpdate, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update source %s: %w", s.Name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source %s: %w", s.Name, ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

// AdvanceSourceWatermark persists a new watermark for a source. This is
// the commit signal of a sync pass and must only run after the pass has
// fully succeeded.
func (db *DB) AdvanceSourceWatermark(ctx context.Context, sourceID int64, watermark string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE event_sources SET last_update = ?, updated_at = ? WHERE id = ?`,
		watermark, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to advance watermark for source %d: %w", sourceID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return nil
}

// GetOrganizationBySlug fetches an organization by slug.
func (db *DB) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	o := &models.Organization{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at, title, slug, url, osdi_source_id FROM organizations WHERE slug = ?`,
		slug).Scan(&o.ID, &o.CreatedAt, &o.Title, &o.Slug, &o.URL, &o.OSDISourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization %s: %w", slug, err)
	}
	return o, nil
}

// InsertOrganization creates an organization row.
func (db *DB) InsertOrganization(ctx context.Context, o *models.Organization) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO organizations (created_at, title, slug, url, osdi_source_id)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		now, o.Title, o.Slug, o.URL, o.OSDISourceID).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to insert organization %s: %w", o.Slug, err)
	}
	o.CreatedAt = now
	return nil
}
