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
	"strings"
	"time"

	"github.com/eventroller/eventroller/internal/models"
)

// eventColumns is the canonical column order used by every event query.
const eventColumns = `id, created_at, updated_at,
	address1, address2, city, state, zip, country, latitude, longitude,
	title, venue,
	starts_at, ends_at, starts_at_utc, ends_at_utc,
	status, host_is_confirmed, is_private, is_searchable,
	attendee_count, max_attendees,
	public_description, directions, note_to_attendees, phone,
	event_type, venue_category,
	organization_host_id, organization, organization_source, organization_source_pk,
	organization_campaign, url, slug, rsvp_url, dupe_id,
	organization_status_review, organization_status_prep, source_json_data`

// eventInsertColumns excludes the id (sequence-assigned).
const eventInsertColumns = `created_at, updated_at,
	address1, address2, city, state, zip, country, latitude, longitude,
	title, venue,
	starts_at, ends_at, starts_at_utc, ends_at_utc,
	status, host_is_confirmed, is_private, is_searchable,
	attendee_count, max_attendees,
	public_description, directions, note_to_attendees, phone,
	event_type, venue_category,
	organization_host_id, organization, organization_source, organization_source_pk,
	organization_campaign, url, slug, rsvp_url, dupe_id,
	organization_status_review, organization_status_prep, source_json_data`

const eventInsertPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

func eventInsertArgs(e *models.Event, now time.Time) []interface{} {
	return []interface{}{
		now, now,
		e.Address1, e.Address2, e.City, e.State, e.Zip, e.Country, e.Latitude, e.Longitude,
		e.Title, e.Venue,
		e.StartsAt, e.EndsAt, e.StartsAtUTC, e.EndsAtUTC,
		string(e.Status), e.HostIsConfirmed, e.IsPrivate, e.IsSearchable,
		e.AttendeeCount, e.MaxAttendees,
		e.PublicDescription, e.Directions, e.NoteToAttendees, e.Phone,
		e.EventType, int(e.VenueCategory),
		e.OrganizationHostID, e.Organization, e.OrganizationSource, e.OrganizationSourcePK,
		e.OrganizationCampaign, e.URL, e.Slug, e.RSVPURL, e.DupeID,
		string(e.OrganizationStatusReview), string(e.OrganizationStatusPrep), e.SourceJSON,
	}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	e := &models.Event{}
	var status, review, prep string
	var venueCategory int
	err := row.Scan(
		&e.ID, &e.CreatedAt, &e.UpdatedAt,
		&e.Address1, &e.Address2, &e.City, &e.State, &e.Zip, &e.Country, &e.Latitude, &e.Longitude,
		&e.Title, &e.Venue,
		&e.StartsAt, &e.EndsAt, &e.StartsAtUTC, &e.EndsAtUTC,
		&status, &e.HostIsConfirmed, &e.IsPrivate, &e.IsSearchable,
		&e.AttendeeCount, &e.MaxAttendees,
		&e.PublicDescription, &e.Directions, &e.NoteToAttendees, &e.Phone,
		&e.EventType, &venueCategory,
		&e.OrganizationHostID, &e.Organization, &e.OrganizationSource, &e.OrganizationSourcePK,
		&e.OrganizationCampaign, &e.URL, &e.Slug, &e.RSVPURL, &e.DupeID,
		&review, &prep, &e.SourceJSON,
	)
	if err != nil {
		return nil, err
	}
	e.Status = models.EventStatus(status)
	e.VenueCategory = models.VenueCategory(venueCategory)
	e.OrganizationStatusReview = models.ReviewStatus(review)
	e.OrganizationStatusPrep = models.PrepStatus(prep)
	return e, nil
}

// GetEvent fetches one event by internal id.
func (db *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	e, err := scanEvent(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return e, nil
}

// GetEventsBySourcePKs returns the stored events for a source keyed by
// their vendor pk. Missing pks are simply absent from the map.
func (db *DB) GetEventsBySourcePKs(ctx context.Context, source string, pks []string) (map[string]*models.Event, error) {
	result := make(map[string]*models.Event, len(pks))
	if len(pks) == 0 {
		return result, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pks)), ",")
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE organization_source = ? AND organization_source_pk IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(pks)+1)
	args = append(args, source)
	for _, pk := range pks {
		args = append(args, pk)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by source pk: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result[e.OrganizationSourcePK] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return result, nil
}

// InsertEvents bulk-inserts new event rows in multi-row batches and fills
// in the assigned ids. CreatedAt/UpdatedAt are stamped here.
func (db *DB) InsertEvents(ctx context.Context, events []*models.Event, batchSize int) error {
	if len(events) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO events (` + eventInsertColumns + `) VALUES `)
		args := make([]interface{}, 0, len(batch)*40)
		for i, e := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(" + eventInsertPlaceholders + ")")
			args = append(args, eventInsertArgs(e, now)...)
		}
		sb.WriteString(" RETURNING id")

		rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return fmt.Errorf("failed to bulk-insert events: %w", err)
		}
		idx := 0
		for rows.Next() {
			if idx >= len(batch) {
				break
			}
			if err := rows.Scan(&batch[idx].ID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan inserted event id: %w", err)
			}
			batch[idx].CreatedAt = now
			batch[idx].UpdatedAt = now
			idx++
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating inserted ids: %w", err)
		}
		rows.Close()
	}
	return nil
}

// UpdateEvent overwrites all mutable fields of an existing row and bumps
// updated_at. Callers are expected to have diffed first; a no-op update
// must never reach this method.
func (db *DB) UpdateEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	query := `UPDATE events SET
		updated_at = ?,
		address1 = ?, address2 = ?, city = ?, state = ?, zip = ?, country = ?,
		latitude = ?, longitude = ?,
		title = ?, venue = ?,
		starts_at = ?, ends_at = ?, starts_at_utc = ?, ends_at_utc = ?,
		status = ?, host_is_confirmed = ?, is_private = ?, is_searchable = ?,
		attendee_count = ?, max_attendees = ?,
		public_description = ?, directions = ?, note_to_attendees = ?, phone = ?,
		event_type = ?, venue_category = ?,
		organization_host_id = ?, organization = ?,
		organization_campaign = ?, url = ?, slug = ?, rsvp_url = ?, dupe_id = ?,
		organization_status_review = ?, organization_status_prep = ?, source_json_data = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		now,
		e.Address1, e.Address2, e.City, e.State, e.Zip, e.Country,
		e.Latitude, e.Longitude,
		e.Title, e.Venue,
		e.StartsAt, e.EndsAt, e.StartsAtUTC, e.EndsAtUTC,
		string(e.Status), e.HostIsConfirmed, e.IsPrivate, e.IsSearchable,
		e.AttendeeCount, e.MaxAttendees,
		e.PublicDescription, e.Directions, e.NoteToAttendees, e.Phone,
		e.EventType, int(e.VenueCategory),
		e.OrganizationHostID, e.Organization,
		e.OrganizationCampaign, e.URL, e.Slug, e.RSVPURL, e.DupeID,
		string(e.OrganizationStatusReview), string(e.OrganizationStatusPrep), e.SourceJSON,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", e.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %d: %w", e.ID, ErrNotFound)
	}
	e.UpdatedAt = now
	return nil
}

// SetEventDupe points an event at the row it duplicates (nil clears it).
func (db *DB) SetEventDupe(ctx context.Context, eventID int64, dupeID *int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE events SET dupe_id = ?, updated_at = ? WHERE id = ?`,
		dupeID, time.Now().UTC(), eventID)
	if err != nil {
		return fmt.Errorf("failed to set dupe_id on event %d: %w", eventID, err)
	}
	return nil
}

// SetEventReviewStatus records the moderation decision mirror on the
// event row itself, used by the public listing exclusion filter.
func (db *DB) SetEventReviewStatus(ctx context.Context, eventID int64, review models.ReviewStatus, prep models.PrepStatus) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE events SET organization_status_review = ?, organization_status_prep = ?, updated_at = ? WHERE id = ?`,
		string(review), string(prep), time.Now().UTC(), eventID)
	if err != nil {
		return fmt.Errorf("failed to set review status on event %d: %w", eventID, err)
	}
	return nil
}

// CountEventsBySource returns the number of stored events for a source.
func (db *DB) CountEventsBySource(ctx context.Context, source string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE organization_source = ?`, source).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for source %s: %w", source, err)
	}
	return count, nil
}

// PublicEventFilter holds the filter options for the public listing.
type PublicEventFilter struct {
	// ExcludedReviewStatuses hides events whose moderation state is in
	// the set (e.g. questionable, limbo).
	ExcludedReviewStatuses []string

	// Title matches a case-insensitive substring.
	Title string

	StartsAfter  *time.Time
	StartsBefore *time.Time

	// Radius filtering: center point plus max distance in meters.
	Latitude    *float64
	Longitude   *float64
	MaxDistance *float64

	Limit  int
	Offset int
}

func (f PublicEventFilter) buildWhereClause() (string, []interface{}) {
	conditions := []string{
		"is_searchable = true",
		"is_private = false",
		"status = 'active'",
	}
	var args []interface{}

	if len(f.ExcludedReviewStatuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.ExcludedReviewStatuses)), ",")
		conditions = append(conditions, "organization_status_review NOT IN ("+placeholders+")")
		for _, s := range f.ExcludedReviewStatuses {
			args = append(args, s)
		}
	}
	if f.Title != "" {
		conditions = append(conditions, "lower(title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Title)+"%")
	}
	if f.StartsAfter != nil {
		conditions = append(conditions, "starts_at_utc >= ?")
		args = append(args, *f.StartsAfter)
	}
	if f.StartsBefore != nil {
		conditions = append(conditions, "starts_at_utc <= ?")
		args = append(args, *f.StartsBefore)
	}
	if f.Latitude != nil && f.Longitude != nil && f.MaxDistance != nil {
		// Haversine distance in meters; events without coordinates are
		// excluded from radius queries.
		conditions = append(conditions, `latitude IS NOT NULL AND longitude IS NOT NULL AND
			(12742000 * asin(sqrt(
				pow(sin(radians(latitude - ?) / 2), 2) +
				cos(radians(?)) * cos(radians(latitude)) *
				pow(sin(radians(longitude - ?) / 2), 2)
			))) <= ?`)
		args = append(args, *f.Latitude, *f.Latitude, *f.Longitude, *f.MaxDistance)
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (f PublicEventFilter) pagination() (int, int) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 25
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListPublicEvents returns publicly visible events and the total match
// count. Privacy flags are enforced here, not in the handler, so no call
// path can leak private events.
func (db *DB) ListPublicEvents(ctx context.Context, filter PublicEventFilter) ([]*models.Event, int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	whereClause, args := filter.buildWhereClause()

	var totalCount int64
	countQuery := "SELECT COUNT(*) FROM events" + whereClause
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count public events: %w", err)
	}

	limit, offset := filter.pagination()
	query := `SELECT ` + eventColumns + ` FROM events` + whereClause +
		` ORDER BY starts_at_utc NULLS LAST, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list public events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan public event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating public events: %w", err)
	}
	return events, totalCount, nil
}

// ResolveZipCentroid derives a representative point for a postal code
// from the coordinates of stored events in that zip. Returns ErrNotFound
// when no event carries coordinates for it.
func (db *DB) ResolveZipCentroid(ctx context.Context, zip string) (lat, lng float64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var avgLat, avgLng sql.NullFloat64
	err = db.conn.QueryRowContext(ctx,
		`SELECT avg(latitude), avg(longitude) FROM events
		 WHERE zip = ? AND latitude IS NOT NULL AND longitude IS NOT NULL`,
		zip).Scan(&avgLat, &avgLng)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve zip centroid: %w", err)
	}
	if !avgLat.Valid || !avgLng.Valid {
		return 0, 0, ErrNotFound
	}
	return avgLat.Float64, avgLng.Float64, nil
}
