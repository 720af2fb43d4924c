// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package database

import "fmt"

// schemaStatements creates all tables, sequences, and indexes. Statements
// are idempotent so startup can always run the full list.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_organizations_id`,
	`CREATE TABLE IF NOT EXISTS organizations (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_organizations_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		title VARCHAR NOT NULL,
		slug VARCHAR NOT NULL UNIQUE,
		url VARCHAR NOT NULL DEFAULT '',
		osdi_source_id VARCHAR NOT NULL DEFAULT ''
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_event_sources_id`,
	`CREATE TABLE IF NOT EXISTS event_sources (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_event_sources_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		name VARCHAR NOT NULL UNIQUE,
		organization VARCHAR NOT NULL DEFAULT '',
		osdi_name VARCHAR NOT NULL DEFAULT '',
		crm_type VARCHAR NOT NULL,
		data_json VARCHAR,
		update_style INTEGER NOT NULL DEFAULT 0,
		allows_updates BOOLEAN NOT NULL DEFAULT false,
		last_update VARCHAR NOT NULL DEFAULT ''
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_activists_id`,
	`CREATE TABLE IF NOT EXISTS activists (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_activists_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		member_system VARCHAR NOT NULL,
		member_system_pk VARCHAR NOT NULL,
		name VARCHAR NOT NULL DEFAULT '',
		email VARCHAR NOT NULL DEFAULT '',
		hashed_email VARCHAR NOT NULL DEFAULT '',
		phone VARCHAR NOT NULL DEFAULT '',
		UNIQUE (member_system, member_system_pk)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_events_id`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_events_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		address1 VARCHAR NOT NULL DEFAULT '',
		address2 VARCHAR NOT NULL DEFAULT '',
		city VARCHAR NOT NULL DEFAULT '',
		state VARCHAR NOT NULL DEFAULT '',
		zip VARCHAR NOT NULL DEFAULT '',
		country VARCHAR NOT NULL DEFAULT '',
		latitude DOUBLE,
		longitude DOUBLE,
		title VARCHAR NOT NULL DEFAULT '',
		venue VARCHAR NOT NULL DEFAULT '',
		starts_at TIMESTAMP,
		ends_at TIMESTAMP,
		starts_at_utc TIMESTAMP,
		ends_at_utc TIMESTAMP,
		status VARCHAR NOT NULL DEFAULT 'active',
		host_is_confirmed BOOLEAN NOT NULL DEFAULT false,
		is_private BOOLEAN NOT NULL DEFAULT false,
		is_searchable BOOLEAN NOT NULL DEFAULT false,
		attendee_count INTEGER NOT NULL DEFAULT 0,
		max_attendees INTEGER,
		public_description VARCHAR NOT NULL DEFAULT '',
		directions VARCHAR NOT NULL DEFAULT '',
		note_to_attendees VARCHAR NOT NULL DEFAULT '',
		phone VARCHAR NOT NULL DEFAULT '',
		event_type VARCHAR NOT NULL DEFAULT '',
		venue_category INTEGER NOT NULL DEFAULT 0,
		organization_host_id BIGINT,
		organization VARCHAR NOT NULL DEFAULT '',
		organization_source VARCHAR NOT NULL,
		organization_source_pk VARCHAR NOT NULL,
		organization_campaign VARCHAR NOT NULL DEFAULT '',
		url VARCHAR NOT NULL DEFAULT '',
		slug VARCHAR NOT NULL DEFAULT '',
		rsvp_url VARCHAR NOT NULL DEFAULT '',
		dupe_id BIGINT,
		organization_status_review VARCHAR NOT NULL DEFAULT '',
		organization_status_prep VARCHAR NOT NULL DEFAULT '',
		source_json_data VARCHAR,
		UNIQUE (organization_source, organization_source_pk)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_dupe_key ON events (zip, starts_at_utc)`,
	`CREATE INDEX IF NOT EXISTS idx_events_status ON events (status)`,
	`CREATE INDEX IF NOT EXISTS idx_events_updated_at ON events (updated_at)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_event_dupe_guesses_id`,
	`CREATE TABLE IF NOT EXISTS event_dupe_guesses (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_event_dupe_guesses_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		source_event_id BIGINT NOT NULL,
		dupe_event_id BIGINT NOT NULL,
		decision INTEGER NOT NULL DEFAULT 0,
		decided_by VARCHAR NOT NULL DEFAULT '',
		decided_at TIMESTAMP,
		UNIQUE (source_event_id, dupe_event_id)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_reviews_id`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_reviews_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		content_type VARCHAR NOT NULL,
		object_id BIGINT NOT NULL,
		organization VARCHAR NOT NULL,
		reviewer VARCHAR NOT NULL,
		review_key VARCHAR NOT NULL DEFAULT 'review',
		decision VARCHAR NOT NULL,
		visibility_level INTEGER NOT NULL DEFAULT 0,
		obsoleted_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_current
		ON reviews (organization, content_type, object_id, review_key)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_review_logs_id`,
	`CREATE TABLE IF NOT EXISTS review_logs (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_review_logs_id'),
		created_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
		content_type VARCHAR NOT NULL,
		object_id BIGINT NOT NULL,
		organization VARCHAR NOT NULL,
		reviewer VARCHAR NOT NULL,
		log_type VARCHAR NOT NULL DEFAULT 'note',
		subject VARCHAR NOT NULL DEFAULT '',
		message VARCHAR NOT NULL,
		visibility_level INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_review_logs_object
		ON review_logs (organization, content_type, object_id)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_review_groups_id`,
	`CREATE TABLE IF NOT EXISTS review_groups (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_review_groups_id'),
		organization VARCHAR NOT NULL,
		group_name VARCHAR NOT NULL,
		visibility_level INTEGER NOT NULL DEFAULT 0,
		UNIQUE (organization, group_name)
	)`,
}

// initSchema runs all schema statements.
func (db *DB) initSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}
