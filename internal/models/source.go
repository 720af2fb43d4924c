// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import "time"

// UpdateStyle is the sync cadence configured for an EventSource.
type UpdateStyle int

const (
	// UpdateManual sources are only synced by explicit operator request.
	UpdateManual UpdateStyle = 0
	// UpdatePing sources are refreshed one event at a time by the public
	// ping pixel. A ping never advances the source watermark.
	UpdatePing UpdateStyle = 1
	// UpdatePingWithReference is like UpdatePing but the ping carries the
	// vendor event reference.
	UpdatePingWithReference UpdateStyle = 2
	// UpdateDaily sources are pulled once per day by the scheduler.
	UpdateDaily UpdateStyle = 3
	// UpdateHourly sources are pulled once per hour by the scheduler.
	UpdateHourly UpdateStyle = 4
)

// Valid reports whether s is a known cadence.
func (s UpdateStyle) Valid() bool {
	return s >= UpdateManual && s <= UpdateHourly
}

// String returns the admin-facing label for the cadence.
func (s UpdateStyle) String() string {
	switch s {
	case UpdateManual:
		return "manual only"
	case UpdatePing:
		return "ping"
	case UpdatePingWithReference:
		return "ping with event reference"
	case UpdateDaily:
		return "daily pull"
	case UpdateHourly:
		return "hourly"
	}
	return "unknown"
}

// EventSource is the configuration entity for one external system events
// are pulled from.
//
// Data is the opaque connector configuration bag. It is resolved
// preferentially from static configuration (keyed by source name) and only
// falls back to the persisted column, so deployments can keep credentials
// out of the database entirely. See config.SourceData.
//
// LastUpdate is the sync watermark: an opaque string whose meaning is
// connector-specific (a timestamp for some vendors, a cursor for others).
// It advances only when a full sync pass completes; advancing it is the
// commit signal for the pass.
type EventSource struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name         string `json:"name"` // unique key
	Organization string `json:"organization"`
	OSDIName     string `json:"osdi_name,omitempty"`

	// CRMType selects the connector variant in the registry.
	CRMType string `json:"crm_type"`

	Data map[string]string `json:"-"` // never serialized; may hold secrets

	UpdateStyle   UpdateStyle `json:"update_style"`
	AllowsUpdates bool        `json:"allows_updates"` // writable as a review sink

	LastUpdate string `json:"last_update"`
}

// Organization owns event sources and review scopes. Slug is the stable
// key used in URLs and review group membership.
type Organization struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Title string `json:"title"`
	Slug  string `json:"slug"`
	URL   string `json:"url,omitempty"`

	OSDISourceID string `json:"osdi_source_id,omitempty"`
}
