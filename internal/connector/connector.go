// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package connector defines the capability contract every external event
// platform integration must implement, plus the registry that resolves
// configured connector types to constructors.
//
// The required surface is deliberately small (GetEvent, LoadEvents): most
// vendors only support pull-style polling. Richer vendors expose extra
// behavior through the optional capability interfaces; callers probe with
// a type assertion and treat absence as "feature unavailable", never as an
// error.
package connector

import (
	"context"

	"github.com/eventroller/eventroller/internal/models"
)

// LoadResult is the outcome of one pull: the normalized batch plus the
// new watermark. The watermark represents "now" from the connector's
// perspective, decoupled from any single event's timestamp, because some
// vendors define "updated" inconsistently across record types.
type LoadResult struct {
	Events      []*models.EventFields
	LastUpdated string
}

// Parameter describes one configuration key a connector accepts.
type Parameter struct {
	HelpText string
	Required bool
}

// Connector is the capability contract for one external event platform.
type Connector interface {
	// GetEvent fetches and normalizes exactly one external event by its
	// vendor-native identifier (numeric or URL-shaped). A valid id whose
	// record is gone returns (nil, nil): absence is distinguishable from
	// failure.
	GetEvent(ctx context.Context, eventID string) (*models.EventFields, error)

	// LoadEvents performs a full or incremental pull. When lastUpdated is
	// non-empty, only events the vendor reports as changed since that
	// watermark are returned (server-side filtering preferred, to bound
	// cost). maxEvents <= 0 means no cap.
	LoadEvents(ctx context.Context, maxEvents int, lastUpdated string) (*LoadResult, error)

	// Writable reports whether this connector can push changes upstream.
	Writable() bool

	// Parameters returns the configuration schema this connector accepts,
	// consumed generically by the registry and the settings layer.
	Parameters() map[string]Parameter
}

// ReviewWriter is implemented by connectors that can push a review status
// back to the vendor.
type ReviewWriter interface {
	UpdateReview(ctx context.Context, event *models.Event, review string) error
}

// HostLinker is implemented by connectors that can produce a
// host-facing management URL for an event.
type HostLinker interface {
	HostEventLink(event *models.Event) string
}

// AdminLinker is implemented by connectors that can produce a vendor
// admin URL for an event.
type AdminLinker interface {
	AdminEventLink(event *models.Event) string
}
