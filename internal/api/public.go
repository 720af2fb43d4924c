// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/models"
)

// publicEvent is the wire shape of one listed event. Moderation fields
// and the raw vendor payload never leave the server.
type publicEvent struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Venue    string `json:"venue,omitempty"`
	Address1 string `json:"address1,omitempty"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	StartsAtUTC *time.Time `json:"starts_at_utc,omitempty"`

	PublicDescription string `json:"public_description,omitempty"`
	EventType         string `json:"event_type,omitempty"`
	URL               string `json:"url,omitempty"`
	RSVPURL           string `json:"rsvp_url,omitempty"`

	AttendeeCount int  `json:"attendee_count"`
	MaxAttendees  *int `json:"max_attendees,omitempty"`
}

func toPublicEvent(e *models.Event) *publicEvent {
	return &publicEvent{
		ID:                e.ID,
		Title:             e.Title,
		Venue:             e.Venue,
		Address1:          e.Address1,
		Address2:          e.Address2,
		City:              e.City,
		State:             e.State,
		Zip:               e.Zip,
		Latitude:          e.Latitude,
		Longitude:         e.Longitude,
		StartsAt:          e.StartsAt,
		EndsAt:            e.EndsAt,
		StartsAtUTC:       e.StartsAtUTC,
		PublicDescription: e.PublicDescription,
		EventType:         e.EventType,
		URL:               e.URL,
		RSVPURL:           e.RSVPURL,
		AttendeeCount:     e.AttendeeCount,
		MaxAttendees:      e.MaxAttendees,
	}
}

// filterSetters is the field-name translation table for the public
// listing: external query parameter to filter mutation. Parameters
// outside the table are ignored, never an error, so clients can send
// vendor-specific extras without breaking. A value that fails to parse is
// dropped the same way; only an incomplete radius request is rejected.
var filterSetters = map[string]func(f *database.PublicEventFilter, value string) error{
	"title": func(f *database.PublicEventFilter, v string) error {
		f.Title = v
		return nil
	},
	"starts_after": func(f *database.PublicEventFilter, v string) error {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errors.New("starts_after must be RFC 3339")
		}
		f.StartsAfter = &t
		return nil
	},
	"starts_before": func(f *database.PublicEventFilter, v string) error {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errors.New("starts_before must be RFC 3339")
		}
		f.StartsBefore = &t
		return nil
	},
	"distance_coords": func(f *database.PublicEventFilter, v string) error {
		parts := strings.Split(v, ",")
		if len(parts) != 2 {
			return errors.New("distance_coords must be lat,lng")
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errLat != nil || errLng != nil {
			return errors.New("distance_coords must be lat,lng")
		}
		f.Latitude = &lat
		f.Longitude = &lng
		return nil
	},
	"distance_max": func(f *database.PublicEventFilter, v string) error {
		meters, err := strconv.ParseFloat(v, 64)
		if err != nil || meters <= 0 {
			return errors.New("distance_max must be a positive number of meters")
		}
		f.MaxDistance = &meters
		return nil
	},
}

// PublicEvents lists publicly visible events with optional filtering and
// radius search. GET /api/v1/events
func (h *Handler) PublicEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := database.PublicEventFilter{
		ExcludedReviewStatuses: h.cfg.Public.ExcludedReviewStatuses,
	}
	for name, setter := range filterSetters {
		if v := query.Get(name); v != "" {
			if err := setter(&filter, v); err != nil {
				// A malformed value degrades like an unknown parameter:
				// drop the filter, serve the rest of the query.
				logging.Debug().Err(err).Str("filter", name).Str("value", v).
					Msg("Ignoring malformed public listing filter")
			}
		}
	}

	// A postal code stands in for a center point when no coordinates
	// were given.
	if zip := query.Get("distance_postal_code"); zip != "" && filter.Latitude == nil {
		lat, lng, err := h.store.ResolveZipCentroid(ctx, zip)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "unknown postal code: "+zip)
				return
			}
			logging.Error().Err(err).Str("zip", zip).Msg("Failed to resolve postal code centroid")
			writeError(w, http.StatusInternalServerError, "failed to resolve postal code")
			return
		}
		filter.Latitude = &lat
		filter.Longitude = &lng
	}
	if filter.Latitude != nil && filter.MaxDistance == nil {
		writeError(w, http.StatusBadRequest, "distance filtering requires distance_max")
		return
	}

	pageSize := queryInt(r, "page_size", h.cfg.Public.PageSize)
	if pageSize < 1 {
		pageSize = h.cfg.Public.PageSize
	}
	if pageSize > h.cfg.Public.MaxPageSize {
		pageSize = h.cfg.Public.MaxPageSize
	}
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	events, total, err := h.store.ListPublicEvents(ctx, filter)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list public events")
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	out := make([]*publicEvent, 0, len(events))
	for _, e := range events {
		out = append(out, toPublicEvent(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":      out,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}
