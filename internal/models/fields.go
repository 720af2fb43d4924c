// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// JSONMap is an opaque JSON object column. Connector-specific extras ride
// in it and must survive round-trips unmodified.
type JSONMap map[string]interface{}

// Value implements driver.Valuer, serializing the map to JSON text.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json map: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSON text or bytes.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// EventFields is the normalized record a connector emits for one external
// event: every canonical Event attribute a vendor can supply, plus the
// unsaved host identity. It is a pure value object; the syncer decides
// whether it becomes an insert, an update, or a no-op.
type EventFields struct {
	// SourcePK is the vendor-native identifier (numeric id, URL, slug).
	// It becomes Event.OrganizationSourcePK.
	SourcePK string

	Address1  string
	Address2  string
	City      string
	State     string
	Zip       string
	Country   string
	Latitude  *float64
	Longitude *float64

	Title string
	Venue string

	StartsAt    *time.Time
	EndsAt      *time.Time
	StartsAtUTC *time.Time
	EndsAtUTC   *time.Time

	Status EventStatus

	HostIsConfirmed bool
	IsPrivate       bool
	IsSearchable    bool

	AttendeeCount int
	MaxAttendees  *int

	PublicDescription string
	Directions        string
	NoteToAttendees   string
	Phone             string

	EventType     string
	VenueCategory VenueCategory

	Campaign string
	URL      string
	Slug     string
	RSVPURL  string

	// Host is the unsaved host identity, or nil when the vendor supplied
	// no organizer.
	Host *HostFields

	// Extra is carried into Event.SourceJSON opaquely.
	Extra JSONMap
}

// ApplyTo copies the normalized fields onto an Event row, leaving
// moderation fields (dupe_id, review/prep status) and the host reference
// untouched; those are owned by reviewers and the host reconciler
// respectively. Returns true if any field actually changed.
func (f *EventFields) ApplyTo(e *Event) bool {
	changed := false

	setStr := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setBool := func(dst *bool, v bool) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	setTime := func(dst **time.Time, v *time.Time) {
		if !timePtrEqual(*dst, v) {
			*dst = v
			changed = true
		}
	}
	setFloat := func(dst **float64, v *float64) {
		if !floatPtrEqual(*dst, v) {
			*dst = v
			changed = true
		}
	}

	setStr(&e.Address1, f.Address1)
	setStr(&e.Address2, f.Address2)
	setStr(&e.City, f.City)
	setStr(&e.State, f.State)
	setStr(&e.Zip, f.Zip)
	setStr(&e.Country, f.Country)
	setFloat(&e.Latitude, f.Latitude)
	setFloat(&e.Longitude, f.Longitude)
	setStr(&e.Title, f.Title)
	setStr(&e.Venue, f.Venue)
	setTime(&e.StartsAt, f.StartsAt)
	setTime(&e.EndsAt, f.EndsAt)
	setTime(&e.StartsAtUTC, f.StartsAtUTC)
	setTime(&e.EndsAtUTC, f.EndsAtUTC)

	if e.Status != f.Status {
		e.Status = f.Status
		changed = true
	}

	setBool(&e.HostIsConfirmed, f.HostIsConfirmed)
	setBool(&e.IsPrivate, f.IsPrivate)
	setBool(&e.IsSearchable, f.IsSearchable)

	if e.AttendeeCount != f.AttendeeCount {
		e.AttendeeCount = f.AttendeeCount
		changed = true
	}
	if !intPtrEqual(e.MaxAttendees, f.MaxAttendees) {
		e.MaxAttendees = f.MaxAttendees
		changed = true
	}

	setStr(&e.PublicDescription, f.PublicDescription)
	setStr(&e.Directions, f.Directions)
	setStr(&e.NoteToAttendees, f.NoteToAttendees)
	setStr(&e.Phone, f.Phone)
	setStr(&e.EventType, f.EventType)

	if e.VenueCategory != f.VenueCategory {
		e.VenueCategory = f.VenueCategory
		changed = true
	}

	setStr(&e.OrganizationCampaign, f.Campaign)
	setStr(&e.URL, f.URL)
	setStr(&e.Slug, f.Slug)
	setStr(&e.RSVPURL, f.RSVPURL)

	if f.Extra != nil {
		if !jsonMapEqual(e.SourceJSON, f.Extra) {
			e.SourceJSON = f.Extra
			changed = true
		}
	}

	return changed
}

// NewEvent builds a fresh Event row from the normalized fields for the
// given source. Moderation fields start at their zero values.
func (f *EventFields) NewEvent(source *EventSource) *Event {
	e := &Event{
		OrganizationSource:   source.Name,
		OrganizationSourcePK: f.SourcePK,
		Organization:         source.Organization,
	}
	f.ApplyTo(e)
	return e
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func jsonMapEqual(a, b JSONMap) bool {
	if len(a) != len(b) {
		return false
	}
	// Compare via serialization; the payloads are small and this keeps
	// nested values handled uniformly.
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
