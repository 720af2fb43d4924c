// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import "time"

// EventStatus is the three-state lifecycle of an imported event.
// Connectors map vendor-specific cancel/delete semantics onto it.
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusDeleted   EventStatus = "deleted"
)

// Valid reports whether s is one of the three known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusActive, EventStatusCancelled, EventStatusDeleted:
		return true
	}
	return false
}

// ReviewStatus is the moderation review state of an event.
// The empty string means "new" (never reviewed).
type ReviewStatus string

const (
	ReviewStatusNew          ReviewStatus = ""
	ReviewStatusReviewed     ReviewStatus = "reviewed"
	ReviewStatusVetted       ReviewStatus = "vetted"
	ReviewStatusQuestionable ReviewStatus = "questionable"
	ReviewStatusLimbo        ReviewStatus = "limbo"
)

// PrepStatus is the event-preparation workflow state.
// The empty string means "unclaimed".
type PrepStatus string

const (
	PrepStatusUnclaimed        PrepStatus = ""
	PrepStatusClaimed          PrepStatus = "claimed"
	PrepStatusPartiallyPrepped PrepStatus = "partially_prepped"
	PrepStatusFullyPrepped     PrepStatus = "fully_prepped"
	PrepStatusNoContact        PrepStatus = "nocontact"
)

// VenueCategory is a coarse classification of where an event happens.
type VenueCategory int

const (
	VenueUnknown VenueCategory = iota
	VenuePrivateHome
	VenuePublicSpace
	VenueTargetLocation
	VenueVirtual
)

// Event is the canonical representation of one external event instance.
//
// Identity is the natural key (OrganizationSource, OrganizationSourcePK),
// unique together; it is what the syncer matches on for upserts. The UTC
// time fields are computed independent of the record's stated time zone
// and are the join key for duplicate detection, since local time zones
// from vendors are unreliable.
type Event struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Spatial fields. Zip plus state are used for coarse dupe matching.
	Address1  string   `json:"address1,omitempty"`
	Address2  string   `json:"address2,omitempty"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	Zip       string   `json:"zip,omitempty"`
	Country   string   `json:"country,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Title string `json:"title"`
	Venue string `json:"venue,omitempty"`

	// Temporal fields. StartsAt/EndsAt are vendor-local wall times;
	// the UTC variants are authoritative for cross-source comparison.
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	StartsAtUTC *time.Time `json:"starts_at_utc,omitempty"`
	EndsAtUTC   *time.Time `json:"ends_at_utc,omitempty"`

	Status EventStatus `json:"status"`

	HostIsConfirmed bool `json:"host_is_confirmed"`
	IsPrivate       bool `json:"is_private"`
	IsSearchable    bool `json:"is_searchable"`

	AttendeeCount int  `json:"attendee_count"`
	MaxAttendees  *int `json:"max_attendees,omitempty"`

	PublicDescription string `json:"public_description,omitempty"`
	Directions        string `json:"directions,omitempty"`
	NoteToAttendees   string `json:"note_to_attendees,omitempty"`
	Phone             string `json:"phone,omitempty"`

	EventType     string        `json:"event_type,omitempty"`
	VenueCategory VenueCategory `json:"venue_category"`

	// OrganizationHostID references the Activist who hosts this event.
	// Host identity updates are intentionally sticky; see syncer.LikelySame.
	OrganizationHostID *int64 `json:"organization_host_id,omitempty"`

	Organization         string `json:"organization,omitempty"` // owning org slug
	OrganizationSource   string `json:"organization_source"`
	OrganizationSourcePK string `json:"organization_source_pk"`
	OrganizationCampaign string `json:"organization_campaign,omitempty"`

	URL     string `json:"url,omitempty"`
	Slug    string `json:"slug,omitempty"`
	RSVPURL string `json:"rsvp_url,omitempty"`

	// DupeID points at the Event this record duplicates. Invariant: if
	// set, it refers to a distinct Event and a confirmed EventDupeGuess
	// decision record exists justifying it.
	DupeID *int64 `json:"dupe_id,omitempty"`

	OrganizationStatusReview ReviewStatus `json:"organization_status_review"`
	OrganizationStatusPrep   PrepStatus   `json:"organization_status_prep"`

	// SourceJSON carries connector-specific extras (hosts list, raw ids,
	// corruption markers) that must survive round-trips opaquely.
	SourceJSON JSONMap `json:"source_json_data,omitempty"`
}
