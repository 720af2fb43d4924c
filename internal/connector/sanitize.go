// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package connector

import (
	"strings"

	"github.com/eventroller/eventroller/internal/models"
)

// corruptionMarker is set in EventFields.Extra when any field needed
// repair, so reviewers can spot records whose vendor data was mangled.
const corruptionMarker = "possible_corruption"

// usStateCodes maps full US state names to their two-letter codes, for
// vendors that send "Illinois" where a code is expected.
var usStateCodes = map[string]string{
	"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR",
	"CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE",
	"DISTRICT OF COLUMBIA": "DC", "FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI",
	"IDAHO": "ID", "ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA",
	"KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME",
	"MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN",
	"MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE",
	"NEVADA": "NV", "NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM",
	"NEW YORK": "NY", "NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH",
	"OKLAHOMA": "OK", "OREGON": "OR", "PENNSYLVANIA": "PA", "PUERTO RICO": "PR",
	"RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD",
	"TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT",
	"VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV",
	"WISCONSIN": "WI", "WYOMING": "WY",
}

// cleanString strips null bytes and non-printable control characters
// (null-byte injection shows up in real vendor exports). Newlines and
// tabs survive. Returns the cleaned string and whether anything changed.
func cleanString(s string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return cleaned, cleaned != s
}

// normalizeState coerces a vendor state value to a two-letter code.
// Unparseable values come back empty with dirty=true rather than
// rejecting the record; field-level tolerance, not record-level.
func normalizeState(s string) (code string, dirty bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return "", false
	}
	if len(trimmed) == 2 {
		return trimmed, false
	}
	if code, ok := usStateCodes[trimmed]; ok {
		return code, false
	}
	return "", true
}

// Sanitize repairs malformed vendor data on a normalized record in place.
// When any field needed repair, a corruption marker is added to the
// opaque extras so the mangling is visible downstream.
func Sanitize(f *models.EventFields) {
	dirty := false
	clean := func(dst *string) {
		cleaned, changed := cleanString(*dst)
		if changed {
			*dst = cleaned
			dirty = true
		}
	}

	clean(&f.Title)
	clean(&f.Venue)
	clean(&f.Address1)
	clean(&f.Address2)
	clean(&f.City)
	clean(&f.Zip)
	clean(&f.Country)
	clean(&f.PublicDescription)
	clean(&f.Directions)
	clean(&f.NoteToAttendees)
	clean(&f.Phone)

	state, stateDirty := normalizeState(f.State)
	f.State = state
	if stateDirty {
		dirty = true
	}

	if f.Host != nil {
		clean(&f.Host.Name)
		clean(&f.Host.Email)
		clean(&f.Host.Phone)
	}

	if dirty {
		if f.Extra == nil {
			f.Extra = models.JSONMap{}
		}
		f.Extra[corruptionMarker] = true
	}
}
