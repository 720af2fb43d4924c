// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import "time"

// DupeDecision is a reviewer's verdict on a duplicate guess.
type DupeDecision int

const (
	DupeUndecided    DupeDecision = 0
	DupeNotDuplicate DupeDecision = 1
	DupeConfirmed    DupeDecision = 2
)

// String returns the reviewer-facing label for the decision.
func (d DupeDecision) String() string {
	switch d {
	case DupeUndecided:
		return "undecided"
	case DupeNotDuplicate:
		return "not a duplicate"
	case DupeConfirmed:
		return "yes, duplicates"
	}
	return "unknown"
}

// EventDupeGuess is a system-suggested pairing of two events believed to
// denote the same real-world happening. Unique on (SourceEventID,
// DupeEventID); pairs are always recorded with the lower event id as the
// source, so each unordered pair appears exactly once.
//
// Rows are created only by the duplicate detector and decided only by a
// human reviewer. They are never auto-deleted: a decided guess stands as
// the audit trail justifying (or refusing) an Event.DupeID pointer.
type EventDupeGuess struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SourceEventID int64 `json:"source_event_id"`
	DupeEventID   int64 `json:"dupe_event_id"`

	Decision  DupeDecision `json:"decision"`
	DecidedBy string       `json:"decided_by,omitempty"`
	DecidedAt *time.Time   `json:"decided_at,omitempty"`
}

// DupeGroup is one set of events sharing a (zip, starts_at_utc) collision
// key, as found by the detector.
type DupeGroup struct {
	Zip         string    `json:"zip"`
	StartsAtUTC time.Time `json:"starts_at_utc"`
	EventIDs    []int64   `json:"event_ids"`
}
