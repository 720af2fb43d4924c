// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import "time"

// LogType classifies a ReviewLog annotation.
type LogType string

const (
	LogTypeNote        LogType = "note"
	LogTypeBulkNote    LogType = "bulknote"
	LogTypeMessage     LogType = "message"
	LogTypeBulkMessage LogType = "bulkmsg"
)

// Review is one decision for a (content type, object, key) triple within
// an organization.
//
// Rows are never mutated after creation. A newer decision for the same
// (object, key) obsoletes the prior row by stamping ObsoletedAt, so
// "current state" is the cheap filter obsoleted_at IS NULL while the full
// history stays queryable.
type Review struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ContentType string `json:"content_type"` // e.g. "event"
	ObjectID    int64  `json:"object_id"`

	Organization string `json:"organization"` // org slug
	Reviewer     string `json:"reviewer"`

	// Key allows multiple independent decisions per object, e.g.
	// "review_status" and "prep_status".
	Key      string `json:"key"`
	Decision string `json:"decision"`

	VisibilityLevel int        `json:"visibility_level"`
	ObsoletedAt     *time.Time `json:"obsoleted_at,omitempty"`
}

// ReviewLog is a free-text annotation attached to an object. Always
// additive; VisibilityLevel gates who can read it back.
type ReviewLog struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ContentType string `json:"content_type"`
	ObjectID    int64  `json:"object_id"`

	Organization string `json:"organization"`
	Reviewer     string `json:"reviewer"`

	LogType LogType `json:"log_type"`
	Subject string  `json:"subject,omitempty"`
	Message string  `json:"message"`

	VisibilityLevel int `json:"visibility_level"`
}

// ReviewGroup links a user group to the organizations it may review for.
// VisibilityLevel is the access tier: 0 is the lowest; higher tiers see
// reviews and notes stamped at or below their level.
type ReviewGroup struct {
	ID           int64  `json:"id"`
	Organization string `json:"organization"`
	Group        string `json:"group"`

	VisibilityLevel int `json:"visibility_level"`
}

// ReviewSnapshot is the fast-path "current decisions for one object"
// value served to polling clients: the latest decision per key folded
// into a single map.
type ReviewSnapshot struct {
	ContentType string            `json:"type"`
	ObjectID    int64             `json:"pk"`
	Decisions   map[string]string `json:"decisions"`
}

// FocusMark is the ephemeral "who is looking at what" presence record.
// Advisory UI-only information, never authoritative.
type FocusMark struct {
	ContentType string `json:"type"`
	ObjectID    int64  `json:"pk"`
	Reviewer    string `json:"name"`
	MarkedAt    int64  `json:"ts"` // epoch seconds
}
