// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Activist is the organizer-of-record identity for events, scoped to one
// EventSource via (MemberSystem, MemberSystemPK), unique together.
//
// Activist rows are upserted whenever a sync observes a host and are never
// deleted: vendor contact data is frequently incomplete or stale per
// record, so the row holds the best-known values seen so far.
type Activist struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// MemberSystem is the EventSource name this identity belongs to.
	MemberSystem   string `json:"member_system"`
	MemberSystemPK string `json:"member_system_pk"`

	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	HashedEmail string `json:"hashed_email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// HostFields is the unsaved host-identity value object a connector emits
// with an event. Persistence is the syncer's job, keeping connectors
// side-effect-free.
type HostFields struct {
	MemberSystemPK string `json:"member_system_pk"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	HashedEmail    string `json:"hashed_email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// IsZero reports whether no identity signal is present at all.
func (h *HostFields) IsZero() bool {
	return h == nil || (h.MemberSystemPK == "" && h.Name == "" &&
		h.Email == "" && h.HashedEmail == "" && h.Phone == "")
}

// HashEmail returns the lowercase hex SHA-256 of a normalized email
// address. Sources that refuse to share raw addresses can still be
// cross-matched on the hash.
func HashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
