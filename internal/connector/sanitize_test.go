// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package connector

import (
	"testing"

	"github.com/eventroller/eventroller/internal/models"
)

func TestSanitizeNullBytes(t *testing.T) {
	f := &models.EventFields{Title: "House\x00 Meeting", State: "IL"}
	Sanitize(f)
	if f.Title != "House Meeting" {
		t.Errorf("title = %q, want null byte stripped", f.Title)
	}
	if f.Extra[corruptionMarker] != true {
		t.Error("corruption marker should be set after repair")
	}
}

func TestSanitizeCleanRecordUntouched(t *testing.T) {
	f := &models.EventFields{
		Title: "Rally at the Capitol\nBring signs",
		State: "IL",
		Extra: models.JSONMap{"vendor_id": "7"},
	}
	Sanitize(f)
	if f.Title != "Rally at the Capitol\nBring signs" {
		t.Errorf("newlines should survive, got %q", f.Title)
	}
	if _, marked := f.Extra[corruptionMarker]; marked {
		t.Error("clean record must not be flagged")
	}
}

func TestSanitizeStateNormalization(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      string
		corrupted bool
	}{
		{"code kept", "IL", "IL", false},
		{"lowercase code", "il", "IL", false},
		{"full name", "Illinois", "IL", false},
		{"garbage dropped", "Narnia", "", true},
		{"empty kept", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &models.EventFields{State: tt.in}
			Sanitize(f)
			if f.State != tt.want {
				t.Errorf("state = %q, want %q", f.State, tt.want)
			}
			_, marked := f.Extra[corruptionMarker]
			if marked != tt.corrupted {
				t.Errorf("corruption marker = %v, want %v", marked, tt.corrupted)
			}
		})
	}
}

func TestSanitizeHostFields(t *testing.T) {
	f := &models.EventFields{
		State: "CA",
		Host:  &models.HostFields{Name: "Pat\x00 Doe", Email: "pat@example.com"},
	}
	Sanitize(f)
	if f.Host.Name != "Pat Doe" {
		t.Errorf("host name = %q", f.Host.Name)
	}
	if f.Host.Email != "pat@example.com" {
		t.Errorf("host email changed: %q", f.Host.Email)
	}
}
