// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package connector

import (
	"strings"
	"testing"

	"github.com/eventroller/eventroller/internal/models"
)

func TestRegistryKnown(t *testing.T) {
	known := Known()
	found := false
	for _, name := range known {
		if name == "rest" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rest connector not registered; known = %v", known)
	}
}

func TestNewUnknownType(t *testing.T) {
	src := &models.EventSource{Name: "bad", CRMType: "carrier_pigeon"}
	_, err := New(src, nil)
	if err == nil {
		t.Fatal("expected error for unknown connector type")
	}
	if !strings.Contains(err.Error(), "carrier_pigeon") {
		t.Errorf("error should name the unknown type: %v", err)
	}
}

func TestNewMissingRequiredParams(t *testing.T) {
	src := &models.EventSource{Name: "incomplete", CRMType: "rest"}
	_, err := New(src, map[string]string{"endpoint": "https://example.com/api"})
	if err == nil {
		t.Fatal("expected error for missing api_key")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("error should name the missing parameter: %v", err)
	}
}

func TestNewValidSource(t *testing.T) {
	src := &models.EventSource{Name: "ok", CRMType: "rest"}
	c, err := New(src, map[string]string{
		"endpoint": "https://example.com/api",
		"api_key":  "secret",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := c.Parameters()
	if !params["endpoint"].Required || !params["api_key"].Required {
		t.Error("endpoint and api_key should be required in the schema")
	}
	if params["campaign"].Required {
		t.Error("campaign should be optional")
	}
}

func TestSchemaWithoutConstruction(t *testing.T) {
	params, err := Schema("rest")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if params["endpoint"].HelpText == "" {
		t.Error("schema entries should carry help text")
	}
	if _, err := Schema("nope"); err == nil {
		t.Error("expected error for unknown type")
	}
}
