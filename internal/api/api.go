// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package api exposes the HTTP surface: the public event listing, the
// ping pixel, the review endpoints, and the sync triggers.
//
// Authentication is an upstream concern: a fronting proxy establishes the
// caller and forwards identity in X-Reviewer / X-Review-Groups headers.
// This package only enforces the organization-scoped group authorization
// that the review service performs against ReviewGroup rows.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/models"
	"github.com/eventroller/eventroller/internal/review"
	"github.com/eventroller/eventroller/internal/scheduler"
)

// Identity headers filled in by the fronting auth proxy.
const (
	headerReviewer = "X-Reviewer"
	headerGroups   = "X-Review-Groups"
)

// EventStore is the read surface the public handlers need.
type EventStore interface {
	ListPublicEvents(ctx context.Context, filter database.PublicEventFilter) ([]*models.Event, int64, error)
	ResolveZipCentroid(ctx context.Context, zip string) (lat, lng float64, err error)
	Ping(ctx context.Context) error
}

// EventRefresher refreshes one event by its vendor key; satisfied by
// *syncer.Syncer.
type EventRefresher interface {
	SyncOne(ctx context.Context, sourceName, vendorPK string) error
}

// Handler holds the wired dependencies for all endpoints.
type Handler struct {
	cfg       *config.Config
	store     EventStore
	reviews   *review.Service
	scheduler *scheduler.Scheduler
	refresher EventRefresher
}

// NewHandler builds the handler set.
func NewHandler(cfg *config.Config, store EventStore, reviews *review.Service, sched *scheduler.Scheduler, refresher EventRefresher) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		reviews:   reviews,
		scheduler: sched,
		refresher: refresher,
	}
}

// identity extracts the proxied caller identity from a request.
func identity(r *http.Request) (reviewer string, groups []string) {
	reviewer = r.Header.Get(headerReviewer)
	raw := r.Header.Get(headerGroups)
	if raw == "" {
		return reviewer, nil
	}
	for _, g := range strings.Split(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return reviewer, groups
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// queryInt parses an integer query parameter, returning fallback on
// absence or garbage.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Health reports liveness plus database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
