// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/eventroller/eventroller/internal/models"
)

// RunDueSyncs triggers a pass over every source of one cadence.
// POST /api/v1/sync/run?style=hourly|daily
func (h *Handler) RunDueSyncs(w http.ResponseWriter, r *http.Request) {
	var style models.UpdateStyle
	switch r.URL.Query().Get("style") {
	case "", "hourly":
		style = models.UpdateHourly
	case "daily":
		style = models.UpdateDaily
	default:
		writeError(w, http.StatusBadRequest, "style must be hourly or daily")
		return
	}

	results := h.scheduler.RunDue(r.Context(), style)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type runSourceRequest struct {
	// LastUpdate overrides the stored watermark for this pass.
	LastUpdate string `json:"last_update,omitempty"`
	// FromStart clears the watermark first, re-pulling full history.
	FromStart bool `json:"from_start,omitempty"`
}

// RunSourceSync triggers one pass for a named source.
// POST /api/v1/sync/run/{source}
func (h *Handler) RunSourceSync(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var req runSourceRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.scheduler.RunSource(r.Context(), source, req.LastUpdate, req.FromStart)
	if err != nil {
		if strings.Contains(err.Error(), "already running") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
