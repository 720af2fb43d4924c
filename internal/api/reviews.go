// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/models"
	"github.com/eventroller/eventroller/internal/review"
)

// saveReviewRequest is the POST body of the save endpoint.
type saveReviewRequest struct {
	ContentType string            `json:"content_type"`
	ObjectID    int64             `json:"pk"`
	Decisions   map[string]string `json:"decisions"`

	Log        string `json:"log,omitempty"`
	LogType    string `json:"log_type,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Visibility int    `json:"visibility,omitempty"`
}

func (h *Handler) reviewError(w http.ResponseWriter, err error) {
	if errors.Is(err, review.ErrNotAuthorized) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	logging.Error().Err(err).Msg("Review operation failed")
	writeError(w, http.StatusInternalServerError, "review operation failed")
}

// SaveReview records review decisions for one object.
// POST /api/v1/review/{organization}
func (h *Handler) SaveReview(w http.ResponseWriter, r *http.Request) {
	organization := chi.URLParam(r, "organization")
	reviewer, groups := identity(r)
	if reviewer == "" {
		writeError(w, http.StatusUnauthorized, "missing reviewer identity")
		return
	}

	var req saveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentType == "" || req.ObjectID == 0 {
		writeError(w, http.StatusBadRequest, "content_type and pk are required")
		return
	}

	saved, err := h.reviews.Save(r.Context(), review.SaveParams{
		Organization:    organization,
		Groups:          groups,
		ContentType:     req.ContentType,
		ObjectID:        req.ObjectID,
		Reviewer:        reviewer,
		Decisions:       req.Decisions,
		LogMessage:      req.Log,
		LogType:         models.LogType(req.LogType),
		Subject:         req.Subject,
		VisibilityLevel: req.Visibility,
	})
	if err != nil {
		h.reviewError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"saved": len(saved)})
}

// ReviewHistory returns folded decisions (and optional annotations) for
// a set of objects. GET /api/v1/review/{organization}/history?type=event&pks=1,2&logs=true
func (h *Handler) ReviewHistory(w http.ResponseWriter, r *http.Request) {
	organization := chi.URLParam(r, "organization")
	_, groups := identity(r)
	query := r.URL.Query()

	contentType := query.Get("type")
	if contentType == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	var objectIDs []int64
	for _, raw := range strings.Split(query.Get("pks"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pks must be a comma-separated list of ids")
			return
		}
		objectIDs = append(objectIDs, id)
	}
	if len(objectIDs) == 0 {
		writeError(w, http.StatusBadRequest, "pks is required")
		return
	}

	withLogs := query.Get("logs") == "true"
	history, err := h.reviews.History(r.Context(), organization, groups, contentType, objectIDs, withLogs)
	if err != nil {
		h.reviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"objects": history})
}

// CurrentReviewState serves the recent-activity snapshot for polling
// clients. GET /api/v1/review/{organization}/current?num=12
func (h *Handler) CurrentReviewState(w http.ResponseWriter, r *http.Request) {
	organization := chi.URLParam(r, "organization")
	_, groups := identity(r)

	state, err := h.reviews.CurrentState(r.Context(), organization, groups, queryInt(r, "num", 0))
	if err != nil {
		h.reviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": state})
}

type focusRequest struct {
	ContentType string `json:"content_type"`
	ObjectID    int64  `json:"pk"`
}

// MarkFocus registers reviewer presence on an object.
// POST /api/v1/review/{organization}/focus
func (h *Handler) MarkFocus(w http.ResponseWriter, r *http.Request) {
	h.focus(w, r, h.reviews.MarkFocus)
}

// ClearFocus removes reviewer presence from an object.
// DELETE /api/v1/review/{organization}/focus
func (h *Handler) ClearFocus(w http.ResponseWriter, r *http.Request) {
	h.focus(w, r, h.reviews.ClearFocus)
}

func (h *Handler) focus(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, organization string, groups []string, contentType string, objectID int64, reviewer string) error) {
	organization := chi.URLParam(r, "organization")
	reviewer, groups := identity(r)
	if reviewer == "" {
		writeError(w, http.StatusUnauthorized, "missing reviewer identity")
		return
	}

	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ContentType == "" || req.ObjectID == 0 {
		writeError(w, http.StatusBadRequest, "content_type and pk are required")
		return
	}

	if err := op(r.Context(), organization, groups, req.ContentType, req.ObjectID, reviewer); err != nil {
		h.reviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListFocus returns live presence marks.
// GET /api/v1/review/{organization}/focus
func (h *Handler) ListFocus(w http.ResponseWriter, r *http.Request) {
	organization := chi.URLParam(r, "organization")
	_, groups := identity(r)

	marks, err := h.reviews.Focus(r.Context(), organization, groups)
	if err != nil {
		h.reviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"focus": marks})
}
