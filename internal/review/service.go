// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package review implements the two-tier review store: a durable
// append/obsolete log in the database and a volatile in-process fast path
// serving polling clients. The log is authoritative; the fast path is an
// optimization that self-heals from the log on cold start.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/metrics"
	"github.com/eventroller/eventroller/internal/models"
)

// ErrNotAuthorized is returned when none of the caller's groups grant
// review access to the organization.
var ErrNotAuthorized = errors.New("no review group grants access to this organization")

// ContentTypeEvent is the content type whose decisions feed back onto the
// event row itself.
const ContentTypeEvent = "event"

// Review keys that mirror onto event moderation columns.
const (
	KeyReviewStatus = "review_status"
	KeyPrepStatus   = "prep_status"
)

// Store is the storage surface the review service needs.
type Store interface {
	VisibilityForGroups(ctx context.Context, organization string, groups []string) (int, bool, error)
	SaveReview(ctx context.Context, p database.SaveReviewParams) ([]*models.Review, error)
	CurrentReviews(ctx context.Context, organization string, limit int) ([]*models.Review, error)
	ReviewsForObjects(ctx context.Context, organization, contentType string, objectIDs []int64) ([]*models.Review, error)
	ReviewLogsForObject(ctx context.Context, organization, contentType string, objectID int64, maxVisibility int) ([]*models.ReviewLog, error)

	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	SetEventReviewStatus(ctx context.Context, eventID int64, review models.ReviewStatus, prep models.PrepStatus) error
}

// UpstreamWriter pushes a review decision back to the vendor system that
// owns the event, when that system accepts writes.
type UpstreamWriter interface {
	PushReview(ctx context.Context, event *models.Event, review string) error
}

// SaveParams collects one save_review call.
type SaveParams struct {
	Organization string
	// Groups are the caller's group memberships, checked against
	// ReviewGroup rows before anything is written.
	Groups []string

	ContentType string
	ObjectID    int64
	Reviewer    string
	Decisions   map[string]string

	LogMessage string
	LogType    models.LogType
	Subject    string

	VisibilityLevel int
}

// ObjectHistory is the per-object answer of get_review_history: current
// decisions folded to the newest per key, plus optional annotations.
type ObjectHistory struct {
	ContentType string              `json:"type"`
	ObjectID    int64               `json:"pk"`
	Decisions   map[string]string   `json:"decisions"`
	Logs        []*models.ReviewLog `json:"logs,omitempty"`
}

// Service coordinates the durable review log and the fast path.
type Service struct {
	store Store
	cfg   *config.Config
	fast  *fastStore

	// upstream is optional; nil disables vendor write-back.
	upstream UpstreamWriter
}

// NewService builds the review service.
func NewService(store Store, cfg *config.Config, upstream UpstreamWriter) *Service {
	return &Service{
		store:    store,
		cfg:      cfg,
		fast:     newFastStore(cfg.Review.RecentLimit, cfg.Review.FocusLimit, cfg.Review.FocusMaxAge),
		upstream: upstream,
	}
}

// authorize resolves the caller's visibility tier for an organization.
// Rejection happens before any mutation.
func (s *Service) authorize(ctx context.Context, organization string, groups []string) (int, error) {
	maxVisibility, ok, err := s.store.VisibilityForGroups(ctx, organization, groups)
	if err != nil {
		return 0, fmt.Errorf("failed to check review groups: %w", err)
	}
	if !ok {
		return 0, ErrNotAuthorized
	}
	return maxVisibility, nil
}

// Save records review decisions: authorization, then the atomic
// append/obsolete write, then the event-row mirror, then the fast path.
func (s *Service) Save(ctx context.Context, p SaveParams) ([]*models.Review, error) {
	if len(p.Decisions) == 0 && p.LogMessage == "" {
		return nil, errors.New("nothing to save: no decisions and no log message")
	}

	maxVisibility, err := s.authorize(ctx, p.Organization, p.Groups)
	if err != nil {
		return nil, err
	}
	// A caller cannot stamp rows above their own tier.
	if p.VisibilityLevel > maxVisibility {
		p.VisibilityLevel = maxVisibility
	}

	keys := make([]string, 0, len(p.Decisions))
	for k := range p.Decisions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	decisions := make([]database.ReviewDecision, 0, len(keys))
	for _, k := range keys {
		decisions = append(decisions, database.ReviewDecision{Key: k, Decision: p.Decisions[k]})
	}

	saved, err := s.store.SaveReview(ctx, database.SaveReviewParams{
		Organization:    p.Organization,
		ContentType:     p.ContentType,
		ObjectID:        p.ObjectID,
		Reviewer:        p.Reviewer,
		Decisions:       decisions,
		LogMessage:      p.LogMessage,
		LogType:         p.LogType,
		Subject:         p.Subject,
		VisibilityLevel: p.VisibilityLevel,
	})
	if err != nil {
		return nil, err
	}

	if p.ContentType == ContentTypeEvent {
		if err := s.mirrorToEvent(ctx, p); err != nil {
			// The log row is committed; the mirror is derived state and
			// the next decision rewrites it.
			logging.Error().Err(err).Int64("event_id", p.ObjectID).Msg("Failed to mirror review onto event row")
		}
	}

	if len(p.Decisions) > 0 {
		s.fast.RecordWrite(p.Organization, p.ContentType, p.ObjectID, p.Decisions)
	}
	metrics.ReviewsSaved.WithLabelValues(p.Organization).Inc()
	return saved, nil
}

// mirrorToEvent applies review_status/prep_status decisions onto the
// event's moderation columns and pushes the review upstream when the
// vendor accepts writes.
func (s *Service) mirrorToEvent(ctx context.Context, p SaveParams) error {
	reviewDecision, hasReview := p.Decisions[KeyReviewStatus]
	prepDecision, hasPrep := p.Decisions[KeyPrepStatus]
	if !hasReview && !hasPrep {
		return nil
	}

	event, err := s.store.GetEvent(ctx, p.ObjectID)
	if err != nil {
		return fmt.Errorf("failed to load event %d: %w", p.ObjectID, err)
	}
	review := event.OrganizationStatusReview
	prep := event.OrganizationStatusPrep
	if hasReview {
		review = models.ReviewStatus(reviewDecision)
	}
	if hasPrep {
		prep = models.PrepStatus(prepDecision)
	}
	if err := s.store.SetEventReviewStatus(ctx, event.ID, review, prep); err != nil {
		return err
	}

	if hasReview && s.upstream != nil {
		// Best effort: the vendor copy is advisory, our log is the record.
		if err := s.upstream.PushReview(ctx, event, reviewDecision); err != nil {
			logging.Warn().Err(err).Int64("event_id", event.ID).
				Str("source", event.OrganizationSource).Msg("Failed to push review upstream")
		}
	}
	return nil
}

// History returns folded current decisions for the requested objects,
// filtered to the caller's visibility tier, with optional annotations.
func (s *Service) History(ctx context.Context, organization string, groups []string, contentType string, objectIDs []int64, withLogs bool) ([]*ObjectHistory, error) {
	maxVisibility, err := s.authorize(ctx, organization, groups)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.ReviewsForObjects(ctx, organization, contentType, objectIDs)
	if err != nil {
		return nil, err
	}

	byObject := make(map[int64]*ObjectHistory, len(objectIDs))
	out := make([]*ObjectHistory, 0, len(objectIDs))
	for _, id := range objectIDs {
		h := &ObjectHistory{ContentType: contentType, ObjectID: id, Decisions: map[string]string{}}
		byObject[id] = h
		out = append(out, h)
	}
	for _, r := range rows {
		if r.VisibilityLevel > maxVisibility {
			continue
		}
		if h, ok := byObject[r.ObjectID]; ok {
			h.Decisions[r.Key] = r.Decision
		}
	}

	if withLogs {
		for _, h := range out {
			logs, err := s.store.ReviewLogsForObject(ctx, organization, contentType, h.ObjectID, maxVisibility)
			if err != nil {
				return nil, err
			}
			h.Logs = logs
		}
	}
	return out, nil
}

// CurrentState serves the bounded recent-activity list for polling
// clients. Cold caches backfill once from the durable log; an
// organization with no history gets the empty sentinel so later polls
// stay off the database.
func (s *Service) CurrentState(ctx context.Context, organization string, groups []string, num int) ([]*models.ReviewSnapshot, error) {
	if _, err := s.authorize(ctx, organization, groups); err != nil {
		return nil, err
	}
	if num <= 0 || num > s.cfg.Review.RecentLimit {
		num = s.cfg.Review.RecentLimit
	}

	recent, ok := s.fast.Recent(organization)
	if !ok {
		backfilled, err := s.backfill(ctx, organization)
		if err != nil {
			return nil, err
		}
		recent = backfilled
		metrics.ReviewCacheBackfills.WithLabelValues(organization).Inc()
	} else {
		metrics.ReviewCacheHits.WithLabelValues(organization).Inc()
	}

	if len(recent) > num {
		recent = recent[:num]
	}
	return recent, nil
}

// backfill rebuilds the fast path from the durable log: newest
// non-obsoleted rows, folded per object in first-seen (newest) order.
func (s *Service) backfill(ctx context.Context, organization string) ([]*models.ReviewSnapshot, error) {
	rows, err := s.store.CurrentReviews(ctx, organization, s.cfg.Review.BackfillLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill review state: %w", err)
	}

	byObject := make(map[objectKey]*models.ReviewSnapshot)
	var snapshots []*models.ReviewSnapshot
	for _, r := range rows {
		key := objectKey{ContentType: r.ContentType, ObjectID: r.ObjectID}
		snap, ok := byObject[key]
		if !ok {
			snap = &models.ReviewSnapshot{
				ContentType: r.ContentType,
				ObjectID:    r.ObjectID,
				Decisions:   map[string]string{},
			}
			byObject[key] = snap
			snapshots = append(snapshots, snap)
		}
		// Rows arrive newest first; the first decision seen per key wins.
		if _, seen := snap.Decisions[r.Key]; !seen {
			snap.Decisions[r.Key] = r.Decision
		}
	}

	s.fast.Prime(organization, snapshots)
	logging.Debug().Str("organization", organization).Int("objects", len(snapshots)).
		Msg("Review fast path backfilled from durable log")
	return snapshots, nil
}

// MarkFocus registers "reviewer is looking at this object" presence.
func (s *Service) MarkFocus(ctx context.Context, organization string, groups []string, contentType string, objectID int64, reviewer string) error {
	if _, err := s.authorize(ctx, organization, groups); err != nil {
		return err
	}
	s.fast.MarkFocus(organization, &models.FocusMark{
		ContentType: contentType,
		ObjectID:    objectID,
		Reviewer:    reviewer,
		MarkedAt:    time.Now().Unix(),
	})
	return nil
}

// ClearFocus removes a presence mark.
func (s *Service) ClearFocus(ctx context.Context, organization string, groups []string, contentType string, objectID int64, reviewer string) error {
	if _, err := s.authorize(ctx, organization, groups); err != nil {
		return err
	}
	s.fast.ClearFocus(organization, contentType, objectID, reviewer)
	return nil
}

// Focus lists live presence marks for an organization.
func (s *Service) Focus(ctx context.Context, organization string, groups []string) ([]*models.FocusMark, error) {
	if _, err := s.authorize(ctx, organization, groups); err != nil {
		return nil, err
	}
	return s.fast.Focus(organization), nil
}
