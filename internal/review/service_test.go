// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Review: config.ReviewConfig{
			RecentLimit:   3,
			BackfillLimit: 50,
			FocusLimit:    5,
			FocusMaxAge:   2 * time.Hour,
		},
	}
}

// countingStore wraps the database to observe backfill query traffic.
type countingStore struct {
	*database.DB
	currentReviewsCalls int
}

func (c *countingStore) CurrentReviews(ctx context.Context, organization string, limit int) ([]*models.Review, error) {
	c.currentReviewsCalls++
	return c.DB.CurrentReviews(ctx, organization, limit)
}

func testService(t *testing.T) (*Service, *countingStore) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	groups := []*models.ReviewGroup{
		{Organization: "testorg", Group: "moderators", VisibilityLevel: 1},
		{Organization: "testorg", Group: "volunteers", VisibilityLevel: 0},
	}
	for _, g := range groups {
		if err := db.InsertReviewGroup(ctx, g); err != nil {
			t.Fatalf("InsertReviewGroup: %v", err)
		}
	}

	store := &countingStore{DB: db}
	return NewService(store, testConfig(), nil), store
}

func saveDecision(t *testing.T, s *Service, objectID int64, decisions map[string]string) {
	t.Helper()
	_, err := s.Save(context.Background(), SaveParams{
		Organization: "testorg",
		Groups:       []string{"moderators"},
		ContentType:  "event",
		ObjectID:     objectID,
		Reviewer:     "pat",
		Decisions:    decisions,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestSaveRequiresGroupMembership(t *testing.T) {
	s, store := testService(t)
	ctx := context.Background()

	_, err := s.Save(ctx, SaveParams{
		Organization: "testorg",
		Groups:       []string{"strangers"},
		ContentType:  "event",
		ObjectID:     1,
		Reviewer:     "pat",
		Decisions:    map[string]string{"review_status": "vetted"},
	})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}

	// Rejection happens before any write.
	rows, err := store.ReviewsForObjects(ctx, "testorg", "event", []int64{1})
	if err != nil {
		t.Fatalf("ReviewsForObjects: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("unauthorized save wrote %d rows", len(rows))
	}
}

func TestSaveAndCurrentState(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	saveDecision(t, s, 7, map[string]string{"review_status": "vetted"})
	saveDecision(t, s, 7, map[string]string{"prep_status": "claimed"})
	saveDecision(t, s, 8, map[string]string{"review_status": "questionable"})

	state, err := s.CurrentState(ctx, "testorg", []string{"moderators"}, 0)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("got %d entries, want 2", len(state))
	}
	if state[0].ObjectID != 8 {
		t.Errorf("newest-first order broken: first entry is object %d", state[0].ObjectID)
	}
	// Decisions for independent keys fold into one snapshot.
	if state[1].Decisions["review_status"] != "vetted" || state[1].Decisions["prep_status"] != "claimed" {
		t.Errorf("object 7 snapshot = %v", state[1].Decisions)
	}
}

func TestCurrentStateRecentListTrimmed(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		saveDecision(t, s, id, map[string]string{"review_status": "reviewed"})
	}
	state, err := s.CurrentState(ctx, "testorg", []string{"moderators"}, 0)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if len(state) != 3 {
		t.Fatalf("got %d entries, want recent limit of 3", len(state))
	}
	if state[0].ObjectID != 5 || state[2].ObjectID != 3 {
		t.Errorf("kept objects %d..%d, want 5..3", state[0].ObjectID, state[2].ObjectID)
	}
}

func TestCurrentStateColdBackfill(t *testing.T) {
	s, store := testService(t)
	ctx := context.Background()
	saveDecision(t, s, 7, map[string]string{"review_status": "vetted"})

	// A fresh process: same durable log, cold fast path.
	cold := NewService(store, testConfig(), nil)
	callsBefore := store.currentReviewsCalls

	state, err := cold.CurrentState(ctx, "testorg", []string{"moderators"}, 0)
	if err != nil {
		t.Fatalf("CurrentState: %v", err)
	}
	if len(state) != 1 || state[0].Decisions["review_status"] != "vetted" {
		t.Fatalf("backfilled state = %+v", state)
	}
	if store.currentReviewsCalls != callsBefore+1 {
		t.Fatalf("backfill queries = %d, want 1", store.currentReviewsCalls-callsBefore)
	}

	// Second poll is served purely from the fast path.
	if _, err := cold.CurrentState(ctx, "testorg", []string{"moderators"}, 0); err != nil {
		t.Fatalf("CurrentState again: %v", err)
	}
	if store.currentReviewsCalls != callsBefore+1 {
		t.Errorf("warm poll re-hit storage (%d calls)", store.currentReviewsCalls-callsBefore)
	}
}

func TestCurrentStateEmptySentinel(t *testing.T) {
	s, store := testService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state, err := s.CurrentState(ctx, "testorg", []string{"volunteers"}, 0)
		if err != nil {
			t.Fatalf("CurrentState poll %d: %v", i, err)
		}
		if len(state) != 0 {
			t.Fatalf("poll %d returned %d entries for empty org", i, len(state))
		}
	}
	if store.currentReviewsCalls != 1 {
		t.Errorf("empty org hit storage %d times, want exactly 1 (sentinel)", store.currentReviewsCalls)
	}
}

func TestSaveMirrorsEventColumns(t *testing.T) {
	s, store := testService(t)
	ctx := context.Background()

	e := &models.Event{
		Title:                "Canvass",
		Status:               models.EventStatusActive,
		IsSearchable:         true,
		Organization:         "testorg",
		OrganizationSource:   "osdi_test",
		OrganizationSourcePK: "ev-1",
	}
	if err := store.InsertEvents(ctx, []*models.Event{e}, 10); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	saveDecision(t, s, e.ID, map[string]string{"review_status": "vetted", "prep_status": "claimed"})

	got, err := store.GetEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.OrganizationStatusReview != models.ReviewStatusVetted {
		t.Errorf("review status = %q, want vetted", got.OrganizationStatusReview)
	}
	if got.OrganizationStatusPrep != models.PrepStatusClaimed {
		t.Errorf("prep status = %q, want claimed", got.OrganizationStatusPrep)
	}
}

type fakeUpstream struct {
	events  []int64
	reviews []string
}

func (f *fakeUpstream) PushReview(_ context.Context, event *models.Event, review string) error {
	f.events = append(f.events, event.ID)
	f.reviews = append(f.reviews, review)
	return nil
}

func TestSavePushesReviewUpstream(t *testing.T) {
	s, store := testService(t)
	upstream := &fakeUpstream{}
	s.upstream = upstream
	ctx := context.Background()

	e := &models.Event{
		Title:                "Canvass",
		Status:               models.EventStatusActive,
		Organization:         "testorg",
		OrganizationSource:   "osdi_test",
		OrganizationSourcePK: "ev-1",
	}
	if err := store.InsertEvents(ctx, []*models.Event{e}, 10); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	saveDecision(t, s, e.ID, map[string]string{"review_status": "vetted"})
	if len(upstream.events) != 1 || upstream.reviews[0] != "vetted" {
		t.Errorf("upstream calls = %v / %v", upstream.events, upstream.reviews)
	}

	// Non-status decisions never reach the vendor.
	saveDecision(t, s, e.ID, map[string]string{"language": "es"})
	if len(upstream.events) != 1 {
		t.Errorf("non-status decision pushed upstream")
	}
}

func TestVisibilityTiering(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()

	// A tier-1 reviewer leaves a sensitive note.
	_, err := s.Save(ctx, SaveParams{
		Organization:    "testorg",
		Groups:          []string{"moderators"},
		ContentType:     "event",
		ObjectID:        9,
		Reviewer:        "pat",
		Decisions:       map[string]string{"flag": "escalated"},
		LogMessage:      "needs legal look",
		VisibilityLevel: 1,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Run("low tier cannot read it back", func(t *testing.T) {
		history, err := s.History(ctx, "testorg", []string{"volunteers"}, "event", []int64{9}, true)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("got %d objects", len(history))
		}
		if len(history[0].Decisions) != 0 {
			t.Errorf("tier-0 reader sees decisions %v", history[0].Decisions)
		}
		if len(history[0].Logs) != 0 {
			t.Errorf("tier-0 reader sees %d logs", len(history[0].Logs))
		}
	})

	t.Run("matching tier reads it", func(t *testing.T) {
		history, err := s.History(ctx, "testorg", []string{"moderators"}, "event", []int64{9}, true)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if history[0].Decisions["flag"] != "escalated" {
			t.Errorf("decisions = %v", history[0].Decisions)
		}
		if len(history[0].Logs) != 1 || history[0].Logs[0].Message != "needs legal look" {
			t.Errorf("logs = %+v", history[0].Logs)
		}
	})

	t.Run("caller cannot stamp above own tier", func(t *testing.T) {
		_, err := s.Save(ctx, SaveParams{
			Organization:    "testorg",
			Groups:          []string{"volunteers"},
			ContentType:     "event",
			ObjectID:        10,
			Reviewer:        "sam",
			Decisions:       map[string]string{"flag": "fine"},
			VisibilityLevel: 9,
		})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		history, err := s.History(ctx, "testorg", []string{"volunteers"}, "event", []int64{10}, false)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if history[0].Decisions["flag"] != "fine" {
			t.Error("tier-0 writer should still read their own capped row")
		}
	})
}

func TestFocusMarks(t *testing.T) {
	s, _ := testService(t)
	ctx := context.Background()
	groups := []string{"moderators"}

	if err := s.MarkFocus(ctx, "testorg", groups, "event", 7, "pat"); err != nil {
		t.Fatalf("MarkFocus: %v", err)
	}
	if err := s.MarkFocus(ctx, "testorg", groups, "event", 7, "sam"); err != nil {
		t.Fatalf("MarkFocus: %v", err)
	}

	marks, err := s.Focus(ctx, "testorg", groups)
	if err != nil {
		t.Fatalf("Focus: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("got %d marks, want 2", len(marks))
	}

	if err := s.ClearFocus(ctx, "testorg", groups, "event", 7, "pat"); err != nil {
		t.Fatalf("ClearFocus: %v", err)
	}
	marks, err = s.Focus(ctx, "testorg", groups)
	if err != nil {
		t.Fatalf("Focus: %v", err)
	}
	if len(marks) != 1 || marks[0].Reviewer != "sam" {
		t.Errorf("marks after clear = %+v", marks)
	}
}

func TestRecentSnapshotsImmutableUnderConcurrentWrites(t *testing.T) {
	fast := newFastStore(3, 5, 2*time.Hour)
	fast.RecordWrite("testorg", "event", 1, map[string]string{"review_status": "vetted"})

	recent, ok := fast.Recent("testorg")
	if !ok || len(recent) != 1 {
		t.Fatalf("recent = %v (primed=%v)", recent, ok)
	}
	served := recent[0]

	// A reader iterating a snapshot it already holds must never observe
	// writes that land afterwards.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			fast.RecordWrite("testorg", "event", 1, map[string]string{
				"review_status": "questionable",
				"prep_status":   "claimed",
			})
		}
	}()
	for i := 0; i < 1000; i++ {
		for k, v := range served.Decisions {
			if k == "review_status" && v != "vetted" {
				t.Fatalf("served snapshot mutated: %s=%s", k, v)
			}
		}
	}
	<-done

	if len(served.Decisions) != 1 || served.Decisions["review_status"] != "vetted" {
		t.Errorf("served snapshot = %v, want only the original decision", served.Decisions)
	}
	recent, _ = fast.Recent("testorg")
	if recent[0].Decisions["prep_status"] != "claimed" {
		t.Errorf("fresh read missing merged decisions: %v", recent[0].Decisions)
	}
}

func TestPrimedSnapshotsNotAliasedByWrites(t *testing.T) {
	fast := newFastStore(3, 5, 2*time.Hour)
	backfilled := &models.ReviewSnapshot{
		ContentType: "event", ObjectID: 4,
		Decisions: map[string]string{"review_status": "reviewed"},
	}
	fast.Prime("testorg", []*models.ReviewSnapshot{backfilled})

	fast.RecordWrite("testorg", "event", 4, map[string]string{"prep_status": "claimed"})

	if len(backfilled.Decisions) != 1 {
		t.Errorf("backfilled snapshot mutated: %v", backfilled.Decisions)
	}
	recent, _ := fast.Recent("testorg")
	if recent[0].Decisions["review_status"] != "reviewed" || recent[0].Decisions["prep_status"] != "claimed" {
		t.Errorf("merged snapshot = %v", recent[0].Decisions)
	}
}

func TestFocusSweepDropsStaleMarks(t *testing.T) {
	fast := newFastStore(3, 2, 2*time.Hour)
	fast.MarkFocus("testorg", &models.FocusMark{
		ContentType: "event", ObjectID: 1, Reviewer: "old",
		MarkedAt: time.Now().Add(-3 * time.Hour).Unix(),
	})
	fast.MarkFocus("testorg", &models.FocusMark{
		ContentType: "event", ObjectID: 2, Reviewer: "fresh",
		MarkedAt: time.Now().Unix(),
	})

	marks := fast.Focus("testorg")
	if len(marks) != 1 || marks[0].Reviewer != "fresh" {
		t.Errorf("marks after sweep = %+v", marks)
	}
}
