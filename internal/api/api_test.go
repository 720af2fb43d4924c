// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/models"
	"github.com/eventroller/eventroller/internal/review"
	"github.com/eventroller/eventroller/internal/scheduler"
	"github.com/eventroller/eventroller/internal/syncer"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRefresher) SyncOne(_ context.Context, sourceName, vendorPK string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sourceName+"/"+vendorPK)
	return nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRunner struct{}

func (fakeRunner) Sync(_ context.Context, sourceName, _ string) (*syncer.Result, error) {
	return &syncer.Result{Source: sourceName, Pulled: 3, Created: 3}, nil
}

func testAPI(t *testing.T) (http.Handler, *database.DB, *fakeRefresher) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Sync:   config.SyncConfig{RequestTimeout: 5 * time.Second, InsertBatchSize: 100},
		Review: config.ReviewConfig{RecentLimit: 12, BackfillLimit: 50, FocusLimit: 50, FocusMaxAge: 2 * time.Hour},
		Public: config.PublicConfig{
			ExcludedReviewStatuses: []string{"questionable", "limbo"},
			PageSize:               25,
			MaxPageSize:            100,
		},
		Sources: map[string]config.SourceConfig{},
	}

	if err := db.InsertReviewGroup(context.Background(),
		&models.ReviewGroup{Organization: "testorg", Group: "moderators", VisibilityLevel: 1}); err != nil {
		t.Fatalf("InsertReviewGroup: %v", err)
	}

	reviews := review.NewService(db, cfg, nil)
	sched := scheduler.New(db, fakeRunner{}, cfg)
	refresher := &fakeRefresher{}
	return Router(NewHandler(cfg, db, reviews, sched, refresher)), db, refresher
}

func seedPublicEvents(t *testing.T, db *database.DB) {
	t.Helper()
	starts := time.Date(2026, 9, 12, 18, 0, 0, 0, time.UTC)
	lat, lng := 39.78, -89.65
	chiLat, chiLng := 41.88, -87.63
	events := []*models.Event{
		{
			Title: "Springfield Canvass", Zip: "62701", Status: models.EventStatusActive,
			IsSearchable: true, Latitude: &lat, Longitude: &lng, StartsAtUTC: &starts,
			OrganizationSource: "osdi_test", OrganizationSourcePK: "1",
		},
		{
			Title: "Chicago Phone Bank", Zip: "60601", Status: models.EventStatusActive,
			IsSearchable: true, Latitude: &chiLat, Longitude: &chiLng, StartsAtUTC: &starts,
			OrganizationSource: "osdi_test", OrganizationSourcePK: "2",
		},
		{
			Title: "Private Planning Call", Status: models.EventStatusActive,
			IsSearchable: true, IsPrivate: true,
			OrganizationSource: "osdi_test", OrganizationSourcePK: "3",
		},
		{
			Title: "Unlisted Fundraiser", Status: models.EventStatusActive,
			OrganizationSource: "osdi_test", OrganizationSourcePK: "4",
		},
		{
			Title: "Sketchy Meetup", Status: models.EventStatusActive, IsSearchable: true,
			OrganizationStatusReview: models.ReviewStatusQuestionable,
			OrganizationSource:       "osdi_test", OrganizationSourcePK: "5",
		},
	}
	if err := db.InsertEvents(context.Background(), events, 10); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}
}

type eventListResponse struct {
	Events     []*publicEvent `json:"events"`
	TotalCount int64          `json:"total_count"`
}

func getEvents(t *testing.T, router http.Handler, query string) *eventListResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events"+query, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /events%s = %d: %s", query, rec.Code, rec.Body.String())
	}
	var resp eventListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &resp
}

func TestPublicEventsVisibility(t *testing.T) {
	router, db, _ := testAPI(t)
	seedPublicEvents(t, db)

	resp := getEvents(t, router, "")
	if resp.TotalCount != 2 {
		t.Fatalf("total = %d, want 2 (private, unlisted, questionable hidden)", resp.TotalCount)
	}
	for _, e := range resp.Events {
		if strings.Contains(e.Title, "Private") || strings.Contains(e.Title, "Sketchy") {
			t.Errorf("hidden event leaked: %q", e.Title)
		}
	}
}

func TestPublicEventsFilters(t *testing.T) {
	router, db, _ := testAPI(t)
	seedPublicEvents(t, db)

	t.Run("title substring", func(t *testing.T) {
		resp := getEvents(t, router, "?title=phone")
		if resp.TotalCount != 1 || resp.Events[0].Title != "Chicago Phone Bank" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("radius from point", func(t *testing.T) {
		// 50km around Springfield excludes Chicago.
		resp := getEvents(t, router, "?distance_coords=39.8,-89.6&distance_max=50000")
		if resp.TotalCount != 1 || resp.Events[0].Title != "Springfield Canvass" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("radius from postal code", func(t *testing.T) {
		resp := getEvents(t, router, "?distance_postal_code=62701&distance_max=50000")
		if resp.TotalCount != 1 || resp.Events[0].Title != "Springfield Canvass" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("unknown filters ignored", func(t *testing.T) {
		resp := getEvents(t, router, "?frobnicate=yes&vendor_param=3")
		if resp.TotalCount != 2 {
			t.Errorf("total = %d, want unknown params ignored", resp.TotalCount)
		}
	})

	t.Run("malformed values dropped", func(t *testing.T) {
		// A value that fails to parse degrades like an unknown parameter.
		resp := getEvents(t, router, "?starts_after=not-a-date")
		if resp.TotalCount != 2 {
			t.Errorf("total = %d, want malformed starts_after dropped", resp.TotalCount)
		}
	})

	t.Run("malformed value keeps other filters", func(t *testing.T) {
		resp := getEvents(t, router, "?title=phone&distance_coords=garbage")
		if resp.TotalCount != 1 || resp.Events[0].Title != "Chicago Phone Bank" {
			t.Errorf("resp = %+v, want title filter still applied", resp)
		}
	})

	t.Run("distance without max rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?distance_coords=39.8,-89.6", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestPingPixel(t *testing.T) {
	router, _, refresher := testAPI(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping/osdi_test/ev-42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("content type = %q", ct)
	}
	if len(rec.Body.Bytes()) != len(transparentGIF) {
		t.Errorf("body = %d bytes, want the fixed pixel", rec.Body.Len())
	}

	// The refresh runs detached from the request.
	deadline := time.After(2 * time.Second)
	for refresher.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("refresher never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSaveReviewEndpoint(t *testing.T) {
	router, db, _ := testAPI(t)
	e := &models.Event{
		Title: "Canvass", Status: models.EventStatusActive, Organization: "testorg",
		OrganizationSource: "osdi_test", OrganizationSourcePK: "ev-1",
	}
	if err := db.InsertEvents(context.Background(), []*models.Event{e}, 10); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	body := fmt.Sprintf(`{"content_type": "event", "pk": %d, "decisions": {"review_status": "vetted"}, "log": "looks good"}`, e.ID)

	t.Run("authorized save", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/review/testorg/", strings.NewReader(body))
		req.Header.Set(headerReviewer, "pat")
		req.Header.Set(headerGroups, "moderators")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("current state reflects it", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/review/testorg/current", nil)
		req.Header.Set(headerReviewer, "pat")
		req.Header.Set(headerGroups, "moderators")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"vetted"`) {
			t.Errorf("current state missing decision: %s", rec.Body.String())
		}
	})

	t.Run("wrong group forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/review/testorg/", strings.NewReader(body))
		req.Header.Set(headerReviewer, "pat")
		req.Header.Set(headerGroups, "strangers")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("missing identity unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/review/testorg/", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestRunSourceSyncEndpoint(t *testing.T) {
	router, db, _ := testAPI(t)
	if err := db.InsertSource(context.Background(), &models.EventSource{
		Name: "osdi_test", Organization: "testorg", CRMType: "rest", UpdateStyle: models.UpdateHourly,
	}); err != nil {
		t.Fatalf("InsertSource: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync/run/osdi_test", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var result syncer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Source != "osdi_test" || result.Pulled != 3 {
		t.Errorf("result = %+v", result)
	}
}
