// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/connector"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/models"
)

// fakeConnector feeds canned batches to the syncer.
type fakeConnector struct {
	batch     []*models.EventFields
	watermark string
	loadErr   error
	single    map[string]*models.EventFields
	loads     int
}

func (f *fakeConnector) GetEvent(_ context.Context, eventID string) (*models.EventFields, error) {
	return f.single[eventID], nil
}

func (f *fakeConnector) LoadEvents(_ context.Context, _ int, _ string) (*connector.LoadResult, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &connector.LoadResult{Events: f.batch, LastUpdated: f.watermark}, nil
}

func (f *fakeConnector) Writable() bool                              { return false }
func (f *fakeConnector) Parameters() map[string]connector.Parameter { return nil }

func testSyncer(t *testing.T, fake *fakeConnector) (*Syncer, *database.DB, *models.EventSource) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	source := &models.EventSource{
		Name:         "fakesource",
		Organization: "testorg",
		CRMType:      "fake",
		UpdateStyle:  models.UpdateHourly,
	}
	if err := db.InsertSource(context.Background(), source); err != nil {
		t.Fatalf("InsertSource: %v", err)
	}

	cfg := &config.Config{
		Sync:    config.SyncConfig{InsertBatchSize: 100},
		Sources: map[string]config.SourceConfig{},
	}
	s := New(db, cfg, nil)
	s.newConnector = func(*models.EventSource, map[string]string) (connector.Connector, error) {
		return fake, nil
	}
	return s, db, source
}

func fields(pk, title string) *models.EventFields {
	return &models.EventFields{
		SourcePK:     pk,
		Title:        title,
		Zip:          "62701",
		Status:       models.EventStatusActive,
		IsSearchable: true,
	}
}

func fieldsWithHost(pk, title string, host *models.HostFields) *models.EventFields {
	f := fields(pk, title)
	f.Host = host
	return f
}

func TestSyncCreatesThenIdempotent(t *testing.T) {
	fake := &fakeConnector{
		batch: []*models.EventFields{
			fieldsWithHost("1", "Canvass", &models.HostFields{MemberSystemPK: "h1", Email: "a@example.com"}),
			fields("2", "Phone Bank"),
		},
		watermark: "wm-1",
	}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	result, err := s.Sync(ctx, source.Name, "")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 {
		t.Errorf("first pass = %+v, want 2 created", result)
	}

	got, err := db.GetSourceByName(ctx, source.Name)
	if err != nil {
		t.Fatalf("GetSourceByName: %v", err)
	}
	if got.LastUpdate != "wm-1" {
		t.Errorf("watermark = %q, want wm-1", got.LastUpdate)
	}

	// Same vendor data again: zero writes.
	fake.watermark = "wm-2"
	result, err = s.Sync(ctx, source.Name, "")
	if err != nil {
		t.Fatalf("Sync replay: %v", err)
	}
	if result.Created != 0 || result.Updated != 0 || result.Unchanged != 2 {
		t.Errorf("replay = %+v, want all unchanged", result)
	}
	count, err := db.CountEventsBySource(ctx, source.Name)
	if err != nil {
		t.Fatalf("CountEventsBySource: %v", err)
	}
	if count != 2 {
		t.Errorf("event count = %d, want 2", count)
	}
}

func TestSyncUpsertAppliesChanges(t *testing.T) {
	fake := &fakeConnector{batch: []*models.EventFields{fields("1", "Old Title")}, watermark: "wm"}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	if _, err := s.Sync(ctx, source.Name, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	before, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
	if err != nil {
		t.Fatalf("GetEventsBySourcePKs: %v", err)
	}

	fake.batch = []*models.EventFields{fields("1", "New Title")}
	result, err := s.Sync(ctx, source.Name, "")
	if err != nil {
		t.Fatalf("Sync update: %v", err)
	}
	if result.Updated != 1 || result.Created != 0 {
		t.Errorf("result = %+v, want 1 updated", result)
	}

	after, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
	if err != nil {
		t.Fatalf("GetEventsBySourcePKs: %v", err)
	}
	if after["1"].Title != "New Title" {
		t.Errorf("title = %q", after["1"].Title)
	}
	if !after["1"].UpdatedAt.After(before["1"].UpdatedAt) {
		t.Error("updated_at should advance on a real change")
	}
	if after["1"].ID != before["1"].ID {
		t.Error("upsert must not create a new row")
	}
}

func TestSyncBatchCollisionLastWins(t *testing.T) {
	fake := &fakeConnector{
		batch:     []*models.EventFields{fields("1", "First"), fields("1", "Second")},
		watermark: "wm",
	}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	if _, err := s.Sync(ctx, source.Name, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	got, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
	if err != nil {
		t.Fatalf("GetEventsBySourcePKs: %v", err)
	}
	if len(got) != 1 || got["1"].Title != "Second" {
		t.Errorf("got %+v, want single row titled Second", got["1"])
	}
}

func TestSyncHostStickiness(t *testing.T) {
	hostA := &models.HostFields{MemberSystemPK: "h1", Name: "Alex", Email: "alex@example.com",
		HashedEmail: models.HashEmail("alex@example.com")}
	fake := &fakeConnector{
		batch:     []*models.EventFields{fieldsWithHost("1", "Canvass", hostA)},
		watermark: "wm",
	}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	if _, err := s.Sync(ctx, source.Name, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	stored, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
	if err != nil {
		t.Fatalf("GetEventsBySourcePKs: %v", err)
	}
	originalHostID := *stored["1"].OrganizationHostID

	t.Run("likely same host stays put", func(t *testing.T) {
		// New vendor pk but same email: probably the same person, so
		// the stored reference must not churn.
		samePerson := &models.HostFields{MemberSystemPK: "h2", Name: "A. Doe",
			Email: "alex@example.com", HashedEmail: models.HashEmail("alex@example.com")}
		fake.batch = []*models.EventFields{fieldsWithHost("1", "Canvass", samePerson)}
		if _, err := s.Sync(ctx, source.Name, ""); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		got, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
		if err != nil {
			t.Fatalf("GetEventsBySourcePKs: %v", err)
		}
		if *got["1"].OrganizationHostID != originalHostID {
			t.Errorf("host id churned to %d, want sticky %d", *got["1"].OrganizationHostID, originalHostID)
		}
	})

	t.Run("different host replaces", func(t *testing.T) {
		other := &models.HostFields{MemberSystemPK: "h3", Name: "Sam",
			Email: "sam@example.com", HashedEmail: models.HashEmail("sam@example.com")}
		fake.batch = []*models.EventFields{fieldsWithHost("1", "Canvass", other)}
		if _, err := s.Sync(ctx, source.Name, ""); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		got, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"1"})
		if err != nil {
			t.Fatalf("GetEventsBySourcePKs: %v", err)
		}
		if *got["1"].OrganizationHostID == originalHostID {
			t.Error("genuinely different host should replace the reference")
		}
	})
}

func TestSyncConnectorErrorAbortsPass(t *testing.T) {
	fake := &fakeConnector{loadErr: errors.New("vendor 500")}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	_, syncErr := s.Sync(ctx, source.Name, "")
	if syncErr == nil {
		t.Fatal("expected error from failed pull")
	}
	if !errors.Is(syncErr, errConnector) {
		t.Errorf("pull failure should carry the connector class: %v", syncErr)
	}
	got, err := db.GetSourceByName(ctx, source.Name)
	if err != nil {
		t.Fatalf("GetSourceByName: %v", err)
	}
	if got.LastUpdate != "" {
		t.Errorf("watermark advanced to %q despite failed pass", got.LastUpdate)
	}
}

func TestSyncOneDoesNotAdvanceWatermark(t *testing.T) {
	fake := &fakeConnector{
		single: map[string]*models.EventFields{"ev-1": fields("ev-1", "Pinged Event")},
	}
	s, db, source := testSyncer(t, fake)
	ctx := context.Background()

	if err := s.SyncOne(ctx, source.Name, "ev-1"); err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	got, err := db.GetEventsBySourcePKs(ctx, source.Name, []string{"ev-1"})
	if err != nil {
		t.Fatalf("GetEventsBySourcePKs: %v", err)
	}
	if got["ev-1"] == nil {
		t.Fatal("ping refresh should persist the event")
	}

	src, err := db.GetSourceByName(ctx, source.Name)
	if err != nil {
		t.Fatalf("GetSourceByName: %v", err)
	}
	if src.LastUpdate != "" {
		t.Errorf("SyncOne advanced the watermark to %q", src.LastUpdate)
	}

	// Gone upstream: a no-op, never an error.
	if err := s.SyncOne(ctx, source.Name, "missing"); err != nil {
		t.Errorf("gone record should be a no-op, got %v", err)
	}
}

func TestSyncPublishesSourceUpdated(t *testing.T) {
	fake := &fakeConnector{batch: []*models.EventFields{fields("1", "Canvass")}, watermark: "wm-9"}
	s, _, source := testSyncer(t, fake)

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })
	s.publisher = pubsub

	ctx := context.Background()
	messages, err := pubsub.Subscribe(ctx, TopicSourceUpdated)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := s.Sync(ctx, source.Name, ""); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	select {
	case msg := <-messages:
		payload, err := DecodeSourceUpdated(msg)
		if err != nil {
			t.Fatalf("DecodeSourceUpdated: %v", err)
		}
		msg.Ack()
		if payload.Source != source.Name || payload.Watermark != "wm-9" || payload.Pulled != 1 {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no source.updated message received")
	}
}

func TestClassifySyncError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"connector class", fmt.Errorf("%w: pull for source x: %w", errConnector, errors.New("vendor 500")), "connector"},
		{"watermark class", fmt.Errorf("%w: advance for source x: %w", errWatermark, errors.New("disk full")), "watermark"},
		{"unwrapped is database", errors.New("constraint violation"), "database"},
		// Classification follows the error chain, not message text.
		{"mentions connector in text only", errors.New("connector looked fine, row vanished"), "database"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifySyncError(tc.err); got != tc.want {
				t.Errorf("classifySyncError = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLikelySame(t *testing.T) {
	base := &models.Activist{ID: 1, MemberSystem: "s", MemberSystemPK: "p1",
		Email: "a@example.com", HashedEmail: models.HashEmail("a@example.com"), Phone: "555-0100"}

	tests := []struct {
		name  string
		other *models.Activist
		want  bool
	}{
		{"same id", &models.Activist{ID: 1}, true},
		{"same email different case", &models.Activist{Email: "A@Example.COM"}, true},
		{"same hashed email", &models.Activist{HashedEmail: models.HashEmail("a@example.com")}, true},
		{"same phone", &models.Activist{Phone: "555-0100"}, true},
		{"same source and pk", &models.Activist{MemberSystem: "s", MemberSystemPK: "p1"}, true},
		{"no shared signal", &models.Activist{ID: 2, MemberSystem: "s", MemberSystemPK: "p2",
			Email: "b@example.com", HashedEmail: models.HashEmail("b@example.com"), Phone: "555-0199"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LikelySame(base, tt.other); got != tt.want {
				t.Errorf("LikelySame = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("empty signals never match", func(t *testing.T) {
		if LikelySame(&models.Activist{}, &models.Activist{}) {
			t.Error("two empty identities must not match")
		}
	})
}
