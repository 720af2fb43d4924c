// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package syncer orchestrates sync passes: pull a source's events through
// its connector, reconcile hosts, upsert events, advance the watermark,
// and notify listeners.
//
// The whole pipeline is idempotent under at-least-once re-delivery of the
// same vendor records: re-running a pass with no new vendor data performs
// zero writes. The watermark advance is the commit signal and runs only
// after everything else succeeded.
//
// Two passes for the SAME source must not run concurrently; that mutual
// exclusion is the scheduler's job (a per-source lock), not this
// package's. Passes for different sources are fully independent.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/connector"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/metrics"
	"github.com/eventroller/eventroller/internal/models"
)

// Store is the storage surface the syncer needs.
type Store interface {
	GetSourceByName(ctx context.Context, name string) (*models.EventSource, error)
	AdvanceSourceWatermark(ctx context.Context, sourceID int64, watermark string) error

	GetEventsBySourcePKs(ctx context.Context, source string, pks []string) (map[string]*models.Event, error)
	InsertEvents(ctx context.Context, events []*models.Event, batchSize int) error
	UpdateEvent(ctx context.Context, e *models.Event) error

	GetActivist(ctx context.Context, id int64) (*models.Activist, error)
	GetActivistsBySystemPKs(ctx context.Context, system string, pks []string) (map[string]*models.Activist, error)
	InsertActivist(ctx context.Context, a *models.Activist) error
	UpdateActivist(ctx context.Context, a *models.Activist) error
}

// Failure classes for the sync error metric. Call sites wrap the
// underlying error with one of these; anything unwrapped counts as a
// database failure.
var (
	errConnector = errors.New("connector failure")
	errWatermark = errors.New("watermark failure")
)

// Result summarizes one sync pass.
type Result struct {
	Source    string
	Pulled    int
	Created   int
	Updated   int
	Unchanged int
	Watermark string
}

// Syncer runs sync passes for configured sources.
type Syncer struct {
	store     Store
	cfg       *config.Config
	publisher message.Publisher

	// newConnector is swapped in tests for a fake.
	newConnector func(source *models.EventSource, data map[string]string) (connector.Connector, error)
}

// New builds a Syncer. publisher may be nil to disable notifications.
func New(store Store, cfg *config.Config, publisher message.Publisher) *Syncer {
	return &Syncer{
		store:        store,
		cfg:          cfg,
		publisher:    publisher,
		newConnector: connector.New,
	}
}

// connectorFor resolves the source's data bag (static configuration wins
// over the persisted blob) and builds its connector.
func (s *Syncer) connectorFor(source *models.EventSource) (connector.Connector, error) {
	data, ok := s.cfg.SourceData(source.Name)
	if !ok {
		data = source.Data
	}
	return s.newConnector(source, data)
}

// Sync runs one full pass for a named source. since, when non-empty,
// overrides the stored watermark (used for forced re-pulls; empty string
// with fromStart semantics is expressed by passing since="" and a source
// whose watermark was cleared).
func (s *Syncer) Sync(ctx context.Context, sourceName, since string) (*Result, error) {
	start := time.Now()
	result, err := s.sync(ctx, sourceName, since)
	if err != nil {
		metrics.RecordSyncError(sourceName, classifySyncError(err))
		return nil, err
	}
	metrics.RecordSync(sourceName, time.Since(start), result.Created, result.Updated, result.Unchanged, nil)
	return result, nil
}

func (s *Syncer) sync(ctx context.Context, sourceName, since string) (*Result, error) {
	source, err := s.store.GetSourceByName(ctx, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source %s: %w", sourceName, err)
	}
	conn, err := s.connectorFor(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConnector, err)
	}

	watermark := since
	if watermark == "" {
		watermark = source.LastUpdate
	}

	// A connector error is fatal for the pass: no partial watermark
	// advance, the next attempt repeats the same pull.
	loaded, err := conn.LoadEvents(ctx, s.cfg.Sync.MaxEvents, watermark)
	if err != nil {
		return nil, fmt.Errorf("%w: pull for source %s: %w", errConnector, sourceName, err)
	}

	logging.Info().Str("source", sourceName).Int("pulled", len(loaded.Events)).
		Str("since", watermark).Msg("Sync pull complete")

	created, updated, unchanged, err := s.applyBatch(ctx, source, loaded.Events)
	if err != nil {
		return nil, err
	}

	if loaded.LastUpdated != "" {
		if err := s.store.AdvanceSourceWatermark(ctx, source.ID, loaded.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: advance for source %s: %w", errWatermark, sourceName, err)
		}
	}

	result := &Result{
		Source:    sourceName,
		Pulled:    len(loaded.Events),
		Created:   created,
		Updated:   updated,
		Unchanged: unchanged,
		Watermark: loaded.LastUpdated,
	}
	s.publishSourceUpdated(SourceUpdated{
		Source:    sourceName,
		Watermark: loaded.LastUpdated,
		Pulled:    len(loaded.Events),
		SyncedAt:  time.Now().UTC(),
	})
	return result, nil
}

// SyncOne refreshes a single event by its vendor pk, used by the ping
// endpoint. It never advances the watermark and never publishes; a gone
// record is a no-op.
func (s *Syncer) SyncOne(ctx context.Context, sourceName, vendorPK string) error {
	source, err := s.store.GetSourceByName(ctx, sourceName)
	if err != nil {
		return fmt.Errorf("failed to resolve source %s: %w", sourceName, err)
	}
	conn, err := s.connectorFor(source)
	if err != nil {
		return fmt.Errorf("%w: %w", errConnector, err)
	}

	fields, err := conn.GetEvent(ctx, vendorPK)
	if err != nil {
		return fmt.Errorf("%w: fetch for %s/%s: %w", errConnector, sourceName, vendorPK, err)
	}
	if fields == nil {
		logging.Debug().Str("source", sourceName).Str("pk", vendorPK).Msg("Ping refresh: record gone upstream")
		return nil
	}

	_, _, _, err = s.applyBatch(ctx, source, []*models.EventFields{fields})
	return err
}

// applyBatch runs host reconciliation and the event upsert for one pull.
func (s *Syncer) applyBatch(ctx context.Context, source *models.EventSource, batch []*models.EventFields) (created, updated, unchanged int, err error) {
	if len(batch) == 0 {
		return 0, 0, 0, nil
	}

	// Last write wins on natural-key collisions within one pull; pks
	// keeps first-seen order so inserts stay deterministic.
	incoming := make(map[string]*models.EventFields, len(batch))
	pks := make([]string, 0, len(batch))
	for _, f := range batch {
		if f.SourcePK == "" {
			continue
		}
		if _, seen := incoming[f.SourcePK]; !seen {
			pks = append(pks, f.SourcePK)
		}
		incoming[f.SourcePK] = f
	}

	// Hosts first: events reference them.
	hostIDs, err := s.reconcileHosts(ctx, source, incoming, pks)
	if err != nil {
		return 0, 0, 0, err
	}

	existing, err := s.store.GetEventsBySourcePKs(ctx, source.Name, pks)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to load existing events: %w", err)
	}

	var inserts []*models.Event
	for _, pk := range pks {
		f := incoming[pk]
		stored, ok := existing[pk]
		if !ok {
			e := f.NewEvent(source)
			if f.Host != nil && !f.Host.IsZero() {
				if id, ok := hostIDs[f.Host.MemberSystemPK]; ok {
					e.OrganizationHostID = &id
				}
			}
			inserts = append(inserts, e)
			continue
		}

		changed := f.ApplyTo(stored)
		hostChanged, err := s.applyHost(ctx, source, stored, f, hostIDs)
		if err != nil {
			return 0, 0, 0, err
		}
		if changed || hostChanged {
			if err := s.store.UpdateEvent(ctx, stored); err != nil {
				return 0, 0, 0, fmt.Errorf("failed to update event %s/%s: %w", source.Name, pk, err)
			}
			updated++
		} else {
			unchanged++
		}
	}

	if len(inserts) > 0 {
		if err := s.store.InsertEvents(ctx, inserts, s.cfg.Sync.InsertBatchSize); err != nil {
			return 0, 0, 0, fmt.Errorf("failed to insert events for source %s: %w", source.Name, err)
		}
		created = len(inserts)
	}
	return created, updated, unchanged, nil
}

// applyHost decides whether a stored event's host reference moves to the
// incoming host. Host identity updates are intentionally sticky: the
// reference changes only when LikelySame says the incoming identity is
// NOT the stored one, shielding the reference from false churn in
// volatile vendor contact data.
func (s *Syncer) applyHost(ctx context.Context, source *models.EventSource, stored *models.Event, f *models.EventFields, hostIDs map[string]int64) (bool, error) {
	if f.Host == nil || f.Host.IsZero() {
		return false, nil
	}
	newID, ok := hostIDs[f.Host.MemberSystemPK]
	if !ok {
		return false, nil
	}
	if stored.OrganizationHostID == nil {
		stored.OrganizationHostID = &newID
		return true, nil
	}
	if *stored.OrganizationHostID == newID {
		return false, nil
	}

	current, err := s.store.GetActivist(ctx, *stored.OrganizationHostID)
	if err != nil {
		return false, fmt.Errorf("failed to load current host %d: %w", *stored.OrganizationHostID, err)
	}
	incoming := &models.Activist{
		ID:             newID,
		MemberSystem:   source.Name,
		MemberSystemPK: f.Host.MemberSystemPK,
		Name:           f.Host.Name,
		Email:          f.Host.Email,
		HashedEmail:    f.Host.HashedEmail,
		Phone:          f.Host.Phone,
	}
	if LikelySame(current, incoming) {
		return false, nil
	}
	stored.OrganizationHostID = &newID
	return true, nil
}

// reconcileHosts upserts every incoming host and returns vendor pk →
// activist id. The dirty check is intentionally shallow: the first
// differing field of {hashed email, email, name, phone} triggers the
// update and stops comparing. Hosts are revisited on every pass and most
// are unchanged, so speed beats precision here.
func (s *Syncer) reconcileHosts(ctx context.Context, source *models.EventSource, incoming map[string]*models.EventFields, pks []string) (map[string]int64, error) {
	hosts := make(map[string]*models.HostFields)
	hostPKs := make([]string, 0)
	for _, pk := range pks {
		h := incoming[pk].Host
		if h == nil || h.IsZero() || h.MemberSystemPK == "" {
			continue
		}
		if _, seen := hosts[h.MemberSystemPK]; !seen {
			hostPKs = append(hostPKs, h.MemberSystemPK)
		}
		hosts[h.MemberSystemPK] = h
	}
	if len(hosts) == 0 {
		return map[string]int64{}, nil
	}

	existing, err := s.store.GetActivistsBySystemPKs(ctx, source.Name, hostPKs)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing hosts: %w", err)
	}

	ids := make(map[string]int64, len(hosts))
	for _, hostPK := range hostPKs {
		h := hosts[hostPK]
		if stored, ok := existing[hostPK]; ok {
			if hostDirty(stored, h) {
				stored.Name = h.Name
				stored.Email = h.Email
				stored.HashedEmail = h.HashedEmail
				stored.Phone = h.Phone
				if err := s.store.UpdateActivist(ctx, stored); err != nil {
					return nil, fmt.Errorf("failed to update host %s/%s: %w", source.Name, hostPK, err)
				}
			}
			ids[hostPK] = stored.ID
			continue
		}

		a := &models.Activist{
			MemberSystem:   source.Name,
			MemberSystemPK: hostPK,
			Name:           h.Name,
			Email:          h.Email,
			HashedEmail:    h.HashedEmail,
			Phone:          h.Phone,
		}
		if err := s.store.InsertActivist(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to insert host %s/%s: %w", source.Name, hostPK, err)
		}
		ids[hostPK] = a.ID
	}
	return ids, nil
}

// hostDirty short-circuits on the first differing contact field.
func hostDirty(stored *models.Activist, h *models.HostFields) bool {
	if stored.HashedEmail != h.HashedEmail {
		return true
	}
	if stored.Email != h.Email {
		return true
	}
	if stored.Name != h.Name {
		return true
	}
	return stored.Phone != h.Phone
}

// classifySyncError buckets a failure for the error metric.
func classifySyncError(err error) string {
	switch {
	case errors.Is(err, errConnector):
		return "connector"
	case errors.Is(err, errWatermark):
		return "watermark"
	default:
		return "database"
	}
}
