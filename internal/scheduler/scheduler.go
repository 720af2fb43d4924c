// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package scheduler runs the periodic sync loops and enforces the
// per-source mutual exclusion the syncer requires: two passes for the
// same source never run concurrently, while different sources proceed in
// parallel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eventroller/eventroller/internal/config"
	"github.com/eventroller/eventroller/internal/database"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/models"
	"github.com/eventroller/eventroller/internal/syncer"
)

// SourceStore is the storage surface for source scheduling and
// provisioning.
type SourceStore interface {
	ListSourcesByStyle(ctx context.Context, style models.UpdateStyle) ([]*models.EventSource, error)
	GetSourceByName(ctx context.Context, name string) (*models.EventSource, error)
	InsertSource(ctx context.Context, s *models.EventSource) error
	UpdateSource(ctx context.Context, s *models.EventSource) error

	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
	InsertOrganization(ctx context.Context, o *models.Organization) error
}

// Runner runs one sync pass; satisfied by *syncer.Syncer.
type Runner interface {
	Sync(ctx context.Context, sourceName, since string) (*syncer.Result, error)
}

// Scheduler owns the per-source locks and dispatches sync passes.
type Scheduler struct {
	store  SourceStore
	runner Runner
	cfg    *config.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a Scheduler.
func New(store SourceStore, runner Runner, cfg *config.Config) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		cfg:    cfg,
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one source's passes.
func (s *Scheduler) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// RunSource runs one pass for a named source under its lock. since
// overrides the stored watermark when non-empty; fromStart clears it,
// re-pulling the source's full history.
func (s *Scheduler) RunSource(ctx context.Context, name, since string, fromStart bool) (*syncer.Result, error) {
	lock := s.lockFor(name)
	if !lock.TryLock() {
		return nil, fmt.Errorf("sync already running for source %s", name)
	}
	defer lock.Unlock()

	if fromStart {
		source, err := s.store.GetSourceByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source %s: %w", name, err)
		}
		if source.LastUpdate != "" {
			source.LastUpdate = ""
			if err := s.store.UpdateSource(ctx, source); err != nil {
				return nil, fmt.Errorf("failed to clear watermark for source %s: %w", name, err)
			}
		}
	}
	return s.runner.Sync(ctx, name, since)
}

// RunDue runs every source configured with the given cadence. A failed
// source never blocks the rest; a source whose previous pass is still
// running is skipped, not queued.
func (s *Scheduler) RunDue(ctx context.Context, style models.UpdateStyle) map[string]*syncer.Result {
	sources, err := s.store.ListSourcesByStyle(ctx, style)
	if err != nil {
		logging.Error().Err(err).Str("style", style.String()).Msg("Failed to list due sources")
		return nil
	}

	results := make(map[string]*syncer.Result, len(sources))
	for _, source := range sources {
		if ctx.Err() != nil {
			return results
		}
		result, err := s.RunSource(ctx, source.Name, "", false)
		if err != nil {
			logging.Error().Err(err).Str("source", source.Name).Msg("Scheduled sync pass failed")
			continue
		}
		results[source.Name] = result
	}
	return results
}

// Provision upserts the statically configured sources so deployments can
// declare their source fleet in configuration alone. Idempotent: an
// existing source has its definition refreshed but keeps its watermark.
// The owning organization row is created on first sight, so review scopes
// resolve without manual setup.
func (s *Scheduler) Provision(ctx context.Context) error {
	ensured := make(map[string]bool)
	for name, sc := range s.cfg.Sources {
		if sc.Organization != "" && !ensured[sc.Organization] {
			if err := s.ensureOrganization(ctx, sc.Organization); err != nil {
				return err
			}
			ensured[sc.Organization] = true
		}

		existing, err := s.store.GetSourceByName(ctx, name)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to look up source %s: %w", name, err)
		}
		if err == nil {
			changed := false
			if existing.Organization != sc.Organization {
				existing.Organization = sc.Organization
				changed = true
			}
			if existing.CRMType != sc.CRMType {
				existing.CRMType = sc.CRMType
				changed = true
			}
			if existing.UpdateStyle != models.UpdateStyle(sc.UpdateStyle) {
				existing.UpdateStyle = models.UpdateStyle(sc.UpdateStyle)
				changed = true
			}
			if existing.AllowsUpdates != sc.AllowsUpdates {
				existing.AllowsUpdates = sc.AllowsUpdates
				changed = true
			}
			if existing.OSDIName != sc.OSDIName {
				existing.OSDIName = sc.OSDIName
				changed = true
			}
			if changed {
				if err := s.store.UpdateSource(ctx, existing); err != nil {
					return fmt.Errorf("failed to update provisioned source %s: %w", name, err)
				}
				logging.Info().Str("source", name).Msg("Provisioned source updated from configuration")
			}
			continue
		}

		source := &models.EventSource{
			Name:          name,
			Organization:  sc.Organization,
			CRMType:       sc.CRMType,
			UpdateStyle:   models.UpdateStyle(sc.UpdateStyle),
			AllowsUpdates: sc.AllowsUpdates,
			OSDIName:      sc.OSDIName,
		}
		if err := s.store.InsertSource(ctx, source); err != nil {
			return fmt.Errorf("failed to provision source %s: %w", name, err)
		}
		logging.Info().Str("source", name).Str("crm_type", sc.CRMType).Msg("Provisioned source created")
	}
	return nil
}

// ensureOrganization guarantees the owning organization row exists. The
// slug doubles as the initial title; operators rename it later.
func (s *Scheduler) ensureOrganization(ctx context.Context, slug string) error {
	_, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to look up organization %s: %w", slug, err)
	}
	org := &models.Organization{Slug: slug, Title: slug}
	if err := s.store.InsertOrganization(ctx, org); err != nil {
		return fmt.Errorf("failed to provision organization %s: %w", slug, err)
	}
	logging.Info().Str("organization", slug).Msg("Provisioned organization created")
	return nil
}
