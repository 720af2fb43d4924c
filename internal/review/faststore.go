// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package review

import (
	"sync"
	"time"

	"github.com/eventroller/eventroller/internal/metrics"
	"github.com/eventroller/eventroller/internal/models"
)

type objectKey struct {
	ContentType string
	ObjectID    int64
}

type focusKey struct {
	ContentType string
	ObjectID    int64
	Reviewer    string
}

// orgState is the volatile fast path for one organization: the latest
// decision snapshot per object, a bounded newest-first activity list, and
// the presence map.
type orgState struct {
	snapshots map[objectKey]map[string]string
	recent    []*models.ReviewSnapshot

	// primed marks the list as authoritative even when empty. It is the
	// empty sentinel: a cold cache with zero durable history backfills
	// once and then serves the empty answer without re-querying.
	primed bool

	focus map[focusKey]*models.FocusMark
}

// fastStore holds per-organization fast-path state. Writes are
// last-write-wins per object key; the durable log remains the source of
// truth and a stale snapshot here is self-healing.
type fastStore struct {
	mu          sync.Mutex
	recentLimit int
	focusLimit  int
	focusMaxAge time.Duration

	orgs map[string]*orgState
}

func newFastStore(recentLimit, focusLimit int, focusMaxAge time.Duration) *fastStore {
	return &fastStore{
		recentLimit: recentLimit,
		focusLimit:  focusLimit,
		focusMaxAge: focusMaxAge,
		orgs:        make(map[string]*orgState),
	}
}

// orgLocked returns the state for an organization. Must hold mu.
func (f *fastStore) orgLocked(organization string) *orgState {
	st, ok := f.orgs[organization]
	if !ok {
		st = &orgState{
			snapshots: make(map[objectKey]map[string]string),
			focus:     make(map[focusKey]*models.FocusMark),
		}
		f.orgs[organization] = st
	}
	return st
}

// RecordWrite merges freshly saved decisions into the snapshot for the
// object and moves it to the front of the recent list. The list is
// trimmed on every write, keeping the memory bound deterministic.
func (f *fastStore) RecordWrite(organization string, contentType string, objectID int64, decisions map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	key := objectKey{ContentType: contentType, ObjectID: objectID}

	snap, ok := st.snapshots[key]
	if !ok {
		snap = make(map[string]string, len(decisions))
		st.snapshots[key] = snap
	}
	for k, v := range decisions {
		snap[k] = v
	}

	// Entries handed out by Recent are serialized outside the lock, so
	// they must never alias the canonical map mutated above. Each write
	// publishes a fresh frozen copy.
	served := make(map[string]string, len(snap))
	for k, v := range snap {
		served[k] = v
	}
	entry := &models.ReviewSnapshot{ContentType: contentType, ObjectID: objectID, Decisions: served}
	kept := make([]*models.ReviewSnapshot, 0, len(st.recent)+1)
	kept = append(kept, entry)
	for _, s := range st.recent {
		if s.ContentType == contentType && s.ObjectID == objectID {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) > f.recentLimit {
		dropped := kept[f.recentLimit:]
		for _, s := range dropped {
			delete(st.snapshots, objectKey{ContentType: s.ContentType, ObjectID: s.ObjectID})
		}
		kept = kept[:f.recentLimit]
	}
	st.recent = kept
	st.primed = true
}

// Recent returns a copy of the activity list and whether the list is
// authoritative. A false second return means cold cache: backfill first.
// Entries are immutable once published, so callers may read them without
// holding the lock.
func (f *fastStore) Recent(organization string) ([]*models.ReviewSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	if !st.primed {
		return nil, false
	}
	out := make([]*models.ReviewSnapshot, len(st.recent))
	copy(out, st.recent)
	return out, true
}

// Prime installs backfilled snapshots (newest first) and marks the list
// authoritative. Priming with nothing plants the empty sentinel.
func (f *fastStore) Prime(organization string, snapshots []*models.ReviewSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	if st.primed {
		// A concurrent writer won the race; its state is fresher.
		return
	}
	if len(snapshots) > f.recentLimit {
		snapshots = snapshots[:f.recentLimit]
	}
	st.recent = snapshots
	for _, s := range snapshots {
		// Copy, never alias: the backfilled snapshots are already in the
		// caller's hands, and the canonical map is mutated by later writes.
		canon := make(map[string]string, len(s.Decisions))
		for k, v := range s.Decisions {
			canon[k] = v
		}
		st.snapshots[objectKey{ContentType: s.ContentType, ObjectID: s.ObjectID}] = canon
	}
	st.primed = true
}

// MarkFocus registers an attention mark for a reviewer. The sweep is
// lazy: only a write that pushes the map over the cap pays for it, so no
// background timer is needed.
func (f *fastStore) MarkFocus(organization string, mark *models.FocusMark) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	st.focus[focusKey{ContentType: mark.ContentType, ObjectID: mark.ObjectID, Reviewer: mark.Reviewer}] = mark
	if len(st.focus) > f.focusLimit {
		f.sweepFocusLocked(st)
	}
	metrics.ReviewFocusMarks.Set(float64(len(st.focus)))
}

// ClearFocus removes one reviewer's mark on an object.
func (f *fastStore) ClearFocus(organization, contentType string, objectID int64, reviewer string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	delete(st.focus, focusKey{ContentType: contentType, ObjectID: objectID, Reviewer: reviewer})
	metrics.ReviewFocusMarks.Set(float64(len(st.focus)))
}

// Focus returns the live marks for an organization, sweeping stale ones.
func (f *fastStore) Focus(organization string) []*models.FocusMark {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.orgLocked(organization)
	f.sweepFocusLocked(st)
	out := make([]*models.FocusMark, 0, len(st.focus))
	for _, m := range st.focus {
		out = append(out, m)
	}
	return out
}

// sweepFocusLocked drops marks older than the staleness window.
// Must hold mu.
func (f *fastStore) sweepFocusLocked(st *orgState) {
	cutoff := time.Now().Add(-f.focusMaxAge).Unix()
	for k, m := range st.focus {
		if m.MarkedAt < cutoff {
			delete(st.focus, k)
		}
	}
}
