// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

/*
Package models defines the canonical data model shared by every layer of
eventroller.

The model is split across files by concern:

  - event.go: Event, the canonical representation of one external event
    instance, plus its status and moderation enums
  - activist.go: Activist (event host identity, scoped to one source) and
    the HostFields value object produced by connectors
  - source.go: EventSource (configured external system) and Organization
  - fields.go: EventFields, the normalized record a connector emits, and
    the opaque JSONMap payload type
  - dupe.go: EventDupeGuess, the reviewable cross-source duplicate pairing
  - review.go: Review, ReviewLog, ReviewGroup and the fast-path snapshot
    types used by the polling review API

Identity conventions:

  - Events are identified externally by their natural key, the pair
    (organization_source, organization_source_pk). Upserts match on it.
  - Activists are identified by (member_system, member_system_pk), but
    cross-sync matching uses the tolerant LikelySame heuristic in the
    syncer package, never strict field equality.

Connectors produce EventFields/HostFields value objects, never persisted
rows; persistence is entirely the syncer's job.
*/
package models
