// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package syncer

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/eventroller/eventroller/internal/logging"
)

// TopicSourceUpdated carries a notification after each completed sync
// pass. The dedupe incremental subscriber listens here.
const TopicSourceUpdated = "source.updated"

// SourceUpdated is the payload published on TopicSourceUpdated.
type SourceUpdated struct {
	Source    string    `json:"source"`
	Watermark string    `json:"watermark"`
	Pulled    int       `json:"pulled"`
	SyncedAt  time.Time `json:"synced_at"`
}

// publishSourceUpdated emits the fire-and-forget completion notification.
// A publish failure is logged, never propagated: listeners are an
// optimization, not a dependency of the sync pass.
func (s *Syncer) publishSourceUpdated(payload SourceUpdated) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("source", payload.Source).Msg("Failed to encode source.updated payload")
		return
	}
	msg := message.NewMessage(uuid.NewString(), body)
	if err := s.publisher.Publish(TopicSourceUpdated, msg); err != nil {
		logging.Error().Err(err).Str("source", payload.Source).Msg("Failed to publish source.updated")
	}
}

// DecodeSourceUpdated parses a TopicSourceUpdated message payload.
func DecodeSourceUpdated(msg *message.Message) (*SourceUpdated, error) {
	var payload SourceUpdated
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
