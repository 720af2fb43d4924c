// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package syncer

import (
	"context"
	"fmt"

	"github.com/eventroller/eventroller/internal/connector"
	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/models"
)

// PushReview writes a review decision back to the vendor system owning
// the event. Sources that forbid updates, and connectors without the
// write capability, are quiet no-ops: write-back is opportunistic.
func (s *Syncer) PushReview(ctx context.Context, event *models.Event, review string) error {
	source, err := s.store.GetSourceByName(ctx, event.OrganizationSource)
	if err != nil {
		return fmt.Errorf("failed to resolve source %s: %w", event.OrganizationSource, err)
	}
	conn, err := s.connectorFor(source)
	if err != nil {
		return err
	}
	if !conn.Writable() {
		return nil
	}
	writer, ok := conn.(connector.ReviewWriter)
	if !ok {
		return nil
	}
	if err := writer.UpdateReview(ctx, event, review); err != nil {
		return fmt.Errorf("failed to push review to %s: %w", source.Name, err)
	}
	logging.Debug().Str("source", source.Name).Str("pk", event.OrganizationSourcePK).
		Str("review", review).Msg("Review pushed upstream")
	return nil
}
