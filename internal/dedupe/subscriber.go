// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package dedupe

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/syncer"
)

// Listen consumes source.updated notifications and runs an incremental
// pass after each completed sync. Blocks until ctx is cancelled or the
// subscription channel closes.
//
// Messages are always acked: a failed pass is retried implicitly by the
// next sync notification (or the scheduled full sweep), so redelivery
// would only duplicate work that is idempotent anyway.
func (d *Detector) Listen(ctx context.Context, subscriber message.Subscriber) error {
	messages, err := subscriber.Subscribe(ctx, syncer.TopicSourceUpdated)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *Detector) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	payload, err := syncer.DecodeSourceUpdated(msg)
	if err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("Failed to decode source.updated payload")
		return
	}
	if payload.Pulled == 0 {
		return
	}

	summary, err := d.RunIncremental(ctx)
	if err != nil {
		logging.Error().Err(err).Str("source", payload.Source).Msg("Incremental dedupe pass failed")
		return
	}
	logging.Debug().Str("source", payload.Source).Str("summary", summary.String()).
		Msg("Incremental dedupe after sync")
}
