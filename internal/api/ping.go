// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eventroller/eventroller/internal/logging"
	"github.com/eventroller/eventroller/internal/metrics"
)

// transparentGIF is a 1x1 transparent image, the whole response body of
// the ping endpoint.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x00, 0xff,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x00, 0x3b,
}

// Ping refreshes one event by its vendor key and answers with a fixed
// pixel. GET /ping/{source}/{pk}
//
// The pixel is embedded on vendor thank-you pages, so the response is
// identical whether the refresh worked or not: outcome must not leak to
// the remote caller, and a broken source must not break their page.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	pk := chi.URLParam(r, "pk")

	if source != "" && pk != "" {
		metrics.PingHits.WithLabelValues(source).Inc()

		// Detached from the request context: the pixel returns
		// immediately while the refresh proceeds.
		go func() {
			timeout := h.cfg.Sync.RequestTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := h.refresher.SyncOne(ctx, source, pk); err != nil {
				logging.Warn().Err(err).Str("source", source).Str("pk", pk).Msg("Ping refresh failed")
			}
		}()
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}
