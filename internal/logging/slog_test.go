// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSlogBridgeWritesThroughGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(prev)

	logger := NewSlogLogger().With("component", "supervisor")
	logger.Info("service started", "name", "api-server")

	out := buf.String()
	for _, want := range []string{
		`"message":"service started"`,
		`"component":"supervisor"`,
		`"name":"api-server"`,
		`"level":"info"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogBridgeHonorsGlobalLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	SetLogger(NewTestLogger(&buf).Level(zerolog.WarnLevel))
	defer SetLogger(prev)

	logger := NewSlogLogger()
	logger.Info("quiet")
	logger.Error("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("info message should be suppressed at warn level: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("error message should pass at warn level: %s", out)
	}
}

func TestBridgeLevel(t *testing.T) {
	cases := []struct {
		in   slog.Level
		want zerolog.Level
	}{
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
	}
	for _, tc := range cases {
		if got := bridgeLevel(tc.in); got != tc.want {
			t.Errorf("bridgeLevel(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
