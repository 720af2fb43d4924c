// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

// Package config loads and validates eventroller configuration with a
// layered koanf pipeline: struct defaults, then an optional YAML file,
// then EVENTROLLER_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
	Sync     SyncConfig     `koanf:"sync"`
	Dedupe   DedupeConfig   `koanf:"dedupe"`
	Review   ReviewConfig   `koanf:"review"`
	Public   PublicConfig   `koanf:"public"`

	// Sources maps source name to its static definition. Sources listed
	// here are auto-provisioned at startup and their credentials never
	// touch the database.
	Sources map[string]SourceConfig `koanf:"sources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins is the allowed origin list for the public API.
	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file; empty means in-memory (tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`

	// QueryTimeout bounds statements that arrive without a deadline.
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SyncConfig holds synchronizer and scheduler settings.
type SyncConfig struct {
	// HourlyInterval and DailyInterval drive the scheduler loops for
	// sources with the matching update style.
	HourlyInterval time.Duration `koanf:"hourly_interval"`
	DailyInterval  time.Duration `koanf:"daily_interval"`

	// MaxEvents caps a single connector pull; 0 means connector default.
	MaxEvents int `koanf:"max_events"`

	// RequestTimeout bounds each outbound vendor call.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// InsertBatchSize is the bulk-insert chunk for new events.
	InsertBatchSize int `koanf:"insert_batch_size" validate:"min=1"`
}

// DedupeConfig holds duplicate detector settings.
type DedupeConfig struct {
	// Incremental enables the source.updated subscriber that runs the
	// since-last-run scan after each sync pass.
	Incremental bool `koanf:"incremental"`
}

// ReviewConfig holds review cache/log settings.
type ReviewConfig struct {
	// RecentLimit bounds the fast-path recent-activity list; trimmed on
	// every write.
	RecentLimit int `koanf:"recent_limit" validate:"min=1"`

	// BackfillLimit caps how many per-key rows a cold-start backfill
	// pulls from the durable log.
	BackfillLimit int `koanf:"backfill_limit" validate:"min=1"`

	// FocusLimit caps the presence map; exceeding it triggers a sweep.
	FocusLimit int `koanf:"focus_limit" validate:"min=1"`

	// FocusMaxAge is the staleness window for presence marks.
	FocusMaxAge time.Duration `koanf:"focus_max_age"`
}

// PublicConfig holds public read API settings.
type PublicConfig struct {
	// ExcludedReviewStatuses are review states hidden from the public
	// endpoint on top of the private/searchable flags.
	ExcludedReviewStatuses []string `koanf:"excluded_review_statuses"`

	PageSize    int `koanf:"page_size" validate:"min=1"`
	MaxPageSize int `koanf:"max_page_size" validate:"min=1"`
}

// SourceConfig is a statically configured event source.
type SourceConfig struct {
	Organization  string            `koanf:"organization"`
	CRMType       string            `koanf:"crm_type" validate:"required"`
	UpdateStyle   int               `koanf:"update_style" validate:"min=0,max=4"`
	AllowsUpdates bool              `koanf:"allows_updates"`
	OSDIName      string            `koanf:"osdi_name"`
	Data          map[string]string `koanf:"data"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8377,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			Path:         "/data/eventroller.duckdb",
			MaxMemory:    "1GB",
			Threads:      0, // 0 = runtime.NumCPU()
			QueryTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sync: SyncConfig{
			HourlyInterval:  time.Hour,
			DailyInterval:   24 * time.Hour,
			MaxEvents:       0,
			RequestTimeout:  30 * time.Second,
			InsertBatchSize: 500,
		},
		Dedupe: DedupeConfig{
			Incremental: true,
		},
		Review: ReviewConfig{
			RecentLimit:   12,
			BackfillLimit: 50,
			FocusLimit:    50,
			FocusMaxAge:   2 * time.Hour,
		},
		Public: PublicConfig{
			ExcludedReviewStatuses: []string{"questionable", "limbo"},
			PageSize:               25,
			MaxPageSize:            100,
		},
		Sources: map[string]SourceConfig{},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Public.PageSize > c.Public.MaxPageSize {
		return fmt.Errorf("public.page_size %d exceeds public.max_page_size %d",
			c.Public.PageSize, c.Public.MaxPageSize)
	}
	for name, src := range c.Sources {
		if name == "" {
			return fmt.Errorf("sources must be keyed by a non-empty name")
		}
		if src.CRMType == "" {
			return fmt.Errorf("source %q: crm_type is required", name)
		}
	}
	return nil
}

// SourceData resolves the connector configuration bag for a named source:
// the static configuration mapping wins; callers fall back to the
// persisted blob only when the source is absent here.
func (c *Config) SourceData(name string) (map[string]string, bool) {
	src, ok := c.Sources[name]
	if !ok || src.Data == nil {
		return nil, false
	}
	return src.Data, true
}
