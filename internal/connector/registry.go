// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eventroller/eventroller/internal/models"
)

// Factory builds a connector for one configured source. The data map is
// the source's resolved credential/option bag; required keys have already
// been checked against the registered schema.
type Factory func(source *models.EventSource, data map[string]string) (Connector, error)

// registration pairs a factory with the schema needed to validate
// configuration before construction.
type registration struct {
	factory Factory
	params  map[string]Parameter
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds a connector type under a name. Names are the values of
// EventSource.CRMType; registering a duplicate name panics, since that is
// a programming error caught at init time.
func Register(name string, factory Factory, params map[string]Parameter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("connector type %q registered twice", name))
	}
	registry[name] = registration{factory: factory, params: params}
}

// Known returns the registered connector type names, sorted.
func Known() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the parameter schema for a connector type without
// constructing it, for configuration validation and settings UIs.
func Schema(name string) (map[string]Parameter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown connector type %q", name)
	}
	return reg.params, nil
}

// New resolves a source's connector type and builds the connector,
// checking the resolved data bag against the declared schema first so a
// misconfigured source fails at configuration time, not mid-sync.
func New(source *models.EventSource, data map[string]string) (Connector, error) {
	registryMu.RLock()
	reg, ok := registry[source.CRMType]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %s: unknown connector type %q (known: %v)",
			source.Name, source.CRMType, Known())
	}

	var missing []string
	for key, p := range reg.params {
		if p.Required && data[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("source %s: missing required connector parameters %v", source.Name, missing)
	}

	c, err := reg.factory(source, data)
	if err != nil {
		return nil, fmt.Errorf("source %s: failed to build %s connector: %w", source.Name, source.CRMType, err)
	}
	return c, nil
}
