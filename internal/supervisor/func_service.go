// Eventroller - Distributed Event Aggregation and Review
// Copyright 2026 The Eventroller Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/eventroller/eventroller

package supervisor

import "context"

// FuncService wraps a blocking, context-aware run function as a suture
// service. Used for the dedupe subscriber, which is already a loop.
type FuncService struct {
	name string
	run  func(ctx context.Context) error
}

func NewFuncService(name string, run func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, run: run}
}

func (s *FuncService) Serve(ctx context.Context) error { return s.run(ctx) }

func (s *FuncService) String() string { return s.name }
