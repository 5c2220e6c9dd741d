// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package services

import (
	"context"
	"errors"
)

// Runner is a blocking consumer loop driven by context cancellation.
// Implemented by the feedback bus.
type Runner interface {
	Run(ctx context.Context) error
}

// BusService wraps the feedback bus consumer as a supervised service so
// suture restarts it if the loop ever fails.
type BusService struct {
	runner Runner
	name   string
}

// NewBusService creates the bus consumer service.
func NewBusService(runner Runner) *BusService {
	return &BusService{runner: runner, name: "feedback-bus"}
}

// Serve implements suture.Service.
func (b *BusService) Serve(ctx context.Context) error {
	err := b.runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// String returns the service name for logging.
func (b *BusService) String() string {
	return b.name
}
