// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gate spaces out and bounds the launch of concurrently scheduled
// phases so a provider sees evenly paced requests.
package gate

import (
	"context"
	"time"
)

// Gate serializes launches and keeps at least Interval between two of them,
// measured from launch to launch regardless of how many are in flight.
// The zero value is not usable; call New.
type Gate struct {
	interval time.Duration

	// turn is a one-slot ticket: holding it means being next to launch.
	turn chan struct{}

	// last is only read or written while holding turn.
	last time.Time
}

// New returns a Gate enforcing interval between launches. A non-positive
// interval still serializes callers but never sleeps.
func New(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		turn:     make(chan struct{}, 1),
	}
}

// Interval returns the minimum launch spacing.
func (g *Gate) Interval() time.Duration { return g.interval }

// Acquire waits for the caller's turn, sleeps until Interval has elapsed
// since the previous launch, and returns the launch instant. If ctx ends
// first the wait is abandoned and ctx.Err() returned; an abandoned caller
// does not count as a launch.
func (g *Gate) Acquire(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	select {
	case g.turn <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-g.turn }()

	for {
		now := time.Now()
		if g.last.IsZero() {
			g.last = now
			return now, nil
		}
		wait := g.interval - now.Sub(g.last)
		if wait <= 0 {
			g.last = now
			return now, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return time.Time{}, ctx.Err()
		}
	}
}

// Workers returns the worker-pool size for total phases:
// min(max(1, maxConcurrent), total). It returns 0 when there is no work.
func Workers(maxConcurrent, total int) int {
	if total <= 0 {
		return 0
	}
	n := max(1, maxConcurrent)
	return min(n, total)
}
