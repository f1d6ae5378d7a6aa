// Package clock drives the host-side match clock. The engine itself knows
// nothing about the game document: it measures wall-clock deltas between
// ticks and hands them to a callback, which commits them through the state
// store. Guests never run an engine; they render the replicated clock field.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the nominal tick period. The delta passed to the
// callback is always measured from real timestamps, not assumed from the
// interval, so scheduling jitter never skews the clock.
const DefaultInterval = time.Second

// TickFunc receives the measured elapsed time since the previous tick.
type TickFunc func(delta time.Duration)

// Engine is a periodic ticker over an injectable clock. Start and Stop are
// both idempotent; the engine may be started and stopped many times over a
// match as rounds begin, pause and end.
type Engine struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   TickFunc

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds an engine. A zero interval falls back to DefaultInterval.
func New(clk clockwork.Clock, interval time.Duration, onTick TickFunc) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{clock: clk, interval: interval, onTick: onTick}
}

// Start begins ticking. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(ctx)
	log.Debug().Dur("interval", e.interval).Msg("clock engine started")
}

// Stop halts ticking. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	log.Debug().Msg("clock engine stopped")
}

// Running reports whether the engine is currently ticking.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := e.clock.Now()
			delta := now.Sub(last)
			last = now
			if delta <= 0 {
				continue
			}
			e.onTick(delta)
		}
	}
}
