// Package reaper runs the background task that moves stale devices
// offline and sweeps timed-out pending commands. It is the only component
// authorised to offline a device due to staleness (spec.md §4.4).
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/model"
)

// Registry is the subset of registry.Registry the reaper needs to find
// and flag stale devices.
type Registry interface {
	List() []model.Device
	MarkOffline(ctx context.Context, deviceID, reason string)
}

// SessionCloser closes a device's live session once it has been reaped.
type SessionCloser interface {
	Close(deviceID, reason string)
}

// TimeoutSweeper is invoked on every tick to expire pending command acks
// past their deadline (the command router's timeout sweep, piggy-backed
// on this ticker per spec.md §4.5).
type TimeoutSweeper interface {
	SweepTimeouts(ctx context.Context)
}

// Reaper owns a single cancellable ticker loop.
type Reaper struct {
	registry Registry
	sessions SessionCloser
	sweeper  TimeoutSweeper

	timeout  time.Duration
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(reg Registry, sessions SessionCloser, sweeper TimeoutSweeper, timeout, interval time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		registry: reg,
		sessions: sessions,
		sweeper:  sweeper,
		timeout:  timeout,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop in its own goroutine. Call Stop to cancel
// and wait for it to exit.
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.log.Info().Msg("heartbeat reaper stopped")
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *Reaper) tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, d := range r.registry.List() {
		if !d.IsOnline {
			continue
		}
		if now.Sub(d.LastHeartbeat) > r.timeout {
			r.log.Info().Str("device_id", d.DeviceID).Msg("heartbeat timeout, marking offline")
			r.registry.MarkOffline(ctx, d.DeviceID, "timeout")
			r.sessions.Close(d.DeviceID, "timeout")
		}
	}
	if r.sweeper != nil {
		r.sweeper.SweepTimeouts(ctx)
	}
}

// Stop cancels the ticker loop and waits for it to exit.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}
