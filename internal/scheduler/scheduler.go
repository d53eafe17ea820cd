package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per slot with the slot's scheduled time.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// AlignToStart snaps slots to multiples of Interval (wall clock).
	AlignToStart bool
	// StartupDelay postpones the first tick; the first tick fires as soon as it elapses.
	StartupDelay time.Duration
}

// Scheduler drives the periodic evaluation loop. Ticks run sequentially on the
// caller's goroutine; a tick that overruns its slot causes the missed slots to be skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if opts.StartupDelay < 0 {
		return nil, errors.New("scheduler startup delay must not be negative")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}, nil
}

// Run blocks, invoking tick once per slot until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.now().UTC()
	if s.opts.AlignToStart {
		next = s.slotAfter(next)
	}
	for {
		if err := sleep(ctx, next.Sub(s.now())); err != nil {
			return err
		}

		s.logger.Debug().Time("at", next).Msg("executing scheduled tick")
		if err := tick(ctx, next); err != nil {
			s.logger.Error().Err(err).Time("at", next).Msg("tick execution failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		planned := next.Add(s.opts.Interval)
		next = s.following(planned, s.now().UTC())
		if skipped := int(next.Sub(planned) / s.opts.Interval); skipped > 0 {
			s.logger.Warn().Int("skipped", skipped).Time("next", next).Msg("tick overran its slot, skipping missed slots")
		}
	}
}

// following returns planned, or the first slot after now on the same grid when planned has passed.
func (s *Scheduler) following(planned, now time.Time) time.Time {
	if !planned.Before(now) {
		return planned
	}
	missed := now.Sub(planned)/s.opts.Interval + 1
	return planned.Add(missed * s.opts.Interval)
}

func (s *Scheduler) slotAfter(now time.Time) time.Time {
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
