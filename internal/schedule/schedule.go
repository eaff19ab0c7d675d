package schedule

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Role says what the engine does when a checkpoint is reached.
type Role string

const (
	OpenCapture   Role = "OPEN_CAPTURE"
	EntryDecision Role = "ENTRY_DECISION"
	ExitClose     Role = "EXIT_CLOSE"
)

// Checkpoint is a named wall-clock target in the scheduler's time zone.
// Checkpoints come from configuration and are never mutated.
type Checkpoint struct {
	Role   Role
	Hour   int
	Minute int
}

// ParseCheckpoint reads an "HH:MM" wall-clock time.
func ParseCheckpoint(role Role, value string) (Checkpoint, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: invalid time %q (want HH:MM)", role, value)
	}
	return Checkpoint{Role: role, Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the checkpoint's instant on the calendar day of t, in t's location.
func (c Checkpoint) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

// Before reports whether c is earlier in the day than other.
func (c Checkpoint) Before(other Checkpoint) bool {
	return c.Hour*60+c.Minute < other.Hour*60+other.Minute
}

// Outcome is the result of waiting for a checkpoint.
type Outcome int

const (
	Reached Outcome = iota
	Skipped
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Reached:
		return "reached"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Scheduler blocks the caller until wall-clock checkpoints in a fixed zone.
type Scheduler struct {
	loc           *time.Location
	tick          time.Duration
	progressEvery time.Duration
	now           func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithProgressEvery sets how often a long wait logs its remaining time.
func WithProgressEvery(d time.Duration) Option {
	return func(s *Scheduler) {
		s.progressEvery = d
	}
}

// New returns a Scheduler for loc that wakes at least every tick.
func New(loc *time.Location, tick time.Duration, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if tick <= 0 {
		tick = 15 * time.Second
	}
	s := &Scheduler{
		loc:           loc,
		tick:          tick,
		progressEvery: 5 * time.Minute,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in the scheduler's zone.
func (s *Scheduler) Now() time.Time {
	return s.now().In(s.loc)
}

// Location returns the scheduler's zone.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// WaitUntil blocks until cp is reached today.
//
// A checkpoint already behind the current time returns Skipped without
// blocking. Cancelling ctx returns Cancelled immediately; the wait never
// sleeps longer than one tick between clock reads.
func (s *Scheduler) WaitUntil(ctx context.Context, cp Checkpoint) Outcome {
	if ctx.Err() != nil {
		return Cancelled
	}

	now := s.Now()
	target := cp.On(now)
	if now.After(target) {
		log.Printf("Warning: checkpoint %s (%s %s) has already passed, skipping", cp.Role, cp, s.loc)
		return Skipped
	}

	log.Printf("Waiting until %s %s for %s (%s)...", cp, s.loc, cp.Role, target.Sub(now).Round(time.Second))
	lastProgress := now

	for {
		now = s.Now()
		remaining := target.Sub(now)
		if remaining <= 0 {
			log.Printf("Checkpoint %s reached at %s", cp.Role, now.Format("15:04:05 MST"))
			return Reached
		}

		if s.progressEvery > 0 && now.Sub(lastProgress) >= s.progressEvery {
			log.Printf("Still waiting for %s... %s remaining", cp.Role, remaining.Round(time.Second))
			lastProgress = now
		}

		if err := Sleep(ctx, min(remaining, s.tick)); err != nil {
			log.Printf("Wait for %s interrupted: %v", cp.Role, err)
			return Cancelled
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
