package schedule

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

// runningClock starts at base and advances with real time.
func runningClock(base time.Time) func() time.Time {
	start := time.Now()
	return func() time.Time {
		return base.Add(time.Since(start))
	}
}

func TestParseCheckpoint(t *testing.T) {
	cp, err := ParseCheckpoint(ExitClose, "12:59")
	require.NoError(t, err)
	assert.Equal(t, 12, cp.Hour)
	assert.Equal(t, 59, cp.Minute)
	assert.Equal(t, "12:59", cp.String())

	_, err = ParseCheckpoint(OpenCapture, "6.30")
	assert.Error(t, err)
	_, err = ParseCheckpoint(OpenCapture, "25:00")
	assert.Error(t, err)
}

func TestCheckpointOnUsesZone(t *testing.T) {
	loc := losAngeles(t)
	cp := Checkpoint{Role: OpenCapture, Hour: 6, Minute: 30}

	// 2024-07-01 is PDT (UTC-7), 2024-12-02 is PST (UTC-8).
	summer := cp.On(time.Date(2024, 7, 1, 3, 0, 0, 0, loc))
	winter := cp.On(time.Date(2024, 12, 2, 3, 0, 0, 0, loc))
	assert.Equal(t, 13, summer.UTC().Hour())
	assert.Equal(t, 14, winter.UTC().Hour())
}

func TestWaitUntilPastCheckpointSkips(t *testing.T) {
	loc := losAngeles(t)
	now := time.Date(2024, 7, 1, 7, 30, 0, 0, loc)
	s := New(loc, time.Hour, WithClock(func() time.Time { return now }))

	start := time.Now()
	outcome := s.WaitUntil(context.Background(), Checkpoint{Role: EntryDecision, Hour: 7, Minute: 0})

	assert.Equal(t, Skipped, outcome)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitUntilReached(t *testing.T) {
	loc := losAngeles(t)
	base := time.Date(2024, 7, 1, 6, 29, 59, 850_000_000, loc)
	s := New(loc, 20*time.Millisecond, WithClock(runningClock(base)))

	outcome := s.WaitUntil(context.Background(), Checkpoint{Role: OpenCapture, Hour: 6, Minute: 30})
	assert.Equal(t, Reached, outcome)
}

func TestWaitUntilExactTimeIsReached(t *testing.T) {
	loc := losAngeles(t)
	now := time.Date(2024, 7, 1, 12, 59, 0, 0, loc)
	s := New(loc, time.Hour, WithClock(func() time.Time { return now }))

	assert.Equal(t, Reached, s.WaitUntil(context.Background(), Checkpoint{Role: ExitClose, Hour: 12, Minute: 59}))
}

func TestWaitUntilCancelledPromptly(t *testing.T) {
	loc := losAngeles(t)
	base := time.Date(2024, 7, 1, 6, 0, 0, 0, loc)
	// A tick of an hour proves cancellation does not wait for the next wake-up.
	s := New(loc, time.Hour, WithClock(runningClock(base)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := s.WaitUntil(ctx, Checkpoint{Role: OpenCapture, Hour: 6, Minute: 30})

	assert.Equal(t, Cancelled, outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitUntilAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(time.UTC, time.Second)
	assert.Equal(t, Cancelled, s.WaitUntil(ctx, Checkpoint{Role: ExitClose, Hour: 23, Minute: 59}))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
