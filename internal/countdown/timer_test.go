package countdown_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-runner/internal/countdown"
	"github.com/gokatarajesh/exam-runner/internal/countdown/countdowntest"
)

type recorder struct {
	mu      sync.Mutex
	ticks   []time.Duration
	expired int
}

func (r *recorder) onTick(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, d)
}

func (r *recorder) onExpire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
}

func (r *recorder) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recorder) lastTick() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ticks) == 0 {
		return -1
	}
	return r.ticks[len(r.ticks)-1]
}

func (r *recorder) expiredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTimer(clock countdown.Clock, rec *recorder) *countdown.Timer {
	return countdown.New(countdown.Options{
		Clock:    clock,
		Interval: time.Second,
		OnTick:   rec.onTick,
		OnExpire: rec.onExpire,
	}, zerolog.Nop())
}

func waitDone(t *testing.T, timer *countdown.Timer) {
	t.Helper()
	select {
	case <-timer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("countdown loop did not exit")
	}
}

func TestTimerTicksAndExpiresOnce(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	rec := &recorder{}
	timer := newTimer(clock, rec)

	require.NoError(t, timer.Start(t0.Add(2*time.Second)))
	assert.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2*time.Second, rec.lastTick())

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return rec.tickCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, rec.lastTick())

	clock.Advance(time.Second)
	waitDone(t, timer)

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, rec.expiredCount())
	assert.Equal(t, time.Duration(0), rec.lastTick())
	assert.True(t, timer.Fired())
	assert.Zero(t, clock.ActiveTickers())
}

func TestTimerWithPastDeadlineExpiresWithoutTick(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	rec := &recorder{}
	timer := newTimer(clock, rec)

	require.NoError(t, timer.Start(t0))
	waitDone(t, timer)
	clock.Advance(time.Second)

	assert.Equal(t, 1, rec.expiredCount())
}

func TestTimerRecomputesFromDeadline(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	rec := &recorder{}
	timer := newTimer(clock, rec)

	require.NoError(t, timer.Start(t0.Add(10*time.Second)))
	assert.Eventually(t, func() bool { return rec.tickCount() == 1 }, time.Second, time.Millisecond)

	// a long suspension delivers a single tick; remaining still reflects wall time
	clock.Advance(7 * time.Second)
	assert.Eventually(t, func() bool { return rec.tickCount() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 3*time.Second, rec.lastTick())

	timer.Cancel()
	waitDone(t, timer)
}

func TestCancelStopsTimerBeforeExpiry(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	rec := &recorder{}
	timer := newTimer(clock, rec)

	require.NoError(t, timer.Start(t0.Add(3*time.Second)))
	timer.Cancel()
	timer.Cancel()
	waitDone(t, timer)

	clock.Advance(10 * time.Second)
	assert.Zero(t, rec.expiredCount())
	assert.False(t, timer.Fired())
	assert.Zero(t, clock.ActiveTickers())
}

func TestStartIsOneShot(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	timer := newTimer(clock, &recorder{})

	require.NoError(t, timer.Start(t0.Add(time.Minute)))
	assert.ErrorIs(t, timer.Start(t0.Add(time.Minute)), countdown.ErrAlreadyStarted)

	timer.Cancel()
	assert.ErrorIs(t, timer.Start(t0.Add(time.Minute)), countdown.ErrCancelled)
}

func TestCancelBeforeStartPreventsTicking(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	timer := newTimer(clock, &recorder{})

	timer.Cancel()
	assert.ErrorIs(t, timer.Start(t0), countdown.ErrCancelled)
	assert.Zero(t, clock.ActiveTickers())
	waitDone(t, timer)
}

func TestCancelFromExpireCallbackDoesNotBlock(t *testing.T) {
	clock := countdowntest.NewFakeClock(t0)
	var timer *countdown.Timer
	expired := make(chan struct{})
	timer = countdown.New(countdown.Options{
		Clock: clock,
		OnExpire: func() {
			timer.Cancel()
			close(expired)
		},
	}, zerolog.Nop())

	require.NoError(t, timer.Start(t0))
	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expire callback did not run")
	}
	waitDone(t, timer)
}

func TestRemainingClampsAtZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), countdown.Remaining(t0, t0.Add(time.Second)))
	assert.Equal(t, time.Second, countdown.Remaining(t0.Add(time.Second), t0))
}
