package countdown

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultInterval = time.Second

// Timers are one-shot.
var (
	ErrAlreadyStarted = errors.New("countdown already started")
	ErrCancelled      = errors.New("countdown cancelled")
)

// Options configures a Timer.
type Options struct {
	Clock    Clock
	Interval time.Duration
	// OnTick receives the remaining time after every tick, never negative.
	OnTick func(remaining time.Duration)
	// OnExpire runs at most once, when remaining time reaches zero.
	OnExpire func()
}

// Timer counts down to an absolute deadline. Remaining time is recomputed from
// the deadline on every tick so suspended or delayed ticks do not accumulate drift.
type Timer struct {
	clock    Clock
	interval time.Duration
	onTick   func(time.Duration)
	onExpire func()
	logger   zerolog.Logger

	mu       sync.Mutex
	deadline time.Time
	stopC    chan struct{}
	doneC    chan struct{}
	fired    atomic.Bool
}

// New creates an idle timer.
func New(opts Options, logger zerolog.Logger) *Timer {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.OnTick == nil {
		opts.OnTick = func(time.Duration) {}
	}
	if opts.OnExpire == nil {
		opts.OnExpire = func() {}
	}
	return &Timer{
		clock:    opts.Clock,
		interval: opts.Interval,
		onTick:   opts.OnTick,
		onExpire: opts.OnExpire,
		logger:   logger.With().Str("component", "countdown").Logger(),
	}
}

// Start begins ticking towards deadline.
func (t *Timer) Start(deadline time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopC != nil {
		select {
		case <-t.stopC:
			return ErrCancelled
		default:
			return ErrAlreadyStarted
		}
	}
	t.deadline = deadline
	t.stopC = make(chan struct{})
	t.doneC = make(chan struct{})

	ticker := t.clock.NewTicker(t.interval)
	go t.run(ticker, t.stopC, t.doneC)

	t.logger.Debug().Time("deadline", deadline).Dur("interval", t.interval).Msg("countdown started")
	return nil
}

// Cancel stops the timer. It never blocks and may be called from OnExpire.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopC == nil {
		// never started; make Start a no-op from now on
		t.stopC = make(chan struct{})
		t.doneC = make(chan struct{})
		close(t.stopC)
		close(t.doneC)
		return
	}
	select {
	case <-t.stopC:
	default:
		close(t.stopC)
	}
}

// Done is closed once the tick loop has exited.
func (t *Timer) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doneC == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return t.doneC
}

// Started reports whether Start was called.
func (t *Timer) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopC != nil
}

// Fired reports whether the expiry callback ran.
func (t *Timer) Fired() bool {
	return t.fired.Load()
}

// Remaining returns the time left before deadline at now, clamped at zero.
func Remaining(deadline, now time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (t *Timer) run(ticker Ticker, stopC, doneC chan struct{}) {
	defer close(doneC)
	defer ticker.Stop()

	// evaluate immediately so an already-expired deadline does not wait a tick
	if t.tick(stopC) {
		return
	}

	for {
		select {
		case <-stopC:
			return
		case <-ticker.C():
			if t.tick(stopC) {
				return
			}
		}
	}
}

// tick returns true when the loop should exit.
func (t *Timer) tick(stopC chan struct{}) bool {
	select {
	case <-stopC:
		return true
	default:
	}

	remaining := Remaining(t.deadline, t.clock.Now())
	if remaining > 0 {
		t.onTick(remaining)
		return false
	}

	if t.fired.CompareAndSwap(false, true) {
		t.onTick(0)
		t.logger.Info().Time("deadline", t.deadline).Msg("countdown expired")
		t.onExpire()
	}
	return true
}
