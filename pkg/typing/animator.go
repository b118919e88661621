// Package typing reveals a growing answer a few characters at a time so
// streamed text reads as if it were being typed.
package typing

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultInterval     = 25 * time.Millisecond
	DefaultCharsPerTick = 2
	DefaultPollInterval = 50 * time.Millisecond
)

var ErrStopped = errors.New("typing: animator stopped")

type Options struct {
	Interval     time.Duration
	CharsPerTick int
	PollInterval time.Duration
}

// Animator holds the latest full answer and a cursor into it. Lengths are
// counted in runes.
type Animator struct {
	interval     time.Duration
	step         int
	pollInterval time.Duration

	mu       sync.Mutex
	full     []rune
	shown    int
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
	stopGen  uint64
	onReveal func(string)
}

func NewAnimator(opts Options) *Animator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CharsPerTick <= 0 {
		opts.CharsPerTick = DefaultCharsPerTick
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Animator{
		interval:     opts.Interval,
		step:         opts.CharsPerTick,
		pollInterval: opts.PollInterval,
	}
}

// Push replaces the buffered answer with the latest accumulated text.
func (a *Animator) Push(full string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.full = []rune(full)
	if a.shown > len(a.full) {
		a.shown = len(a.full)
	}
}

// Tick advances the cursor by one step without overshooting. It reports the
// revealed prefix and whether anything changed.
func (a *Animator) Tick() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tickLocked()
}

func (a *Animator) tickLocked() (string, bool) {
	if a.shown >= len(a.full) {
		return string(a.full[:a.shown]), false
	}
	a.shown += a.step
	if a.shown > len(a.full) {
		a.shown = len(a.full)
	}
	return string(a.full[:a.shown]), true
}

// Displayed is the number of runes revealed so far.
func (a *Animator) Displayed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shown
}

// Text is the revealed prefix.
func (a *Animator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.full[:a.shown])
}

// Start launches the ticker goroutine. onReveal runs on that goroutine with
// every new prefix and must not call Stop. Starting a running animator is a
// no-op.
func (a *Animator) Start(onReveal func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	a.running = true
	a.onReveal = onReveal
	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})

	go a.loop(a.stopCh, a.done)
}

func (a *Animator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.mu.Lock()
			text, changed := a.tickLocked()
			cb := a.onReveal
			a.mu.Unlock()

			if changed && cb != nil {
				cb(text)
			}
		}
	}
}

// Stop halts the ticker, waits for its goroutine to exit and clears the
// buffer and cursor. It is safe to call on a stopped animator.
func (a *Animator) Stop() {
	a.mu.Lock()
	stop, done := a.stopCh, a.done
	wasRunning := a.running
	a.running = false
	a.stopCh, a.done = nil, nil
	a.stopGen++
	a.mu.Unlock()

	if wasRunning {
		close(stop)
		<-done
	}

	a.mu.Lock()
	a.full = nil
	a.shown = 0
	a.onReveal = nil
	a.mu.Unlock()
}

// WaitCaughtUp blocks until at least n runes are displayed. It returns
// ErrStopped when Stop is called meanwhile.
func (a *Animator) WaitCaughtUp(ctx context.Context, n int) error {
	a.mu.Lock()
	gen := a.stopGen
	a.mu.Unlock()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		a.mu.Lock()
		shown, stopped := a.shown, a.stopGen != gen
		a.mu.Unlock()

		if stopped {
			return ErrStopped
		}
		if shown >= n {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
