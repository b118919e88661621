// Package health polls the backend's LLM liveness endpoint on an adaptive
// cadence: often while the model is busy or failing, rarely once it is hot.
package health

import (
	"context"
	"sync"
	"time"

	"portfolio-chat/internal/pkg/logger"
)

const (
	StatusAvailable = "available"
	StatusBusy      = "busy"
	StatusError     = "error"

	ShortInterval = 10 * time.Second
	LongInterval  = 30 * time.Minute
)

// Status mirrors GET /health/llm.
type Status struct {
	Status            string `json:"status"`
	IsHot             bool   `json:"is_hot"`
	FallbackAvailable bool   `json:"fallback_available"`
	FallbackProvider  string `json:"fallback_provider,omitempty"`
}

// UsingFallback reports whether answers are currently served by the
// fallback provider.
func (s Status) UsingFallback() bool {
	return s.Status != StatusAvailable && s.FallbackAvailable
}

// Checker fetches the current LLM status.
type Checker interface {
	LLMHealth(ctx context.Context) (*Status, error)
}

// NextInterval picks the delay before the next check. A failed check counts
// as an error status.
func NextInterval(status *Status, err error) time.Duration {
	if err != nil || status == nil {
		return ShortInterval
	}
	if status.Status == StatusAvailable {
		return LongInterval
	}
	return ShortInterval
}

type PollerOptions struct {
	ShortInterval time.Duration
	LongInterval  time.Duration
	Logger        logger.ILogger
	// OnChange runs whenever the reported status differs from the previous
	// one, including the first successful check.
	OnChange func(Status)
}

// Poller re-arms its timer after every check, so a manual Check restarts
// the cadence from that point.
type Poller struct {
	checker  Checker
	short    time.Duration
	long     time.Duration
	logger   logger.ILogger
	onChange func(Status)

	mu      sync.Mutex
	current *Status
	lastErr error
	rearm   chan time.Duration
}

func NewPoller(checker Checker, opts PollerOptions) *Poller {
	if opts.ShortInterval <= 0 {
		opts.ShortInterval = ShortInterval
	}
	if opts.LongInterval <= 0 {
		opts.LongInterval = LongInterval
	}
	return &Poller{
		checker:  checker,
		short:    opts.ShortInterval,
		long:     opts.LongInterval,
		logger:   logger.OrNop(opts.Logger),
		onChange: opts.OnChange,
		rearm:    make(chan time.Duration, 1),
	}
}

// Current returns the last known status, nil before the first success.
func (p *Poller) Current() (*Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, p.lastErr
	}
	s := *p.current
	return &s, p.lastErr
}

// Check runs one probe immediately and asks a running poller to re-arm.
func (p *Poller) Check(ctx context.Context) (*Status, error) {
	status, next, err := p.check(ctx)

	select {
	case p.rearm <- next:
	default:
		// A pending re-arm is already queued; replace it with the newest.
		select {
		case <-p.rearm:
		default:
		}
		select {
		case p.rearm <- next:
		default:
		}
	}
	return status, err
}

func (p *Poller) check(ctx context.Context) (*Status, time.Duration, error) {
	status, err := p.checker.LLMHealth(ctx)

	p.mu.Lock()
	p.lastErr = err
	changed := false
	if err == nil && status != nil {
		changed = p.current == nil || *p.current != *status
		s := *status
		p.current = &s
	}
	cb := p.onChange
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("HEALTH", "LLM health check failed", map[string]interface{}{"error": err.Error()})
	} else if changed {
		p.logger.Info("HEALTH", "LLM status changed", map[string]interface{}{
			"status":             status.Status,
			"is_hot":             status.IsHot,
			"fallback_available": status.FallbackAvailable,
			"fallback_provider":  status.FallbackProvider,
		})
		if cb != nil {
			cb(*status)
		}
	}

	return status, p.interval(status, err), err
}

func (p *Poller) interval(status *Status, err error) time.Duration {
	if NextInterval(status, err) == LongInterval {
		return p.long
	}
	return p.short
}

// Run checks immediately, then keeps checking until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	_, next, _ := p.check(ctx)

	timer := time.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.rearm:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d)
		case <-timer.C:
			_, next, _ = p.check(ctx)
			timer.Reset(next)
		}
	}
}
