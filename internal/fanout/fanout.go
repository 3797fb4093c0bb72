// CLAUDE:SUMMARY Subscriber registry with per-tick activation and rate-limited, error-isolated broadcast.
// Package fanout delivers notifications to every registered subscriber.
package fanout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/authwatch/channels"
)

// Deliverer sends one text to one recipient. channels.Dispatcher implements it.
type Deliverer interface {
	Deliver(ctx context.Context, to channels.Recipient, text string) error
}

// Config configures a Fanout.
type Config struct {
	Deliverer Deliverer

	// Timeout bounds each delivery. Default: 10s.
	Timeout time.Duration

	// Rate is the sustained sends per second across all subscribers.
	// Zero means unlimited.
	Rate  float64
	Burst int

	// OnResult, when set, is called after each delivery attempt.
	OnResult func(to channels.Recipient, err error)

	Logger *slog.Logger
}

// Report summarises one broadcast.
type Report struct {
	Delivered int
	Failed    int
	Errors    []error
}

// Fanout holds the subscriber list. Registration may happen from any
// goroutine; Drain and Broadcast belong to the polling loop.
type Fanout struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	pending []channels.Recipient
	subs    []channels.Recipient
	known   map[channels.Recipient]bool
}

// New creates a Fanout.
func New(cfg Config) *Fanout {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return &Fanout{cfg: cfg, limiter: lim, known: map[channels.Recipient]bool{}}
}

// Register queues a subscriber. It becomes active at the next Drain.
func (f *Fanout) Register(to channels.Recipient) {
	f.mu.Lock()
	f.pending = append(f.pending, to)
	f.mu.Unlock()
}

// Drain activates queued registrations. Registering the same recipient
// twice keeps one subscription. It returns the number added.
func (f *Fanout) Drain() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for _, r := range f.pending {
		if f.known[r] {
			continue
		}
		f.known[r] = true
		f.subs = append(f.subs, r)
		added++
		f.cfg.Logger.Info("fanout: subscriber added", "recipient", r.String())
	}
	f.pending = nil
	return added
}

// Subscribers returns a copy of the active subscribers in registration order.
func (f *Fanout) Subscribers() []channels.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channels.Recipient{}, f.subs...)
}

// Pending returns the number of registrations awaiting Drain.
func (f *Fanout) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Broadcast sends text to every active subscriber, one at a time. A failed
// delivery is logged and counted; the others still go out. Cancellation of
// ctx stops the broadcast.
func (f *Fanout) Broadcast(ctx context.Context, text string) Report {
	var rep Report
	for _, to := range f.Subscribers() {
		if err := f.limiter.Wait(ctx); err != nil {
			rep.Errors = append(rep.Errors, err)
			return rep
		}

		dctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
		err := f.cfg.Deliverer.Deliver(dctx, to, text)
		cancel()

		if f.cfg.OnResult != nil {
			f.cfg.OnResult(to, err)
		}
		if err != nil {
			f.cfg.Logger.Warn("fanout: delivery failed", "recipient", to.String(), "error", err)
			rep.Failed++
			rep.Errors = append(rep.Errors, err)
			if ctx.Err() != nil {
				return rep
			}
			continue
		}
		rep.Delivered++
	}
	return rep
}
