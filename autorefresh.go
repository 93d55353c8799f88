package authclient

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// AutoRefresher periodically refreshes the session before it expires.
type AutoRefresher struct {
	source   SessionSource
	interval time.Duration
	margin   time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   Logger
	cron     *cron.Cron
}

// AutoRefreshOption configures an AutoRefresher.
type AutoRefreshOption func(*AutoRefresher)

// WithAutoRefreshLogger sets the logger.
func WithAutoRefreshLogger(logger Logger) AutoRefreshOption {
	return func(r *AutoRefresher) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAutoRefreshClock injects a custom clock (useful for tests).
func WithAutoRefreshClock(now func() time.Time) AutoRefreshOption {
	return func(r *AutoRefresher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAutoRefreshTimeout bounds each refresh attempt.
func WithAutoRefreshTimeout(d time.Duration) AutoRefreshOption {
	return func(r *AutoRefresher) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewAutoRefresher schedules Tick every interval.
func NewAutoRefresher(source SessionSource, interval, margin time.Duration, opts ...AutoRefreshOption) (*AutoRefresher, error) {
	if source == nil {
		return nil, fmt.Errorf("authclient: auto refresh needs a session source")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	r := &AutoRefresher{
		source:   source,
		interval: interval,
		margin:   margin,
		timeout:  15 * time.Second,
		now:      time.Now,
		logger:   defLogger{},
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), r.run); err != nil {
		return nil, err
	}
	return r, nil
}

// Start runs the scheduler in the background.
func (r *AutoRefresher) Start() { r.cron.Start() }

// Stop halts the scheduler and waits for a running tick.
func (r *AutoRefresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *AutoRefresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Tick(ctx); err != nil {
		r.logger.Warn("auto refresh error", "error", err)
	}
}

// Tick refreshes the session when it expires within the margin. It
// reports whether a refresh happened.
func (r *AutoRefresher) Tick(ctx context.Context) (bool, error) {
	session := r.source.CurrentSession()
	if session == nil {
		return false, nil
	}
	if !session.ExpiresWithin(r.margin, r.now()) {
		return false, nil
	}
	if _, err := r.source.Refresh(ctx); err != nil {
		return false, err
	}
	r.logger.Debug("auto refresh completed")
	return true, nil
}
