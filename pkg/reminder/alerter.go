package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckFunc is invoked once per wall-clock minute with that minute.
type CheckFunc func(ctx context.Context, minute time.Time)

// Alerter polls on a ticker and calls Check at most once per minute.
type Alerter struct {
	interval time.Duration
	check    CheckFunc
	clock    func() time.Time
	logger   *zap.Logger
	last     time.Time
}

func NewAlerter(interval time.Duration, check CheckFunc, logger *zap.Logger) *Alerter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Alerter{interval: interval, check: check, clock: time.Now, logger: logger}
}

// Run blocks until ctx is cancelled.
func (a *Alerter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("Reminder alerter started", zap.Duration("interval", a.interval))
	a.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Reminder alerter stopped")
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs the check for the current minute unless it already ran.
func (a *Alerter) Tick(ctx context.Context) {
	minute := a.clock().Truncate(time.Minute)
	if minute.Equal(a.last) {
		return
	}
	a.last = minute
	a.check(ctx, minute)
}
