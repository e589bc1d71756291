package main

import (
	"context"
	"time"

	"github.com/clashkit/cocgw/internal/accountstore"
	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/keyring"
)

// refresher reloads every account's keys on a fixed interval and records the
// outcomes in the account store.
type refresher struct {
	keys     *keyring.Manager
	accounts accountstore.Store
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// refreshOnce runs a single RefreshAll bounded by r.timeout.
func (r *refresher) refreshOnce(ctx context.Context) *keyring.RefreshReport {
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	log := logging.FromContext(ctx)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	report, err := r.keys.RefreshAll(ctx)
	if err != nil {
		log.Error("key refresh failed", "error", err)
		return nil
	}
	for _, res := range report.Failed() {
		log.Warn("account refresh failed", "account", res.Email, "error", res.Err)
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	if err := accountstore.RecordReport(r.accounts, report, now()); err != nil {
		log.Error("failed to record refresh", "error", err)
	}
	return report
}

// run refreshes every interval until ctx is done.
func (r *refresher) run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		}
	}
}
