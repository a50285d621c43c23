// Package worker runs background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/webshop-accounts/internal/config"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/model"
)

// Purger deletes expired ephemeral rows.  *repository.EphemeralRepo
// satisfies it.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (model.PurgeResult, error)
}

// PurgeWorker periodically removes expired confirmation, remember, reset
// and throttling rows.  Runs never overlap within one process; across
// processes the DELETEs are idempotent.
type PurgeWorker struct {
	store    Purger
	interval time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewPurgeWorker(store Purger, cfg config.PurgeConfig, m *metrics.Metrics, log *slog.Logger) *PurgeWorker {
	interval, timeout := cfg.Interval, cfg.Timeout
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PurgeWorker{
		store:    store,
		interval: interval,
		timeout:  timeout,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Run purges once immediately and then every interval until ctx is done.
func (w *PurgeWorker) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	w.log.Info("purge worker started", "interval", w.interval)
	for {
		_, _ = w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("purge worker stopped")
			return
		case <-t.C:
		}
	}
}

// RunOnce performs a single purge bounded by the configured timeout.
func (w *PurgeWorker) RunOnce(ctx context.Context) (model.PurgeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	res, err := w.store.PurgeExpired(ctx, w.now().UTC())
	w.metrics.PurgeCompleted(res, time.Since(start).Seconds(), err)
	if err != nil {
		w.log.Error("purge failed", "err", err, "deleted", res.Total())
		return res, err
	}
	if res.Total() > 0 {
		w.log.Info("purged expired rows",
			"confirmations", res.Confirmations,
			"resets", res.Resets,
			"remembered", res.Remembered,
			"throttling", res.Throttling)
	}
	return res, nil
}
