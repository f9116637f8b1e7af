package lease

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/vaultwarren/pkg/log"
	"github.com/cuemby/vaultwarren/pkg/metrics"
)

// maxScanRetries bounds how many times a single tick retries find_expired
// against the storage backend before giving up until the next tick.
const maxScanRetries = 3

// escalateAfter is the number of consecutive failing ticks after which a
// failure is logged at error instead of warn, so operators notice
// persistent outages without being paged on a single transient blip.
const escalateAfter = 5

// ExpiryWorker periodically scans for expired leases and revokes them.
type ExpiryWorker struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	consecutiveFailures int
}

// NewExpiryWorker returns a worker that scans manager every interval.
func NewExpiryWorker(manager *Manager, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		manager:  manager,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the scan loop in a background goroutine.
func (w *ExpiryWorker) Start() {
	go w.run()
}

// Stop signals the scan loop to exit and blocks until it does, including
// any in-progress backoff sleep.
func (w *ExpiryWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *ExpiryWorker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger := log.WithComponent("lease-expiry-worker")
	logger.Info().Dur("interval", w.interval).Msg("lease expiry worker started")

	for {
		select {
		case <-ticker.C:
			w.tick(logger)
		case <-w.stopCh:
			logger.Info().Msg("lease expiry worker shutting down")
			return
		}
	}
}

func (w *ExpiryWorker) tick(logger zerolog.Logger) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LeaseScanDuration)

	expired, ok := w.retryScan(logger)
	if !ok {
		// Stop was signalled mid-backoff.
		return
	}
	if expired == nil {
		w.consecutiveFailures++
		metrics.LeaseScanFailuresTotal.Inc()
		if w.consecutiveFailures >= escalateAfter {
			logger.Error().Int("consecutive_failures", w.consecutiveFailures).
				Msg("lease expiry scan persistently failing — storage may be down")
		} else {
			logger.Warn().Int("consecutive_failures", w.consecutiveFailures).
				Msg("lease expiry scan failed after retries, will retry next tick")
		}
		return
	}

	w.consecutiveFailures = 0
	if len(expired) == 0 {
		return
	}

	var revoked, failed int
	for _, l := range expired {
		if err := w.manager.Revoke(context.Background(), l.ID); err != nil {
			failed++
			logger.Warn().Str("lease_id", l.ID).Err(err).Msg("failed to revoke expired lease")
			continue
		}
		revoked++
		metrics.LeaseExpirationsTotal.Inc()
	}
	logger.Info().Int("total", len(expired)).Int("revoked", revoked).Int("failed", failed).
		Msg("lease expiry tick complete")
}

// retryScan attempts FindExpired with exponential backoff (1s, 2s, 4s).
// Returns (nil, true) if every attempt failed, (nil, false) if Stop was
// signalled during a backoff sleep, or (leases, true) on success.
func (w *ExpiryWorker) retryScan(logger zerolog.Logger) ([]*Lease, bool) {
	for attempt := 0; attempt <= maxScanRetries; attempt++ {
		expired, err := w.manager.FindExpired(context.Background())
		if err == nil {
			if expired == nil {
				expired = []*Lease{}
			}
			return expired, true
		}

		if attempt == maxScanRetries {
			return nil, true
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		logger.Debug().Int("attempt", attempt+1).Int("max", maxScanRetries+1).
			Dur("backoff", backoff).Err(err).Msg("lease scan failed, retrying")

		select {
		case <-time.After(backoff):
		case <-w.stopCh:
			return nil, false
		}
	}
	return nil, true
}
