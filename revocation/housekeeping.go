package revocation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Purger removes ledger entries recorded before a cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Housekeeper periodically purges ledger entries older than the retention. Once
// the retention covers the refresh TTL, a purged jti can only belong to a token
// that no longer verifies.
type Housekeeper struct {
	purger    Purger
	logger    *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHousekeeper returns a stopped Housekeeper. A non-positive interval defaults
// to one hour.
func NewHousekeeper(purger Purger, logger *zap.Logger, interval, retention time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Housekeeper{
		purger:    purger,
		logger:    logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background worker. It returns immediately. Only the first
// call before Stop has any effect.
func (h *Housekeeper) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.stopped {
		return
	}
	h.started = true

	go h.run()
	h.logger.Info("revocation housekeeping started",
		zap.Duration("interval", h.interval),
		zap.Duration("retention", h.retention),
	)
}

// Stop blocks until any in-flight purge has finished. It is safe to call more
// than once and without a prior Start.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	running := h.started
	close(h.stopCh)
	h.mu.Unlock()

	if !running {
		return
	}
	<-h.doneCh
	h.logger.Info("revocation housekeeping stopped")
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			h.RunOnce(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

// RunOnce performs a single purge pass.
func (h *Housekeeper) RunOnce(ctx context.Context) int64 {
	cutoff := h.now().Add(-h.retention)
	n, err := h.purger.Purge(ctx, cutoff)
	if err != nil {
		h.logger.Error("failed to purge revocation ledger", zap.Error(err))
		return 0
	}
	h.logger.Debug("purged revocation ledger", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n
}
