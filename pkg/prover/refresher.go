package prover

import (
	"context"
	"sync"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

// Refresher periodically rebuilds the prover snapshot from its source
type Refresher struct {
	holder   *Holder
	source   Source
	interval time.Duration
	logger   logger.Logger

	mu       sync.RWMutex
	stopChan chan struct{}
	running  bool
}

// NewRefresher creates a refresher publishing into holder
func NewRefresher(holder *Holder, source Source, interval time.Duration, log logger.Logger) *Refresher {
	return &Refresher{
		holder:   holder,
		source:   source,
		interval: interval,
		logger:   log,
	}
}

// Start begins the periodic refresh
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(ctx, r.stopChan)
}

// Stop halts the periodic refresh
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopChan)
	r.stopChan = nil
	r.running = false
}

// IsRunning returns whether the routine is currently running
func (r *Refresher) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			r.Refresh(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh loads the source once and publishes a new snapshot. On failure the
// previous snapshot stays in place.
func (r *Refresher) Refresh(ctx context.Context) {
	entries, err := r.source.Load(ctx)
	if err != nil {
		r.logger.Error("Failed to refresh prover snapshot: %v", err)
		return
	}
	snapshot := NewSnapshot(entries)
	r.holder.Store(snapshot)
	r.logger.Debug("Prover snapshot refreshed with %d provers", snapshot.Len())
}
