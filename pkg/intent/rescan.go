package intent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
)

// DefaultRescanBatch is the number of INFEASABLE records looked at per run
const DefaultRescanBatch = 100

// Rescanner periodically requeues infeasible intents whose reward can still
// be proven, so a fee or balance change can make them feasible
type Rescanner struct {
	pipeline *Pipeline
	interval time.Duration
	batch    int

	mu       sync.RWMutex
	attempts map[common.Hash]int
	stopChan chan struct{}
	running  bool
}

// NewRescanner creates a rescan routine for the pipeline
func NewRescanner(p *Pipeline, interval time.Duration, batch int) *Rescanner {
	if batch <= 0 {
		batch = DefaultRescanBatch
	}
	return &Rescanner{
		pipeline: p,
		interval: interval,
		batch:    batch,
		attempts: make(map[common.Hash]int),
	}
}

// Start begins the periodic rescan
func (r *Rescanner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(ctx, r.stopChan)
}

// Stop halts the periodic rescan
func (r *Rescanner) Stop() {
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
func (r *Rescanner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Rescanner) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Rescan(ctx); err != nil {
				r.pipeline.logger.Error("Infeasible rescan failed: %v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Rescan queues one feasibility retry per eligible INFEASABLE record and
// returns how many were queued
func (r *Rescanner) Rescan(ctx context.Context) (int, error) {
	p := r.pipeline
	if pending, err := p.repo.FindByStatus(ctx, models.StatusPending, 0); err == nil {
		metrics.PendingIntents.Set(float64(len(pending)))
	}

	records, err := p.repo.FindByStatus(ctx, models.StatusInfeasable, r.batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	seen := make(map[common.Hash]struct{}, len(records))
	for _, record := range records {
		intent := &record.Intent
		if !p.validExpirationTime(intent) {
			r.forget(intent.Hash)
			continue
		}
		seen[intent.Hash] = struct{}{}

		r.mu.Lock()
		r.attempts[intent.Hash]++
		attempt := r.attempts[intent.Hash]
		r.mu.Unlock()

		jobID := RetryJobID(intent.Hash, attempt)
		added, err := p.queue.Add(ctx, queue.FeasibilityQueue, jobID, JobData{IntentHash: intent.Hash}, p.cfg.JobOptions)
		if err != nil {
			return queued, err
		}
		if added {
			queued++
			p.logger.DebugWithChain(intent.DestinationChainID, "Requeued infeasible intent %s (%s)", intent.Hash.Hex(), jobID)
		}
	}
	r.prune(ctx, seen)
	return queued, nil
}

// prune drops the counters of intents outside the batch that left INFEASABLE
// or can no longer be proven
func (r *Rescanner) prune(ctx context.Context, seen map[common.Hash]struct{}) {
	r.mu.RLock()
	var tracked []common.Hash
	for hash := range r.attempts {
		if _, ok := seen[hash]; !ok {
			tracked = append(tracked, hash)
		}
	}
	r.mu.RUnlock()

	for _, hash := range tracked {
		record, err := r.pipeline.repo.GetByHash(ctx, hash)
		if errors.Is(err, repository.ErrNotFound) {
			r.forget(hash)
			continue
		}
		if err != nil {
			r.pipeline.logger.Debug("Keeping rescan counter of %s: %v", hash.Hex(), err)
			continue
		}
		if record.Status != models.StatusInfeasable || !r.pipeline.validExpirationTime(&record.Intent) {
			r.forget(hash)
		}
	}
}

func (r *Rescanner) forget(hash common.Hash) {
	r.mu.Lock()
	delete(r.attempts, hash)
	r.mu.Unlock()
}

// Tracked returns the number of intents holding a retry counter
func (r *Rescanner) Tracked() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}
