// Package watcher polls Portal logs on the source chains and feeds the
// create and withdrawal queues.
package watcher

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sourcegraph/conc/pool"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
)

const (
	DefaultInterval   = 10 * time.Second
	DefaultBlockRange = 2000
)

// LogReader is the part of an EVM client the watcher reads from
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Source is a Portal deployment to watch
type Source struct {
	ChainID    uint64
	Portal     common.Address
	Reader     LogReader
	StartBlock uint64
}

// Config controls polling
type Config struct {
	Interval time.Duration
	// BlockRange caps the blocks covered by one FilterLogs call
	BlockRange uint64
	// Confirmations keeps the watcher this many blocks behind the head
	Confirmations uint64
	JobOptions    queue.Options
}

// Watcher polls every source chain and queues the logs it finds
type Watcher struct {
	cfg     Config
	sources []Source
	queue   queue.Queue
	logger  logger.Logger

	mu       sync.RWMutex
	cursors  map[uint64]uint64
	stopChan chan struct{}
	running  bool
}

// New creates a watcher. Each source starts at its StartBlock.
func New(cfg Config, sources []Source, q queue.Queue, log logger.Logger) *Watcher {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BlockRange == 0 {
		cfg.BlockRange = DefaultBlockRange
	}
	if cfg.JobOptions.Attempts == 0 {
		cfg.JobOptions = queue.DefaultOptions
	}
	cursors := make(map[uint64]uint64, len(sources))
	for _, s := range sources {
		cursors[s.ChainID] = s.StartBlock
	}
	return &Watcher{
		cfg:     cfg,
		sources: sources,
		queue:   q,
		logger:  log,
		cursors: cursors,
	}
}

// Start begins polling
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.stopChan = make(chan struct{})
	w.running = true

	go w.run(ctx, w.stopChan)
}

// Stop halts polling
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopChan)
	w.stopChan = nil
	w.running = false
}

// IsRunning returns whether the watcher is currently polling
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Cursor returns the next block the watcher reads on a chain
func (w *Watcher) Cursor(chainID uint64) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cursors[chainID]
}

func (w *Watcher) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.poll(ctx)

	for {
		select {
		case <-ticker.C:
			w.poll(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	if err := w.Poll(ctx); err != nil {
		w.logger.Error("Watcher poll failed: %v", err)
	}
}

// Poll reads every source chain once, chains in parallel
func (w *Watcher) Poll(ctx context.Context) error {
	p := pool.New().WithContext(ctx)
	for _, source := range w.sources {
		p.Go(func(ctx context.Context) error {
			n, err := w.PollChain(ctx, source)
			if err != nil {
				return fmt.Errorf("chain %d: %w", source.ChainID, err)
			}
			if n > 0 {
				w.logger.DebugWithChain(source.ChainID, "Queued %d portal logs", n)
			}
			return nil
		})
	}
	return p.Wait()
}

// PollChain reads the logs of one source up to the confirmed head and returns
// the number of jobs queued. The cursor only moves past ranges whose logs were
// all queued.
func (w *Watcher) PollChain(ctx context.Context, source Source) (int, error) {
	head, err := source.Reader.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read head: %w", err)
	}
	if head < w.cfg.Confirmations {
		return 0, nil
	}
	head -= w.cfg.Confirmations

	queued := 0
	from := w.Cursor(source.ChainID)
	for from <= head {
		to := from + w.cfg.BlockRange - 1
		if to > head {
			to = head
		}

		logs, err := source.Reader.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Addresses: []common.Address{source.Portal},
			Topics:    [][]common.Hash{{contracts.IntentPublishedTopic(), contracts.IntentWithdrawnTopic()}},
		})
		if err != nil {
			return queued, fmt.Errorf("failed to filter logs %d-%d: %w", from, to, err)
		}
		for _, log := range logs {
			added, err := w.dispatch(ctx, source.ChainID, log)
			if err != nil {
				return queued, err
			}
			if added {
				queued++
			}
		}

		w.mu.Lock()
		w.cursors[source.ChainID] = to + 1
		w.mu.Unlock()
		metrics.WatcherBlock.WithLabelValues(strconv.FormatUint(source.ChainID, 10)).Set(float64(to))
		from = to + 1
	}
	return queued, nil
}

func (w *Watcher) dispatch(ctx context.Context, chainID uint64, log types.Log) (bool, error) {
	if log.Removed || len(log.Topics) == 0 {
		return false, nil
	}

	var queueName, stage string
	switch log.Topics[0] {
	case contracts.IntentPublishedTopic():
		queueName, stage = queue.CreateQueue, intent.StageCreate
	case contracts.IntentWithdrawnTopic():
		queueName, stage = queue.WithdrawalQueue, intent.StageWithdraw
	default:
		return false, nil
	}

	event := portal.RawEventFromLog(chainID, log)
	jobID := intent.EventJobID(stage, event)
	added, err := w.queue.Add(ctx, queueName, jobID, event, w.cfg.JobOptions)
	if err != nil {
		return false, fmt.Errorf("failed to queue %s: %w", jobID, err)
	}
	return added, nil
}
