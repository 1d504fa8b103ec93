package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/metrics"
)

var weiPerGwei = big.NewFloat(1e9)

// GasPriceRoutine periodically refreshes the gas price of a client and
// publishes it as a metric
type GasPriceRoutine struct {
	client   *Client
	interval time.Duration
	stopChan chan struct{}
	mu       sync.RWMutex
	running  bool
}

// NewGasPriceRoutine creates a new gas price routine
func NewGasPriceRoutine(client *Client, interval time.Duration) *GasPriceRoutine {
	return &GasPriceRoutine{
		client:   client,
		interval: interval,
	}
}

// Start begins the periodic updates
func (r *GasPriceRoutine) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}

	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(ctx, r.stopChan)
}

// Stop halts the periodic updates
func (r *GasPriceRoutine) Stop() {
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
func (r *GasPriceRoutine) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *GasPriceRoutine) run(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.update(ctx)

	for {
		select {
		case <-ticker.C:
			r.update(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *GasPriceRoutine) update(ctx context.Context) {
	gasPrice, err := r.client.UpdateGasPrice(ctx)
	if err != nil {
		r.client.logger.ErrorWithChain(r.client.ChainID, "Failed to update gas price: %v", err)
		return
	}
	metrics.GasPrice.WithLabelValues(fmt.Sprintf("%d", r.client.ChainID)).Set(toGwei(gasPrice))
}

// toGwei converts a wei amount to a float gwei amount
func toGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerGwei).Float64()
	return gwei
}
