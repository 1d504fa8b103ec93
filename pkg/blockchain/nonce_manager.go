// Package blockchain tracks per-chain account state shared by every EVM
// transaction the solver sends.
package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

// DefaultSyncInterval is how long an allocated nonce sequence is trusted
// before it is compared with the node again
const DefaultSyncInterval = 5 * time.Minute

// NonceReader reads the pending nonce of an account
type NonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

type accountKey struct {
	chainID uint64
	account common.Address
}

// accountNonces holds the nonce sequence of one account on one chain
type accountNonces struct {
	mu       sync.Mutex
	next     uint64
	pending  map[uint64]common.Hash
	lastSync time.Time
}

// NonceManager hands out sequential nonces so concurrent fulfillments from
// the same account never collide
type NonceManager struct {
	mu           sync.RWMutex
	accounts     map[accountKey]*accountNonces
	syncInterval time.Duration
	logger       logger.Logger
}

// NewNonceManager creates a new nonce manager
func NewNonceManager(log logger.Logger) *NonceManager {
	return &NonceManager{
		accounts:     make(map[accountKey]*accountNonces),
		syncInterval: DefaultSyncInterval,
		logger:       log,
	}
}

// SetSyncInterval overrides DefaultSyncInterval
func (nm *NonceManager) SetSyncInterval(d time.Duration) {
	nm.syncInterval = d
}

func (nm *NonceManager) account(chainID uint64, account common.Address) *accountNonces {
	key := accountKey{chainID: chainID, account: account}

	nm.mu.RLock()
	data, exists := nm.accounts[key]
	nm.mu.RUnlock()
	if exists {
		return data
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if data, exists = nm.accounts[key]; !exists {
		data = &accountNonces{pending: make(map[uint64]common.Hash)}
		nm.accounts[key] = data
	}
	return data
}

// Next reserves the next nonce of account. The sequence is re-read from the
// node on first use, after the sync interval, and whenever nothing is pending.
func (nm *NonceManager) Next(ctx context.Context, chainID uint64, reader NonceReader, account common.Address) (uint64, error) {
	data := nm.account(chainID, account)

	data.mu.Lock()
	defer data.mu.Unlock()

	if data.lastSync.IsZero() || len(data.pending) == 0 || time.Since(data.lastSync) > nm.syncInterval {
		nonce, err := reader.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce: %w", err)
		}
		if nonce > data.next || len(data.pending) == 0 {
			if nonce != data.next {
				nm.logger.DebugWithChain(chainID, "Nonce for %s synced %d -> %d", account.Hex(), data.next, nonce)
			}
			data.next = nonce
		}
		data.lastSync = time.Now()
	}

	nonce := data.next
	data.next++
	data.pending[nonce] = common.Hash{}
	return nonce, nil
}

// Track associates a sent transaction with its reserved nonce
func (nm *NonceManager) Track(chainID uint64, account common.Address, nonce uint64, txHash common.Hash) {
	data := nm.account(chainID, account)
	data.mu.Lock()
	defer data.mu.Unlock()
	data.pending[nonce] = txHash
}

// Confirm releases a nonce whose transaction was mined
func (nm *NonceManager) Confirm(chainID uint64, account common.Address, nonce uint64) {
	data := nm.account(chainID, account)
	data.mu.Lock()
	defer data.mu.Unlock()
	delete(data.pending, nonce)
}

// Release gives back a nonce whose transaction never reached the chain. The
// nonce is reused only when it is the highest one handed out, otherwise the
// gap is closed by the next sync.
func (nm *NonceManager) Release(chainID uint64, account common.Address, nonce uint64) {
	data := nm.account(chainID, account)
	data.mu.Lock()
	defer data.mu.Unlock()

	delete(data.pending, nonce)
	if nonce+1 == data.next {
		data.next = nonce
		nm.logger.DebugWithChain(chainID, "Reusing nonce %d for %s", nonce, account.Hex())
		return
	}
	// force a resync on the next reservation
	data.lastSync = time.Time{}
}

// Pending returns the number of reserved but unconfirmed nonces
func (nm *NonceManager) Pending(chainID uint64, account common.Address) int {
	data := nm.account(chainID, account)
	data.mu.Lock()
	defer data.mu.Unlock()
	return len(data.pending)
}
