package fulfiller

import (
	"context"
	"errors"
	"strings"

	"github.com/speedrun-hq/portal-solver/pkg/chainclient"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
)

// Error types used as metric labels
const (
	ErrorTypeAlreadyProcessed    = "already_processed"
	ErrorTypePermanent           = "permanent"
	ErrorTypeCircuitOpen         = "circuit_open"
	ErrorTypeNetwork             = "network_error"
	ErrorTypeNodeState           = "node_state_error"
	ErrorTypeGas                 = "gas_error"
	ErrorTypeNonce               = "nonce_error"
	ErrorTypeInsufficientBalance = "insufficient_balance"
	ErrorTypeContract            = "contract_error"
	ErrorTypeUnknown             = "unknown_error"
)

// ErrCircuitOpen is returned for jobs of a chain whose circuit breaker is tripped
var ErrCircuitOpen = errors.New("circuit breaker open")

// ClassifyError classifies errors to determine if a retry should be attempted
// Returns (shouldRetry, errorType)
func ClassifyError(err error) (bool, string) {
	if queue.IsPermanent(err) {
		return false, ErrorTypePermanent
	}
	if errors.Is(err, ErrCircuitOpen) {
		return true, ErrorTypeCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, ErrorTypeNetwork
	}

	errStr := err.Error()

	// Check for "already processed" errors - no retry needed
	if strings.Contains(errStr, "IntentAlreadyFulfilled") ||
		strings.Contains(errStr, "Intent already fulfilled") ||
		strings.Contains(errStr, "already fulfilled with these parameters") {
		return false, ErrorTypeAlreadyProcessed
	}

	// Network/RPC errors - retry is appropriate
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "timed out") ||
		strings.Contains(errStr, "no response") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "EOF") {
		return true, ErrorTypeNetwork
	}

	// RPC node state errors - retry with longer backoff
	if strings.Contains(errStr, "missing trie node") ||
		strings.Contains(errStr, "layer stale") ||
		strings.Contains(errStr, "state inconsistency") ||
		strings.Contains(errStr, "receipt not found") ||
		strings.Contains(errStr, "block not found") ||
		strings.Contains(errStr, "Blockhash not found") {
		return true, ErrorTypeNodeState
	}

	// Gas-related errors - retry may help if gas prices change
	if strings.Contains(errStr, "gas required exceeds allowance") ||
		strings.Contains(errStr, "insufficient funds for gas") ||
		strings.Contains(errStr, "gas price too low") ||
		errors.Is(err, chainclient.ErrGasPriceTooHigh) {
		return true, ErrorTypeGas
	}

	// Nonce-related errors - retry may help after nonce is corrected
	if strings.Contains(errStr, "nonce too low") ||
		strings.Contains(errStr, "nonce too high") ||
		strings.Contains(errStr, "replacement transaction underpriced") {
		return true, ErrorTypeNonce
	}

	// Balance-related errors - permanent failures
	if strings.Contains(errStr, "insufficient balance") ||
		strings.Contains(errStr, "insufficient funds") {
		return false, ErrorTypeInsufficientBalance
	}

	// Contract-related errors - permanent failures
	if strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "out of gas") {
		return false, ErrorTypeContract
	}

	// Unknown errors - retry with caution
	return true, ErrorTypeUnknown
}
