package fulfiller

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/speedrun-hq/portal-solver/pkg/chainclient"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retry     bool
		errorType string
	}{
		{"permanent", queue.Permanent(errors.New("invalid route")), false, ErrorTypePermanent},
		{"circuit open", fmt.Errorf("%w: chain 10", ErrCircuitOpen), true, ErrorTypeCircuitOpen},
		{"deadline", fmt.Errorf("fulfill: %w", context.DeadlineExceeded), true, ErrorTypeNetwork},
		{"already fulfilled", errors.New("execution reverted: IntentAlreadyFulfilled"), false, ErrorTypeAlreadyProcessed},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8545: connection refused"), true, ErrorTypeNetwork},
		{"rate limited", errors.New("429 too many requests"), true, ErrorTypeNetwork},
		{"node state", errors.New("missing trie node abc"), true, ErrorTypeNodeState},
		{"solana blockhash", errors.New("Blockhash not found"), true, ErrorTypeNodeState},
		{"gas price cap", fmt.Errorf("chain 1: %w", chainclient.ErrGasPriceTooHigh), true, ErrorTypeGas},
		{"nonce", errors.New("nonce too low"), true, ErrorTypeNonce},
		{"balance", errors.New("transfer amount exceeds balance: insufficient balance"), false, ErrorTypeInsufficientBalance},
		{"revert", errors.New("execution reverted"), false, ErrorTypeContract},
		{"unknown", errors.New("something odd"), true, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, errorType := ClassifyError(tt.err)
			assert.Equal(t, tt.retry, retry)
			assert.Equal(t, tt.errorType, errorType)
		})
	}
}
