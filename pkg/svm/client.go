package svm

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gagliardetto/solana-go"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"golang.org/x/time/rate"
)

const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// ErrConfirmationTimeout is returned when a signature is not confirmed in time
var ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

// Client is a Solana JSON-RPC client
type Client struct {
	rpc          *rpc.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	timeout      time.Duration
}

// ClientConfig configures the RPC client
type ClientConfig struct {
	URL string
	// RequestsPerSecond throttles outgoing calls, zero disables throttling
	RequestsPerSecond float64
	PollInterval      time.Duration
	ConfirmTimeout    time.Duration
}

// Dial connects to a Solana RPC endpoint
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	c, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial solana rpc: %v", err)
	}
	return NewClient(c, cfg), nil
}

// NewClient wraps an existing JSON-RPC client
func NewClient(c *rpc.Client, cfg ClientConfig) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	return &Client{rpc: c, limiter: limiter, pollInterval: cfg.PollInterval, timeout: cfg.ConfirmTimeout}
}

// Close closes the underlying connection
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

type blockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

// LatestBlockhash returns a recent blockhash for a new message
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var res blockhashResult
	if err := c.call(ctx, &res, "getLatestBlockhash", map[string]string{"commitment": CommitmentConfirmed}); err != nil {
		return solana.Hash{}, err
	}
	hash, err := solana.HashFromBase58(res.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash %q: %w", res.Value.Blockhash, err)
	}
	return hash, nil
}

// GetLatestBlockNumber returns the confirmed slot
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, &slot, "getSlot", map[string]string{"commitment": CommitmentConfirmed}); err != nil {
		return 0, err
	}
	return slot, nil
}

// AccountExists implements AccountChecker
func (c *Client) AccountExists(ctx context.Context, account PublicKey) (bool, error) {
	var res struct {
		Value *struct {
			Lamports uint64 `json:"lamports"`
		} `json:"value"`
	}
	opts := map[string]string{"encoding": "base64", "commitment": CommitmentConfirmed}
	if err := c.call(ctx, &res, "getAccountInfo", account.String(), opts); err != nil {
		return false, err
	}
	return res.Value != nil, nil
}

// Balance returns the lamports of owner when mint is zero, otherwise the
// amount held by the owner's associated token account of mint
func (c *Client) Balance(ctx context.Context, owner, mint PublicKey) (*big.Int, error) {
	if mint.IsZero() {
		var res struct {
			Value uint64 `json:"value"`
		}
		if err := c.call(ctx, &res, "getBalance", owner.String(), map[string]string{"commitment": CommitmentConfirmed}); err != nil {
			return nil, err
		}
		return new(big.Int).SetUint64(res.Value), nil
	}

	ata, err := FindAssociatedTokenAddress(owner, mint, TokenProgramID)
	if err != nil {
		return nil, err
	}
	exists, err := c.AccountExists(ctx, ata)
	if err != nil {
		return nil, err
	}
	if !exists {
		return new(big.Int), nil
	}
	var res struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := c.call(ctx, &res, "getTokenAccountBalance", ata.String(), map[string]string{"commitment": CommitmentConfirmed}); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(res.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", res.Value.Amount)
	}
	return amount, nil
}

// SendTransaction submits a signed transaction and returns its signature
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (string, error) {
	encoded, err := Base64(tx)
	if err != nil {
		return "", err
	}
	var signature string
	opts := map[string]interface{}{
		"encoding":            "base64",
		"skipPreflight":       true,
		"preflightCommitment": CommitmentConfirmed,
	}
	if err := c.call(ctx, &signature, "sendTransaction", encoded, opts); err != nil {
		return "", err
	}
	return signature, nil
}

type signatureStatus struct {
	Slot               uint64      `json:"slot"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// WaitForConfirmation polls the signature status until it reaches the
// confirmed commitment or the client timeout elapses
func (c *Client) WaitForConfirmation(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var res struct {
			Value []*signatureStatus `json:"value"`
		}
		opts := map[string]bool{"searchTransactionHistory": true}
		err := c.call(ctx, &res, "getSignatureStatuses", []string{signature}, opts)
		if err == nil && len(res.Value) == 1 && res.Value[0] != nil {
			status := res.Value[0]
			if status.ConfirmationStatus == CommitmentConfirmed || status.ConfirmationStatus == CommitmentFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmationTimeout, signature)
		case <-ticker.C:
		}
	}
}

type transactionResult struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Fee uint64      `json:"fee"`
		Err interface{} `json:"err"`
	} `json:"meta"`
}

// GetReceipt fetches a confirmed transaction and translates it into a receipt
func (c *Client) GetReceipt(ctx context.Context, chainID uint64, signature string) (*models.Receipt, error) {
	var res *transactionResult
	opts := map[string]interface{}{
		"encoding":                       "json",
		"commitment":                     CommitmentConfirmed,
		"maxSupportedTransactionVersion": 0,
	}
	if err := c.call(ctx, &res, "getTransaction", signature, opts); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}
	return receiptFromTransaction(chainID, signature, res)
}

// receiptFromTransaction maps a Solana transaction onto the canonical receipt:
// the slot is the block number and the fee in lamports is the gas used.
func receiptFromTransaction(chainID uint64, signature string, tx *transactionResult) (*models.Receipt, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %q: %v", signature, err)
	}
	receipt := &models.Receipt{
		TransactionHash: "0x" + hex.EncodeToString(sig[:]),
		BlockNumber:     tx.Slot,
		Status:          models.ReceiptSuccess,
		ChainID:         chainID,
	}
	if tx.Meta != nil {
		receipt.GasUsed = tx.Meta.Fee
		if tx.Meta.Err != nil {
			receipt.Status = models.ReceiptReverted
			receipt.Error = fmt.Sprintf("%v", tx.Meta.Err)
		}
	}
	return receipt, nil
}

// Execute compiles, signs, submits and confirms instructions paid by payer
func (c *Client) Execute(ctx context.Context, chainID uint64, instructions []Instruction, payer ed25519.PrivateKey, signers ...ed25519.PrivateKey) (*models.Receipt, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := NewTransaction(instructions, blockhash, append([]ed25519.PrivateKey{payer}, signers...)...)
	if err != nil {
		return nil, err
	}

	signature, err := c.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := c.WaitForConfirmation(ctx, signature); err != nil {
		return nil, err
	}
	return c.GetReceipt(ctx, chainID, signature)
}
