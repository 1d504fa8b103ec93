// Package tvm talks to Tron full nodes over their HTTP wallet API: contract
// triggers, signing with the solver key and receipt polling.
package tvm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"golang.org/x/time/rate"
)

// DefaultFeeLimit is the energy fee cap in sun for contract calls
const DefaultFeeLimit = 300_000_000

const apiKeyHeader = "TRON-PRO-API-KEY"

var (
	// ErrTxIDMismatch is returned when a node returns a transaction whose id
	// does not hash its raw data
	ErrTxIDMismatch = errors.New("transaction id does not match raw data")
	// ErrReceiptTimeout is returned when a transaction is not included in time
	ErrReceiptTimeout = errors.New("transaction receipt timed out")
	// ErrRejected is returned when the node rejects a trigger or broadcast
	ErrRejected = errors.New("rejected by node")
)

// Config configures a Tron client
type Config struct {
	URL               string
	APIKey            string
	FeeLimit          int64
	RequestsPerSecond float64
	PollInterval      time.Duration
	ReceiptTimeout    time.Duration
}

// Client is a Tron wallet API client bound to one signing key
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	key        *ecdsa.PrivateKey
	owner      address.Address
	logger     logger.Logger
}

// New creates a client. key may be nil for read-only use.
func New(cfg Config, key *ecdsa.PrivateKey, log logger.Logger) *Client {
	if cfg.FeeLimit == 0 {
		cfg.FeeLimit = DefaultFeeLimit
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.ReceiptTimeout == 0 {
		cfg.ReceiptTimeout = 90 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
		key:        key,
		logger:     log,
	}
	if key != nil {
		c.owner = address.FromEVM(crypto.PubkeyToAddress(key.PublicKey))
	}
	return c
}

// Owner returns the account of the signing key
func (c *Client) Owner() address.Address {
	return c.owner
}

// Transaction is the node's JSON form of an unsigned or signed transaction
type Transaction struct {
	Visible    bool            `json:"visible"`
	TxID       string          `json:"txID"`
	RawData    json.RawMessage `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Signature  []string        `json:"signature,omitempty"`
}

type triggerRequest struct {
	OwnerAddress    string `json:"owner_address"`
	ContractAddress string `json:"contract_address"`
	Data            string `json:"data"`
	CallValue       int64  `json:"call_value,omitempty"`
	FeeLimit        int64  `json:"fee_limit,omitempty"`
	Visible         bool   `json:"visible"`
}

type triggerResponse struct {
	Result struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	ConstantResult []string     `json:"constant_result"`
	Transaction    *Transaction `json:"transaction"`
}

// HexAddress renders an account in the API's hex form, 41 followed by the 20 byte body
func HexAddress(a address.Address) (string, error) {
	if !a.IsEVMCompatible() {
		return "", fmt.Errorf("%w: %s", address.ErrNotEVMCompatible, a.Hex())
	}
	return fmt.Sprintf("%02x%s", address.TronPrefix, hex.EncodeToString(a[address.Length-20:])), nil
}

// CallConstant executes a read-only contract call and returns its output
func (c *Client) CallConstant(ctx context.Context, contract address.Address, data []byte) ([]byte, error) {
	req, err := c.newTrigger(contract, data, nil)
	if err != nil {
		return nil, err
	}
	req.FeeLimit = 0

	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggerconstantcontract", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Result.Result {
		return nil, fmt.Errorf("%w: %s", ErrRejected, decodeMessage(resp.Result.Message))
	}
	if len(resp.ConstantResult) == 0 {
		return nil, nil
	}
	return hex.DecodeString(resp.ConstantResult[0])
}

// Trigger builds an unsigned contract call transaction
func (c *Client) Trigger(ctx context.Context, contract address.Address, data []byte, value *big.Int) (*Transaction, error) {
	req, err := c.newTrigger(contract, data, value)
	if err != nil {
		return nil, err
	}
	var resp triggerResponse
	if err := c.post(ctx, "/wallet/triggersmartcontract", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Result.Result || resp.Transaction == nil {
		return nil, fmt.Errorf("%w: %s", ErrRejected, decodeMessage(resp.Result.Message))
	}
	return resp.Transaction, nil
}

func (c *Client) newTrigger(contract address.Address, data []byte, value *big.Int) (*triggerRequest, error) {
	owner, err := HexAddress(c.owner)
	if err != nil {
		return nil, err
	}
	target, err := HexAddress(contract)
	if err != nil {
		return nil, err
	}
	req := &triggerRequest{
		OwnerAddress:    owner,
		ContractAddress: target,
		Data:            hex.EncodeToString(data),
		FeeLimit:        c.cfg.FeeLimit,
	}
	if value != nil {
		if !value.IsInt64() {
			return nil, fmt.Errorf("call value %s overflows int64", value)
		}
		req.CallValue = value.Int64()
	}
	return req, nil
}

// Sign verifies that the transaction id hashes the raw data and appends a
// signature of it
func (c *Client) Sign(tx *Transaction) error {
	if c.key == nil {
		return errors.New("client has no signing key")
	}
	raw, err := hex.DecodeString(tx.RawDataHex)
	if err != nil {
		return fmt.Errorf("invalid raw data: %v", err)
	}
	id := sha256.Sum256(raw)
	if !strings.EqualFold(hex.EncodeToString(id[:]), tx.TxID) {
		return fmt.Errorf("%w: %s", ErrTxIDMismatch, tx.TxID)
	}

	sig, err := crypto.Sign(id[:], c.key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	tx.Signature = append(tx.Signature, hex.EncodeToString(sig))
	return nil
}

// Broadcast submits a signed transaction
func (c *Client) Broadcast(ctx context.Context, tx *Transaction) error {
	var resp struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/wallet/broadcasttransaction", tx, &resp); err != nil {
		return err
	}
	if !resp.Result {
		return fmt.Errorf("%w: %s %s", ErrRejected, resp.Code, decodeMessage(resp.Message))
	}
	return nil
}

type transactionInfo struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber"`
	Fee         uint64 `json:"fee"`
	Result      string `json:"result"`
	ResMessage  string `json:"resMessage"`
	Receipt     struct {
		EnergyUsageTotal uint64 `json:"energy_usage_total"`
		Result           string `json:"result"`
	} `json:"receipt"`
}

// WaitForReceipt polls until the transaction is included in a block
func (c *Client) WaitForReceipt(ctx context.Context, chainID uint64, txID string) (*models.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var info transactionInfo
		err := c.post(ctx, "/wallet/gettransactioninfobyid", map[string]string{"value": txID}, &info)
		if err != nil {
			c.logger.DebugWithChain(chainID, "Receipt poll for %s failed: %v", txID, err)
		} else if info.ID != "" && info.BlockNumber > 0 {
			return receiptFromInfo(chainID, &info), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txID)
		case <-ticker.C:
		}
	}
}

// receiptFromInfo maps Tron transaction info onto the canonical receipt; the
// energy used stands in for gas
func receiptFromInfo(chainID uint64, info *transactionInfo) *models.Receipt {
	receipt := &models.Receipt{
		TransactionHash: "0x" + strings.ToLower(info.ID),
		BlockNumber:     info.BlockNumber,
		GasUsed:         info.Receipt.EnergyUsageTotal,
		Status:          models.ReceiptSuccess,
		ChainID:         chainID,
	}
	if info.Result == "FAILED" || (info.Receipt.Result != "" && info.Receipt.Result != "SUCCESS") {
		receipt.Status = models.ReceiptReverted
		receipt.Error = strings.TrimSpace(info.Receipt.Result + " " + decodeMessage(info.ResMessage))
	}
	return receipt
}

// GetLatestBlockNumber returns the number of the current block
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var block struct {
		BlockHeader struct {
			RawData struct {
				Number uint64 `json:"number"`
			} `json:"raw_data"`
		} `json:"block_header"`
	}
	if err := c.post(ctx, "/wallet/getnowblock", struct{}{}, &block); err != nil {
		return 0, err
	}
	return block.BlockHeader.RawData.Number, nil
}

// Send triggers, signs and broadcasts a call, returning the transaction id
func (c *Client) Send(ctx context.Context, contract address.Address, data []byte, value *big.Int) (string, error) {
	tx, err := c.Trigger(ctx, contract, data, value)
	if err != nil {
		return "", err
	}
	if err := c.Sign(tx); err != nil {
		return "", err
	}
	if err := c.Broadcast(ctx, tx); err != nil {
		return "", err
	}
	return tx.TxID, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.URL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status code: %d, body: %s", path, resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %v", path, err)
	}
	return nil
}

// decodeMessage turns the hex encoded error messages of the wallet API into text
func decodeMessage(msg string) string {
	if b, err := hex.DecodeString(msg); err == nil && len(b) > 0 {
		return string(b)
	}
	return msg
}
