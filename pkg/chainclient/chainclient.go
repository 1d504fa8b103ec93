// Package chainclient holds the per-chain EVM connection of the solver: the
// Portal binding, the signing account and transaction submission through the
// solver's Kernel account.
package chainclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/speedrun-hq/portal-solver/pkg/blockchain"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
)

// DefaultGasMultiplier is applied to the suggested gas price (10% buffer)
const DefaultGasMultiplier = 1.1

// gasLimitBuffer pads estimated gas by 20%
const gasLimitBuffer = 120

var (
	ErrNotConnected     = errors.New("client not connected")
	ErrReadOnly         = errors.New("client has no signing key")
	ErrNoCalls          = errors.New("no calls to execute")
	ErrGasPriceTooHigh  = errors.New("gas price above configured maximum")
	ErrChainIDMismatch  = errors.New("rpc chain id does not match configuration")
	ErrTransactionStuck = errors.New("transaction not mined")
)

// Backend is the part of ethclient.Client the solver uses
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Config is the static description of one EVM chain
type Config struct {
	ChainID       uint64
	RPCURL        string
	PortalAddress common.Address
	// KernelAddress is the solver smart account executing batches; when unset
	// calls are sent one by one from the signing account
	KernelAddress common.Address
	GasMultiplier float64
	MaxGasPrice   *big.Int
	MineTimeout   time.Duration
}

// Client contains client and config information for a specific blockchain
type Client struct {
	ChainID       uint64
	RPCURL        string
	PortalAddress common.Address
	KernelAddress common.Address
	MaxGasPrice   *big.Int
	GasMultiplier float64
	Backend       Backend
	Portal        *contracts.Portal
	Auth          *bind.TransactOpts

	mineTimeout     time.Duration
	nonces          *blockchain.NonceManager
	logger          logger.Logger
	mu              sync.RWMutex
	currentGasPrice *big.Int
	closer          func()
}

// New dials the chain RPC and creates a client. privateKey may be empty for
// a read-only client.
func New(ctx context.Context, cfg Config, privateKey string, nonces *blockchain.NonceManager, log logger.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %v", cfg.ChainID, err)
	}

	var key *ecdsa.PrivateKey
	if privateKey != "" {
		key, err = crypto.HexToECDSA(trimHexPrefix(privateKey))
		if err != nil {
			ec.Close()
			return nil, fmt.Errorf("failed to parse private key: %v", err)
		}
	}

	client, err := NewWithBackend(ctx, cfg, ec, key, nonces, log)
	if err != nil {
		ec.Close()
		return nil, err
	}
	client.closer = ec.Close
	return client, nil
}

// NewWithBackend creates a client over an existing backend
func NewWithBackend(ctx context.Context, cfg Config, backend Backend, key *ecdsa.PrivateKey, nonces *blockchain.NonceManager, log logger.Logger) (*Client, error) {
	if cfg.GasMultiplier <= 0 {
		cfg.GasMultiplier = DefaultGasMultiplier
	}
	if cfg.MineTimeout == 0 {
		cfg.MineTimeout = 3 * time.Minute
	}
	if nonces == nil {
		nonces = blockchain.NewNonceManager(log)
	}

	c := &Client{
		ChainID:       cfg.ChainID,
		RPCURL:        cfg.RPCURL,
		PortalAddress: cfg.PortalAddress,
		KernelAddress: cfg.KernelAddress,
		MaxGasPrice:   cfg.MaxGasPrice,
		GasMultiplier: cfg.GasMultiplier,
		Backend:       backend,
		Portal:        contracts.NewPortal(cfg.PortalAddress, backend),
		mineTimeout:   cfg.MineTimeout,
		nonces:        nonces,
		logger:        log,
	}

	if key != nil {
		auth, err := createAuthenticator(ctx, backend, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticator: %v", err)
		}
		if cfg.ChainID != 0 && auth.chainID.Uint64() != cfg.ChainID {
			return nil, fmt.Errorf("%w: rpc %s, configured %d", ErrChainIDMismatch, auth.chainID, cfg.ChainID)
		}
		c.Auth = auth.opts
	}
	return c, nil
}

// Close releases the RPC connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Sender is the externally owned account signing transactions
func (c *Client) Sender() common.Address {
	if c.Auth == nil {
		return common.Address{}
	}
	return c.Auth.From
}

// Account is the account holding the solver's funds: the Kernel account when
// configured, otherwise the signing account
func (c *Client) Account() common.Address {
	if c.KernelAddress != (common.Address{}) {
		return c.KernelAddress
	}
	return c.Sender()
}

// UpdateGasPrice updates the gas price based on current network conditions
func (c *Client) UpdateGasPrice(ctx context.Context) (*big.Int, error) {
	if c.Backend == nil {
		return nil, ErrNotConnected
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gasPrice, err := c.Backend.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	// Apply gas multiplier (e.g. 1.1 = 10% buffer)
	multiplied := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(c.GasMultiplier))
	finalGasPrice, _ := multiplied.Int(nil)

	c.mu.Lock()
	c.currentGasPrice = finalGasPrice
	if c.Auth != nil {
		c.Auth.GasPrice = finalGasPrice
	}
	c.mu.Unlock()

	return finalGasPrice, nil
}

// CurrentGasPrice returns the last price computed by UpdateGasPrice
func (c *Client) CurrentGasPrice() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentGasPrice == nil {
		return nil
	}
	return new(big.Int).Set(c.currentGasPrice)
}

// GetLatestBlockNumber gets the latest block number from the chain
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	if c.Backend == nil {
		return 0, ErrNotConnected
	}
	return c.Backend.BlockNumber(ctx)
}

// IsIntentFunded asks the source Portal whether the intent's reward is fully
// deposited. Intents whose route cannot be expressed as an EVM struct are
// checked through the reward status of their hash.
func (c *Client) IsIntentFunded(ctx context.Context, intent *models.Intent) (bool, error) {
	opts := &bind.CallOpts{Context: ctx}

	destinationVM, err := chaintype.Detect(intent.DestinationChainID)
	if err != nil {
		return false, err
	}
	if destinationVM != chaintype.EVM {
		status, err := c.Portal.GetRewardStatus(opts, intent.Hash)
		if err != nil {
			return false, fmt.Errorf("failed to read reward status: %w", err)
		}
		return status == contracts.RewardStatusFunded, nil
	}

	route, err := portal.ToEvmRoute(intent.Route)
	if err != nil {
		return false, err
	}
	reward, err := portal.ToEvmReward(intent.Reward)
	if err != nil {
		return false, err
	}
	funded, err := c.Portal.IsIntentFunded(opts, contracts.PortalIntent{
		Destination: intent.DestinationChainID,
		Route:       route,
		Reward:      reward,
	})
	if err != nil {
		return false, fmt.Errorf("failed to call isIntentFunded: %w", err)
	}
	return funded, nil
}

// FetchProverFee quotes the native fee a message bridge prover charges to
// relay one proof back to the source domain
func (c *Client) FetchProverFee(ctx context.Context, prover common.Address, source uint64, encodedProofs, data []byte) (*big.Int, error) {
	fee, err := contracts.NewMessageBridgeProver(prover, c.Backend).FetchFee(&bind.CallOpts{Context: ctx}, source, encodedProofs, data)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prover fee: %w", err)
	}
	return fee, nil
}

// BalanceOf returns the ERC-20 balance of owner, or the native balance when
// token is the zero address
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if token == (common.Address{}) {
		return c.Backend.BalanceAt(ctx, owner, nil)
	}
	return contracts.NewERC20(token, c.Backend).BalanceOf(&bind.CallOpts{Context: ctx}, owner)
}

// Execute submits calls atomically as one Kernel batch, or sequentially from
// the signing account when no Kernel account is configured. It blocks until
// the last transaction is mined.
func (c *Client) Execute(ctx context.Context, calls []contracts.Execution) (*models.Receipt, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}
	if c.Auth == nil {
		return nil, ErrReadOnly
	}

	if c.KernelAddress == (common.Address{}) {
		var receipt *models.Receipt
		for i, call := range calls {
			r, err := c.send(ctx, call.Target, call.CallData, call.Value)
			if err != nil {
				return nil, fmt.Errorf("call %d: %w", i, err)
			}
			receipt = r
			if r.Reverted() {
				break
			}
		}
		return receipt, nil
	}

	data, err := contracts.PackExecuteBatch(calls)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, c.KernelAddress, data, contracts.TotalValue(calls))
}

// send signs one transaction with the next managed nonce and waits for it
func (c *Client) send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*models.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	gasPrice, err := c.UpdateGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if c.MaxGasPrice != nil && c.MaxGasPrice.Sign() > 0 && gasPrice.Cmp(c.MaxGasPrice) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", ErrGasPriceTooHigh, gasPrice, c.MaxGasPrice)
	}

	from := c.Auth.From
	nonce, err := c.nonces.Next(ctx, c.ChainID, c.Backend, from)
	if err != nil {
		return nil, err
	}

	gas, err := c.Backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       &to,
		GasPrice: gasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		c.nonces.Release(c.ChainID, from, nonce)
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas = gas * gasLimitBuffer / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := c.Auth.Signer(from, tx)
	if err != nil {
		c.nonces.Release(c.ChainID, from, nonce)
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.Backend.SendTransaction(ctx, signed); err != nil {
		c.nonces.Release(c.ChainID, from, nonce)
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	c.nonces.Track(c.ChainID, from, nonce, signed.Hash())
	c.logger.InfoWithChain(c.ChainID, "Transaction sent: %s (nonce %d)", signed.Hash().Hex(), nonce)

	waitCtx, cancel := context.WithTimeout(ctx, c.mineTimeout)
	defer cancel()
	mined, err := bind.WaitMined(waitCtx, c.Backend, signed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransactionStuck, signed.Hash().Hex(), err)
	}
	c.nonces.Confirm(c.ChainID, from, nonce)

	receipt := ReceiptFromEVM(c.ChainID, mined)
	if receipt.Reverted() {
		c.logger.ErrorWithChain(c.ChainID, "Transaction %s reverted", receipt.TransactionHash)
	}
	return receipt, nil
}

// ReceiptFromEVM translates a go-ethereum receipt into the canonical receipt
func ReceiptFromEVM(chainID uint64, r *types.Receipt) *models.Receipt {
	receipt := &models.Receipt{
		TransactionHash: r.TxHash.Hex(),
		GasUsed:         r.GasUsed,
		ChainID:         chainID,
		Status:          models.ReceiptSuccess,
	}
	if r.BlockNumber != nil {
		receipt.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.Status != types.ReceiptStatusSuccessful {
		receipt.Status = models.ReceiptReverted
	}
	return receipt
}

type authenticator struct {
	opts    *bind.TransactOpts
	chainID *big.Int
}

// Helper function to create authenticator
func createAuthenticator(ctx context.Context, backend Backend, privateKey *ecdsa.PrivateKey) (*authenticator, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}
	return &authenticator{opts: auth, chainID: chainID}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
