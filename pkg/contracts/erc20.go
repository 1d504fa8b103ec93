package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errNoEventSignature       = errors.New("no event signature")
	errEventSignatureMismatch = errors.New("event signature mismatch")
	// ErrNotTransfer is returned when call data is not an ERC-20 transfer
	ErrNotTransfer = errors.New("call data is not an erc20 transfer")
)

// ERC20ABI is the ABI of the ERC20 token functions the solver calls
const ERC20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// ERC20ParsedABI is ERC20ABI parsed once at init
var ERC20ParsedABI = mustParseABI(ERC20ABI)

// TransferSelector is the 4-byte selector of transfer(address,uint256)
var TransferSelector = ERC20ParsedABI.Methods["transfer"].ID

// ERC20 is a read binding around an ERC20 token
type ERC20 struct {
	contract *bind.BoundContract
}

// NewERC20 binds a token contract for reads
func NewERC20(address common.Address, caller bind.ContractCaller) *ERC20 {
	return &ERC20{contract: bind.NewBoundContract(address, ERC20ParsedABI, caller, nil, nil)}
}

// BalanceOf is a free data retrieval call binding the contract method balanceOf.
func (t *ERC20) BalanceOf(opts *bind.CallOpts, account common.Address) (*big.Int, error) {
	var out []interface{}
	if err := t.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// PackApprove encodes approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ParsedABI.Pack("approve", spender, amount)
}

// PackTransfer encodes transfer(to, amount)
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ParsedABI.Pack("transfer", to, amount)
}

// IsTransfer reports whether data starts with the transfer selector
func IsTransfer(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], TransferSelector)
}

// DecodeTransfer returns the recipient and amount of transfer call data
func DecodeTransfer(data []byte) (common.Address, *big.Int, error) {
	if !IsTransfer(data) {
		return common.Address{}, nil, ErrNotTransfer
	}
	args, err := ERC20ParsedABI.Methods["transfer"].Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", ErrNotTransfer, err)
	}
	to := *abi.ConvertType(args[0], new(common.Address)).(*common.Address)
	amount := *abi.ConvertType(args[1], new(*big.Int)).(**big.Int)
	return to, amount, nil
}
