package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const routeTupleJSON = `{
	"components": [
		{"internalType": "bytes32", "name": "salt", "type": "bytes32"},
		{"internalType": "uint64", "name": "deadline", "type": "uint64"},
		{"internalType": "address", "name": "portal", "type": "address"},
		{"internalType": "uint256", "name": "nativeAmount", "type": "uint256"},
		{"components": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		], "internalType": "struct TokenAmount[]", "name": "tokens", "type": "tuple[]"},
		{"components": [
			{"internalType": "address", "name": "target", "type": "address"},
			{"internalType": "bytes", "name": "data", "type": "bytes"},
			{"internalType": "uint256", "name": "value", "type": "uint256"}
		], "internalType": "struct Call[]", "name": "calls", "type": "tuple[]"}
	],
	"internalType": "struct Route",
	"name": "route",
	"type": "tuple"
}`

const rewardComponentsJSON = `[
		{"internalType": "uint64", "name": "deadline", "type": "uint64"},
		{"internalType": "address", "name": "creator", "type": "address"},
		{"internalType": "address", "name": "prover", "type": "address"},
		{"internalType": "uint256", "name": "nativeAmount", "type": "uint256"},
		{"components": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		], "internalType": "struct TokenAmount[]", "name": "tokens", "type": "tuple[]"}
	]`

const fulfillInputsJSON = `
		{"internalType": "bytes32", "name": "intentHash", "type": "bytes32"},
		` + routeTupleJSON + `,
		{"internalType": "bytes32", "name": "rewardHash", "type": "bytes32"},
		{"internalType": "bytes32", "name": "claimant", "type": "bytes32"}`

// PortalABI is the subset of the Portal contract ABI the solver uses
const PortalABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "hash", "type": "bytes32"},
			{"indexed": false, "internalType": "uint64", "name": "destination", "type": "uint64"},
			{"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "prover", "type": "address"},
			{"indexed": false, "internalType": "uint64", "name": "rewardDeadline", "type": "uint64"},
			{"indexed": false, "internalType": "uint256", "name": "nativeValue", "type": "uint256"},
			{"components": [
				{"internalType": "address", "name": "token", "type": "address"},
				{"internalType": "uint256", "name": "amount", "type": "uint256"}
			], "indexed": false, "internalType": "struct TokenAmount[]", "name": "rewardTokens", "type": "tuple[]"},
			{"indexed": false, "internalType": "bytes", "name": "route", "type": "bytes"}
		],
		"name": "IntentPublished",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "bytes32", "name": "hash", "type": "bytes32"},
			{"indexed": true, "internalType": "address", "name": "recipient", "type": "address"}
		],
		"name": "IntentWithdrawn",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "bytes32", "name": "hash", "type": "bytes32"},
			{"indexed": true, "internalType": "bytes32", "name": "claimant", "type": "bytes32"}
		],
		"name": "IntentFulfilled",
		"type": "event"
	},
	{
		"inputs": [` + fulfillInputsJSON + `],
		"name": "fulfill",
		"outputs": [{"internalType": "bytes[]", "name": "", "type": "bytes[]"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [` + fulfillInputsJSON + `],
		"name": "fulfillStorage",
		"outputs": [{"internalType": "bytes[]", "name": "", "type": "bytes[]"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [` + fulfillInputsJSON + `,
			{"internalType": "address", "name": "prover", "type": "address"},
			{"internalType": "uint64", "name": "sourceChainDomainID", "type": "uint64"},
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"name": "fulfillAndProve",
		"outputs": [{"internalType": "bytes[]", "name": "", "type": "bytes[]"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"internalType": "uint64", "name": "destination", "type": "uint64"},
					` + routeTupleJSON + `,
					{"components": ` + rewardComponentsJSON + `, "internalType": "struct Reward", "name": "reward", "type": "tuple"}
				],
				"internalType": "struct Intent",
				"name": "intent",
				"type": "tuple"
			}
		],
		"name": "isIntentFunded",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "intentHash", "type": "bytes32"}],
		"name": "getRewardStatus",
		"outputs": [{"internalType": "enum IIntentSource.Status", "name": "status", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint64[]", "name": "destinations", "type": "uint64[]"},
			{"internalType": "bytes32[]", "name": "routeHashes", "type": "bytes32[]"},
			{"components": ` + rewardComponentsJSON + `, "internalType": "struct Reward[]", "name": "rewards", "type": "tuple[]"}
		],
		"name": "batchWithdraw",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// PortalTokenAmount is an auto generated low-level Go binding around an user-defined struct.
type PortalTokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// PortalCall is an auto generated low-level Go binding around an user-defined struct.
type PortalCall struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// PortalRoute is an auto generated low-level Go binding around an user-defined struct.
type PortalRoute struct {
	Salt         [32]byte
	Deadline     uint64
	Portal       common.Address
	NativeAmount *big.Int
	Tokens       []PortalTokenAmount
	Calls        []PortalCall
}

// PortalReward is an auto generated low-level Go binding around an user-defined struct.
type PortalReward struct {
	Deadline     uint64
	Creator      common.Address
	Prover       common.Address
	NativeAmount *big.Int
	Tokens       []PortalTokenAmount
}

// PortalIntent is an auto generated low-level Go binding around an user-defined struct.
type PortalIntent struct {
	Destination uint64
	Route       PortalRoute
	Reward      PortalReward
}

// PortalIntentPublished represents a IntentPublished event raised by the Portal contract.
type PortalIntentPublished struct {
	Hash           [32]byte
	Destination    uint64
	Creator        common.Address
	Prover         common.Address
	RewardDeadline uint64
	NativeValue    *big.Int
	RewardTokens   []PortalTokenAmount
	Route          []byte
	Raw            types.Log // Blockchain specific contextual infos
}

// PortalIntentWithdrawn represents a IntentWithdrawn event raised by the Portal contract.
type PortalIntentWithdrawn struct {
	Hash      [32]byte
	Recipient common.Address
	Raw       types.Log // Blockchain specific contextual infos
}

// PortalParsedABI is PortalABI parsed once at init
var PortalParsedABI = mustParseABI(PortalABI)

// Portal is a binding around the Portal contract
type Portal struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewPortal creates a new instance of Portal, bound to a specific deployed contract.
func NewPortal(address common.Address, backend bind.ContractBackend) *Portal {
	return &Portal{
		address:  address,
		contract: bind.NewBoundContract(address, PortalParsedABI, backend, backend, backend),
	}
}

// Address returns the contract address
func (p *Portal) Address() common.Address {
	return p.address
}

// IsIntentFunded is a free data retrieval call binding the contract method isIntentFunded.
func (p *Portal) IsIntentFunded(opts *bind.CallOpts, intent PortalIntent) (bool, error) {
	var out []interface{}
	if err := p.contract.Call(opts, &out, "isIntentFunded", intent); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// RewardStatus values returned by getRewardStatus
const (
	RewardStatusInitial uint8 = iota
	RewardStatusFunded
	RewardStatusWithdrawn
	RewardStatusRefunded
)

// GetRewardStatus is a free data retrieval call binding the contract method getRewardStatus.
func (p *Portal) GetRewardStatus(opts *bind.CallOpts, intentHash [32]byte) (uint8, error) {
	var out []interface{}
	if err := p.contract.Call(opts, &out, "getRewardStatus", intentHash); err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// BatchWithdraw is a paid mutator transaction binding the contract method batchWithdraw.
func (p *Portal) BatchWithdraw(opts *bind.TransactOpts, destinations []uint64, routeHashes [][32]byte, rewards []PortalReward) (*types.Transaction, error) {
	return p.contract.Transact(opts, "batchWithdraw", destinations, routeHashes, rewards)
}

// ParseIntentPublished is a log parse operation binding the contract event IntentPublished.
func (p *Portal) ParseIntentPublished(log types.Log) (*PortalIntentPublished, error) {
	return ParseIntentPublished(log)
}

// ParseIntentPublished unpacks an IntentPublished log without a bound contract
func ParseIntentPublished(log types.Log) (*PortalIntentPublished, error) {
	event := new(PortalIntentPublished)
	if err := unpackLog(PortalParsedABI, event, "IntentPublished", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseIntentWithdrawn unpacks an IntentWithdrawn log
func ParseIntentWithdrawn(log types.Log) (*PortalIntentWithdrawn, error) {
	event := new(PortalIntentWithdrawn)
	if err := unpackLog(PortalParsedABI, event, "IntentWithdrawn", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// PackFulfill encodes a fulfill call
func PackFulfill(intentHash [32]byte, route PortalRoute, rewardHash [32]byte, claimant [32]byte) ([]byte, error) {
	return PortalParsedABI.Pack("fulfill", intentHash, route, rewardHash, claimant)
}

// PackFulfillStorage encodes a fulfillStorage call used with storage provers
func PackFulfillStorage(intentHash [32]byte, route PortalRoute, rewardHash [32]byte, claimant [32]byte) ([]byte, error) {
	return PortalParsedABI.Pack("fulfillStorage", intentHash, route, rewardHash, claimant)
}

// PackFulfillAndProve encodes a fulfillAndProve call
func PackFulfillAndProve(intentHash [32]byte, route PortalRoute, rewardHash [32]byte, claimant [32]byte, prover common.Address, source uint64, data []byte) ([]byte, error) {
	return PortalParsedABI.Pack("fulfillAndProve", intentHash, route, rewardHash, claimant, prover, source, data)
}

// IntentPublishedTopic is the topic0 of IntentPublished logs
func IntentPublishedTopic() common.Hash {
	return PortalParsedABI.Events["IntentPublished"].ID
}

// IntentWithdrawnTopic is the topic0 of IntentWithdrawn logs
func IntentWithdrawnTopic() common.Hash {
	return PortalParsedABI.Events["IntentWithdrawn"].ID
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// unpackLog mirrors bind.BoundContract.UnpackLog for callers without a backend
func unpackLog(contractABI abi.ABI, out interface{}, event string, log types.Log) error {
	if len(log.Topics) == 0 {
		return errNoEventSignature
	}
	if log.Topics[0] != contractABI.Events[event].ID {
		return errEventSignatureMismatch
	}
	if len(log.Data) > 0 {
		if err := contractABI.UnpackIntoInterface(out, event, log.Data); err != nil {
			return err
		}
	}
	var indexed abi.Arguments
	for _, arg := range contractABI.Events[event].Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return abi.ParseTopics(out, indexed, log.Topics[1:])
}
