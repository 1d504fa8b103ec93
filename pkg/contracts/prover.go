package contracts

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// MessageBridgeProverABI is the fee quote entrypoint of message bridge provers
const MessageBridgeProverABI = `[
	{
		"inputs": [
			{"internalType": "uint64", "name": "domainID", "type": "uint64"},
			{"internalType": "bytes", "name": "encodedProofs", "type": "bytes"},
			{"internalType": "bytes", "name": "data", "type": "bytes"}
		],
		"name": "fetchFee",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// MessageBridgeProverParsedABI is MessageBridgeProverABI parsed once at init
var MessageBridgeProverParsedABI = mustParseABI(MessageBridgeProverABI)

var hyperlaneDataType = func() abi.Type {
	t, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "sourceChainProver", Type: "bytes32"},
		{Name: "metadata", Type: "bytes"},
		{Name: "hookAddr", Type: "address"},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

type hyperlaneData struct {
	SourceChainProver [32]byte
	Metadata          []byte
	HookAddr          common.Address
}

// MessageBridgeProver is a read binding around a prover contract
type MessageBridgeProver struct {
	contract *bind.BoundContract
}

// NewMessageBridgeProver binds a prover contract for fee quotes
func NewMessageBridgeProver(address common.Address, caller bind.ContractCaller) *MessageBridgeProver {
	return &MessageBridgeProver{contract: bind.NewBoundContract(address, MessageBridgeProverParsedABI, caller, nil, nil)}
}

// FetchFee is a free data retrieval call binding the contract method fetchFee.
func (p *MessageBridgeProver) FetchFee(opts *bind.CallOpts, domainID uint64, encodedProofs []byte, data []byte) (*big.Int, error) {
	var out []interface{}
	if err := p.contract.Call(opts, &out, "fetchFee", domainID, encodedProofs, data); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// EncodeProofs packs (uint64 source, bytes32 intentHash, bytes32 claimant)
func EncodeProofs(source uint64, intentHash, claimant common.Hash) []byte {
	out := make([]byte, 0, 8+2*common.HashLength)
	out = binary.BigEndian.AppendUint64(out, source)
	out = append(out, intentHash.Bytes()...)
	return append(out, claimant.Bytes()...)
}

// EncodeHyperlaneData encodes the prover message data: the source chain
// prover left-padded to 32 bytes, empty metadata and no post dispatch hook.
func EncodeHyperlaneData(sourceProver common.Hash) ([]byte, error) {
	return abi.Arguments{{Type: hyperlaneDataType}}.Pack(hyperlaneData{
		SourceChainProver: sourceProver,
		Metadata:          []byte{},
	})
}
