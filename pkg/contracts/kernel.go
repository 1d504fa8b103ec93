package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// KernelABI is the ERC-7579 execute entrypoint of a Kernel smart account
const KernelABI = `[
	{
		"inputs": [
			{"internalType": "ExecMode", "name": "execMode", "type": "bytes32"},
			{"internalType": "bytes", "name": "executionCalldata", "type": "bytes"}
		],
		"name": "execute",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// KernelParsedABI is KernelABI parsed once at init
var KernelParsedABI = mustParseABI(KernelABI)

// BatchExecMode is the ERC-7579 mode for a batch call with revert on failure
var BatchExecMode = [32]byte{0x01}

var executionsType = func() abi.Type {
	t, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return t
}()

// Execution is one call of a Kernel batch
type Execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// PackExecuteBatch encodes execute(batchMode, abi.encode(executions)). The
// total native value of the batch must be attached to the outer transaction.
func PackExecuteBatch(executions []Execution) ([]byte, error) {
	normalized := make([]Execution, len(executions))
	for i, e := range executions {
		normalized[i] = e
		if normalized[i].Value == nil {
			normalized[i].Value = new(big.Int)
		}
	}
	encoded, err := abi.Arguments{{Type: executionsType}}.Pack(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executions: %w", err)
	}
	return KernelParsedABI.Pack("execute", BatchExecMode, encoded)
}

// TotalValue sums the value of every execution
func TotalValue(executions []Execution) *big.Int {
	total := new(big.Int)
	for _, e := range executions {
		if e.Value != nil {
			total.Add(total, e.Value)
		}
	}
	return total
}
