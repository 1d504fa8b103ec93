package portal

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/borsh"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

var (
	// ErrAmountOverflow is returned when an amount does not fit the u64 used by the Solana program
	ErrAmountOverflow = errors.New("amount exceeds u64")
	// ErrCallValueNotSupported is returned when a Solana route call carries native value
	ErrCallValueNotSupported = errors.New("call value is not supported on solana")
)

// svmCodec implements the Borsh layout of the Solana portal program
type svmCodec struct{}

func (svmCodec) EncodeRoute(route models.Route) ([]byte, error) {
	native, err := toU64(route.NativeAmount)
	if err != nil {
		return nil, fmt.Errorf("svm route native amount: %w", err)
	}

	w := borsh.NewWriter()
	w.WriteFixed(route.Salt.Bytes())
	w.WriteU64(route.Deadline)
	w.WriteFixed(route.Portal.Bytes())
	w.WriteU64(native)
	if err := writeTokens(w, route.Tokens); err != nil {
		return nil, fmt.Errorf("svm route: %w", err)
	}
	w.WriteLen(len(route.Calls))
	for i, call := range route.Calls {
		if call.Value != nil && call.Value.Sign() != 0 {
			return nil, fmt.Errorf("svm route call %d: %w", i, ErrCallValueNotSupported)
		}
		w.WriteFixed(call.Target.Bytes())
		w.WriteBytes(call.Data)
	}
	return w.Bytes(), nil
}

func (svmCodec) EncodeReward(reward models.Reward) ([]byte, error) {
	native, err := toU64(reward.NativeAmount)
	if err != nil {
		return nil, fmt.Errorf("svm reward native amount: %w", err)
	}

	w := borsh.NewWriter()
	w.WriteU64(reward.Deadline)
	w.WriteFixed(reward.Creator.Bytes())
	w.WriteFixed(reward.Prover.Bytes())
	w.WriteU64(native)
	if err := writeTokens(w, reward.Tokens); err != nil {
		return nil, fmt.Errorf("svm reward: %w", err)
	}
	return w.Bytes(), nil
}

func (svmCodec) DecodeRoute(data []byte) (models.Route, error) {
	r := borsh.NewReader(data)
	route := models.Route{
		Salt:         common.BytesToHash(r.ReadFixed(32)),
		Deadline:     r.ReadU64(),
		Portal:       address.BytesToAddress(r.ReadFixed(address.Length)),
		NativeAmount: new(big.Int).SetUint64(r.ReadU64()),
		Tokens:       readTokens(r),
	}
	n := r.ReadLen()
	route.Calls = make([]models.Call, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		route.Calls = append(route.Calls, models.Call{
			Target: address.BytesToAddress(r.ReadFixed(address.Length)),
			Data:   r.ReadBytes(),
			Value:  new(big.Int),
		})
	}
	if err := r.Finish(); err != nil {
		return models.Route{}, fmt.Errorf("failed to decode svm route: %w", err)
	}
	return route, nil
}

func (svmCodec) DecodeReward(data []byte) (models.Reward, error) {
	r := borsh.NewReader(data)
	reward := models.Reward{
		Deadline:     r.ReadU64(),
		Creator:      address.BytesToAddress(r.ReadFixed(address.Length)),
		Prover:       address.BytesToAddress(r.ReadFixed(address.Length)),
		NativeAmount: new(big.Int).SetUint64(r.ReadU64()),
		Tokens:       readTokens(r),
	}
	if err := r.Finish(); err != nil {
		return models.Reward{}, fmt.Errorf("failed to decode svm reward: %w", err)
	}
	return reward, nil
}

func writeTokens(w *borsh.Writer, tokens []models.TokenAmount) error {
	w.WriteLen(len(tokens))
	for i, t := range tokens {
		amount, err := toU64(t.Amount)
		if err != nil {
			return fmt.Errorf("token %d: %w", i, err)
		}
		w.WriteFixed(t.Token.Bytes())
		w.WriteU64(amount)
	}
	return nil
}

func readTokens(r *borsh.Reader) []models.TokenAmount {
	n := r.ReadLen()
	tokens := make([]models.TokenAmount, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		tokens = append(tokens, models.TokenAmount{
			Token:  address.BytesToAddress(r.ReadFixed(address.Length)),
			Amount: new(big.Int).SetUint64(r.ReadU64()),
		})
	}
	return tokens
}

func toU64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, v)
	}
	return v.Uint64(), nil
}
