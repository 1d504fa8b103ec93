// Package portal encodes, decodes and hashes Portal intents for every
// supported VM family.
package portal

import (
	"errors"
	"fmt"

	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// ErrUnsupportedVM is returned for a VM type without a codec
var ErrUnsupportedVM = errors.New("unsupported vm type")

// Codec converts routes and rewards to and from the bytes a portal hashes
type Codec interface {
	EncodeRoute(route models.Route) ([]byte, error)
	EncodeReward(reward models.Reward) ([]byte, error)
	DecodeRoute(data []byte) (models.Route, error)
	DecodeReward(data []byte) (models.Reward, error)
}

var codecs = map[chaintype.VMType]Codec{
	chaintype.EVM: evmCodec{vm: "evm"},
	chaintype.TVM: evmCodec{vm: "tvm"},
	chaintype.SVM: svmCodec{},
}

// CodecFor returns the codec of a VM type
func CodecFor(vm chaintype.VMType) (Codec, error) {
	c, ok := codecs[vm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVM, vm)
	}
	return c, nil
}

// Encode serializes a route or a reward (value or pointer) for vm
func Encode(v interface{}, vm chaintype.VMType) ([]byte, error) {
	c, err := CodecFor(vm)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case models.Route:
		return c.EncodeRoute(x)
	case *models.Route:
		return c.EncodeRoute(*x)
	case models.Reward:
		return c.EncodeReward(x)
	case *models.Reward:
		return c.EncodeReward(*x)
	default:
		return nil, fmt.Errorf("cannot encode %T", v)
	}
}

// DecodeRoute parses route bytes produced by a vm portal
func DecodeRoute(data []byte, vm chaintype.VMType) (models.Route, error) {
	c, err := CodecFor(vm)
	if err != nil {
		return models.Route{}, err
	}
	return c.DecodeRoute(data)
}

// DecodeReward parses reward bytes produced by a vm portal
func DecodeReward(data []byte, vm chaintype.VMType) (models.Reward, error) {
	c, err := CodecFor(vm)
	if err != nil {
		return models.Reward{}, err
	}
	return c.DecodeReward(data)
}
