package portal

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// ErrIntentHashMismatch is returned when a published log carries a hash the
// decoded intent does not reproduce
var ErrIntentHashMismatch = errors.New("intent hash mismatch")

// DecodeIntentPublished rebuilds an intent from an IntentPublished log
// emitted by the portal of sourceChainID. The route bytes are decoded with the
// destination chain codec and the recomputed intent hash must match the log.
func DecodeIntentPublished(log types.Log, sourceChainID uint64) (*models.Intent, error) {
	event, err := contracts.ParseIntentPublished(log)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IntentPublished: %w", err)
	}

	destinationVM, err := chaintype.Detect(event.Destination)
	if err != nil {
		return nil, err
	}
	route, err := DecodeRoute(event.Route, destinationVM)
	if err != nil {
		return nil, err
	}

	txHash := log.TxHash
	intent := &models.Intent{
		Hash:               event.Hash,
		SourceChainID:      sourceChainID,
		DestinationChainID: event.Destination,
		Route:              route,
		Reward: models.Reward{
			Deadline:     event.RewardDeadline,
			Creator:      address.FromEVM(event.Creator),
			Prover:       address.FromEVM(event.Prover),
			NativeAmount: orZero(event.NativeValue),
			Tokens:       FromEvmTokens(event.RewardTokens),
		},
		LogIndex:      log.Index,
		PublishTxHash: &txHash,
	}

	hashes, err := GetIntentHash(intent)
	if err != nil {
		return nil, err
	}
	if hashes.IntentHash != intent.Hash {
		return nil, fmt.Errorf("%w: log %s, computed %s", ErrIntentHashMismatch, intent.Hash.Hex(), hashes.IntentHash.Hex())
	}
	return intent, nil
}

// DecodeIntentWithdrawn returns the intent hash and recipient of an IntentWithdrawn log
func DecodeIntentWithdrawn(log types.Log) (common.Hash, common.Address, error) {
	event, err := contracts.ParseIntentWithdrawn(log)
	if err != nil {
		return common.Hash{}, common.Address{}, fmt.Errorf("failed to parse IntentWithdrawn: %w", err)
	}
	return event.Hash, event.Recipient, nil
}

// RawEventFromLog keeps the fields of a log needed to replay it
func RawEventFromLog(chainID uint64, log types.Log) *models.RawEvent {
	return &models.RawEvent{
		ChainID:     chainID,
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Topics:      log.Topics,
		Data:        common.CopyBytes(log.Data),
	}
}

// LogFromRawEvent converts a stored event back to a log
func LogFromRawEvent(ev *models.RawEvent) types.Log {
	return types.Log{
		Address:     common.HexToAddress(ev.Address),
		Topics:      ev.Topics,
		Data:        ev.Data,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		Index:       ev.LogIndex,
	}
}
