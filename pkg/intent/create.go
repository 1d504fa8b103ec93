package intent

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
)

// WalletGate decides whether intents of a creator are served
type WalletGate interface {
	IsValidWallet(ctx context.Context, creator address.Address, sourceChainID uint64) (bool, error)
}

// AllowListGate accepts the listed creators on every chain
type AllowListGate map[address.Address]struct{}

// NewAllowListGate builds a gate from a list of creators
func NewAllowListGate(creators ...address.Address) AllowListGate {
	gate := make(AllowListGate, len(creators))
	for _, c := range creators {
		gate[c] = struct{}{}
	}
	return gate
}

func (g AllowListGate) IsValidWallet(_ context.Context, creator address.Address, _ uint64) (bool, error) {
	_, ok := g[creator]
	return ok, nil
}

// CreateIntent decodes a published intent log and records it once. Eligible
// intents are queued for validation.
func (p *Pipeline) CreateIntent(ctx context.Context, event *models.RawEvent) error {
	intent, err := portal.DecodeIntentPublished(portal.LogFromRawEvent(event), event.ChainID)
	if err != nil {
		// a log that does not decode never will
		return queue.Permanent(fmt.Errorf("failed to decode intent log %s:%d: %w", event.TxHash.Hex(), event.LogIndex, err))
	}

	exists, err := p.repo.Exists(ctx, intent.Hash)
	if err != nil {
		return err
	}
	if exists {
		p.logger.DebugWithChain(intent.SourceChainID, "Record for intent %s already exists", intent.Hash.Hex())
		return nil
	}

	valid := true
	if p.gate != nil {
		valid, err = p.gate.IsValidWallet(ctx, intent.Reward.Creator, intent.SourceChainID)
		if err != nil {
			return fmt.Errorf("failed to check creator wallet: %w", err)
		}
	}

	status := models.StatusPending
	if !valid {
		status = models.StatusNonBendWallet
	}
	record := &models.IntentRecord{
		Hash:        intent.Hash.Hex(),
		Status:      status,
		SourceChain: intent.SourceChainID,
		Intent:      *intent,
		RawEvent:    event,
	}
	if err := p.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("failed to record intent %s: %w", intent.Hash.Hex(), err)
	}
	metrics.IntentsIngested.WithLabelValues(strconv.FormatUint(intent.SourceChainID, 10), string(status)).Inc()

	if !valid {
		p.logger.InfoWithChain(intent.SourceChainID, "Recorded intent %s from non BEND wallet %s", intent.Hash.Hex(), intent.Reward.Creator.Hex())
		return nil
	}
	p.logger.InfoWithChain(intent.SourceChainID, "Recorded intent %s for chain %d", intent.Hash.Hex(), intent.DestinationChainID)
	return p.enqueue(ctx, queue.ValidateQueue, StageValidate, intent)
}
