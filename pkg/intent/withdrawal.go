package intent

import (
	"context"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
)

// Withdrawal is a decoded IntentWithdrawn log
type Withdrawal struct {
	IntentHash common.Hash    `json:"intentHash"`
	Recipient  common.Address `json:"recipient"`
	ChainID    uint64         `json:"chainId"`
	TxHash     common.Hash    `json:"transactionHash"`
}

// WithdrawalFromEvent decodes an IntentWithdrawn raw event
func WithdrawalFromEvent(event *models.RawEvent) (*Withdrawal, error) {
	hash, recipient, err := portal.DecodeIntentWithdrawn(portal.LogFromRawEvent(event))
	if err != nil {
		return nil, err
	}
	return &Withdrawal{IntentHash: hash, Recipient: recipient, ChainID: event.ChainID, TxHash: event.TxHash}, nil
}

// HandleWithdrawal marks a solved intent as WITHDRAWN once its reward was
// claimed. Withdrawals of unknown or unsolved intents are ignored.
func (p *Pipeline) HandleWithdrawal(ctx context.Context, event *models.RawEvent) error {
	w, err := WithdrawalFromEvent(event)
	if err != nil {
		return queue.Permanent(err)
	}

	record, err := p.repo.GetByHash(ctx, w.IntentHash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !record.Status.IsSolved() {
		p.logger.DebugWithChain(w.ChainID, "Ignoring withdrawal of intent %s in status %s", w.IntentHash.Hex(), record.Status)
		return nil
	}

	if err := p.repo.MarkWithdrawn(ctx, w.IntentHash, w.TxHash.Hex()); err != nil {
		return err
	}
	metrics.WithdrawnIntents.WithLabelValues(strconv.FormatUint(w.ChainID, 10)).Inc()
	p.logger.InfoWithChain(w.ChainID, "Intent %s withdrawn to %s in %s", w.IntentHash.Hex(), w.Recipient.Hex(), w.TxHash.Hex())
	return nil
}
