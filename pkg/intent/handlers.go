package intent

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
)

// Handlers maps every pipeline queue to the stage consuming it
func (p *Pipeline) Handlers() map[string]queue.Handler {
	return map[string]queue.Handler{
		queue.CreateQueue:      eventHandler(p.CreateIntent),
		queue.ValidateQueue:    hashHandler(p.ValidateIntent),
		queue.FeasibilityQueue: hashHandler(p.FeasibleIntent),
		queue.FulfillQueue:     hashHandler(p.FulfillIntent),
		queue.WithdrawalQueue:  eventHandler(p.HandleWithdrawal),
	}
}

func hashHandler(stage func(context.Context, common.Hash) error) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var data JobData
		if err := job.Decode(&data); err != nil {
			return queue.Permanent(fmt.Errorf("invalid job %s: %w", job.ID, err))
		}
		return stage(ctx, data.IntentHash)
	}
}

func eventHandler(stage func(context.Context, *models.RawEvent) error) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var event models.RawEvent
		if err := job.Decode(&event); err != nil {
			return queue.Permanent(fmt.Errorf("invalid job %s: %w", job.ID, err))
		}
		return stage(ctx, &event)
	}
}

// EventJobID is the id of a create or withdraw job fed from a chain log
func EventJobID(stage string, event *models.RawEvent) string {
	return fmt.Sprintf("%s:%d:%s:%d", stage, event.ChainID, event.TxHash.Hex(), event.LogIndex)
}
