package fulfiller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/speedrun-hq/portal-solver/pkg/circuitbreaker"
	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
)

// chainResolver returns the chain a job spends on, false when it has none
type chainResolver func(ctx context.Context, job *queue.Job) (uint64, bool)

// destinationChain resolves the destination chain of a fulfill job from its record
func (s *Fulfiller) destinationChain(ctx context.Context, job *queue.Job) (uint64, bool) {
	var data intent.JobData
	if err := job.Decode(&data); err != nil {
		return 0, false
	}
	record, err := s.repo.GetByHash(ctx, data.IntentHash)
	if err != nil {
		return 0, false
	}
	return record.Intent.DestinationChainID, true
}

// guard wraps a stage handler with the circuit breaker of the chain it spends
// on and the error classification deciding whether the queue retries the job
func (s *Fulfiller) guard(name string, resolve chainResolver, handler queue.Handler) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var (
			chainID  uint64
			hasChain bool
			cb       *circuitbreaker.CircuitBreaker
		)
		if resolve != nil {
			chainID, hasChain = resolve(ctx, job)
		}
		if hasChain {
			cb = s.circuitBreakers[chainID]
		}

		// Check if circuit breaker is enabled and open for the chain
		if cb != nil && cb.IsEnabled() && cb.IsOpen() {
			failureCount, lastFailure, _, _ := cb.GetState()
			retryAfter := cb.RetryAfter()
			s.logger.InfoWithChain(chainID, "Circuit breaker open (last failure: %v, failure count: %d), delaying job %s by %v",
				lastFailure, failureCount, job.ID, retryAfter)
			// the job waits for the circuit to close without spending an attempt
			return queue.Defer(fmt.Errorf("%w: chain %d", ErrCircuitOpen, chainID), retryAfter)
		}

		s.logger.Debug("Processing %s job %s (attempt %d/%d)", name, job.ID, job.Attempt, job.MaxAttempts)
		err := handler(ctx, job)
		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			return nil
		}

		shouldRetry, errorType := ClassifyError(err)
		label := "unknown"
		if hasChain {
			label = strconv.FormatUint(chainID, 10)
		}
		metrics.FulfillmentErrors.WithLabelValues(label, errorType).Inc()
		s.logger.Error("Job %s on %s classified as %s (retry: %v): %v", job.ID, name, errorType, shouldRetry, err)

		// If it's an "already processed" type of error, don't retry
		if errorType == ErrorTypeAlreadyProcessed {
			s.logger.Info("Job %s is already settled or fulfilled, dropping it", job.ID)
			return nil
		}

		if errorType != ErrorTypePermanent && cb != nil {
			tripped := cb.RecordFailure()
			failureCount, _, failureWindow, failThreshold := cb.GetState()
			if tripped {
				s.logger.ErrorWithChain(chainID, "Circuit breaker tripped - threshold reached: %d failures in %v window",
					failureCount, failureWindow)
			} else {
				s.logger.DebugWithChain(chainID, "Recorded failure - current count: %d/%d in %v window",
					failureCount, failThreshold, failureWindow)
			}
		}

		if !shouldRetry {
			metrics.PermanentErrors.WithLabelValues(label, errorType).Inc()
			if queue.IsPermanent(err) {
				return err
			}
			return queue.Permanent(err)
		}
		return err
	}
}

// handlers returns the guarded stage handlers keyed by queue
func (s *Fulfiller) handlers() map[string]queue.Handler {
	guarded := make(map[string]queue.Handler)
	for name, handler := range s.pipeline.Handlers() {
		var resolve chainResolver
		if name == queue.FulfillQueue {
			resolve = s.destinationChain
		}
		guarded[name] = s.guard(name, resolve, handler)
	}
	return guarded
}
