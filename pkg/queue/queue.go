// Package queue carries stage transitions between pipeline workers. Jobs are
// delivered at least once and a job id is accepted only once per queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Queue names used by the pipeline
const (
	CreateQueue      = "intent-create"
	ValidateQueue    = "intent-validate"
	FeasibilityQueue = "intent-feasible"
	FulfillQueue     = "intent-fulfill"
	WithdrawalQueue  = "intent-withdrawal"
)

// MaxBackoff caps the delay between attempts of one job
const MaxBackoff = 2 * time.Minute

// ErrClosed is returned when adding to a closed queue
var ErrClosed = errors.New("queue closed")

// Job is one unit of work on a named queue
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Data        json.RawMessage `json:"data"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Data, v)
}

// Options controls the retry policy of a job
type Options struct {
	// Attempts is the total number of deliveries including the first
	Attempts int
	// Backoff is the delay before the first retry, doubled for each later one
	Backoff time.Duration
}

// DefaultOptions mirrors the retry policy of the fulfillment workers
var DefaultOptions = Options{Attempts: 3, Backoff: 10 * time.Second}

// Handler processes a job. A returned error triggers a retry unless the
// attempts are exhausted or the error is Permanent.
type Handler func(ctx context.Context, job *Job) error

// Queue is implemented by the in-memory and redis queues
type Queue interface {
	// Add enqueues data under jobID and reports false when the id was already seen
	Add(ctx context.Context, queue, jobID string, data interface{}, opts Options) (bool, error)
	// Process runs workers handlers on queue until ctx is cancelled
	Process(ctx context.Context, queue string, workers int, handler Handler) error
	Ping(ctx context.Context) error
	Close() error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the queue does not retry the job
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type deferredError struct {
	err   error
	delay time.Duration
}

func (e *deferredError) Error() string { return e.err.Error() }
func (e *deferredError) Unwrap() error { return e.err }

// Defer wraps err so the queue delivers the job again after delay without
// counting the attempt
func Defer(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &deferredError{err: err, delay: delay}
}

// DeferDelay returns the delay of an error wrapped with Defer
func DeferDelay(err error) (time.Duration, bool) {
	var d *deferredError
	if !errors.As(err, &d) {
		return 0, false
	}
	return d.delay, true
}

// Backoff returns base * 2^(attempt-1), capped at MaxBackoff
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if backoff > MaxBackoff || backoff <= 0 {
		backoff = MaxBackoff
	}
	return backoff
}

func newJob(queue, jobID string, data interface{}, opts Options) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	return &Job{
		ID:          jobID,
		Queue:       queue,
		Data:        payload,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		EnqueuedAt:  time.Now(),
	}, nil
}

// minDefer is the shortest delay of a deferred job
const minDefer = time.Second

// nextDelivery records the failed attempt and returns the delay before the
// job is delivered again, false when the job is done with
func nextDelivery(job *Job, err error) (time.Duration, bool) {
	if delay, ok := DeferDelay(err); ok {
		if delay < minDefer {
			delay = minDefer
		}
		return delay, true
	}
	job.Attempt++
	if IsPermanent(err) || job.Attempt >= job.MaxAttempts {
		return 0, false
	}
	return Backoff(job.Attempt, job.Backoff), true
}
