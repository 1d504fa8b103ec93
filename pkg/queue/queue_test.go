package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Hash string `json:"hash"`
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 10*time.Second, Backoff(1, 10*time.Second))
	assert.Equal(t, 20*time.Second, Backoff(2, 10*time.Second))
	assert.Equal(t, 40*time.Second, Backoff(3, 10*time.Second))
	assert.Equal(t, MaxBackoff, Backoff(10, 10*time.Second))
	assert.Equal(t, 10*time.Second, Backoff(0, 10*time.Second))
}

func TestPermanent(t *testing.T) {
	base := errors.New("boom")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestDefer(t *testing.T) {
	base := errors.New("circuit open")
	err := Defer(base, time.Minute)
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(err))
	delay, ok := DeferDelay(err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, delay)

	_, ok = DeferDelay(base)
	assert.False(t, ok)
	assert.Nil(t, Defer(nil, time.Second))
}

func TestNextDelivery(t *testing.T) {
	job := &Job{MaxAttempts: 2, Backoff: time.Second}

	delay, retry := nextDelivery(job, Defer(errors.New("circuit open"), 0))
	assert.True(t, retry)
	assert.Equal(t, minDefer, delay)
	assert.Zero(t, job.Attempt)

	delay, retry = nextDelivery(job, errors.New("rpc timeout"))
	assert.True(t, retry)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, 1, job.Attempt)

	_, retry = nextDelivery(job, errors.New("rpc timeout"))
	assert.False(t, retry)

	// deferral still applies once the attempts are used up
	_, retry = nextDelivery(job, Defer(errors.New("circuit open"), time.Millisecond))
	assert.True(t, retry)
}

func TestMemoryQueueDeferDoesNotConsumeAttempts(t *testing.T) {
	q := NewMemoryQueue(&logger.EmptyLogger{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan *Job, 1)
	go func() {
		_ = q.Process(ctx, FulfillQueue, 1, func(ctx context.Context, job *Job) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return Defer(errors.New("circuit open"), time.Millisecond)
			}
			done <- job
			return nil
		})
	}()

	_, err := q.Add(ctx, FulfillQueue, "fulfill:0x3:0", payload{}, Options{Attempts: 1, Backoff: time.Millisecond})
	require.NoError(t, err)

	select {
	case job := <-done:
		assert.Zero(t, job.Attempt)
	case <-time.After(5 * time.Second):
		t.Fatal("deferred job was not delivered again")
	}
	assert.Empty(t, q.Failed(FulfillQueue))
}

func TestMemoryQueueDeduplicatesJobIDs(t *testing.T) {
	q := NewMemoryQueue(&logger.EmptyLogger{}, 16)
	ctx := context.Background()

	added, err := q.Add(ctx, ValidateQueue, "validate:0xabc:1", payload{Hash: "0xabc"}, DefaultOptions)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Add(ctx, ValidateQueue, "validate:0xabc:1", payload{Hash: "0xabc"}, DefaultOptions)
	require.NoError(t, err)
	assert.False(t, added)

	// the same id on another queue is independent
	added, err = q.Add(ctx, FulfillQueue, "validate:0xabc:1", payload{Hash: "0xabc"}, DefaultOptions)
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, []string{"validate:0xabc:1"}, q.JobIDs(ValidateQueue))
	assert.Equal(t, 1, q.Waiting(ValidateQueue))

	job, ok := q.Take(ValidateQueue)
	require.True(t, ok)
	var p payload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "0xabc", p.Hash)
}

func TestMemoryQueueProcessRetries(t *testing.T) {
	q := NewMemoryQueue(&logger.EmptyLogger{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan struct{})
	go func() {
		_ = q.Process(ctx, FulfillQueue, 2, func(ctx context.Context, job *Job) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("rpc timeout")
			}
			close(done)
			return nil
		})
	}()

	_, err := q.Add(ctx, FulfillQueue, "feasible:0x1:0", payload{}, Options{Attempts: 3, Backoff: 5 * time.Millisecond})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to success")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Empty(t, q.Failed(FulfillQueue))
}

func TestMemoryQueueStopsOnPermanentError(t *testing.T) {
	q := NewMemoryQueue(&logger.EmptyLogger{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		_ = q.Process(ctx, FulfillQueue, 1, func(ctx context.Context, job *Job) error {
			defer wg.Done()
			atomic.AddInt32(&calls, 1)
			return Permanent(errors.New("missing solver"))
		})
	}()

	_, err := q.Add(ctx, FulfillQueue, "feasible:0x2:0", payload{}, Options{Attempts: 5, Backoff: time.Millisecond})
	require.NoError(t, err)
	wg.Wait()

	require.Eventually(t, func() bool { return len(q.Failed(FulfillQueue)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, q.Failed(FulfillQueue)[0].Attempt)
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(&logger.EmptyLogger{}, 1)
	require.NoError(t, q.Close())
	_, err := q.Add(context.Background(), CreateQueue, "x", payload{}, DefaultOptions)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestRedisQueue runs against a live redis when PORTAL_SOLVER_TEST_REDIS is set
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("PORTAL_SOLVER_TEST_REDIS")
	if addr == "" {
		t.Skip("PORTAL_SOLVER_TEST_REDIS not set")
	}
	q, err := NewRedisQueue(RedisConfig{
		Address:   addr,
		Prefix:    "portal-solver-test-" + time.Now().Format("150405.000"),
		BlockWait: 100 * time.Millisecond,
		Retention: time.Minute,
	}, &logger.EmptyLogger{})
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	added, err := q.Add(ctx, ValidateQueue, "validate:0xabc:0", payload{Hash: "0xabc"}, Options{Attempts: 2, Backoff: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = q.Add(ctx, ValidateQueue, "validate:0xabc:0", payload{Hash: "0xabc"}, DefaultOptions)
	require.NoError(t, err)
	assert.False(t, added)

	var calls int32
	done := make(chan string, 1)
	procCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = q.Process(procCtx, ValidateQueue, 1, func(ctx context.Context, job *Job) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				return errors.New("funding not visible")
			}
			var p payload
			if err := job.Decode(&p); err != nil {
				return err
			}
			done <- p.Hash
			return nil
		})
	}()

	select {
	case hash := <-done:
		assert.Equal(t, "0xabc", hash)
	case <-ctx.Done():
		t.Fatal("job not delivered")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
