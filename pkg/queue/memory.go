package queue

import (
	"context"
	"sync"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

// MemoryQueue is a channel backed queue for tests and single process runs
type MemoryQueue struct {
	mu      sync.Mutex
	logger  logger.Logger
	size    int
	chans   map[string]chan *Job
	seen    map[string]map[string]struct{}
	added   map[string][]string
	failed  map[string][]*Job
	pending sync.WaitGroup
	closed  bool
}

// NewMemoryQueue creates a memory queue holding up to size waiting jobs per queue
func NewMemoryQueue(log logger.Logger, size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		logger: log,
		size:   size,
		chans:  make(map[string]chan *Job),
		seen:   make(map[string]map[string]struct{}),
		added:  make(map[string][]string),
		failed: make(map[string][]*Job),
	}
}

func (q *MemoryQueue) channel(name string) chan *Job {
	ch, ok := q.chans[name]
	if !ok {
		ch = make(chan *Job, q.size)
		q.chans[name] = ch
	}
	return ch
}

func (q *MemoryQueue) Add(ctx context.Context, name, jobID string, data interface{}, opts Options) (bool, error) {
	job, err := newJob(name, jobID, data, opts)
	if err != nil {
		return false, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrClosed
	}
	ids, ok := q.seen[name]
	if !ok {
		ids = make(map[string]struct{})
		q.seen[name] = ids
	}
	if _, dup := ids[jobID]; dup {
		q.mu.Unlock()
		return false, nil
	}
	ids[jobID] = struct{}{}
	q.added[name] = append(q.added[name], jobID)
	ch := q.channel(name)
	q.mu.Unlock()

	select {
	case ch <- job:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (q *MemoryQueue) Process(ctx context.Context, name string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	q.mu.Lock()
	ch := q.channel(name)
	q.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-ch:
					q.run(ctx, ch, job, handler)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) run(ctx context.Context, ch chan *Job, job *Job, handler Handler) {
	err := handler(ctx, job)
	if err == nil {
		return
	}
	delay, retry := nextDelivery(job, err)
	if !retry {
		q.logger.Error("Job %s on %s failed after %d attempts: %v", job.ID, job.Queue, job.Attempt, err)
		q.mu.Lock()
		q.failed[job.Queue] = append(q.failed[job.Queue], job)
		q.mu.Unlock()
		return
	}

	q.logger.Debug("Retrying job %s on %s in %v (attempt %d/%d): %v", job.ID, job.Queue, delay, job.Attempt+1, job.MaxAttempts, err)
	q.pending.Add(1)
	time.AfterFunc(delay, func() {
		defer q.pending.Done()
		select {
		case ch <- job:
		case <-ctx.Done():
		}
	})
}

// JobIDs returns every job id accepted on a queue, in order
func (q *MemoryQueue) JobIDs(name string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.added[name]...)
}

// Failed returns the jobs that exhausted their attempts on a queue
func (q *MemoryQueue) Failed(name string) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Job(nil), q.failed[name]...)
}

// Waiting returns the number of jobs ready for delivery on a queue
func (q *MemoryQueue) Waiting(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.channel(name))
}

// Take removes the next waiting job without running it
func (q *MemoryQueue) Take(name string) (*Job, bool) {
	q.mu.Lock()
	ch := q.channel(name)
	q.mu.Unlock()
	select {
	case job := <-ch:
		return job, true
	default:
		return nil, false
	}
}

func (q *MemoryQueue) Ping(context.Context) error {
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.pending.Wait()
	return nil
}
