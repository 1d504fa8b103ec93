package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

// RedisConfig holds the redis connection and retention settings
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Prefix    string
	BlockWait time.Duration
	// Retention is how long a job id keeps blocking duplicates
	Retention time.Duration
}

const (
	heartbeatTTL      = 30 * time.Second
	heartbeatInterval = 10 * time.Second
	promoteInterval   = 500 * time.Millisecond
	failedListLimit   = 1000
)

// RedisQueue stores jobs in redis lists. A worker moves a job from the wait
// list to its consumer's active list while handling it, so jobs held by a
// consumer that stopped heart-beating are put back on start up.
type RedisQueue struct {
	client    *redis.Client
	logger    logger.Logger
	prefix    string
	wait      time.Duration
	retention time.Duration
}

// NewRedisQueue connects to redis and verifies the connection
func NewRedisQueue(cfg RedisConfig, log logger.Logger) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisQueue(client, cfg, log), nil
}

func newRedisQueue(client *redis.Client, cfg RedisConfig, log logger.Logger) *RedisQueue {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "portal-solver"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisQueue{client: client, logger: log, prefix: prefix, wait: wait, retention: retention}
}

func (q *RedisQueue) key(queue string, parts ...string) string {
	return strings.Join(append([]string{q.prefix, queue}, parts...), ":")
}

func (q *RedisQueue) Add(ctx context.Context, name, jobID string, data interface{}, opts Options) (bool, error) {
	job, err := newJob(name, jobID, data, opts)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}

	idKey := q.key(name, "id", jobID)
	ok, err := q.client.SetNX(ctx, idKey, job.EnqueuedAt.Unix(), q.retention).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve job id %s: %w", jobID, err)
	}
	if !ok {
		return false, nil
	}
	if err := q.client.LPush(ctx, q.key(name, "wait"), raw).Err(); err != nil {
		q.client.Del(ctx, idKey)
		return false, fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return true, nil
}

func (q *RedisQueue) Process(ctx context.Context, name string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	consumer := uuid.NewString()
	active := q.key(name, "active", consumer)

	if err := q.heartbeat(ctx, name, consumer); err != nil {
		return err
	}
	if err := q.recoverOrphans(ctx, name); err != nil {
		q.logger.Error("Failed to recover orphaned jobs on %s: %v", name, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.heartbeatLoop(ctx, name, consumer)
	}()
	go func() {
		defer wg.Done()
		q.promoteLoop(ctx, name)
	}()

	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				raw, err := q.client.BLMove(ctx, q.key(name, "wait"), active, "RIGHT", "LEFT", q.wait).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
						return
					}
					errCh <- fmt.Errorf("failed to take job from %s: %w", name, err)
					return
				}
				q.run(ctx, name, active, raw, handler)
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}
	wg.Wait()
	return err
}

func (q *RedisQueue) run(ctx context.Context, name, active, raw string, handler Handler) {
	// a job that is acknowledged after shutdown stays in the active list and is recovered later
	ack := func() {
		q.client.LRem(context.Background(), active, 1, raw)
	}

	job := new(Job)
	if err := json.Unmarshal([]byte(raw), job); err != nil {
		q.logger.Error("Dropping malformed job on %s: %v", name, err)
		ack()
		return
	}

	herr := handler(ctx, job)
	if herr == nil {
		ack()
		return
	}
	if ctx.Err() != nil {
		return
	}

	delay, retry := nextDelivery(job, herr)
	if !retry {
		q.logger.Error("Job %s on %s failed after %d attempts: %v", job.ID, name, job.Attempt, herr)
		failed, _ := json.Marshal(job)
		pipe := q.client.TxPipeline()
		pipe.LPush(ctx, q.key(name, "failed"), failed)
		pipe.LTrim(ctx, q.key(name, "failed"), 0, failedListLimit-1)
		pipe.LRem(ctx, active, 1, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Error("Failed to record failed job %s: %v", job.ID, err)
		}
		return
	}

	next, _ := json.Marshal(job)
	q.logger.Debug("Retrying job %s on %s in %v (attempt %d/%d): %v", job.ID, name, delay, job.Attempt+1, job.MaxAttempts, herr)
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.key(name, "delayed"), redis.Z{Score: float64(time.Now().Add(delay).UnixMilli()), Member: next})
	pipe.LRem(ctx, active, 1, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		q.logger.Error("Failed to schedule retry of job %s: %v", job.ID, err)
	}
}

func (q *RedisQueue) heartbeat(ctx context.Context, name, consumer string) error {
	return q.client.Set(ctx, q.key(name, "consumer", consumer), time.Now().Unix(), heartbeatTTL).Err()
}

func (q *RedisQueue) heartbeatLoop(ctx context.Context, name, consumer string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.heartbeat(ctx, name, consumer); err != nil && ctx.Err() == nil {
				q.logger.Error("Heartbeat for %s failed: %v", name, err)
			}
		}
	}
}

// promoteLoop moves delayed jobs whose retry time has passed back to the wait list
func (q *RedisQueue) promoteLoop(ctx context.Context, name string) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.promote(ctx, name); err != nil && ctx.Err() == nil {
				q.logger.Error("Failed to promote delayed jobs on %s: %v", name, err)
			}
		}
	}
}

func (q *RedisQueue) promote(ctx context.Context, name string) error {
	delayed := q.key(name, "delayed")
	due, err := q.client.ZRangeByScore(ctx, delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, raw := range due {
		// only the process that removes the member requeues it
		removed, err := q.client.ZRem(ctx, delayed, raw).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := q.client.LPush(ctx, q.key(name, "wait"), raw).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *RedisQueue) recoverOrphans(ctx context.Context, name string) error {
	prefix := q.key(name, "active") + ":"
	iter := q.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		activeKey := iter.Val()
		consumer := strings.TrimPrefix(activeKey, prefix)
		alive, err := q.client.Exists(ctx, q.key(name, "consumer", consumer)).Result()
		if err != nil {
			return err
		}
		if alive > 0 {
			continue
		}
		moved := 0
		for {
			_, err := q.client.LMove(ctx, activeKey, q.key(name, "wait"), "RIGHT", "LEFT").Result()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return err
			}
			moved++
		}
		if moved > 0 {
			q.logger.Notice("Recovered %d jobs on %s from stopped consumer %s", moved, name, consumer)
		}
	}
	return iter.Err()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
