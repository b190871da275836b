package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-access/pkg/domain"
)

// RedisQueue is a durable list of password change notices. Producers
// LPUSH, a relay BRPOPs and delivers. Notices that fail delivery move to
// the dead-letter list.
type RedisQueue struct {
	client  *redis.Client
	key     string
	deadKey string
	poll    time.Duration
	logger  *slog.Logger
}

// NewRedisQueue creates a queue on key. poll bounds each blocking pop.
func NewRedisQueue(client *redis.Client, key string, poll time.Duration, logger *slog.Logger) *RedisQueue {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:  client,
		key:     key,
		deadKey: key + ":dead",
		poll:    poll,
		logger:  logger,
	}
}

// SendPasswordChanged enqueues notice.
func (q *RedisQueue) SendPasswordChanged(ctx context.Context, notice domain.PasswordChangedNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue notice: %w", err)
	}
	return nil
}

// Pop waits up to the poll interval for the oldest notice. It returns
// nil, nil when the queue stayed empty.
func (q *RedisQueue) Pop(ctx context.Context) (*domain.PasswordChangedNotice, error) {
	res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue notice: %w", err)
	}

	// res is [key, value].
	raw := res[1]
	var notice domain.PasswordChangedNotice
	if err := json.Unmarshal([]byte(raw), &notice); err != nil {
		q.bury(ctx, raw)
		return nil, fmt.Errorf("decode notice: %w", err)
	}
	return &notice, nil
}

// Run delivers notices with sender until ctx is done.
func (q *RedisQueue) Run(ctx context.Context, sender PasswordChangedSender) error {
	q.logBacklog(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}

		notice, err := q.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Warn("notification relay pop failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if notice == nil {
			continue
		}

		if err := sender.SendPasswordChanged(ctx, *notice); err != nil {
			q.logger.Warn("notification delivery failed", "email", notice.Email, "error", err)
			if payload, err := json.Marshal(notice); err == nil {
				q.bury(ctx, string(payload))
			}
		}
	}
}

// Len returns the number of pending notices.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// DeadLen returns the number of notices that could not be delivered.
func (q *RedisQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey).Result()
}

func (q *RedisQueue) logBacklog(ctx context.Context) {
	pending, err := q.Len(ctx)
	if err != nil {
		q.logger.Warn("notification relay backlog check failed", "error", err)
		return
	}
	dead, err := q.DeadLen(ctx)
	if err != nil {
		q.logger.Warn("notification relay backlog check failed", "error", err)
		return
	}
	q.logger.Info("notification relay started", "key", q.key, "pending", pending, "dead", dead)
}

func (q *RedisQueue) bury(ctx context.Context, payload string) {
	if err := q.client.LPush(context.WithoutCancel(ctx), q.deadKey, payload).Err(); err != nil {
		q.logger.Error("notification dead-letter push failed", "error", err)
	}
}
