package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

const defaultHistory = 100

// RedisReporter складывает итоги прогонов в список Redis, храня последние N.
type RedisReporter struct {
	client  *redis.Client
	key     string
	history int64
}

var _ domain.RunReporter = (*RedisReporter)(nil)

// NewRedisReporter создаёт репортёр по указанному ключу.
func NewRedisReporter(client *redis.Client, key string, history int) *RedisReporter {
	if history <= 0 {
		history = defaultHistory
	}
	return &RedisReporter{client: client, key: key, history: int64(history)}
}

// Report реализует domain.RunReporter.
func (q *RedisReporter) Report(ctx context.Context, summary domain.RunSummary) error {
	payload, err := encodeSummary(summary)
	if err != nil {
		return err
	}
	start := time.Now()
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, payload)
	pipe.LTrim(ctx, q.key, 0, q.history-1)
	_, err = pipe.Exec(ctx)
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push summary: %w", err)
	}
	return nil
}
