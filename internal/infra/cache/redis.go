package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fb-promo-bot/internal/domain"
	"fb-promo-bot/internal/infra/metrics"
)

// Connect создаёт клиента Redis и проверяет соединение.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// RedisPause хранит операторскую паузу в ключе Redis.
type RedisPause struct {
	client *redis.Client
	key    string
}

var _ domain.PauseFlag = (*RedisPause)(nil)

// NewRedisPause создаёт флаг паузы.
func NewRedisPause(client *redis.Client, key string) *RedisPause {
	return &RedisPause{client: client, key: key}
}

// IsPaused реализует domain.PauseFlag.
func (p *RedisPause) IsPaused(ctx context.Context) (bool, error) {
	start := time.Now()
	n, err := p.client.Exists(ctx, p.key).Result()
	metrics.ObserveNetworkRequest("redis", "exists", p.key, start, err)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPaused реализует domain.PauseFlag.
func (p *RedisPause) SetPaused(ctx context.Context, paused bool) error {
	start := time.Now()
	var err error
	if paused {
		err = p.client.Set(ctx, p.key, time.Now().UTC().Format(time.RFC3339), 0).Err()
	} else {
		err = p.client.Del(ctx, p.key).Err()
	}
	metrics.ObserveNetworkRequest("redis", "set_pause", p.key, start, err)
	return err
}

// unlockScript снимает блокировку, только если она принадлежит нам.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock блокирует прогон между процессами через SET NX с TTL.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

var _ domain.RunLock = (*RedisLock)(nil)

// NewRedisLock создаёт блокировку. TTL страхует от зависшего процесса.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// TryLock реализует domain.RunLock.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	start := time.Now()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", l.key, start, err)
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Unlock реализует domain.RunLock.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return errors.New("redis lock: not held")
	}
	start := time.Now()
	err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	metrics.ObserveNetworkRequest("redis", "unlock", l.key, start, err)
	l.token = ""
	return err
}
