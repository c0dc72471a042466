package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/barberqueue/config"
	"github.com/Domenick1991/barberqueue/internal/domain"
	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client   redis.UniversalClient
	queueTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, queueTTL time.Duration) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		queueTTL,
	)
}

func NewRedisCacheWithClient(client redis.UniversalClient, queueTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, queueTTL: queueTTL}
}

// GetQueue returns nil without error on a cache miss.
func (c *RedisCache) GetQueue(ctx context.Context, barbershopID, day string) (*domain.QueueView, error) {
	data, err := c.client.Get(ctx, queueKey(barbershopID, day)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errs.Wrap(err, "get cached queue")
	}

	var view domain.QueueView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, errs.Wrap(err, "decode cached queue")
	}
	return &view, nil
}

func (c *RedisCache) SetQueue(ctx context.Context, view *domain.QueueView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return errs.Wrap(err, "encode queue")
	}
	return errs.Wrap(c.client.Set(ctx, queueKey(view.BarbershopID, view.Date), payload, c.queueTTL).Err(), "cache queue")
}

func (c *RedisCache) InvalidateQueue(ctx context.Context, barbershopID, day string) error {
	return errs.Wrap(c.client.Del(ctx, queueKey(barbershopID, day)).Err(), "invalidate cached queue")
}

// TryLock takes the evaluation lock of a barbershop. The returned token must
// be passed to Unlock.
func (c *RedisCache) TryLock(ctx context.Context, barbershopID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, lockKey(barbershopID), token, ttl).Result()
	if err != nil {
		return "", false, errs.Wrapf(err, "lock barbershop %s", barbershopID)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, barbershopID, token string) error {
	err := unlockScript.Run(ctx, c.client, []string{lockKey(barbershopID)}, token).Err()
	if err != nil && err != redis.Nil {
		return errs.Wrapf(err, "unlock barbershop %s", barbershopID)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return errs.Wrap(c.client.Ping(ctx).Err(), "ping redis")
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func queueKey(barbershopID, day string) string {
	return fmt.Sprintf("cache:queue:%s:%s", barbershopID, day)
}

func lockKey(barbershopID string) string {
	return fmt.Sprintf("lock:queue:%s", barbershopID)
}
