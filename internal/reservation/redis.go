package reservation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/config"
)

// RedisStore keeps reservations as plain keys written with SET NX EX.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisClient builds a client from the reservation settings.
func NewRedisClient(cfg config.ReservationConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value int, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) Name() string { return "redis" }
