package kvstore

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/nexusintelligences-a11y/plataformacompleta-1-sub005/platform/config"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on top of a redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a redis-backed store from configuration.
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		} else {
			opt.TLSConfig.InsecureSkipVerify = true
		}
	}

	return &Redis{client: redis.NewClient(opt)}, nil
}

// NewRedisWithClient wraps an existing client. Used by tests.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return classify(r.client.Ping(ctx).Err())
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return classify(r.client.Set(ctx, key, value, ttl).Err())
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return classify(r.client.Del(ctx, key).Err())
}

func (r *Redis) PushIndex(ctx context.Context, index, id string) error {
	return classify(r.client.RPush(ctx, index, id).Err())
}

func (r *Redis) MoveIndex(ctx context.Context, from, to string) (string, error) {
	id, err := r.client.LMove(ctx, from, to, "LEFT", "RIGHT").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func (r *Redis) RemoveFromIndex(ctx context.Context, index, id string) error {
	return classify(r.client.LRem(ctx, index, 0, id).Err())
}

func (r *Redis) IndexLen(ctx context.Context, index string) (int64, error) {
	n, err := r.client.LLen(ctx, index).Result()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (r *Redis) ListIndex(ctx context.Context, index string) ([]string, error) {
	ids, err := r.client.LRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}
	return ids, nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, classify(err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// classify maps provider error messages onto the typed store errors the
// queue's circuit breaker keys off. Hosted redis providers signal usage
// limits in the error text of an otherwise ordinary command failure.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "max daily request limit"),
		strings.Contains(msg, "hard limit"):
		return errors.Join(ErrHardLimit, err)
	case strings.Contains(msg, "max requests limit"),
		strings.Contains(msg, "quota exceeded"):
		return errors.Join(ErrQuotaExceeded, err)
	default:
		return err
	}
}
