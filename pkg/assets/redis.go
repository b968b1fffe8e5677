package assets

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// RedisRemover deletes asset blobs cached in Redis. The keys of a record's assets are
// tracked in the set "<prefix><entity>/<id>"; the set and every member are deleted.
type RedisRemover struct {
	rdb    *redis.Client
	prefix string
	logger ectologger.Logger
}

func NewRedisRemover(cfg RedisConfig, logger ectologger.Logger) *RedisRemover {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fern:assets:"
	}

	return &RedisRemover{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
	}
}

func (r *RedisRemover) Backend() string { return "redis" }

func (r *RedisRemover) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRemover) Close() error {
	return r.rdb.Close()
}

func (r *RedisRemover) Remove(ctx context.Context, entity string, id any) error {
	index := r.prefix + Key(entity, id)

	keys, err := r.rdb.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("failed to read asset index %q: %w", index, err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, index)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete assets of %q: %w", index, err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"index":   index,
		"removed": len(keys),
	}).Debug("Removed record assets")

	return nil
}
