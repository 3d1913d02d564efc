package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/volundmush/moonsilver/internal/core/models"
)

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each persisted entity as a hash of kind → JSON export.
type Redis struct {
	client *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "moonsilver:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client, prefix: opts.KeyPrefix}, nil
}

func (r *Redis) Backend() models.Backend { return models.BackendRedis }

func (r *Redis) Write(ctx context.Context, recs []Record) error {
	pipe := r.client.Pipeline()
	for _, rec := range recs {
		data, err := json.Marshal(rec.Export)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", rec.Key, rec.Kind, err)
		}
		pipe.HSet(ctx, r.prefix+rec.Key, string(rec.Kind), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Read(ctx context.Context, key string, kind models.Kind) (models.Export, error) {
	data, err := r.client.HGet(ctx, r.prefix+key, string(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var exp models.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", key, kind, err)
	}
	return exp, nil
}

func (r *Redis) Close() error { return r.client.Close() }
