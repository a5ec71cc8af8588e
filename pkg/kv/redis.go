package kv

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

type Redis struct {
	rc     *redis.Client
	prefix string
}

func NewRedis(rc *redis.Client, prefix string) *Redis {
	return &Redis{rc: rc, prefix: prefix}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Read(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rc.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Redis) Write(ctx context.Context, key string, val []byte) error {
	return r.rc.Set(ctx, r.prefix+key, val, 0).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.rc.Del(ctx, r.prefix+key).Err()
}

func (r *Redis) Close() error {
	return r.rc.Close()
}
