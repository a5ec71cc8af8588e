package kv

import (
	"context"
	"errors"

	"peachcash/pkg/xetcd"
)

type Etcd struct {
	w *xetcd.Worker
}

func NewEtcd(w *xetcd.Worker) *Etcd {
	return &Etcd{w: w}
}

func (e *Etcd) Name() string { return "etcd" }

func (e *Etcd) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := e.w.Get(ctx, xetcd.KeyStorage(key))
	if errors.Is(err, xetcd.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (e *Etcd) Write(ctx context.Context, key string, val []byte) error {
	return e.w.Put(ctx, xetcd.KeyStorage(key), val)
}

func (e *Etcd) Remove(ctx context.Context, key string) error {
	return e.w.Delete(ctx, xetcd.KeyStorage(key))
}

func (e *Etcd) Close() error {
	return e.w.Close()
}
