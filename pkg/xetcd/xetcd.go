package xetcd

import (
	"context"
	"errors"
	"time"

	"peachcash/pkg/xlog"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var ErrNotFound = errors.New("xetcd: not found")

type Worker struct {
	Cli     *clientv3.Client
	Timeout time.Duration
}

var logger = xlog.GetLogger()

func New(urls []string) (w *Worker, err error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   urls,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return
	}

	w = &Worker{
		Cli:     cli,
		Timeout: 10 * time.Second,
	}

	return
}

func (w *Worker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || w.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.Timeout)
}

func (w *Worker) Get(ctx context.Context, k string) (v []byte, err error) {
	ctx, cancel := w.withTimeout(ctx)

	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.Errorf("xetcd Get k:%s failed with err:%s", k, err)
		} else {
			logger.Tracef("xetcd Get k:%s, len:%d", k, len(v))
		}
		cancel()
	}()

	r, err := w.Cli.Get(ctx, k)
	if err != nil {
		return
	}
	if len(r.Kvs) == 0 {
		err = ErrNotFound
		return
	}

	v = r.Kvs[0].Value
	return
}

func (w *Worker) Put(ctx context.Context, k string, v []byte) (err error) {
	ctx, cancel := w.withTimeout(ctx)

	defer func() {
		if err != nil {
			logger.Errorf("xetcd Put k:%s failed with err:%s", k, err)
		} else {
			logger.Tracef("xetcd Put k:%s, len:%d", k, len(v))
		}
		cancel()
	}()

	_, err = w.Cli.Put(ctx, k, string(v))
	return
}

func (w *Worker) Delete(ctx context.Context, k string) (err error) {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	_, err = w.Cli.Delete(ctx, k)
	if err != nil {
		logger.Errorf("xetcd Delete k:%s failed with err:%s", k, err)
	}
	return
}

func (w *Worker) Close() error {
	return w.Cli.Close()
}

// KeyStorage namespaces the kv collections stored in etcd
func KeyStorage(key string) string {
	return "/peachcash/storage/" + key
}
