// Package kv is the storage contract consumed by the registry, the ledger and the transaction log:
// whole JSON values under string keys, read fully, modified in memory and rewritten fully.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"peachcash/pkg/xlog"
)

var (
	// ErrNotFound is returned by backends for a missing key, Store.Get turns it into found=false
	ErrNotFound = errors.New("kv: key not found")
	ErrCorrupt  = errors.New("kv: corrupt value")
)

var logger = xlog.GetLogger()

// KV is what consumers depend on
type KV interface {
	Get(ctx context.Context, key string, v any) (found bool, err error)
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// Backend stores raw bytes
type Backend interface {
	Name() string
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, val []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Store serializes values as json on top of a Backend, optionally sealing them
type Store struct {
	backend Backend
	sealer  *Sealer
	prefix  string
}

type Option func(*Store)

// WithSealer encrypts every value before it reaches the backend
func WithSealer(s *Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithPrefix namespaces every key, e.g. one prefix per simulated user
func WithPrefix(prefix string) Option {
	return func(st *Store) { st.prefix = prefix }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ KV = (*Store)(nil)

func (s *Store) Backend() Backend {
	return s.backend
}

// Get decodes the value under key into v, a missing key leaves v untouched and reports found=false
func (s *Store) Get(ctx context.Context, key string, v any) (found bool, err error) {
	raw, err := s.backend.Read(ctx, s.prefix+key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv %s read %s: %w", s.backend.Name(), key, err)
	}

	if s.sealer != nil {
		raw, err = s.sealer.Open(raw)
		if err != nil {
			return false, fmt.Errorf("kv %s open %s: %w", s.backend.Name(), key, err)
		}
	}

	err = json.Unmarshal(raw, v)
	if err != nil {
		logger.Errorf("kv %s key:%s holds undecodable data, err:%s", s.backend.Name(), key, err)
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func (s *Store) Set(ctx context.Context, key string, v any) (err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}

	if s.sealer != nil {
		raw, err = s.sealer.Seal(raw)
		if err != nil {
			return
		}
	}

	err = s.backend.Write(ctx, s.prefix+key, raw)
	if err != nil {
		return fmt.Errorf("kv %s write %s: %w", s.backend.Name(), key, err)
	}
	return
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	err = s.backend.Remove(ctx, s.prefix+key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("kv %s remove %s: %w", s.backend.Name(), key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
