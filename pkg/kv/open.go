package kv

import (
	"fmt"
	"path/filepath"

	"peachcash/pkg/config"
	"peachcash/pkg/model"
	"peachcash/pkg/xetcd"
)

// OpenBackend builds the backend selected by cfg.Storage.Backend
func OpenBackend(cfg *config.Config) (b Backend, err error) {
	defer func() {
		if err != nil {
			logger.Errorf("kv OpenBackend %s failed with err:%s", cfg.Storage.Backend, err)
		} else {
			logger.Infof("kv OpenBackend %s done", cfg.Storage.Backend)
		}
	}()

	switch cfg.Storage.Backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(filepath.Join(cfg.DataDir, "storage", "kv.log"))
	case "redis":
		return NewRedis(model.OpenRedis(cfg.Redis.Main), "peachcash:"), nil
	case "mysql":
		db, err := model.OpenMySQL(cfg.MySQL.Main, cfg.IsDebug)
		if err != nil {
			return nil, err
		}
		return NewMySQL(db), nil
	case "etcd":
		w, err := xetcd.New([]string{cfg.Etcd.Main.Url})
		if err != nil {
			return nil, err
		}
		return NewEtcd(w), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Storage.Backend)
	}
}

// OpenStore wraps the configured backend, sealing values when an encryption key is set
func OpenStore(cfg *config.Config) (*Store, error) {
	b, err := OpenBackend(cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithPrefix(cfg.Storage.KeyPrefix)}
	if cfg.EncryptionKey != "" {
		sealer, err := NewSealer(cfg.EncryptionKey)
		if err != nil {
			b.Close()
			return nil, err
		}
		opts = append(opts, WithSealer(sealer))
	}
	return New(b, opts...), nil
}
