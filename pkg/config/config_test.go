package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"peachcash/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	require.Equal(t, "memory", c.Storage.Backend)
	require.Equal(t, "https://api.coingecko.com/api/v3", c.Oracle.BaseURL)
	require.Equal(t, 5*time.Second, c.OracleTimeout())
	require.Nil(t, c.Validate())
}

func TestLoad(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "config.yml")
	txt := `
data_dir: /tmp/peach
storage:
  backend: file
oracle:
  timeout_ms: 250
  cache_ttl: 30
`
	require.Nil(t, os.WriteFile(fpath, []byte(txt), 0644))

	c, err := config.Load(fpath)
	require.Nil(t, err)
	require.Equal(t, "/tmp/peach", c.DataDir)
	require.Equal(t, "file", c.Storage.Backend)
	require.Equal(t, 250*time.Millisecond, c.OracleTimeout())
	require.Equal(t, 30, c.Oracle.CacheTTL)
	require.Equal(t, "memory", c.Oracle.CacheIn)
	require.Equal(t, "PEACH.exchange", c.Nats.Subject)
}

func TestLoadUnknownBackend(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "config.yml")
	require.Nil(t, os.WriteFile(fpath, []byte("storage:\n  backend: floppy\n"), 0644))

	_, err := config.Load(fpath)
	require.ErrorIs(t, err, config.ErrUnknownBackend)
}
