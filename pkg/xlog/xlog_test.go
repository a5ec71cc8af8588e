package xlog_test

import (
	"os"
	"path/filepath"
	"testing"

	"peachcash/pkg/xlog"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, xlog.TRACE, xlog.ParseLevel("trc"))
	require.Equal(t, xlog.DEBUG, xlog.ParseLevel("D"))
	require.Equal(t, xlog.WARNING, xlog.ParseLevel("warn"))
	require.Equal(t, xlog.ERROR, xlog.ParseLevel("ERROR"))
	require.Equal(t, xlog.INFO, xlog.ParseLevel("nonsense"))
}

func TestLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "xlog-test.log")
	xlog.Init("test", logPath)
	logger := xlog.GetLogger()
	require.NotNil(t, logger)

	logger.SetLevel("TRACE")
	require.Equal(t, xlog.TRACE, logger.GetLevel())

	logger.Trace("this is trace")
	logger.Debug("this is debug")
	logger.Info("this is info")
	logger.Warning("this is warning")
	logger.Errorf("this is error %d", 1)
	require.Nil(t, xlog.Zap.Sync())

	b, err := os.ReadFile(logPath)
	require.Nil(t, err)
	require.Contains(t, string(b), "this is warning")
	require.Contains(t, string(b), "xlog/xlog_test.go")

	logger.SetLevel("INFO")
}
