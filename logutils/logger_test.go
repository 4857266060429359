package logutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLvlFromString(t *testing.T) {
	testCases := []struct {
		in       string
		expected zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"trace", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"eror", zapcore.ErrorLevel},
	}
	for _, tc := range testCases {
		lvl, err := lvlFromString(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.expected, lvl, tc.in)
	}

	_, err := lvlFromString("loud")
	require.Error(t, err)
}

func TestInitLoggerWritesToRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "escrow.log")
	require.NoError(t, InitLogger(LogSettings{
		Enabled:    true,
		Level:      "debug",
		File:       file,
		MaxSize:    1,
		MaxBackups: 1,
	}))
	defer func() {
		require.NoError(t, InitLogger(LogSettings{Enabled: false}))
	}()

	ZapLogger().Named("test").Info("agreement loaded", zap.String("address", "0x01"))
	_ = ZapLogger().Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"agreement loaded"`)
	require.Contains(t, string(data), `"address":"0x01"`)
}

func TestInitLoggerDisabled(t *testing.T) {
	require.NoError(t, InitLogger(LogSettings{Enabled: false}))
	require.NotNil(t, ZapLogger())
	ZapLogger().Info("dropped")
}
