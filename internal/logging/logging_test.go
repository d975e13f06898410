package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{level: "debug", enabled: zapcore.DebugLevel},
		{level: "info", enabled: zapcore.InfoLevel},
		{level: "warn", enabled: zapcore.WarnLevel},
		{level: "error", enabled: zapcore.ErrorLevel},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(Config{Level: tt.level, Format: "json"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			if tt.enabled > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.enabled-1))
			}
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, err := New(Config{Level: "info", Format: "console"})
	require.NoError(t, err)
	logger.Info("console encoder works")
}
