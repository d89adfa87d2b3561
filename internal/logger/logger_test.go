package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_Success(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		level  zerolog.Level
	}{
		{name: "json stdout debug", config: Config{Level: "debug", Format: "json", OutputPath: "stdout"}, level: zerolog.DebugLevel},
		{name: "console stderr info", config: Config{Level: "info", Format: "console", OutputPath: "stderr"}, level: zerolog.InfoLevel},
		{name: "defaults", config: Config{}, level: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config, "test")
			require.NoError(t, err)
			require.Equal(t, tt.level, l.GetLevel())
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"}, "test")
	require.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "consumer.log")

	l, err := New(Config{Level: "info", Format: "json", OutputPath: logFile}, "consumer")
	require.NoError(t, err)

	l.Info().Str("queue", "orders").Msg("started")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), `"queue":"orders"`))
	require.True(t, strings.Contains(string(data), `"service":"consumer"`))
}

func TestNew_InvalidFilePath(t *testing.T) {
	_, err := New(Config{OutputPath: "/invalid/path/that/does/not/exist/test.log"}, "test")
	require.Error(t, err)
}
