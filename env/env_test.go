package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentuity/go-memo/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagOrEnv(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("test-flag", "", "Test flag")

	cmd.Flags().Set("test-flag", "flag-value")
	assert.Equal(t, "flag-value", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))

	cmd.Flags().Set("test-flag", "")
	t.Setenv("TEST_ENV", "env-value")
	assert.Equal(t, "env-value", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))

	os.Unsetenv("TEST_ENV")
	assert.Equal(t, "default", FlagOrEnv(cmd, "test-flag", "TEST_ENV", "default"))
}

func TestLogLevel(t *testing.T) {
	testCases := []struct {
		name      string
		flagValue string
		envValue  string
		expected  logger.LogLevel
	}{
		{"debug level via flag", "debug", "", logger.LevelDebug},
		{"debug level via env", "", "DEBUG", logger.LevelDebug},
		{"warn level via flag", "warn", "", logger.LevelWarn},
		{"error level via env", "", "ERROR", logger.LevelError},
		{"trace level via flag", "trace", "", logger.LevelTrace},
		{"flag wins over env", "error", "debug", logger.LevelError},
		{"default level", "", "", logger.LevelInfo},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test"}
			cmd.Flags().String("log-level", "", "Log level")
			if tc.flagValue != "" {
				cmd.Flags().Set("log-level", tc.flagValue)
			}
			t.Setenv("MEMO_LOG_LEVEL", tc.envValue)
			if tc.envValue == "" {
				os.Unsetenv("MEMO_LOG_LEVEL")
			}
			assert.Equal(t, tc.expected, LogLevel(cmd))
		})
	}
}

func TestNewLogger(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "warn", "Log level")
	cmd.Flags().Bool("json", false, "JSON logs")

	log := NewLogger(cmd)
	assert.False(t, log.IsLevelEnabled(logger.LevelInfo))
	assert.True(t, log.IsLevelEnabled(logger.LevelWarn))

	cmd.Flags().Set("json", "true")
	log = NewLogger(cmd)
	assert.True(t, log.IsLevelEnabled(logger.LevelError))
}

func TestMemoConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "memo.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("id: sim\npurge_age_factor: 2\n"), 0o644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "Config file")
	cmd.Flags().Set("config", filename)
	t.Setenv("MEMO_PURGE_AGE_FACTOR", "3")

	cfg, err := MemoConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.ID)
	assert.Equal(t, 3.0, cfg.PurgeAgeFactor)
}

func TestMemoConfigMissingFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "Config file")
	cmd.Flags().Set("config", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := MemoConfig(cmd)
	assert.Error(t, err)
}
