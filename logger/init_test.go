package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		expectedLevel LogLevel
	}{
		{
			name:          "trace level",
			envValue:      "trace",
			expectedLevel: LevelTrace,
		},
		{
			name:          "debug level",
			envValue:      "debug",
			expectedLevel: LevelDebug,
		},
		{
			name:          "warning alias",
			envValue:      "warning",
			expectedLevel: LevelWarn,
		},
		{
			name:          "error level",
			envValue:      "error",
			expectedLevel: LevelError,
		},
		{
			name:          "off",
			envValue:      "off",
			expectedLevel: LevelNone,
		},
		{
			name:          "mixed case debug",
			envValue:      "DeBuG",
			expectedLevel: LevelDebug,
		},
		{
			name:          "empty string",
			envValue:      "",
			expectedLevel: LevelInfo,
		},
		{
			name:          "invalid value",
			envValue:      "invalid",
			expectedLevel: LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MEMO_LOG_LEVEL", tt.envValue)
			assert.Equal(t, tt.expectedLevel, GetLevelFromEnv())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel(" INFO ")
	assert.True(t, ok)
	assert.Equal(t, LevelInfo, level)

	_, ok = ParseLevel("loud")
	assert.False(t, ok)
}

func TestLogLevelConstants(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelTrace)
	assert.Equal(t, LogLevel(1), LevelDebug)
	assert.Equal(t, LogLevel(2), LevelInfo)
	assert.Equal(t, LogLevel(3), LevelWarn)
	assert.Equal(t, LogLevel(4), LevelError)
	assert.Equal(t, LogLevel(5), LevelNone)
}

func TestEnabled(t *testing.T) {
	assert.True(t, enabled(LevelDebug, LevelDebug, LevelNone))
	assert.False(t, enabled(LevelTrace, LevelDebug, LevelNone))
	assert.True(t, enabled(LevelTrace, LevelNone, LevelTrace))
	assert.False(t, enabled(LevelNone, LevelTrace, LevelTrace))
}
