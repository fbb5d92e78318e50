package env

import (
	"log"
	"os"

	"github.com/agentuity/go-memo/cache"
	"github.com/agentuity/go-memo/logger"
	"github.com/spf13/cobra"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel reads the log-level flag, then MEMO_LOG_LEVEL, falling back to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", "MEMO_LOG_LEVEL", "info"))
	return level
}

// NewLogger returns a JSON logger writing to stderr when the json flag is set
// and a console logger otherwise, both at LogLevel(cmd).
func NewLogger(cmd *cobra.Command) logger.Logger {
	level := LogLevel(cmd)
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil && asJSON {
		return logger.NewJSONLoggerWithSink(os.Stderr, level)
	}
	log.SetFlags(0)
	return logger.NewConsoleLogger(level)
}

// MemoConfig loads the file named by the config flag or MEMO_CONFIG and then
// applies the MEMO_* environment overrides. Without a file only the
// environment is used.
func MemoConfig(cmd *cobra.Command) (cache.Config, error) {
	var cfg cache.Config
	if filename := FlagOrEnv(cmd, "config", "MEMO_CONFIG", ""); filename != "" {
		loaded, err := cache.LoadConfig(filename)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
