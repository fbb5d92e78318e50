package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "memo",
	Short:         "Exercise a memoizing cache from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error or none (env MEMO_LOG_LEVEL)")
	rootCmd.PersistentFlags().Bool("json", false, "write JSON logs to stderr")
	rootCmd.PersistentFlags().String("config", "", "YAML memo config file (env MEMO_CONFIG)")
	rootCmd.AddCommand(simulateCmd, keyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
