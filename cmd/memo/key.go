package main

import (
	"fmt"
	"strconv"

	"github.com/agentuity/go-memo/cache"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key [args...]",
	Short: "Print the key fingerprint for an argument list",
	Long: `Print the key fingerprint for an argument list.

"true" and "false" are bools and numeric arguments are numbers,
so "memo key 1" and "memo key 1.0" print the same fingerprint while
"memo key a,b" and "memo key a b" do not.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cache.EncodeKey(parseArgs(args)...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key.String())
		return nil
	},
}

func parseArgs(args []string) []any {
	values := make([]any, 0, len(args))
	for _, arg := range args {
		switch arg {
		case "true":
			values = append(values, true)
			continue
		case "false":
			values = append(values, false)
			continue
		}
		if i, err := strconv.ParseInt(arg, 10, 64); err == nil {
			values = append(values, i)
		} else if f, err := strconv.ParseFloat(arg, 64); err == nil {
			values = append(values, f)
		} else {
			values = append(values, arg)
		}
	}
	return values
}
