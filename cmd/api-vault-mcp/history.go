package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jkaninda/api-vault-mcp/internal/accesslog"
)

var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recorded credential accesses",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sc, err := initShared(cfg, newLogger(cfg.LogLevel), false)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		entries, err := sc.AccessLog.History(context.Background(), name)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		printHistory(cmd.OutOrStdout(), name, lastN(entries, limit))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 10, "Maximum number of records to show (0 = all)")
}

// lastN returns the most recent n entries, keeping log order.
func lastN(entries []accesslog.Entry, n int) []accesslog.Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

func printHistory(w io.Writer, name string, entries []accesslog.Entry) {
	if len(entries) == 0 {
		if name == "" {
			fmt.Fprintln(w, "No credential accesses recorded")
		} else {
			fmt.Fprintf(w, "No accesses recorded for %q\n", name)
		}
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-20s  %s\n",
			e.AccessedAt.Local().Format("2006-01-02 15:04:05"),
			e.Credential,
			e.Context,
		)
	}
}
