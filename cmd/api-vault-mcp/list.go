package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jkaninda/api-vault-mcp/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials through the api-vault executable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sc, err := initShared(cfg, newLogger(cfg.LogLevel), true)
		if err != nil {
			return err
		}
		defer sc.Cleanup()

		creds, err := sc.Store.List(context.Background())
		if err != nil {
			return fmt.Errorf("list credentials: %w", err)
		}
		if len(creds) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No credentials stored.")
			return nil
		}
		return printCredentials(cmd.OutOrStdout(), creds)
	},
}

func printCredentials(out io.Writer, creds []store.CredentialSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCREATED")
	for _, c := range creds {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Kind, c.Created)
	}
	return w.Flush()
}
