// api-vault-mcp serves api-vault credentials to MCP clients.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "api-vault-mcp",
	Short: "MCP server for credentials stored in api-vault.",
	Long: `api-vault-mcp exposes credentials stored in an api-vault store to MCP clients.
Every successful retrieval is recorded in an append-only access log.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.api-vault/mcp.yaml)")
	rootCmd.AddCommand(serveCmd, historyCmd, listCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
