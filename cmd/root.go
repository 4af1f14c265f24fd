package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailgate application
var rootCmd = &cobra.Command{
	Use:   "mailgate",
	Short: "MCP server for read-only Outlook mailbox access",
	Long: `mailgate mediates per-user access to Microsoft Graph mailboxes for AI
assistants. It resolves the caller's identity, loads their encrypted OAuth
connection from the shared credential store, refreshes the Microsoft access
token when it is about to expire, and exposes read-only email tools over the
Model Context Protocol (MCP).

It can run as:
  - An MCP server over streamable HTTP (deployed alongside an identity sidecar)
  - An MCP server over stdio (local development)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailgate version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mailgate version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mailgate version %s\n", version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
