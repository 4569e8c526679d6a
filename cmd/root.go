package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments, server error).
	ExitCodeError = 1
)

// rootCmd is the base command for the server binary. It is the entry
// point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcprefd",
	Short: "A reference MCP streaming-HTTP server with built-in OAuth 2.1",
	Long: `mcprefd serves the Model Context Protocol over the streamable HTTP
transport, with JSON-RPC lifecycle/capability negotiation, session
management, Server-Sent Events, and an optional built-in OAuth 2.1
authorization server protecting the endpoint.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main at
// build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application, called from
// main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcprefd version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
}
