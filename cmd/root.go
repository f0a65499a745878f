// Package cmd implements the mirage command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/internal/prompt"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/serverstore"
)

var (
	configPath            string
	verbose               bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "mirage",
	Short: "Manage MCP servers and invoke their actions",
	Long: `mirage keeps a JSON registry of MCP server launch commands, connects to
them on demand over stdio, and exposes their actions from the command line
or a small REST API.

Servers are stored in mcp_config.json in the working directory by default;
use --config to point elsewhere.`,
	Example: `  mirage                           # interactive menu
  mirage add github npx -y @modelcontextprotocol/server-github
  mirage list
  mirage actions github
  mirage execute github search_repositories --args '{"query":"mcp"}'
  mirage serve --addr :8700`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	// No subcommand drops into the interactive menu.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu(cmd, prompt.NewCollector())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mcp_config.json", "Path to the server configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("mirage %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("mirage %s\n", version)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore loads the configuration file named by --config.
func openStore() (*serverstore.Store, error) {
	return serverstore.Load(configPath)
}

// openInvoker wires the full stack: store, registry, invoker. Commands that
// only touch the file use openStore instead and never connect to anything.
func openInvoker() (*mcpconn.Invoker, *mcpconn.Registry, *serverstore.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger()
	registry := mcpconn.NewRegistry(store, mcpconn.RegistryOptions{
		ClientName:    "mirage",
		ClientVersion: version,
		Logger:        logger,
	})
	return mcpconn.NewInvoker(registry, store), registry, store, nil
}
