package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
)

var addEnvJSON string

var addCmd = &cobra.Command{
	Use:   "add <name> <command> [args...]",
	Short: "Add or replace a server configuration",
	Long: `Add registers a server under a name together with the command used to
launch it. Flag parsing stops at the name, so everything after the command
is passed to the server verbatim, dashes included. Flags for add itself
must come first. Adding an existing name replaces its configuration.`,
	Example: `  mirage add github npx -y @modelcontextprotocol/server-github
  mirage add --env '{"ROOT":"/srv/data"}' files ./file-server`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var env map[string]string
		if addEnvJSON != "" {
			if err := json.Unmarshal([]byte(addEnvJSON), &env); err != nil {
				return fmt.Errorf("invalid --env: %w", err)
			}
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		d := mcpconn.Descriptor{Name: args[0], Command: args[1], Args: args[2:], Env: env}
		if err := store.Upsert(d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added server %q\n", d.Name)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addEnvJSON, "env", "", "Environment overrides as a JSON object")
	// The server's own arguments routinely start with dashes; stop flag
	// parsing at the first positional so they pass through untouched.
	addCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(addCmd)
}
