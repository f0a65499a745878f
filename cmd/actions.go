package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
)

var actionsShowSchemas bool

var actionsCmd = &cobra.Command{
	Use:   "actions <server>",
	Short: "List the actions a server exposes",
	Long: `Actions connects to the named server, discovers its action catalog, and
prints each action with its description. With --schemas the full input
schema of every action is printed as JSON instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		invoker, registry, _, err := openInvoker()
		if err != nil {
			return err
		}
		defer registry.CloseAll()

		actions, err := invoker.ListActions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Server %q exposes no actions.\n", args[0])
			return nil
		}
		if actionsShowSchemas {
			schemas := make(map[string]any, len(actions))
			for _, a := range actions {
				schemas[a.Name] = a.InputSchema
			}
			data, err := json.MarshalIndent(schemas, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		return printActions(cmd.OutOrStdout(), actions)
	},
}

func printActions(out io.Writer, actions []mcpconn.Action) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tDESCRIPTION")
	for _, a := range actions {
		fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Description)
	}
	return w.Flush()
}

func init() {
	actionsCmd.Flags().BoolVar(&actionsShowSchemas, "schemas", false, "Print the input schemas as JSON")
	rootCmd.AddCommand(actionsCmd)
}
