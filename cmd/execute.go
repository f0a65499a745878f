package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/internal/prompt"
)

var (
	executeArgsJSON    string
	executeInteractive bool
)

var executeCmd = &cobra.Command{
	Use:     "execute <server> <action>",
	Aliases: []string{"exec"},
	Short:   "Invoke an action on a server",
	Long: `Execute connects to the named server and invokes one of its actions.
Arguments are given as a JSON object with --args, or collected one by one
with --interactive, which reads the action's input schema and prompts for
each declared property.`,
	Example: `  mirage execute github search_repositories --args '{"query":"mcp"}'
  mirage execute github create_issue --interactive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if executeArgsJSON != "" && executeInteractive {
			return fmt.Errorf("--args and --interactive are mutually exclusive")
		}
		callArgs := map[string]any{}
		if executeArgsJSON != "" {
			if err := json.Unmarshal([]byte(executeArgsJSON), &callArgs); err != nil {
				return fmt.Errorf("invalid --args: %w", err)
			}
		}

		invoker, registry, _, err := openInvoker()
		if err != nil {
			return err
		}
		defer registry.CloseAll()

		server, action := args[0], args[1]
		if executeInteractive {
			actions, err := invoker.ListActions(cmd.Context(), server)
			if err != nil {
				return err
			}
			var found bool
			for _, a := range actions {
				if a.Name == action {
					callArgs, err = prompt.NewCollector().Collect(a.InputSchema)
					if err != nil {
						return err
					}
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("server %q has no action %q", server, action)
			}
		}

		result, err := invoker.Execute(cmd.Context(), server, action, callArgs)
		if err != nil {
			return err
		}
		return printResult(cmd, result)
	},
}

// printResult renders a call result: plain text content is printed as-is,
// everything else as indented JSON.
func printResult(cmd *cobra.Command, result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}
	out := cmd.OutOrStdout()
	allText := len(result.Content) > 0
	for _, content := range result.Content {
		if _, ok := content.(*mcp.TextContent); !ok {
			allText = false
			break
		}
	}
	if allText {
		for _, content := range result.Content {
			fmt.Fprintln(out, content.(*mcp.TextContent).Text)
		}
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func init() {
	executeCmd.Flags().StringVar(&executeArgsJSON, "args", "", "Action arguments as a JSON object")
	executeCmd.Flags().BoolVarP(&executeInteractive, "interactive", "i", false, "Prompt for each argument")
	rootCmd.AddCommand(executeCmd)
}
