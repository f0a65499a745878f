package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List configured servers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		return printServers(cmd.OutOrStdout(), store.List())
	},
}

func printServers(out io.Writer, servers []mcpconn.Descriptor) error {
	if len(servers) == 0 {
		_, err := fmt.Fprintln(out, "No servers configured.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOMMAND")
	for _, d := range servers {
		command := d.Command
		if len(d.Args) > 0 {
			command += " " + strings.Join(d.Args, " ")
		}
		fmt.Fprintf(w, "%s\t%s\n", d.Name, command)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(listCmd)
}
