package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/theohmwoa/mirage-mcp-tool/internal/prompt"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/serverstore"
)

const (
	menuList               = "List configured servers"
	menuAdd                = "Add a server"
	menuRemove             = "Remove a server"
	menuActions            = "List actions for a server"
	menuExecute            = "Execute an action"
	menuExecuteInteractive = "Execute an action with interactive arguments"
	menuQuit               = "Quit"
)

// runMenu drives the interactive menu entered when mirage starts without a
// subcommand. One flow per iteration; flow errors are printed and the menu
// continues, so a failed call does not end the session.
func runMenu(cmd *cobra.Command, col *prompt.Collector) error {
	invoker, registry, store, err := openInvoker()
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		choice, err := col.Select("What would you like to do?", []string{
			menuList, menuAdd, menuRemove, menuActions,
			menuExecute, menuExecuteInteractive, menuQuit,
		})
		if err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil
			}
			return err
		}

		var flowErr error
		switch choice {
		case menuQuit:
			return nil
		case menuList:
			flowErr = printServers(cmd.OutOrStdout(), store.List())
		case menuAdd:
			flowErr = menuAddServer(cmd, col, store)
		case menuRemove:
			flowErr = menuRemoveServer(cmd, col, store)
		case menuActions:
			flowErr = menuListActions(ctx, cmd, col, invoker, store)
		case menuExecute:
			flowErr = menuExecuteAction(ctx, cmd, col, invoker, store, false)
		case menuExecuteInteractive:
			flowErr = menuExecuteAction(ctx, cmd, col, invoker, store, true)
		}
		if flowErr != nil {
			if errors.Is(flowErr, terminal.InterruptErr) {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", flowErr)
		}
	}
}

func menuAddServer(cmd *cobra.Command, col *prompt.Collector, store *serverstore.Store) error {
	name, err := col.Input("Server name:")
	if err != nil {
		return err
	}
	command, err := col.Input("Command to launch it:")
	if err != nil {
		return err
	}
	argsLine, err := col.Input("Command arguments (optional):")
	if err != nil {
		return err
	}
	args, err := shellquote.Split(argsLine)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	envLine, err := col.Input("Environment as a JSON object (optional):")
	if err != nil {
		return err
	}
	var env map[string]string
	if envLine != "" {
		if err := json.Unmarshal([]byte(envLine), &env); err != nil {
			return fmt.Errorf("invalid environment: %w", err)
		}
	}
	d := mcpconn.Descriptor{Name: name, Command: command, Args: args, Env: env}
	if err := store.Upsert(d); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added server %q\n", d.Name)
	return nil
}

func menuRemoveServer(cmd *cobra.Command, col *prompt.Collector, store *serverstore.Store) error {
	name, err := pickServer(col, store)
	if err != nil {
		return err
	}
	if err := store.Remove(name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed server %q\n", name)
	return nil
}

func menuListActions(ctx context.Context, cmd *cobra.Command, col *prompt.Collector, invoker *mcpconn.Invoker, store *serverstore.Store) error {
	name, err := pickServer(col, store)
	if err != nil {
		return err
	}
	actions, err := invoker.ListActions(ctx, name)
	if err != nil {
		return err
	}
	return printActions(cmd.OutOrStdout(), actions)
}

func menuExecuteAction(ctx context.Context, cmd *cobra.Command, col *prompt.Collector, invoker *mcpconn.Invoker, store *serverstore.Store, interactive bool) error {
	name, err := pickServer(col, store)
	if err != nil {
		return err
	}
	actions, err := invoker.ListActions(ctx, name)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Server %q exposes no actions.\n", name)
		return nil
	}
	options := make([]string, len(actions))
	byName := make(map[string]mcpconn.Action, len(actions))
	for i, a := range actions {
		options[i] = a.Name
		byName[a.Name] = a
	}
	actionName, err := col.Select("Which action?", options)
	if err != nil {
		return err
	}

	args := map[string]any{}
	if interactive {
		if args, err = col.Collect(byName[actionName].InputSchema); err != nil {
			return err
		}
	} else {
		raw, err := col.Input("Arguments as a JSON object (default {}):")
		if err != nil {
			return err
		}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return fmt.Errorf("invalid arguments: %w", err)
			}
		}
	}

	result, err := invoker.Execute(ctx, name, actionName, args)
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}

// pickServer offers the configured server names.
func pickServer(col *prompt.Collector, store *serverstore.Store) (string, error) {
	servers := store.List()
	if len(servers) == 0 {
		return "", errors.New("no servers configured")
	}
	names := make([]string, len(servers))
	for i, d := range servers {
		names[i] = d.Name
	}
	return col.Select("Which server?", names)
}
