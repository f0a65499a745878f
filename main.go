package main

import (
	"fmt"
	"os"

	"github.com/theohmwoa/mirage-mcp-tool/cmd"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes failure classes so scripts can react without
// parsing messages.
func exitCode(err error) int {
	switch mcpconn.KindOf(err) {
	case mcpconn.KindUnknownServer:
		return 2
	case mcpconn.KindUnknownAction:
		return 3
	case mcpconn.KindConnection:
		return 4
	case mcpconn.KindProtocol:
		return 5
	case mcpconn.KindCall:
		return 6
	default:
		return 1
	}
}
