package mcpconn

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Invoker is the stateless façade used by the CLI and the HTTP API. It
// resolves sessions through the registry, delegates discovery and calls,
// and invalidates a session whose transport has died so a future call gets
// a fresh connection.
type Invoker struct {
	registry *Registry
	source   DescriptorLister
}

// NewInvoker builds an invoker over the registry and the config
// collaborator that backs it.
func NewInvoker(registry *Registry, source DescriptorLister) *Invoker {
	return &Invoker{registry: registry, source: source}
}

// ListServers enumerates the configured servers. Pure pass-through to the
// config collaborator; no connection is made.
func (inv *Invoker) ListServers() []Descriptor {
	return inv.source.List()
}

// ListActions resolves a session for the named server and returns its action
// catalog. Errors keep their kind unchanged.
func (inv *Invoker) ListActions(ctx context.Context, server string) ([]Action, error) {
	sess, err := inv.registry.GetOrCreate(ctx, server)
	if err != nil {
		return nil, err
	}
	return sess.Actions(ctx)
}

// Execute invokes an action on the named server. When the call fails because
// the transport died, the session is invalidated before the error
// propagates, so the next Execute re-establishes a connection instead of
// reusing the dead one. Successful results are returned untouched.
func (inv *Invoker) Execute(ctx context.Context, server, action string, args map[string]any) (*mcp.CallToolResult, error) {
	sess, err := inv.registry.GetOrCreate(ctx, server)
	if err != nil {
		return nil, err
	}
	res, err := sess.Call(ctx, action, args)
	if err != nil && sess.State() == StateFailed {
		inv.registry.Invalidate(server)
	}
	return res, err
}
