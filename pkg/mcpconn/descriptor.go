package mcpconn

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Descriptor is the immutable launch configuration for one named server:
// the executable, its arguments, and environment overrides layered on top
// of the process environment. Descriptors are produced by the config
// collaborator and never mutated here; an upsert replaces them wholesale.
type Descriptor struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Equal reports whether two descriptors would launch the same process.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.Name != other.Name || d.Command != other.Command {
		return false
	}
	if len(d.Args) != len(other.Args) || len(d.Env) != len(other.Env) {
		return false
	}
	for i, a := range d.Args {
		if other.Args[i] != a {
			return false
		}
	}
	for k, v := range d.Env {
		if other.Env[k] != v {
			return false
		}
	}
	return true
}

// DescriptorSource resolves server names to descriptors. Implemented by
// serverstore.Store; the registry consults it on every creation attempt so
// configuration changes take effect on the next connect.
type DescriptorSource interface {
	Lookup(name string) (Descriptor, bool)
}

// DescriptorLister extends DescriptorSource with enumeration, used by the
// invoker's server listing pass-through.
type DescriptorLister interface {
	DescriptorSource
	List() []Descriptor
}

// Dialer turns a descriptor into an MCP transport. The default launches the
// configured command over stdio; tests substitute in-memory transports.
type Dialer func(Descriptor) (mcp.Transport, error)

// CommandDialer is the production Dialer: it builds a stdio transport that
// spawns the descriptor's command with its environment overlaid on the
// current process environment.
func CommandDialer(d Descriptor) (mcp.Transport, error) {
	if d.Command == "" {
		return nil, fmt.Errorf("mcpconn: command missing for %q", d.Name)
	}
	cmd := exec.Command(d.Command, d.Args...)
	if len(d.Env) > 0 {
		env := os.Environ()
		for k, v := range d.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}
