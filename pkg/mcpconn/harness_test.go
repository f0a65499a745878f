package mcpconn

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// fixture hosts an in-process server and hands out in-memory transports to
// it, counting dials and per-method traffic so tests can assert on process
// launches and round-trips.
type fixture struct {
	server *mcp.Server

	dials     atomic.Int32
	listCalls atomic.Int32
	toolCalls atomic.Int32

	mu       sync.Mutex
	sessions []*mcp.ServerSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.server = mcp.NewServer(&mcp.Implementation{Name: "fixture", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})

	f.server.AddTool(&mcp.Tool{
		Name:        "echo",
		Description: "Echo the text argument back",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string"},
			},
			Required: []string{"text"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArgs(req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		text, _ := args["text"].(string)
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	})

	f.server.AddTool(&mcp.Tool{
		Name:        "ping",
		Description: "Reply with pong",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "pong"}}}, nil
	})

	f.server.AddTool(&mcp.Tool{
		Name:        "fail",
		Description: "Always report an application error",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "it broke"}},
		}, nil
	})

	return f
}

// dial is a Dialer: each call simulates launching the server process once.
func (f *fixture) dial(Descriptor) (mcp.Transport, error) {
	f.dials.Add(1)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := f.server.Connect(context.Background(), serverTransport, nil)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, ss)
	f.mu.Unlock()
	return &countingTransport{fixture: f, delegate: clientTransport}, nil
}

// killServer closes every server-side session, simulating process death.
func (f *fixture) killServer() {
	f.mu.Lock()
	sessions := f.sessions
	f.sessions = nil
	f.mu.Unlock()
	for _, ss := range sessions {
		_ = ss.Close()
	}
}

func (f *fixture) options() SessionOptions {
	return SessionOptions{Dialer: f.dial, Timeout: 5 * time.Second}
}

func (f *fixture) registryOptions() RegistryOptions {
	return RegistryOptions{Dialer: f.dial, Timeout: 5 * time.Second}
}

// countingTransport counts tools/list and tools/call requests crossing the
// wire so tests can prove catalog caching and pre-transport rejections.
type countingTransport struct {
	fixture  *fixture
	delegate mcp.Transport
}

func (t *countingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &countingConnection{fixture: t.fixture, delegate: conn}, nil
}

type countingConnection struct {
	fixture  *fixture
	delegate mcp.Connection
}

func (c *countingConnection) SessionID() string { return c.delegate.SessionID() }

func (c *countingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	return c.delegate.Read(ctx)
}

func (c *countingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if encoded, err := json.Marshal(msg); err == nil {
		s := string(encoded)
		if strings.Contains(s, `"tools/list"`) {
			c.fixture.listCalls.Add(1)
		}
		if strings.Contains(s, `"tools/call"`) {
			c.fixture.toolCalls.Add(1)
		}
	}
	return c.delegate.Write(ctx, msg)
}

func (c *countingConnection) Close() error { return c.delegate.Close() }

func decodeArgs(v any) (map[string]any, error) {
	switch a := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return a, nil
	case json.RawMessage:
		var m map[string]any
		if len(a) == 0 {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal(a, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		data, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// mapSource is an in-memory descriptor source.
type mapSource map[string]Descriptor

func (m mapSource) Lookup(name string) (Descriptor, bool) {
	d, ok := m[name]
	return d, ok
}

func (m mapSource) List() []Descriptor {
	out := make([]Descriptor, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// textOf extracts the concatenated text content of a result.
func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil {
		t.Fatal("nil result")
	}
	var b strings.Builder
	for _, content := range res.Content {
		tc, ok := content.(*mcp.TextContent)
		if !ok {
			t.Fatalf("unexpected content type %T", content)
		}
		b.WriteString(tc.Text)
	}
	return b.String()
}

// waitForState polls until the session reaches want or the deadline passes.
func waitForState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session state = %s, want %s", s.State(), want)
}
