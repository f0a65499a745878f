package mcpconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// State represents the lifecycle of a session.
type State string

const (
	StateUnconnected State = "unconnected"
	StateConnecting  State = "connecting"
	StateReady       State = "ready"
	StateCalling     State = "calling"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// Action describes one callable operation a server exposes, as reported by
// discovery. InputSchema is kept verbatim; this layer does not interpret the
// action's semantics.
type Action struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// SessionOptions configure a Session. The zero value is usable.
type SessionOptions struct {
	// Dialer overrides how the transport is built. Defaults to CommandDialer.
	Dialer Dialer
	// Timeout bounds connect, discovery, and each call. Defaults to 30s.
	Timeout time.Duration
	// ClientName and ClientVersion are advertised during the handshake.
	// ClientName defaults to the server name, ClientVersion to "1.0.0".
	ClientName    string
	ClientVersion string
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (o SessionOptions) withDefaults(serverName string) SessionOptions {
	if o.Dialer == nil {
		o.Dialer = CommandDialer
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.ClientName == "" {
		o.ClientName = serverName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = "1.0.0"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session owns one live connection to a single server process: the spawned
// transport, the handshake, the cached action catalog, and liveness. It is
// safe for concurrent use; calls to the same session queue rather than
// interleave because the underlying transport is a single ordered
// request/response channel.
type Session struct {
	descriptor Descriptor
	opts       SessionOptions

	mu        sync.Mutex
	state     State
	connectCh chan struct{}
	client    *mcp.Client
	session   *mcp.ClientSession
	catalog   map[string]Action

	// callMu serializes discovery and call round-trips over the transport.
	callMu sync.Mutex
}

// NewSession builds an unconnected session for the descriptor. Connect must
// be called (directly or through the registry) before use.
func NewSession(d Descriptor, opts SessionOptions) *Session {
	return &Session{
		descriptor: d,
		opts:       opts.withDefaults(d.Name),
		state:      StateUnconnected,
	}
}

// Descriptor returns the launch configuration this session was built from.
func (s *Session) Descriptor() Descriptor { return s.descriptor }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect launches or attaches to the configured process and performs the
// protocol handshake, bounded by the session timeout. It is idempotent while
// the session is ready; re-entrant calls during an in-flight attempt wait
// for that attempt instead of starting a second one.
func (s *Session) Connect(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.state {
		case StateReady, StateCalling:
			s.mu.Unlock()
			return nil
		case StateClosed:
			s.mu.Unlock()
			return errConnection(s.descriptor.Name, errors.New("session closed"))
		case StateFailed:
			s.mu.Unlock()
			return errConnection(s.descriptor.Name, errors.New("session failed"))
		case StateConnecting:
			ch := s.connectCh
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return errConnection(s.descriptor.Name, ctx.Err())
			case <-ch:
				continue
			}
		}
		s.state = StateConnecting
		s.connectCh = make(chan struct{})
		s.mu.Unlock()

		cs, client, err := s.establish(ctx)

		s.mu.Lock()
		close(s.connectCh)
		if s.state == StateClosed {
			s.mu.Unlock()
			if cs != nil {
				_ = cs.Close()
			}
			return errConnection(s.descriptor.Name, errors.New("session closed"))
		}
		if err != nil {
			s.state = StateFailed
			s.mu.Unlock()
			return errConnection(s.descriptor.Name, err)
		}
		s.state = StateReady
		s.client = client
		s.session = cs
		s.mu.Unlock()

		go s.watch(cs)
		return nil
	}
}

func (s *Session) establish(ctx context.Context) (*mcp.ClientSession, *mcp.Client, error) {
	transport, err := s.opts.Dialer(s.descriptor)
	if err != nil {
		return nil, nil, err
	}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    s.opts.ClientName,
		Version: s.opts.ClientVersion,
	}, nil)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, nil, err
	}
	return cs, client, nil
}

// watch clears the session when the underlying process exits, so registry
// lookups skip it and the next call reconnects fresh.
func (s *Session) watch(cs *mcp.ClientSession) {
	err := cs.Wait()
	s.mu.Lock()
	if s.session == cs && s.state != StateClosed {
		s.state = StateFailed
		s.session = nil
		s.client = nil
	}
	s.mu.Unlock()
	if err != nil {
		s.opts.Logger.Debug("session terminated", "server", s.descriptor.Name, "error", err)
	}
}

// Actions returns the server's action catalog, performing a discovery
// round-trip on first use and serving the cached result afterwards. The
// catalog stays cached until InvalidateCatalog or session teardown.
func (s *Session) Actions(ctx context.Context) ([]Action, error) {
	if actions, ok := s.cachedActions(); ok {
		return actions, nil
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()
	// Another caller may have finished discovery while we waited.
	if actions, ok := s.cachedActions(); ok {
		return actions, nil
	}
	if err := s.discoverLocked(ctx); err != nil {
		return nil, err
	}
	actions, _ := s.cachedActions()
	return actions, nil
}

func (s *Session) cachedActions() ([]Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog == nil {
		return nil, false
	}
	actions := make([]Action, 0, len(s.catalog))
	for _, a := range s.catalog {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return actions, true
}

// discoverLocked performs the tools/list round-trip and populates the
// catalog. Caller must hold callMu.
func (s *Session) discoverLocked(ctx context.Context) error {
	cs, err := s.readySession()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		s.markFailed()
		return errConnection(s.descriptor.Name, err)
	}
	if res == nil {
		return errProtocol(s.descriptor.Name, errors.New("empty discovery response"))
	}
	catalog := make(map[string]Action, len(res.Tools))
	for _, tool := range res.Tools {
		if tool == nil || tool.Name == "" {
			return errProtocol(s.descriptor.Name, errors.New("discovery returned a nameless action"))
		}
		schema, err := coerceSchema(tool.InputSchema)
		if err != nil {
			return errProtocol(s.descriptor.Name, fmt.Errorf("action %q: invalid input schema: %w", tool.Name, err))
		}
		catalog[tool.Name] = Action{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}
	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()
	return nil
}

// coerceSchema turns the wire-decoded schema value from discovery into a
// typed schema. Tool.InputSchema is declared as any and arrives on the
// client side as a generic JSON value, so it is round-tripped through JSON
// into jsonschema.Schema.
func coerceSchema(v any) (*jsonschema.Schema, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(*jsonschema.Schema); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// InvalidateCatalog drops the cached catalog so the next Actions or Call
// re-runs discovery. Used when a server's action set is known to have
// changed at runtime.
func (s *Session) InvalidateCatalog() {
	s.mu.Lock()
	s.catalog = nil
	s.mu.Unlock()
}

// Call invokes a named action with the given arguments and returns the
// server's result verbatim. The action must exist in the catalog (discovery
// runs first when the catalog is empty) and the arguments must satisfy its
// schema; neither failure reaches the transport. Calls on the same session
// are serialized.
func (s *Session) Call(ctx context.Context, action string, args map[string]any) (*mcp.CallToolResult, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	s.mu.Lock()
	populated := s.catalog != nil
	s.mu.Unlock()
	if !populated {
		if err := s.discoverLocked(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	act, known := s.catalog[action]
	s.mu.Unlock()
	if !known {
		return nil, errUnknownAction(s.descriptor.Name, action)
	}
	if err := validateArguments(act.InputSchema, args); err != nil {
		return nil, errCall(s.descriptor.Name, action, err)
	}

	cs, err := s.readySession()
	if err != nil {
		return nil, err
	}
	s.setState(StateReady, StateCalling)
	defer s.setState(StateCalling, StateReady)

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: action, Arguments: args})
	if err != nil {
		return nil, s.classifyCallError(action, err)
	}
	if res != nil && res.IsError {
		return nil, &Error{
			Kind:   KindCall,
			Server: s.descriptor.Name,
			Action: action,
			Err:    errors.New("server reported an error"),
			Result: res,
		}
	}
	return res, nil
}

// classifyCallError separates transport faults, which poison the session,
// from server-side invocation failures, which leave it usable.
func (s *Session) classifyCallError(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.markFailed()
		return errCall(s.descriptor.Name, action, fmt.Errorf("timed out after %s: %w", s.opts.Timeout, err))
	}
	if isTransportError(err) {
		s.markFailed()
		return errConnection(s.descriptor.Name, err)
	}
	return errCall(s.descriptor.Name, action, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "broken pipe")
}

func (s *Session) readySession() (*mcp.ClientSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady, StateCalling:
		if s.session != nil {
			return s.session, nil
		}
	}
	return nil, errConnection(s.descriptor.Name, fmt.Errorf("session is %s", s.state))
}

func (s *Session) setState(from, to State) {
	s.mu.Lock()
	if s.state == from {
		s.state = to
	}
	s.mu.Unlock()
}

func (s *Session) markFailed() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateFailed
		s.session = nil
		s.client = nil
	}
	s.mu.Unlock()
}

// Close terminates the transport and releases the process handle. Safe to
// call from any state, idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	cs := s.session
	s.session = nil
	s.client = nil
	s.catalog = nil
	s.mu.Unlock()
	if cs == nil {
		return nil
	}
	return cs.Close()
}
