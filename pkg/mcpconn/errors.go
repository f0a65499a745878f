package mcpconn

import (
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Kind categorizes a connection-layer failure. Every error returned by this
// package carries exactly one kind so that callers can map failures to exit
// codes or HTTP statuses without parsing messages.
type Kind string

const (
	// KindUnknownServer means the server name is not configured.
	KindUnknownServer Kind = "unknown_server"
	// KindConnection means the process failed to start, the handshake did
	// not complete, or the transport was lost.
	KindConnection Kind = "connection"
	// KindProtocol means the server's handshake or discovery response was
	// malformed.
	KindProtocol Kind = "protocol"
	// KindUnknownAction means the action is absent from the catalog even
	// after discovery.
	KindUnknownAction Kind = "unknown_action"
	// KindCall means the action invocation itself failed: invalid
	// arguments, a timeout, or a server-reported application error.
	KindCall Kind = "call"
)

// Error is the typed failure produced by sessions, the registry, and the
// invoker. Server and Action identify the operation; Result carries the
// server-reported payload when the action itself signalled failure.
type Error struct {
	Kind   Kind
	Server string
	Action string
	Err    error
	Result *mcp.CallToolResult
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	switch e.Kind {
	case KindUnknownServer:
		msg = fmt.Sprintf("server %q not configured", e.Server)
	case KindConnection:
		msg = fmt.Sprintf("connection to %q failed", e.Server)
	case KindProtocol:
		msg = fmt.Sprintf("malformed response from %q", e.Server)
	case KindUnknownAction:
		msg = fmt.Sprintf("server %q has no action %q", e.Server, e.Action)
	case KindCall:
		msg = fmt.Sprintf("action %q on %q failed", e.Action, e.Server)
	}
	if e.Err != nil {
		return fmt.Sprintf("mcpconn: %s: %v", msg, e.Err)
	}
	return "mcpconn: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from an error chain, or "" when the error did not
// originate in this package.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// ResultOf extracts the server-reported failure payload from an error chain,
// when present.
func ResultOf(err error) *mcp.CallToolResult {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Result
	}
	return nil
}

func errUnknownServer(server string) *Error {
	return &Error{Kind: KindUnknownServer, Server: server}
}

func errConnection(server string, err error) *Error {
	return &Error{Kind: KindConnection, Server: server, Err: err}
}

func errProtocol(server string, err error) *Error {
	return &Error{Kind: KindProtocol, Server: server, Err: err}
}

func errUnknownAction(server, action string) *Error {
	return &Error{Kind: KindUnknownAction, Server: server, Action: action}
}

func errCall(server, action string, err error) *Error {
	return &Error{Kind: KindCall, Server: server, Action: action, Err: err}
}
