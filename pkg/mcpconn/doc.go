// Package mcpconn is the server connection and action-invocation layer of
// mirage. It owns live connections to configured MCP server processes,
// performs the protocol handshake, discovers each server's callable actions
// and their argument schemas, and dispatches action calls. Multiple named
// servers may be connected at once and a single server may receive
// overlapping calls.
//
// # Core entry points
//
//   - Session owns one live connection to a single server process. It caches
//     the action catalog after the first discovery round-trip and serializes
//     calls over the underlying request/response channel.
//   - Registry maps server names to sessions, guaranteeing at most one live
//     session (and one process launch) per name even under concurrent
//     first-time callers. Sessions are created lazily and re-established
//     transparently after a failure.
//   - Invoker is the stateless façade consumed by the CLI and the HTTP API:
//     it resolves sessions through the registry, delegates calls, and
//     invalidates dead sessions so the next call starts fresh.
//
// Every failure surfaces as an *Error with one of five kinds
// (KindUnknownServer, KindConnection, KindProtocol, KindUnknownAction,
// KindCall); nothing is swallowed. Collaborators map kinds to exit codes or
// HTTP statuses without re-interpreting messages.
package mcpconn
