// Package httpapi exposes the server registry and action invocation over a
// small REST surface. It is glue: every operation delegates to the
// connection layer or the config store, and error kinds map one-to-one to
// stable HTTP statuses.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
	"github.com/theohmwoa/mirage-mcp-tool/pkg/serverstore"
)

// Options configure a Server.
type Options struct {
	// Addr is the listen address used by ListenAndServe. Defaults to ":8700".
	Addr string
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return opts
}

// Server routes REST requests to the invoker and the store.
type Server struct {
	invoker  *mcpconn.Invoker
	registry *mcpconn.Registry
	store    *serverstore.Store
	opts     Options
	handler  http.Handler
}

// New builds a Server over the given collaborators.
func New(invoker *mcpconn.Invoker, registry *mcpconn.Registry, store *serverstore.Store, opts *Options) *Server {
	s := &Server{
		invoker:  invoker,
		registry: registry,
		store:    store,
		opts:     opts.withDefaults(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /servers", s.handleListServers)
	mux.HandleFunc("POST /servers", s.handleAddServer)
	mux.HandleFunc("DELETE /servers/{name}", s.handleRemoveServer)
	mux.HandleFunc("GET /servers/{name}/actions", s.handleListActions)
	mux.HandleFunc("POST /servers/{name}/actions/{action}", s.handleExecuteAction)
	s.handler = cors.Default().Handler(mux)
	return s
}

// Handler exposes the HTTP handler, CORS included.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe runs the API until ctx is cancelled or the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type serverJSON struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

type serverListResponse struct {
	Servers []serverJSON `json:"servers"`
}

type actionJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      any    `json:"schema,omitempty"`
}

type actionListResponse struct {
	Actions []actionJSON   `json:"actions"`
	Schemas map[string]any `json:"schemas,omitempty"`
}

type executeRequest struct {
	Args map[string]any `json:"args"`
}

type executeResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "mirage API",
		"description": "REST API for managing MCP servers and invoking their actions",
		"endpoints": []string{
			"/servers",
			"/servers/{name}",
			"/servers/{name}/actions",
			"/servers/{name}/actions/{action}",
		},
	})
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	descriptors := s.invoker.ListServers()
	servers := make([]serverJSON, 0, len(descriptors))
	for _, d := range descriptors {
		servers = append(servers, descriptorJSON(d))
	}
	writeJSON(w, http.StatusOK, serverListResponse{Servers: servers})
}

func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	var body serverJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
		return
	}
	d := mcpconn.Descriptor{Name: body.Name, Command: body.Command, Args: body.Args, Env: body.Env}
	if err := s.store.Upsert(d); err != nil {
		writeError(w, http.StatusBadRequest, err, "")
		return
	}
	// A replaced configuration invalidates any session built from the old one.
	s.registry.Invalidate(d.Name)
	writeJSON(w, http.StatusCreated, descriptorJSON(d))
}

func (s *Server) handleRemoveServer(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.store.Remove(name); err != nil {
		if errors.Is(err, serverstore.ErrNotExist) {
			writeError(w, http.StatusNotFound, err, string(mcpconn.KindUnknownServer))
			return
		}
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	s.registry.Invalidate(name)
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("removed server %q", name)})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	includeSchemas := r.URL.Query().Get("include_schemas") != "false"

	actions, err := s.invoker.ListActions(r.Context(), name)
	if err != nil {
		s.writeKindError(w, err)
		return
	}
	resp := actionListResponse{Actions: make([]actionJSON, 0, len(actions))}
	if includeSchemas {
		resp.Schemas = make(map[string]any, len(actions))
	}
	for _, a := range actions {
		entry := actionJSON{Name: a.Name, Description: a.Description}
		if includeSchemas {
			entry.Schema = a.InputSchema
			resp.Schemas[a.Name] = a.InputSchema
		}
		resp.Actions = append(resp.Actions, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	action := r.PathValue("action")

	var body executeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), "")
			return
		}
	}
	if body.Args == nil {
		body.Args = map[string]any{}
	}

	result, err := s.invoker.Execute(r.Context(), name, action, body.Args)
	if err != nil {
		s.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: result})
}

// writeKindError maps the connection layer's error taxonomy to stable HTTP
// statuses: unknown names are 404, upstream faults are 502, failed calls
// are 500.
func (s *Server) writeKindError(w http.ResponseWriter, err error) {
	kind := mcpconn.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case mcpconn.KindUnknownServer, mcpconn.KindUnknownAction:
		status = http.StatusNotFound
	case mcpconn.KindConnection, mcpconn.KindProtocol:
		status = http.StatusBadGateway
	case mcpconn.KindCall:
		status = http.StatusInternalServerError
	}
	s.opts.Logger.Error("request failed", "kind", string(kind), "error", err)
	writeError(w, status, err, string(kind))
}

func descriptorJSON(d mcpconn.Descriptor) serverJSON {
	args := d.Args
	if args == nil {
		args = []string{}
	}
	return serverJSON{Name: d.Name, Command: d.Command, Args: args, Env: d.Env}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, kind string) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
