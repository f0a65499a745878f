package mcpconn

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RegistryOptions configure a Registry and the sessions it creates.
type RegistryOptions struct {
	// Dialer overrides transport construction for every session.
	Dialer Dialer
	// Timeout bounds connect, discovery, and each call per session.
	Timeout time.Duration
	// ClientName and ClientVersion are advertised to every server.
	ClientName    string
	ClientVersion string
	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Registry is the process-wide map from server name to live session. It
// guarantees that at most one non-terminated session exists per name:
// concurrent first-time callers for the same name share a single creation
// attempt instead of racing to launch duplicate processes.
type Registry struct {
	source DescriptorSource
	opts   RegistryOptions
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	session  *Session
	creating bool
	createCh chan struct{}
}

// NewRegistry builds a registry resolving descriptors through source.
func NewRegistry(source DescriptorSource, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		source:  source,
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*registryEntry),
	}
}

// GetOrCreate returns the live session for name, creating and connecting one
// when absent. Exactly one creation attempt per name proceeds at a time;
// concurrent callers block on that attempt. A session that has failed or
// closed since its last use is discarded and re-established transparently.
// Names with no configured descriptor fail with KindUnknownServer before any
// process launch.
func (r *Registry) GetOrCreate(ctx context.Context, name string) (*Session, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[name]
		if !ok {
			e = &registryEntry{}
			r.entries[name] = e
		}
		if e.session != nil {
			switch e.session.State() {
			case StateReady, StateCalling, StateConnecting:
				sess := e.session
				r.mu.Unlock()
				return sess, nil
			}
			// Dead session: release it and fall through to recreate.
			dead := e.session
			e.session = nil
			r.mu.Unlock()
			_ = dead.Close()
			r.logger.Debug("discarded dead session", "server", name)
			continue
		}
		if e.creating {
			ch := e.createCh
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, errConnection(name, ctx.Err())
			case <-ch:
				continue
			}
		}
		e.creating = true
		e.createCh = make(chan struct{})
		r.mu.Unlock()

		sess, err := r.create(ctx, name)

		r.mu.Lock()
		e.creating = false
		close(e.createCh)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if r.entries[name] != e {
			// Invalidated while we were connecting; retry against the
			// current configuration.
			r.mu.Unlock()
			_ = sess.Close()
			continue
		}
		e.session = sess
		r.mu.Unlock()
		return sess, nil
	}
}

func (r *Registry) create(ctx context.Context, name string) (*Session, error) {
	desc, ok := r.source.Lookup(name)
	if !ok {
		return nil, errUnknownServer(name)
	}
	sess := NewSession(desc, SessionOptions{
		Dialer:        r.opts.Dialer,
		Timeout:       r.opts.Timeout,
		ClientName:    r.opts.ClientName,
		ClientVersion: r.opts.ClientVersion,
		Logger:        r.logger,
	})
	if err := sess.Connect(ctx); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

// Invalidate closes and removes the session for name so the next GetOrCreate
// starts fresh. Used after a fatal failure or when the server's
// configuration changes. No-op for unknown names.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
	}
	r.mu.Unlock()
	if ok && e.session != nil {
		_ = e.session.Close()
	}
}

// CloseAll closes every held session, used at process shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.entries))
	for _, e := range r.entries {
		if e.session != nil {
			sessions = append(sessions, e.session)
		}
	}
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	var g errgroup.Group
	for _, sess := range sessions {
		g.Go(sess.Close)
	}
	return g.Wait()
}
