// Package serverstore persists server launch configurations: one JSON
// object keyed by server name, each value holding the command, its
// arguments, and environment overrides. The store is the descriptor source
// consulted by the connection layer; it owns the file format and nothing
// else.
package serverstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/theohmwoa/mirage-mcp-tool/pkg/mcpconn"
)

// ErrNotExist is returned when removing a server that is not configured.
var ErrNotExist = errors.New("serverstore: server not configured")

type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// Store holds the configured servers, backed by a JSON file. All mutations
// rewrite the file atomically. Safe for concurrent use.
type Store struct {
	path string

	mu      sync.RWMutex
	servers map[string]serverEntry
}

// Load reads the store at path. A missing file yields an empty store; the
// file is created on first save.
func Load(path string) (*Store, error) {
	s := &Store{path: path, servers: make(map[string]serverEntry)}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) read() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serverstore: read %s: %w", s.path, err)
	}
	servers := make(map[string]serverEntry)
	if err := json.Unmarshal(data, &servers); err != nil {
		return fmt.Errorf("serverstore: parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.servers = servers
	s.mu.Unlock()
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Lookup implements mcpconn.DescriptorSource.
func (s *Store) Lookup(name string) (mcpconn.Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.servers[name]
	if !ok {
		return mcpconn.Descriptor{}, false
	}
	return entry.descriptor(name), true
}

// List returns every configured descriptor, sorted by name.
func (s *Store) List() []mcpconn.Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]mcpconn.Descriptor, 0, len(s.servers))
	for name, entry := range s.servers {
		out = append(out, entry.descriptor(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Upsert adds or replaces the configuration for d.Name and saves the file.
func (s *Store) Upsert(d mcpconn.Descriptor) error {
	if d.Name == "" {
		return errors.New("serverstore: server name is required")
	}
	if d.Command == "" {
		return errors.New("serverstore: command is required")
	}
	s.mu.Lock()
	s.servers[d.Name] = serverEntry{Command: d.Command, Args: append([]string(nil), d.Args...), Env: cloneEnv(d.Env)}
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Remove deletes the configuration for name and saves the file. Returns
// ErrNotExist when the name is not configured.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotExist, name)
	}
	delete(s.servers, name)
	return s.saveLocked()
}

// Reload re-reads the backing file and returns the names whose descriptors
// changed or disappeared, so callers can invalidate their sessions.
func (s *Store) Reload() ([]string, error) {
	s.mu.RLock()
	before := make(map[string]serverEntry, len(s.servers))
	for name, entry := range s.servers {
		before[name] = entry
	}
	s.mu.RUnlock()

	if err := s.read(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var changed []string
	for name, old := range before {
		now, ok := s.servers[name]
		if !ok || !old.descriptor(name).Equal(now.descriptor(name)) {
			changed = append(changed, name)
		}
	}
	for name := range s.servers {
		if _, ok := before[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// saveLocked writes the store atomically: marshal to a temp file in the same
// directory, then rename over the target. Caller must hold mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.servers, "", "  ")
	if err != nil {
		return fmt.Errorf("serverstore: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("serverstore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".servers-*.json")
	if err != nil {
		return fmt.Errorf("serverstore: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("serverstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("serverstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("serverstore: rename: %w", err)
	}
	return nil
}

func (e serverEntry) descriptor(name string) mcpconn.Descriptor {
	return mcpconn.Descriptor{
		Name:    name,
		Command: e.Command,
		Args:    append([]string(nil), e.Args...),
		Env:     cloneEnv(e.Env),
	}
}

func cloneEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
