package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrConnectionNotFound is returned for an unknown connection name.
var ErrConnectionNotFound = errors.New("client: connection not found")

// Registry holds named clients. Create one per process, add connections at
// startup and Close it on shutdown.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add opens cfg under name. When name is already registered the existing
// client is returned and cfg is ignored.
func (r *Registry) Add(ctx context.Context, name string, cfg Config) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}
	c, err := Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("add connection %q: %w", name, err)
	}
	r.clients[name] = c
	return c, nil
}

// Register adds an opened client under name. It fails when name is taken.
func (r *Registry) Register(name string, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[name]; ok {
		return fmt.Errorf("connection %q already registered", name)
	}
	r.clients[name] = c
	return nil
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return c, nil
}

// MustGet is Get that panics when name is unknown.
func (r *Registry) MustGet(name string) *Client {
	c, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return c
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove closes and unregisters name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	c, ok := r.clients[name]
	delete(r.clients, name)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return c.Close()
}

// Close closes every client and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	var errs []error
	for name, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
