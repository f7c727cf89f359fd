package provider

import (
	"errors"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned when no client is registered under a name.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry looks up provider clients by name.
type Registry struct {
	clients map[string]ClientInterface
}

// NewRegistry creates a registry from the given clients.
func NewRegistry(clients ...ClientInterface) *Registry {
	r := &Registry{clients: make(map[string]ClientInterface, len(clients))}
	for _, c := range clients {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a client.
func (r *Registry) Register(c ClientInterface) {
	r.clients[strings.ToLower(c.Name())] = c
}

// Get returns the client registered under name.
func (r *Registry) Get(name string) (ClientInterface, error) {
	c, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return c, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
