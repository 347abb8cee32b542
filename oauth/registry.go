package oauth

import (
	"sort"
	"strings"
)

// Registry maps provider names to clients. It is built once at startup and
// read-only afterwards.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[strings.ToLower(c.Name())] = c
	}
	return r
}

// Lookup returns the client for name, ErrProviderUnknown if none is
// registered, or ErrNotConfigured if it lacks credentials.
func (r *Registry) Lookup(name string) (Client, error) {
	if r == nil {
		return nil, ErrProviderUnknown
	}
	c, ok := r.clients[strings.ToLower(name)]
	if !ok {
		return nil, ErrProviderUnknown
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	return c, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
