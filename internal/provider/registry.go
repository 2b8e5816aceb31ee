package provider

import (
	"fmt"
	"strings"

	"github.com/waabox/commitwatch/internal/domain"
)

// Registry maps code hosts to CommitSource implementations.
type Registry struct {
	entries []entry
}

type entry struct {
	host   string
	source domain.CommitSource
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register associates a host (e.g., "github.com") with a source.
// Later registrations for the same host take precedence.
func (r *Registry) Register(host string, s domain.CommitSource) {
	r.entries = append([]entry{{host: strings.ToLower(host), source: s}}, r.entries...)
}

// Lookup returns the source registered for host.
// Returns an error if no matching source is registered.
func (r *Registry) Lookup(host string) (domain.CommitSource, error) {
	host = strings.ToLower(host)
	for _, e := range r.entries {
		if e.host == host {
			return e.source, nil
		}
	}
	return nil, fmt.Errorf("no provider registered for host: %s", host)
}

// Check verifies that every target has a registered source.
func (r *Registry) Check(targets []domain.Repository) error {
	for _, t := range targets {
		if _, err := r.Lookup(t.Host); err != nil {
			return fmt.Errorf("repository %s: %w", t, err)
		}
	}
	return nil
}
