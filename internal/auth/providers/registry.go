package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrProviderExists is returned when attempting to register a provider name more than once.
var ErrProviderExists = errors.New("provider registry: provider already registered")

// Config lists the upstream providers to construct. Providers without client
// credentials are skipped.
type Config struct {
	Google  GoogleConfig
	GitHub  GitHubConfig
	Options Options
}

// Registry holds the configured identity providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry constructs only the providers that carry credentials in cfg.
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	reg := &Registry{providers: make(map[string]Provider)}

	if cfg.Google.Enabled() {
		google, err := NewGoogle(ctx, cfg.Google, cfg.Options)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(google); err != nil {
			return nil, err
		}
	}

	if cfg.GitHub.Enabled() {
		github, err := NewGitHub(cfg.GitHub, cfg.Options)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(github); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Register adds a provider, enforcing uniqueness by name.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider registry: provider is required")
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return errors.New("provider registry: provider name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names lists the configured provider names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
