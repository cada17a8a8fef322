package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/upb/omniagent/internal/router"
)

var (
	// ErrProviderNotFound is returned when no provider serves a backend's runtime
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrInvalidBackend is returned for identifiers not shaped "<runtime>/<model>"
	ErrInvalidBackend = errors.New("invalid backend identifier")
)

// ParseBackend splits a backend identifier into runtime and model,
// e.g. "openrouter/anthropic/claude-3.5-sonnet" into "openrouter" and
// "anthropic/claude-3.5-sonnet".
func ParseBackend(id string) (runtime, model string, err error) {
	runtime, model, ok := strings.Cut(id, "/")
	if !ok || runtime == "" || model == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidBackend, id)
	}
	return runtime, model, nil
}

// Registry maps runtime names to provider instances
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// RegisterProvider registers a provider instance under its Name
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[name] = provider
	return nil
}

// UnregisterProvider removes a provider from the registry
func (r *Registry) UnregisterProvider(providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerName]; !exists {
		return ErrProviderNotFound
	}
	delete(r.providers, providerName)
	return nil
}

// GetProvider retrieves a provider by runtime name
func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// ListProviders returns all registered runtime names, sorted
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProviderCount returns the number of registered providers
func (r *Registry) GetProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Complete sends messages to the backend named by target
func (r *Registry) Complete(ctx context.Context, target string, messages []Message) (*ChatResponse, error) {
	runtime, model, err := ParseBackend(target)
	if err != nil {
		return nil, err
	}

	provider, err := r.GetProvider(runtime)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", target, err)
	}

	return provider.ChatCompletion(ctx, &ChatRequest{
		Model:    model,
		Messages: messages,
	})
}

// Invoker binds messages to the registry so the fallback coordinator can
// send the same turn to whichever backend it selects.
func (r *Registry) Invoker(messages []Message) router.Invoker {
	return router.InvokerFunc(func(ctx context.Context, target string) (*router.Response, error) {
		resp, err := r.Complete(ctx, target, messages)
		if err != nil {
			return nil, err
		}
		return &router.Response{
			Content:      resp.Content,
			Model:        resp.Model,
			PromptTokens: resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, nil
	})
}
