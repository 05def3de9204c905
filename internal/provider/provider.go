// Package provider defines the AI generation capability the pipeline
// depends on. Actual provider clients live outside this repository; the
// orchestrator only needs Generate plus enough registry information to fail
// fast when a model's provider has no credentials. Retry and backoff are
// the caller's collaborator's concern, not ours.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request is one generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Result is what a generation call returned.
type Result struct {
	Text     string
	Tokens   int
	Cost     float64
	Model    string
	Provider string
}

// Provider generates text for a prompt.
type Provider interface {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name() string
	// Models lists the model ids this provider serves.
	Models() []string
	// Generate performs one generation call. Implementations honor ctx
	// cancellation; long-form calls run for minutes.
	Generate(ctx context.Context, req Request) (*Result, error)
}

// ErrNoProvider is returned when no configured provider serves a model.
type ErrNoProvider struct {
	Model string
}

func (e *ErrNoProvider) Error() string {
	return fmt.Sprintf("no configured provider serves model %q", e.Model)
}

// Registry holds the configured providers and routes models to them.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider // name -> provider
	byModel   map[string]string   // model id -> provider name
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		byModel:   make(map[string]string),
	}
}

// Register adds a provider and indexes its models.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	for _, m := range p.Models() {
		r.byModel[m] = p.Name()
	}
}

// For returns the provider serving the given model, failing fast when none
// is configured.
func (r *Registry) For(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byModel[model]
	if !ok {
		return nil, &ErrNoProvider{Model: model}
	}
	return r.providers[name], nil
}

// Generate routes one request to the provider serving its model.
func (r *Registry) Generate(ctx context.Context, req Request) (*Result, error) {
	p, err := r.For(req.Model)
	if err != nil {
		return nil, err
	}
	res, err := p.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
	}
	if res.Provider == "" {
		res.Provider = p.Name()
	}
	if res.Model == "" {
		res.Model = req.Model
	}
	return res, nil
}

// Configured describes what is currently available, for diagnostics and the
// dashboard's model picker.
func (r *Registry) Configured() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.providers))
	for name, p := range r.providers {
		models := append([]string(nil), p.Models()...)
		sort.Strings(models)
		out[name] = models
	}
	return out
}

// FirstModel picks the first requested model a provider is configured for.
// An empty models list or no configured match returns ErrNoProvider naming
// the first requested model.
func (r *Registry) FirstModel(models []string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range models {
		if _, ok := r.byModel[m]; ok {
			return m, nil
		}
	}
	want := "(none requested)"
	if len(models) > 0 {
		want = strings.Join(models, ", ")
	}
	return "", &ErrNoProvider{Model: want}
}
