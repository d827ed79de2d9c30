package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured candidates and the generator for each
// transport kind. The orchestrator dispatches through it, so adding a
// transport never touches orchestration code.
type Registry struct {
	mu         sync.RWMutex
	generators map[Kind]Generator
	byProvider map[string]Generator
	candidates []Candidate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[Kind]Generator),
		byProvider: make(map[string]Generator),
	}
}

// RegisterGenerator binds the generator for a transport kind.
func (r *Registry) RegisterGenerator(kind Kind, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[kind] = gen
}

// RegisterProvider binds a cloud generator under a provider name, so
// anthropic and openai resolve to their own transports within the
// cloud-api kind.
func (r *Registry) RegisterProvider(provider string, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byProvider[provider] = gen
}

// Generator returns the transport for a kind.
func (r *Registry) Generator(kind Kind) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gen, ok := r.generators[kind]
	if !ok {
		return nil, fmt.Errorf("no generator registered for kind %s", kind)
	}
	return gen, nil
}

// ProviderGenerator returns the cloud transport for a provider name.
func (r *Registry) ProviderGenerator(provider string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gen, ok := r.byProvider[provider]
	if !ok {
		return nil, fmt.Errorf("no generator registered for provider %s", provider)
	}
	return gen, nil
}

// SetCandidates replaces the configured candidate set.
func (r *Registry) SetCandidates(candidates []Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append([]Candidate(nil), candidates...)
}

// Candidates returns a copy of the configured candidates sorted by
// priority. Each orchestration call annotates its own copy.
func (r *Registry) Candidates() []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]Candidate(nil), r.candidates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// CandidatesByKind returns a copy of the candidates of one kind, sorted by
// priority.
func (r *Registry) CandidatesByKind(kind Kind) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Candidate
	for _, c := range r.candidates {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Compile-time checks that every transport satisfies Generator.
var (
	_ Generator = (*LocalHTTP)(nil)
	_ Generator = (*Anthropic)(nil)
	_ Generator = (*OpenAI)(nil)
	_ Generator = (*CLI)(nil)
)
