// Package handlers models the response handlers: configured personas, each
// bound to one backing model, prompt, and trigger words. Handlers differ
// only in data; one Responder drives them all.
package handlers

import (
	"fmt"
	"strings"
)

// Handler is one configured responder.
type Handler struct {
	Name           string   `json:"name"`
	Model          string   `json:"model"`
	Provider       string   `json:"provider"`
	TriggerWords   []string `json:"trigger_words,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	Temperature    float64  `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	SupportsVision bool     `json:"supports_vision,omitempty"`
}

// Registry maps canonical handler names to instances. Built once at
// startup; lookups never mutate it.
type Registry struct {
	byName      map[string]*Handler
	order       []string
	defaultName string
}

// NewRegistry builds a registry from the configured handlers. defaultName
// must name one of them.
func NewRegistry(specs []Handler, defaultName string) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no handlers configured")
	}
	r := &Registry{byName: make(map[string]*Handler, len(specs))}
	for i := range specs {
		h := &specs[i]
		key := canonical(h.Name)
		if key == "" {
			return nil, fmt.Errorf("handler %d has an empty name", i)
		}
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate handler name %q", h.Name)
		}
		r.byName[key] = h
		r.order = append(r.order, key)
	}
	key := canonical(defaultName)
	if _, ok := r.byName[key]; !ok {
		return nil, fmt.Errorf("default handler %q is not configured", defaultName)
	}
	r.defaultName = key
	return r, nil
}

// Lookup returns the handler with exactly the given name.
func (r *Registry) Lookup(name string) (*Handler, bool) {
	h, ok := r.byName[canonical(name)]
	return h, ok
}

// Resolve maps free-text classifier output to a handler: exact match
// first, then the first handler whose name contains (or is contained by)
// the candidate. Returns false when nothing matches.
func (r *Registry) Resolve(name string) (*Handler, bool) {
	key := canonical(name)
	if key == "" {
		return nil, false
	}
	if h, ok := r.byName[key]; ok {
		return h, true
	}
	for _, k := range r.order {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return r.byName[k], true
		}
	}
	return nil, false
}

// Default returns the fallback handler.
func (r *Registry) Default() *Handler {
	return r.byName[r.defaultName]
}

// ByTrigger returns the first handler whose trigger word appears as a
// whole word in the content.
func (r *Registry) ByTrigger(content string) (*Handler, bool) {
	words := fields(content)
	for _, k := range r.order {
		h := r.byName[k]
		for _, trigger := range h.TriggerWords {
			if words[canonical(trigger)] {
				return h, true
			}
		}
	}
	return nil, false
}

// All returns the handlers in configuration order.
func (r *Registry) All() []*Handler {
	out := make([]*Handler, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byName[k])
	}
	return out
}

func canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func fields(content string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		out[strings.Trim(w, ".,!?;:'\"()[]{}")] = true
	}
	return out
}
