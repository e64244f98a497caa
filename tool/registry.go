package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nibaldox/chat-llm-terminal/log"
)

// IDGoogleSearch is the marker id for provider-native web search grounding.
// It carries no declaration and no executor; when enabled on an agent it
// takes exclusive priority over every other tool for that turn.
const IDGoogleSearch = "google_search"

// ErrorResult is the payload fed back to the model when a tool execution
// fails. A failing tool degrades the turn, it never aborts it.
type ErrorResult struct {
	Error string `json:"error"`
}

// ChartResult wraps a tool result that carries an opaque chart payload.
// The orchestrator attaches Chart to the visible message without
// interpreting it; Value is what the model sees.
type ChartResult struct {
	Value any             `json:"value"`
	Chart json.RawMessage `json:"chart,omitempty"`
}

// Entry is one registered tool: a stable identifier, a human-readable
// label, and an optional callable implementation. Marker entries (such as
// IDGoogleSearch) have a nil Tool.
type Entry struct {
	ID    string
	Label string
	Tool  CallableTool
}

// Registry maps tool identifiers to entries, preserving registration order.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces an entry. Registration order is preserved for
// the first registration of each id.
func (r *Registry) Register(id, label string, t CallableTool) {
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = Entry{ID: id, Label: label, Tool: t}
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns all registered ids in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Declarations returns the declarations for the given enabled ids, in
// order, skipping unknown ids and marker entries without an
// implementation.
func (r *Registry) Declarations(ids []string) []*Declaration {
	var decls []*Declaration
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok || e.Tool == nil {
			continue
		}
		decls = append(decls, e.Tool.Declaration())
	}
	return decls
}

// Tools returns the callable tools for the given enabled ids, keyed by
// declared name, skipping unknown ids and markers.
func (r *Registry) Tools(ids []string) map[string]Tool {
	out := make(map[string]Tool)
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok || e.Tool == nil {
			continue
		}
		out[e.Tool.Declaration().Name] = e.Tool
	}
	return out
}

// Execute runs the tool registered under the declared name with the given
// JSON arguments. Execution failures, including panics, are converted into
// an ErrorResult value and never propagate as a fault.
func (r *Registry) Execute(ctx context.Context, name string, jsonArgs []byte) (result any) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("tool %s panicked: %v", name, rec)
			result = ErrorResult{Error: fmt.Sprintf("tool %s panicked: %v", name, rec)}
		}
	}()

	var target CallableTool
	for _, id := range r.order {
		e := r.entries[id]
		if e.Tool != nil && e.Tool.Declaration().Name == name {
			target = e.Tool
			break
		}
	}
	if target == nil {
		return ErrorResult{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	out, err := target.Call(ctx, jsonArgs)
	if err != nil {
		log.Warnf("tool %s failed: %v", name, err)
		return ErrorResult{Error: err.Error()}
	}
	return out
}
