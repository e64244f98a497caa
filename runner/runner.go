// Package runner drives chat turns: it routes a user message to the
// selected backend, manages the incremental-update contract, coordinates
// tool-calling round-trips, and executes team pipelines.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nibaldox/chat-llm-terminal/model"
	"github.com/nibaldox/chat-llm-terminal/session"
	"github.com/nibaldox/chat-llm-terminal/tool"
	"github.com/nibaldox/chat-llm-terminal/workspace"
)

// Provider identifies one of the configured backends.
type Provider string

// The closed set of supported providers.
const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
)

// IsValid checks whether the provider is one of the supported ones.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGemini, ProviderOpenRouter, ProviderGroq:
		return true
	default:
		return false
	}
}

// Update is one incremental change to the visible conversation. The first
// update for a message id appends a new message; every later update with
// the same id replaces that message's content in place.
type Update struct {
	MessageID string
	Role      session.Role
	Content   string
	IsError   bool
	Chart     json.RawMessage
	// First marks the update that creates the message.
	First bool
	// Done marks the last update of the turn.
	Done bool
}

// ErrTurnInFlight is returned by Send while a previous turn is still
// streaming or a team is still executing.
var ErrTurnInFlight = errors.New("a turn is already in flight")

const defaultUpdateBufferSize = 64

type options struct {
	sessions         *session.Service
	registry         *tool.Registry
	models           map[Provider]model.Model
	provider         Provider
	updateBufferSize int
}

// Option configures a Runner.
type Option func(*options)

// WithModel registers the model used for a provider.
func WithModel(p Provider, m model.Model) Option {
	return func(o *options) {
		o.models[p] = m
	}
}

// WithProvider selects the initially active provider.
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithRegistry sets the tool registry. An empty registry is used when
// omitted.
func WithRegistry(r *tool.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithSessionService sets the history store. A fresh in-memory store is
// used when omitted.
func WithSessionService(s *session.Service) Option {
	return func(o *options) {
		o.sessions = s
	}
}

// WithUpdateBufferSize sets the update channel buffer size, 64 by default.
func WithUpdateBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.updateBufferSize = size
		}
	}
}

// Runner owns the workspace, the histories and the configured backends.
// One Runner handles one logical conversation: a new send is rejected
// while a prior turn is in flight.
type Runner struct {
	workspace        *workspace.Workspace
	sessions         *session.Service
	registry         *tool.Registry
	models           map[Provider]model.Model
	provider         atomic.Value // Provider
	updateBufferSize int
	busy             atomic.Bool
}

// New creates a runner over the given workspace. At least one model must
// be configured.
func New(ws *workspace.Workspace, opts ...Option) (*Runner, error) {
	if ws == nil {
		return nil, errors.New("workspace cannot be nil")
	}
	o := options{
		models:           make(map[Provider]model.Model),
		provider:         ProviderGemini,
		updateBufferSize: defaultUpdateBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.models) == 0 {
		return nil, errors.New("at least one model must be configured")
	}
	if !o.provider.IsValid() {
		return nil, fmt.Errorf("unknown provider: %s", o.provider)
	}
	if o.sessions == nil {
		o.sessions = session.NewService()
	}
	if o.registry == nil {
		o.registry = tool.NewRegistry()
	}

	r := &Runner{
		workspace:        ws,
		sessions:         o.sessions,
		registry:         o.registry,
		models:           o.models,
		updateBufferSize: o.updateBufferSize,
	}
	r.provider.Store(o.provider)
	return r, nil
}

// Workspace returns the workspace the runner operates on.
func (r *Runner) Workspace() *workspace.Workspace {
	return r.workspace
}

// Sessions returns the history store.
func (r *Runner) Sessions() *session.Service {
	return r.sessions
}

// Registry returns the tool registry.
func (r *Runner) Registry() *tool.Registry {
	return r.registry
}

// Provider returns the active provider.
func (r *Runner) Provider() Provider {
	return r.provider.Load().(Provider)
}

// SetProvider switches the active provider for subsequent turns.
func (r *Runner) SetProvider(p Provider) error {
	if !p.IsValid() {
		return fmt.Errorf("unknown provider: %s", p)
	}
	r.provider.Store(p)
	return nil
}

// Send starts one turn for the agent or team identified by entityID and
// returns the stream of incremental updates. The channel is closed when
// the turn finishes.
//
// A literal input of "clear" (case-insensitive, whitespace-trimmed) is a
// local command: it empties the entity's history without any network call
// and returns an already-closed channel.
func (r *Runner) Send(ctx context.Context, entityID, text string) (<-chan Update, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}

	trimmed := strings.TrimSpace(text)
	if strings.EqualFold(trimmed, "clear") {
		r.sessions.Clear(entityID)
		r.busy.Store(false)
		updates := make(chan Update)
		close(updates)
		return updates, nil
	}

	m, ok := r.models[r.Provider()]
	if !ok {
		r.busy.Store(false)
		return nil, fmt.Errorf("no model configured for provider %s", r.Provider())
	}

	if team, ok := r.workspace.Team(entityID); ok {
		updates := make(chan Update, r.updateBufferSize)
		r.sessions.Append(entityID, session.NewMessage(session.RoleUser, trimmed))
		go func() {
			defer close(updates)
			defer r.busy.Store(false)
			r.runTeam(ctx, team, m, trimmed, updates)
		}()
		return updates, nil
	}

	agent, ok := r.workspace.Agent(entityID)
	if !ok {
		r.busy.Store(false)
		return nil, fmt.Errorf("unknown agent or team: %s", entityID)
	}

	updates := make(chan Update, r.updateBufferSize)
	r.sessions.Append(entityID, session.NewMessage(session.RoleUser, trimmed))
	go func() {
		defer close(updates)
		defer r.busy.Store(false)
		r.runAgentTurn(ctx, entityID, agent, m, updates)
	}()
	return updates, nil
}

// push mirrors a message into the session service and forwards the
// corresponding update. It reports false when the context is cancelled.
func (r *Runner) push(ctx context.Context, entityID string, updates chan<- Update,
	msg session.Message, first, done bool) bool {
	r.sessions.Upsert(entityID, msg)
	u := Update{
		MessageID: msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		IsError:   msg.IsError,
		Chart:     msg.Chart,
		First:     first,
		Done:      done,
	}
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
