// Package session stores per-entity conversation histories.
//
// A history is an ordered list of whole messages keyed by the agent or
// team id that owns it. While a response streams, the same message id is
// reused and its content replaced in place, so mutation is always
// whole-message append or whole-message replace.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	// RoleUser is a message typed by the user.
	RoleUser Role = "user"
	// RoleModel is a message produced by a backend.
	RoleModel Role = "model"
	// RoleSystem is a progress or status message produced by the engine.
	RoleSystem Role = "system"
)

// Message is one entry of a conversation history.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
	// Chart is an opaque payload attached by a tool. The engine never
	// interprets it.
	Chart     json.RawMessage `json:"chart,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Service is an in-memory history store. The zero value is not usable;
// use NewService.
type Service struct {
	mu        sync.Mutex
	histories map[string][]Message
}

// NewService creates an empty history store.
func NewService() *Service {
	return &Service{histories: make(map[string][]Message)}
}

// History returns a copy of the history for the given entity id.
func (s *Service) History(entityID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[entityID]
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Append adds a message to the end of the entity's history.
func (s *Service) Append(entityID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[entityID] = append(s.histories[entityID], msg)
}

// Upsert replaces the message with the same id in place, or appends it
// when no message with that id exists yet.
func (s *Service) Upsert(entityID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.histories[entityID]
	for i := range history {
		if history[i].ID == msg.ID {
			history[i] = msg
			return
		}
	}
	s.histories[entityID] = append(history, msg)
}

// Clear removes the entity's history.
func (s *Service) Clear(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, entityID)
}

// Export returns a deep copy of all histories for snapshotting.
func (s *Service) Export() map[string][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Message, len(s.histories))
	for id, history := range s.histories {
		msgs := make([]Message, len(history))
		copy(msgs, history)
		out[id] = msgs
	}
	return out
}

// Restore replaces all histories with the given snapshot.
func (s *Service) Restore(histories map[string][]Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = make(map[string][]Message, len(histories))
	for id, history := range histories {
		msgs := make([]Message, len(history))
		copy(msgs, history)
		s.histories[id] = msgs
	}
}
