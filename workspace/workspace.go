// Package workspace holds the agent and team definitions the engine runs.
//
// All entities live in memory for the process lifetime. A workspace can be
// snapshotted to JSON together with the conversation histories and
// reloaded verbatim.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/nibaldox/chat-llm-terminal/session"
)

// Agent is a named system prompt plus tool permissions.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Instructions string `json:"instructions"`
	Biography    string `json:"biography,omitempty"`
	// ToolIDs is the ordered set of enabled tool identifiers. At most one
	// of them may be the native-search marker, which takes exclusive
	// priority over all other tools for a turn.
	ToolIDs        []string `json:"toolIds,omitempty"`
	ExpectedOutput string   `json:"expectedOutput,omitempty"`
	// StyleGuide is advisory only and never transmitted to any backend.
	StyleGuide string `json:"styleGuide,omitempty"`
}

// Member references an agent by id. The reference is weak: it is resolved
// by lookup at run time and may dangle after the agent is deleted.
type Member struct {
	AgentID string `json:"agentId"`
}

// Team is an ordered pipeline of agents sharing an objective.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Objective string   `json:"objective"`
	Members   []Member `json:"members"`
}

// Snapshot is the JSON-serializable state of a workspace.
type Snapshot struct {
	Agents    []Agent                      `json:"agents"`
	Teams     []Team                       `json:"teams"`
	Histories map[string][]session.Message `json:"histories,omitempty"`
	ActiveID  string                       `json:"activeId,omitempty"`
}

// Workspace is an in-memory store of agents and teams.
type Workspace struct {
	mu       sync.RWMutex
	agents   []Agent
	teams    []Team
	activeID string
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{}
}

// AddAgent stores an agent, assigning an id when absent, and returns it.
func (w *Workspace) AddAgent(agent Agent) Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	w.agents = append(w.agents, agent)
	return agent
}

// UpdateAgent replaces the stored agent with the same id, full-field.
func (w *Workspace) UpdateAgent(agent Agent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.agents {
		if w.agents[i].ID == agent.ID {
			w.agents[i] = agent
			return nil
		}
	}
	return fmt.Errorf("agent %s not found", agent.ID)
}

// DeleteAgent removes an agent by id and strips it from every team's
// member list. Teams referencing it are never deleted.
func (w *Workspace) DeleteAgent(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.agents {
		if w.agents[i].ID == id {
			w.agents = append(w.agents[:i], w.agents[i+1:]...)
			break
		}
	}
	for i := range w.teams {
		members := w.teams[i].Members[:0]
		for _, m := range w.teams[i].Members {
			if m.AgentID != id {
				members = append(members, m)
			}
		}
		w.teams[i].Members = members
	}
}

// Agent returns the agent with the given id.
func (w *Workspace) Agent(id string) (Agent, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, a := range w.agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// Agents returns all agents in insertion order.
func (w *Workspace) Agents() []Agent {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Agent, len(w.agents))
	copy(out, w.agents)
	return out
}

// AddTeam stores a team, assigning an id when absent, and returns it.
func (w *Workspace) AddTeam(team Team) Team {
	w.mu.Lock()
	defer w.mu.Unlock()
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	w.teams = append(w.teams, team)
	return team
}

// UpdateTeam replaces the stored team with the same id, full-field.
func (w *Workspace) UpdateTeam(team Team) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.teams {
		if w.teams[i].ID == team.ID {
			w.teams[i] = team
			return nil
		}
	}
	return fmt.Errorf("team %s not found", team.ID)
}

// DeleteTeam removes a team by id.
func (w *Workspace) DeleteTeam(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.teams {
		if w.teams[i].ID == id {
			w.teams = append(w.teams[:i], w.teams[i+1:]...)
			return
		}
	}
}

// Team returns the team with the given id.
func (w *Workspace) Team(id string) (Team, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, t := range w.teams {
		if t.ID == id {
			return t, true
		}
	}
	return Team{}, false
}

// Teams returns all teams in insertion order.
func (w *Workspace) Teams() []Team {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Team, len(w.teams))
	copy(out, w.teams)
	return out
}

// SetActiveID records which agent or team the user is chatting with.
func (w *Workspace) SetActiveID(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activeID = id
}

// ActiveID returns the currently selected agent or team id.
func (w *Workspace) ActiveID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.activeID
}

// Snapshot captures agents, teams and the active id, merging in the given
// histories (may be nil).
func (w *Workspace) Snapshot(histories map[string][]session.Message) Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := Snapshot{
		Agents:    make([]Agent, len(w.agents)),
		Teams:     make([]Team, len(w.teams)),
		Histories: histories,
		ActiveID:  w.activeID,
	}
	copy(snap.Agents, w.agents)
	copy(snap.Teams, w.teams)
	return snap
}

// Restore replaces the workspace contents with the snapshot's.
func (w *Workspace) Restore(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents = make([]Agent, len(snap.Agents))
	copy(w.agents, snap.Agents)
	w.teams = make([]Team, len(snap.Teams))
	copy(w.teams, snap.Teams)
	w.activeID = snap.ActiveID
}

// Save writes a snapshot to a JSON file.
func Save(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot from a JSON file.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return snap, nil
}
