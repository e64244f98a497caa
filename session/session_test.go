package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndHistory(t *testing.T) {
	s := NewService()
	s.Append("agent-1", NewMessage(RoleUser, "hi"))
	s.Append("agent-1", NewMessage(RoleModel, "hello"))
	s.Append("agent-2", NewMessage(RoleUser, "other"))

	history := s.History("agent-1")
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[1].Content)
	assert.Len(t, s.History("agent-2"), 1)
	assert.Empty(t, s.History("missing"))
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewService()
	s.Append("agent-1", NewMessage(RoleUser, "original"))

	history := s.History("agent-1")
	history[0].Content = "mutated"
	assert.Equal(t, "original", s.History("agent-1")[0].Content)
}

// Streaming reuses one message id: the same entry is replaced in place,
// never duplicated.
func TestUpsertReplacesInPlace(t *testing.T) {
	s := NewService()
	msg := NewMessage(RoleModel, "H")
	s.Upsert("agent-1", msg)

	msg.Content = "Hol"
	s.Upsert("agent-1", msg)
	msg.Content = "Hola"
	s.Upsert("agent-1", msg)

	history := s.History("agent-1")
	require.Len(t, history, 1)
	assert.Equal(t, "Hola", history[0].Content)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestUpsertAppendsUnknownID(t *testing.T) {
	s := NewService()
	s.Upsert("agent-1", NewMessage(RoleUser, "first"))
	s.Upsert("agent-1", NewMessage(RoleModel, "second"))
	assert.Len(t, s.History("agent-1"), 2)
}

func TestClear(t *testing.T) {
	s := NewService()
	s.Append("agent-1", NewMessage(RoleUser, "hi"))
	s.Clear("agent-1")
	assert.Empty(t, s.History("agent-1"))
}

func TestExportRestore(t *testing.T) {
	s := NewService()
	s.Append("agent-1", NewMessage(RoleUser, "hi"))
	s.Append("team-1", NewMessage(RoleSystem, "starting"))

	snapshot := s.Export()
	require.Len(t, snapshot, 2)

	restored := NewService()
	restored.Restore(snapshot)
	assert.Equal(t, s.History("agent-1"), restored.History("agent-1"))
	assert.Equal(t, s.History("team-1"), restored.History("team-1"))

	// The snapshot is detached from the restored service.
	snapshot["agent-1"][0].Content = "mutated"
	assert.Equal(t, "hi", restored.History("agent-1")[0].Content)
}
