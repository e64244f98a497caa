package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nibaldox/chat-llm-terminal/model"
	"github.com/nibaldox/chat-llm-terminal/session"
	"github.com/nibaldox/chat-llm-terminal/workspace"
)

func newTeamRunner(t *testing.T, fake *fakeModel) (*Runner, workspace.Team, []workspace.Agent) {
	t.Helper()
	ws := workspace.New()
	agents := []workspace.Agent{
		ws.AddAgent(workspace.Agent{Name: "Researcher", Instructions: "research"}),
		ws.AddAgent(workspace.Agent{Name: "Analyst", Instructions: "analyze"}),
		ws.AddAgent(workspace.Agent{Name: "Writer", Instructions: "write"}),
	}
	team := ws.AddTeam(workspace.Team{
		Name:      "Report Crew",
		Objective: "produce a report",
		Members: []workspace.Member{
			{AgentID: agents[0].ID},
			{AgentID: agents[1].ID},
			{AgentID: agents[2].ID},
		},
	})
	r, err := New(ws, WithModel(ProviderGemini, fake))
	require.NoError(t, err)
	return r, team, agents
}

func systemUpdates(updates []Update) []Update {
	var out []Update
	for _, u := range updates {
		if u.Role == session.RoleSystem {
			out = append(out, u)
		}
	}
	return out
}

func TestTeamPipelineHappyPath(t *testing.T) {
	fake := &fakeModel{script: []scriptedCall{
		{responses: []*model.Response{finalText("facts")}},
		{responses: []*model.Response{finalText("analysis")}},
		{responses: []*model.Response{finalText("the report")}},
	}}
	r, team, _ := newTeamRunner(t, fake)

	ch, err := r.Send(context.Background(), team.ID, "write about gold")
	require.NoError(t, err)
	updates := drain(t, ch)

	require.Equal(t, 3, fake.callCount())

	// Steps are stateless: a single composite user message, no tools, no
	// streaming.
	for i, req := range fake.calls {
		require.Len(t, req.Messages, 1, "call %d", i)
		assert.Equal(t, model.RoleUser, req.Messages[0].Role)
		assert.Empty(t, req.Tools)
		assert.False(t, req.Stream)
	}

	// The first step sees the no-prior-results marker, later steps see the
	// accumulated tagged results.
	assert.Contains(t, fake.calls[0].Messages[0].Content, "research")
	assert.Contains(t, fake.calls[0].Messages[0].Content, "produce a report")
	assert.Contains(t, fake.calls[0].Messages[0].Content, "write about gold")
	assert.Contains(t, fake.calls[0].Messages[0].Content, noPriorResults)
	assert.Contains(t, fake.calls[1].Messages[0].Content, "**Researcher**:\nfacts")
	assert.Contains(t, fake.calls[2].Messages[0].Content, "**Researcher**:\nfacts")
	assert.Contains(t, fake.calls[2].Messages[0].Content, "**Analyst**:\nanalysis")
	assert.NotContains(t, fake.calls[1].Messages[0].Content, noPriorResults)

	// Final model message is the last member's tagged output.
	finals := modelUpdates(updates)
	require.Len(t, finals, 1)
	assert.True(t, finals[0].Done)
	assert.Equal(t, "**Writer**:\nthe report", finals[0].Content)

	history := r.Sessions().History(team.ID)
	last := history[len(history)-1]
	assert.Equal(t, session.RoleModel, last.Role)
	assert.Equal(t, "**Writer**:\nthe report", last.Content)
}

// An unresolved member reference skips that step only; the pipeline
// continues to the next member.
func TestTeamPipelineSkipsUnresolvedMember(t *testing.T) {
	fake := &fakeModel{script: []scriptedCall{
		{responses: []*model.Response{finalText("facts")}},
		{responses: []*model.Response{finalText("the report")}},
	}}
	r, team, _ := newTeamRunner(t, fake)
	team.Members[1].AgentID = "ghost"
	require.NoError(t, r.Workspace().UpdateTeam(team))

	ch, err := r.Send(context.Background(), team.ID, "go")
	require.NoError(t, err)
	updates := drain(t, ch)

	assert.Equal(t, 2, fake.callCount(), "members 1 and 3 still run")

	errored := 0
	for _, u := range systemUpdates(updates) {
		if u.IsError {
			errored++
			assert.Contains(t, u.Content, "ghost")
		}
	}
	assert.Equal(t, 1, errored, "exactly one error message for the skipped member")

	finals := modelUpdates(updates)
	require.Len(t, finals, 1)
	assert.Equal(t, "**Writer**:\nthe report", finals[0].Content)
}

// A backend failure aborts the pipeline: no call is made for later
// members.
func TestTeamPipelineAbortsOnHardFailure(t *testing.T) {
	fake := &fakeModel{script: []scriptedCall{
		{responses: []*model.Response{finalText("facts")}},
		{responses: []*model.Response{errResponse("API error (status 500): boom")}},
	}}
	r, team, _ := newTeamRunner(t, fake)

	ch, err := r.Send(context.Background(), team.ID, "go")
	require.NoError(t, err)
	updates := drain(t, ch)

	assert.Equal(t, 2, fake.callCount(), "member 3 is never called")

	var errored []Update
	for _, u := range systemUpdates(updates) {
		if u.IsError {
			errored = append(errored, u)
		}
	}
	require.Len(t, errored, 1)
	assert.Contains(t, errored[0].Content, "Analyst")
	assert.Contains(t, errored[0].Content, "boom")

	// The error marker lands in the buffer and becomes the terminal
	// message.
	finals := modelUpdates(updates)
	require.Len(t, finals, 1)
	assert.Contains(t, finals[0].Content, "**Analyst**:")
	assert.Contains(t, finals[0].Content, "boom")
}

func TestTeamPipelineNoResultFallback(t *testing.T) {
	fake := &fakeModel{}
	ws := workspace.New()
	team := ws.AddTeam(workspace.Team{Name: "Empty", Objective: "nothing"})
	r, err := New(ws, WithModel(ProviderGemini, fake))
	require.NoError(t, err)

	ch, err := r.Send(context.Background(), team.ID, "go")
	require.NoError(t, err)
	updates := drain(t, ch)

	assert.Zero(t, fake.callCount())
	finals := modelUpdates(updates)
	require.Len(t, finals, 1)
	assert.Equal(t, noResultFallback, finals[0].Content)
}

func TestTeamAnnouncements(t *testing.T) {
	fake := &fakeModel{script: []scriptedCall{
		{responses: []*model.Response{finalText("facts")}},
		{responses: []*model.Response{finalText("analysis")}},
		{responses: []*model.Response{finalText("report")}},
	}}
	r, team, _ := newTeamRunner(t, fake)

	ch, err := r.Send(context.Background(), team.ID, "go")
	require.NoError(t, err)
	updates := systemUpdates(drain(t, ch))

	require.NotEmpty(t, updates)
	assert.Contains(t, updates[0].Content, "Report Crew")
	assert.Contains(t, updates[0].Content, "produce a report")
	assert.Contains(t, updates[len(updates)-1].Content, "finished")

	dispatched := 0
	completed := 0
	for _, u := range updates {
		if strings.Contains(u.Content, "Dispatching") {
			dispatched++
		}
		if strings.Contains(u.Content, "completed") {
			completed++
		}
	}
	assert.Equal(t, 3, dispatched)
	assert.Equal(t, 3, completed)
}

func TestFinalizeTeamResult(t *testing.T) {
	assert.Equal(t, noResultFallback, finalizeTeamResult(""))
	assert.Equal(t, "**A**:\nonly", finalizeTeamResult("**A**:\nonly"))
	buffer := appendResult(appendResult("", "A", "first"), "B", "second")
	assert.Equal(t, "**B**:\nsecond", finalizeTeamResult(buffer))
}
