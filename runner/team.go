package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nibaldox/chat-llm-terminal/model"
	"github.com/nibaldox/chat-llm-terminal/session"
	"github.com/nibaldox/chat-llm-terminal/telemetry/trace"
	"github.com/nibaldox/chat-llm-terminal/workspace"
)

const (
	// resultSeparator joins step results in the accumulating buffer. The
	// final team message is whatever follows the last separator.
	resultSeparator = "\n\n---\n\n"
	// noPriorResults marks the first step's prompt, which has no
	// predecessors to build on.
	noPriorResults = "(no prior results)"
	// noResultFallback is the terminal message when no step ever produced
	// output.
	noResultFallback = "The team did not produce a final result."
)

// runTeam executes a team's members strictly sequentially. An unresolved
// member reference skips that step only; a backend failure aborts the
// pipeline. Each step's prompt carries the concatenation of all prior
// results.
func (r *Runner) runTeam(ctx context.Context, team workspace.Team, m model.Model,
	userText string, updates chan<- Update) {
	ctx, span := trace.Tracer.Start(ctx, "invoke_team "+team.Name)
	defer span.End()

	r.pushSystem(ctx, team.ID, updates,
		fmt.Sprintf("Team %q started. Objective: %s", team.Name, team.Objective), false)

	var buffer string
	for _, member := range team.Members {
		agent, ok := r.workspace.Agent(member.AgentID)
		if !ok {
			// Unresolved reference: skip this step, the pipeline continues.
			r.pushSystem(ctx, team.ID, updates,
				fmt.Sprintf("Skipping team member: agent %s not found.", member.AgentID), true)
			continue
		}

		r.pushSystem(ctx, team.ID, updates,
			fmt.Sprintf("Dispatching to agent %q...", agent.Name), false)

		stepCtx, stepSpan := trace.Tracer.Start(ctx, "team_step "+agent.Name)
		result, err := r.generateOnce(stepCtx, m,
			compositePrompt(agent, team.Objective, userText, buffer))
		stepSpan.End()

		if err != nil {
			// Hard failure: record it and stop processing further members.
			r.pushSystem(ctx, team.ID, updates,
				fmt.Sprintf("Agent %q failed: %v", agent.Name, err), true)
			buffer = appendResult(buffer, agent.Name, "Error: "+err.Error())
			break
		}

		buffer = appendResult(buffer, agent.Name, result)
		r.pushSystem(ctx, team.ID, updates,
			fmt.Sprintf("Agent %q completed.", agent.Name), false)
	}

	r.pushSystem(ctx, team.ID, updates, fmt.Sprintf("Team %q finished.", team.Name), false)

	msg := session.NewMessage(session.RoleModel, finalizeTeamResult(buffer))
	r.push(ctx, team.ID, updates, msg, true, true)
}

// generateOnce issues a single non-streaming call with no tools and no
// history and returns the response text.
func (r *Runner) generateOnce(ctx context.Context, m model.Model, prompt string) (string, error) {
	ch, err := m.GenerateContent(ctx, &model.Request{
		Messages: []model.Message{model.NewUserMessage(prompt)},
	})
	if err != nil {
		return "", err
	}
	var final *model.Response
	for rsp := range ch {
		if rsp.Error != nil {
			return "", errors.New(rsp.Error.Message)
		}
		if rsp.Done {
			final = rsp
		}
	}
	if final == nil || len(final.Choices) == 0 {
		return "", errors.New("backend returned no response")
	}
	return final.Choices[0].Message.Content, nil
}

// compositePrompt frames one stateless step: the agent's own instructions,
// the shared objective, the original request and everything produced so
// far.
func compositePrompt(agent workspace.Agent, objective, request, prior string) string {
	if prior == "" {
		prior = noPriorResults
	}
	return fmt.Sprintf("%s\n\nTeam objective: %s\n\nOriginal request: %s\n\nPrevious results:\n%s",
		agent.Instructions, objective, request, prior)
}

// appendResult adds a result tagged with the producing agent's name to the
// buffer.
func appendResult(buffer, agentName, result string) string {
	entry := fmt.Sprintf("**%s**:\n%s", agentName, result)
	if buffer == "" {
		return entry
	}
	return buffer + resultSeparator + entry
}

// finalizeTeamResult extracts the last member's output from the buffer.
func finalizeTeamResult(buffer string) string {
	if buffer == "" {
		return noResultFallback
	}
	if idx := strings.LastIndex(buffer, resultSeparator); idx >= 0 {
		return buffer[idx+len(resultSeparator):]
	}
	return buffer
}

// pushSystem emits one system progress or error message.
func (r *Runner) pushSystem(ctx context.Context, entityID string, updates chan<- Update,
	text string, isError bool) bool {
	msg := session.NewMessage(session.RoleSystem, text)
	msg.IsError = isError
	return r.push(ctx, entityID, updates, msg, true, false)
}
