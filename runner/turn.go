package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/nibaldox/chat-llm-terminal/model"
	"github.com/nibaldox/chat-llm-terminal/session"
	"github.com/nibaldox/chat-llm-terminal/telemetry/trace"
	"github.com/nibaldox/chat-llm-terminal/tool"
	"github.com/nibaldox/chat-llm-terminal/workspace"
)

// statusSeparator sits between the tool status line and the continuation
// text, so the status line stays visible above the final answer.
const statusSeparator = "\n\n"

// runAgentTurn executes one single-agent turn: a streaming call, an
// optional tool round-trip, and for search-grounded turns the trailing
// source list.
func (r *Runner) runAgentTurn(ctx context.Context, entityID string, agent workspace.Agent,
	m model.Model, updates chan<- Update) {
	ctx, span := trace.Tracer.Start(ctx, "invoke_agent "+agent.Name)
	defer span.End()

	searchGrounding := slices.Contains(agent.ToolIDs, tool.IDGoogleSearch)
	var tools map[string]tool.Tool
	if !searchGrounding {
		// The native-search marker takes exclusive priority; otherwise the
		// enabled subset with declarations rides along.
		tools = r.registry.Tools(agent.ToolIDs)
	}
	if len(tools) == 0 {
		tools = nil
	}

	req := &model.Request{
		Messages:         r.buildMessages(entityID, agent),
		GenerationConfig: model.GenerationConfig{Stream: true},
		Tools:            tools,
		SearchGrounding:  searchGrounding,
	}

	msg := session.NewMessage(session.RoleModel, "")
	final, created, ok := r.streamToMessage(ctx, entityID, m, req, &msg, "", false, updates)
	if !ok {
		return
	}

	if searchGrounding {
		// One final non-incremental update with the deduplicated source
		// list, not a fresh delta sequence.
		msg.Content += sourcesMarkdown(final.GroundingSources)
		r.push(ctx, entityID, updates, msg, !created, true)
		return
	}

	calls := finalToolCalls(final)
	if len(calls) == 0 {
		// No calls: the first stream is the whole answer.
		r.push(ctx, entityID, updates, msg, !created, true)
		return
	}

	status := statusLine(calls)
	contMsg := session.NewMessage(session.RoleModel, status)
	if !r.push(ctx, entityID, updates, contMsg, true, false) {
		return
	}

	toolMsgs, chart := r.executeToolCalls(ctx, calls)

	contReq := &model.Request{
		Messages: append(slices.Clone(req.Messages),
			append([]model.Message{assistantCallMessage(msg.Content, calls)}, toolMsgs...)...),
		GenerationConfig: model.GenerationConfig{Stream: true},
		Tools:            tools,
	}
	if _, _, ok := r.streamToMessage(ctx, entityID, m, contReq, &contMsg,
		status+statusSeparator, true, updates); !ok {
		return
	}
	contMsg.Chart = chart
	r.push(ctx, entityID, updates, contMsg, false, true)
}

// streamToMessage consumes one streaming call, growing msg in place. Every
// partial replaces the message content with prefix plus the accumulated
// text. It returns the final accumulated response, whether the message was
// created, and whether the turn may continue; on a fault it emits exactly
// one error-flagged update (creating the message empty-first when the
// fault precedes any delta) and returns ok=false.
func (r *Runner) streamToMessage(ctx context.Context, entityID string, m model.Model,
	req *model.Request, msg *session.Message, prefix string, created bool,
	updates chan<- Update) (*model.Response, bool, bool) {
	ch, err := m.GenerateContent(ctx, req)
	if err != nil {
		r.failTurn(ctx, entityID, updates, msg, created, err.Error())
		return nil, true, false
	}

	var acc strings.Builder
	var final *model.Response
	for rsp := range ch {
		if rsp.Error != nil {
			r.failTurn(ctx, entityID, updates, msg, created, rsp.Error.Message)
			return nil, true, false
		}
		if rsp.IsPartial {
			if len(rsp.Choices) > 0 {
				acc.WriteString(rsp.Choices[0].Delta.Content)
			}
			msg.Content = prefix + acc.String()
			if !r.push(ctx, entityID, updates, *msg, !created, false) {
				return nil, created, false
			}
			created = true
			continue
		}
		if rsp.Done {
			final = rsp
		}
	}
	if final == nil {
		reason := "stream ended unexpectedly"
		if ctx.Err() != nil {
			reason = ctx.Err().Error()
		}
		r.failTurn(ctx, entityID, updates, msg, created, reason)
		return nil, true, false
	}
	if acc.Len() == 0 && len(final.Choices) > 0 {
		msg.Content = prefix + final.Choices[0].Message.Content
	}
	return final, created, true
}

// failTurn ends the turn with a single error-flagged model message.
func (r *Runner) failTurn(ctx context.Context, entityID string, updates chan<- Update,
	msg *session.Message, created bool, text string) {
	msg.Content = text
	msg.IsError = true
	r.push(ctx, entityID, updates, *msg, !created, true)
}

// executeToolCalls fans the requested calls out on a worker pool and waits
// for all of them to settle. Each call yields one tool message; a failing
// tool yields its error payload, never a fault. The first chart payload
// produced by any tool is returned for attachment to the visible message.
func (r *Runner) executeToolCalls(ctx context.Context, calls []model.ToolCall) ([]model.Message, json.RawMessage) {
	outs := make([]any, len(calls))
	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(len(calls), func(arg any) {
		defer wg.Done()
		i := arg.(int)
		outs[i] = r.registry.Execute(ctx, calls[i].Function.Name, calls[i].Function.Arguments)
	})
	if err == nil {
		defer pool.Release()
		for i := range calls {
			wg.Add(1)
			if err := pool.Invoke(i); err != nil {
				outs[i] = tool.ErrorResult{Error: err.Error()}
				wg.Done()
			}
		}
		wg.Wait()
	} else {
		for i := range calls {
			outs[i] = r.registry.Execute(ctx, calls[i].Function.Name, calls[i].Function.Arguments)
		}
	}

	var chart json.RawMessage
	msgs := make([]model.Message, 0, len(calls))
	for i, out := range outs {
		switch cr := out.(type) {
		case tool.ChartResult:
			if chart == nil {
				chart = cr.Chart
			}
			out = cr.Value
		case *tool.ChartResult:
			if chart == nil {
				chart = cr.Chart
			}
			out = cr.Value
		}
		payload, err := json.Marshal(out)
		if err != nil {
			payload, _ = json.Marshal(tool.ErrorResult{Error: err.Error()})
		}
		msgs = append(msgs, model.NewToolMessage(calls[i].ID, calls[i].Function.Name, string(payload)))
	}
	return msgs, chart
}

// buildMessages assembles the backend history: the agent's system prompt
// followed by the stored conversation. Progress and error entries never
// reach a backend.
func (r *Runner) buildMessages(entityID string, agent workspace.Agent) []model.Message {
	msgs := []model.Message{model.NewSystemMessage(systemPrompt(agent))}
	for _, m := range r.sessions.History(entityID) {
		if m.IsError || m.Role == session.RoleSystem || m.Content == "" {
			continue
		}
		if m.Role == session.RoleUser {
			msgs = append(msgs, model.NewUserMessage(m.Content))
			continue
		}
		msgs = append(msgs, model.NewAssistantMessage(m.Content))
	}
	return msgs
}

// systemPrompt builds the transmitted system instructions. StyleGuide is
// advisory only and never leaves the workspace.
func systemPrompt(agent workspace.Agent) string {
	var b strings.Builder
	b.WriteString(agent.Instructions)
	if agent.ExpectedOutput != "" {
		b.WriteString("\n\nExpected output: ")
		b.WriteString(agent.ExpectedOutput)
	}
	return b.String()
}

func assistantCallMessage(content string, calls []model.ToolCall) model.Message {
	return model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	}
}

func finalToolCalls(final *model.Response) []model.ToolCall {
	if final == nil || len(final.Choices) == 0 {
		return nil
	}
	return final.Choices[0].Message.ToolCalls
}

// statusLine describes which tools are being invoked with which arguments.
func statusLine(calls []model.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, c := range calls {
		args := strings.TrimSpace(string(c.Function.Arguments))
		if args == "" {
			args = "{}"
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", c.Function.Name, args))
	}
	return "Using tools: " + strings.Join(parts, ", ")
}

// sourcesMarkdown formats grounding sources as a markdown list,
// deduplicated by URI. It returns "" when no URL-bearing source exists.
func sourcesMarkdown(sources []model.GroundingSource) string {
	seen := make(map[string]bool, len(sources))
	var b strings.Builder
	for _, s := range sources {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		if b.Len() == 0 {
			b.WriteString("\n\nSources:\n")
		}
		title := s.Title
		if title == "" {
			title = s.URI
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, s.URI)
	}
	return b.String()
}
