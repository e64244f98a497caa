package gemini

import (
	"strings"
	"time"

	"github.com/nibaldox/chat-llm-terminal/model"
)

// Accumulator merges streaming chunk responses into one final response.
//
// Text deltas are concatenated, tool calls and grounding sources are
// collected in arrival order, and the last non-nil usage / finish reason
// wins.
type Accumulator struct {
	id           string
	model        string
	created      int64
	content      strings.Builder
	toolCalls    []model.ToolCall
	sources      []model.GroundingSource
	usage        *model.Usage
	finishReason *string
}

// Accumulate folds one streaming chunk into the accumulator.
func (a *Accumulator) Accumulate(rsp *model.Response) {
	if rsp == nil {
		return
	}
	if rsp.ID != "" {
		a.id = rsp.ID
	}
	if rsp.Model != "" {
		a.model = rsp.Model
	}
	if rsp.Created != 0 {
		a.created = rsp.Created
	}
	for _, choice := range rsp.Choices {
		a.content.WriteString(choice.Delta.Content)
		a.toolCalls = append(a.toolCalls, choice.Delta.ToolCalls...)
		if choice.FinishReason != nil {
			a.finishReason = choice.FinishReason
		}
	}
	a.sources = append(a.sources, rsp.GroundingSources...)
	if rsp.Usage != nil {
		a.usage = rsp.Usage
	}
}

// BuildResponse returns the final accumulated response with Done set.
func (a *Accumulator) BuildResponse() *model.Response {
	rsp := &model.Response{
		ID:      a.id,
		Object:  model.ObjectTypeChatCompletion,
		Created: a.created,
		Model:   a.model,
		Choices: []model.Choice{{
			Index: 0,
			Message: model.Message{
				Role:      model.RoleAssistant,
				Content:   a.content.String(),
				ToolCalls: a.toolCalls,
			},
			FinishReason: a.finishReason,
		}},
		GroundingSources: a.sources,
		Usage:            a.usage,
		Timestamp:        time.Now(),
		Done:             true,
	}
	return rsp
}
