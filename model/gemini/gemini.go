// Package gemini provides Gemini-compatible model implementations.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/nibaldox/chat-llm-terminal/model"
	"github.com/nibaldox/chat-llm-terminal/tool"
)

// Model implements the model.Model interface for the Gemini API.
//
// Gemini is the only backend with tool-calling capability: a streaming
// response may interleave text deltas and structured function-call
// requests, and a request may enable native web-search grounding instead
// of custom function declarations (the two are mutually exclusive).
type Model struct {
	client            Client
	name              string
	channelBufferSize int
}

// New creates a new Gemini model.
//
// Credentials are resolved before any network call: an explicit client
// config wins, then WithAPIKey, then the GEMINI_API_KEY / GOOGLE_API_KEY
// environment variables. Missing credentials are a configuration error.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	if name == "" {
		return nil, errors.New("model name cannot be empty")
	}
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.geminiClientConfig
	if cfg == nil {
		apiKey := o.apiKey
		if apiKey == "" {
			apiKey = os.Getenv(geminiAPIKeyEnvVar)
		}
		if apiKey == "" {
			apiKey = os.Getenv(googleAPIKeyEnvVar)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("API key is required. Set it via WithAPIKey() or %s environment variable", geminiAPIKeyEnvVar)
		}
		cfg = &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Model{
		client:            &clientWrapper{client: client},
		name:              name,
		channelBufferSize: o.channelBufferSize,
	}, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents, generateConfig := m.convertRequest(request)
	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		if request.Stream {
			m.handleStreamingResponse(ctx, contents, responseChan, generateConfig)
		} else {
			m.handleNonStreamingResponse(ctx, contents, responseChan, generateConfig)
		}
	}()
	return responseChan, nil
}

// handleNonStreamingResponse handles non-streaming chat completion responses.
func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	contents []*genai.Content,
	responseChan chan<- *model.Response,
	generateConfig *genai.GenerateContentConfig,
) {
	chatCompletion, err := m.client.Models().GenerateContent(
		ctx, m.name, contents, generateConfig)
	if err != nil {
		sendResponse(ctx, responseChan, apiErrorResponse(err))
		return
	}
	sendResponse(ctx, responseChan, m.buildFinalResponse(chatCompletion))
}

// handleStreamingResponse handles streaming chat completion responses.
func (m *Model) handleStreamingResponse(
	ctx context.Context,
	contents []*genai.Content,
	responseChan chan<- *model.Response,
	generateConfig *genai.GenerateContentConfig,
) {
	chatCompletion := m.client.Models().GenerateContentStream(
		ctx, m.name, contents, generateConfig)
	acc := &Accumulator{}
	for chunk, err := range chatCompletion {
		if err != nil {
			sendResponse(ctx, responseChan, apiErrorResponse(err))
			return
		}
		response := m.buildChunkResponse(chunk)
		acc.Accumulate(response)
		if !sendResponse(ctx, responseChan, response) {
			return
		}
	}
	sendResponse(ctx, responseChan, acc.BuildResponse())
}

// convertContentBlock builds a single assistant message from Gemini candidates.
func (m *Model) convertContentBlock(candidates []*genai.Candidate) (model.Message, string, []model.GroundingSource) {
	var (
		text         string
		toolCalls    []model.ToolCall
		finishReason string
		sources      []model.GroundingSource
	)
	for _, candidate := range candidates {
		if candidate.FinishReason != "" {
			finishReason = string(candidate.FinishReason)
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" && !part.Thought {
					text += part.Text
				}
				if part.FunctionCall != nil {
					args, _ := json.Marshal(part.FunctionCall.Args)
					toolCalls = append(toolCalls, model.ToolCall{
						Type: "function",
						ID:   part.FunctionCall.ID,
						Function: model.FunctionDefinitionParam{
							Name:      part.FunctionCall.Name,
							Arguments: args,
						},
					})
				}
			}
		}
		sources = append(sources, groundingSources(candidate.GroundingMetadata)...)
	}
	return model.Message{
		Role:      model.RoleAssistant,
		Content:   text,
		ToolCalls: toolCalls,
	}, finishReason, sources
}

// groundingSources extracts URL-bearing citations from grounding metadata.
func groundingSources(md *genai.GroundingMetadata) []model.GroundingSource {
	if md == nil {
		return nil
	}
	var sources []model.GroundingSource
	for _, chunk := range md.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, model.GroundingSource{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	return sources
}

func (m *Model) buildChunkResponse(rsp *genai.GenerateContentResponse) *model.Response {
	return m.buildChatCompletionResponse(rsp, model.ObjectTypeChatCompletionChunk, false, true)
}

func (m *Model) buildFinalResponse(rsp *genai.GenerateContentResponse) *model.Response {
	return m.buildChatCompletionResponse(rsp, model.ObjectTypeChatCompletion, true, false)
}

func (m *Model) buildChatCompletionResponse(
	rsp *genai.GenerateContentResponse,
	object string,
	done bool,
	isPartial bool,
) *model.Response {
	if rsp == nil {
		return &model.Response{
			Object:    object,
			IsPartial: isPartial,
			Done:      done,
		}
	}
	response := &model.Response{
		ID:        rsp.ResponseID,
		Object:    object,
		Created:   rsp.CreateTime.Unix(),
		Model:     rsp.ModelVersion,
		Timestamp: rsp.CreateTime,
		Done:      done,
		IsPartial: isPartial,
	}
	message, finishReason, sources := m.convertContentBlock(rsp.Candidates)
	if isPartial {
		// Streaming chunk: only populate Delta (not Message), so downstream
		// consumers never double-emit content alongside the final
		// accumulated response.
		response.Choices = []model.Choice{{Index: 0, Delta: message}}
	} else {
		response.Choices = []model.Choice{{Index: 0, Message: message}}
	}
	if finishReason != "" {
		response.Choices[0].FinishReason = &finishReason
	}
	response.GroundingSources = sources
	response.Usage = completionUsageToModelUsage(rsp.UsageMetadata)
	return response
}

// completionUsageToModelUsage converts genai usage metadata to model.Usage.
func completionUsageToModelUsage(usage *genai.GenerateContentResponseUsageMetadata) *model.Usage {
	if usage == nil {
		return nil
	}
	return &model.Usage{
		PromptTokens:     int(usage.PromptTokenCount),
		CompletionTokens: int(usage.CandidatesTokenCount),
		TotalTokens:      int(usage.TotalTokenCount),
	}
}

// convertRequest converts our Request to Gemini contents and config.
//
// System messages are lifted out of the history into the request's system
// instruction; search grounding replaces function declarations when set.
func (m *Model) convertRequest(request *model.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}

	var contents []*genai.Content
	var systemText string
	// Consecutive tool-response messages collapse into one function-response
	// turn so a multi-call round-trip appends exactly one turn.
	var pendingTool *genai.Content
	flushTool := func() {
		if pendingTool != nil {
			contents = append(contents, pendingTool)
			pendingTool = nil
		}
	}
	for _, msg := range request.Messages {
		if msg.Role == model.RoleSystem {
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += msg.Content
			continue
		}
		if msg.Role == model.RoleTool {
			if pendingTool == nil {
				pendingTool = &genai.Content{Role: genai.RoleUser}
			}
			pendingTool.Parts = append(pendingTool.Parts,
				genai.NewPartFromFunctionResponse(msg.ToolName, toolResponsePayload(msg.Content)))
			continue
		}
		flushTool()
		contents = append(contents, m.convertMessageContent(msg)...)
	}
	flushTool()
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	if request.SearchGrounding {
		// Native search takes exclusive priority: no custom declarations.
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if len(request.Tools) > 0 {
		config.Tools = m.convertTools(request.Tools)
		// AUTO mode allows the model to decide whether to call tools or
		// respond with text.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	if request.MaxTokens != nil {
		config.MaxOutputTokens = int32(*request.MaxTokens)
	}
	if request.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*request.Temperature))
	}
	if request.TopP != nil {
		config.TopP = genai.Ptr(float32(*request.TopP))
	}
	if len(request.Stop) > 0 {
		config.StopSequences = request.Stop
	}
	return contents, config
}

// convertMessageContent converts one message to Gemini content entries.
func (m *Model) convertMessageContent(msg model.Message) []*genai.Content {
	switch {
	case len(msg.ToolCalls) > 0:
		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, genai.NewPartFromText(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(call.Function.Arguments, &args)
			parts = append(parts, genai.NewPartFromFunctionCall(call.Function.Name, args))
		}
		return []*genai.Content{{Role: genai.RoleModel, Parts: parts}}
	default:
		role := genai.RoleUser
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		if msg.Content == "" {
			return nil
		}
		return []*genai.Content{genai.NewContentFromText(msg.Content, genai.Role(role))}
	}
}

// toolResponsePayload decodes a JSON-encoded tool result back into the map
// shape the FunctionResponse part expects, wrapping scalars as needed.
func toolResponsePayload(content string) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return payload
	}
	return map[string]any{"result": content}
}

func (m *Model) convertTools(tools map[string]tool.Tool) []*genai.Tool {
	result := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		decl := t.Declaration()
		funcDeclaration := &genai.FunctionDeclaration{
			Name:                 decl.Name,
			Description:          decl.Description,
			ParametersJsonSchema: decl.InputSchema,
		}
		if decl.OutputSchema != nil {
			funcDeclaration.ResponseJsonSchema = decl.OutputSchema
		}
		result = append(result, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{funcDeclaration},
		})
	}
	return result
}

func apiErrorResponse(err error) *model.Response {
	return &model.Response{
		Object: model.ObjectTypeError,
		Error: &model.ResponseError{
			Message: err.Error(),
			Type:    model.ErrorTypeAPIError,
		},
		Timestamp: time.Now(),
		Done:      true,
	}
}

func sendResponse(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
