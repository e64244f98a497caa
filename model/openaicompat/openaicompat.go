// Package openaicompat provides a model implementation for
// chat-completions-compatible HTTP APIs (OpenRouter, Groq and friends).
//
// The package speaks the conventional `POST /chat/completions` protocol
// with bearer-token auth and consumes SSE streams. It has no tool-calling
// capability: tools present on a request are ignored.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nibaldox/chat-llm-terminal/internal/sse"
	"github.com/nibaldox/chat-llm-terminal/model"
)

// dataPolicyMarker is the substring identifying a provider data-retention
// policy rejection. Such errors get a remediation hint appended because the
// raw provider message gives users no way forward.
const dataPolicyMarker = "data policy"

// DataPolicyHint is appended to data-policy rejection messages.
const DataPolicyHint = " Hint: review your provider's privacy / data policy settings (for OpenRouter: https://openrouter.ai/settings/privacy) and allow prompt routing for this model."

// Model implements the model.Model interface for chat-completions APIs.
type Model struct {
	name              string
	baseURL           string
	apiKey            string
	httpClient        *http.Client
	channelBufferSize int
	extraHeaders      map[string]string
}

// New creates a generic chat-completions model instance.
//
// Both the base URL and an API key are required; they are validated here so
// that misconfiguration surfaces before any network call.
func New(modelName string, opts ...Option) (*Model, error) {
	if modelName == "" {
		return nil, errors.New("model name cannot be empty")
	}

	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}

	if options.BaseURL == "" {
		return nil, errors.New("base URL is required. Set it via WithBaseURL()")
	}

	apiKey := options.APIKey
	if apiKey == "" && options.apiKeyEnvVar != "" {
		apiKey = os.Getenv(options.apiKeyEnvVar)
	}
	if apiKey == "" {
		if options.apiKeyEnvVar != "" {
			return nil, fmt.Errorf("API key is required. Set it via WithAPIKey() or %s environment variable", options.apiKeyEnvVar)
		}
		return nil, errors.New("API key is required. Set it via WithAPIKey()")
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Model{
		name:              modelName,
		baseURL:           strings.TrimSuffix(options.BaseURL, "/"),
		apiKey:            apiKey,
		httpClient:        httpClient,
		channelBufferSize: options.ChannelBufferSize,
		extraHeaders:      options.ExtraHeaders,
	}, nil
}

// NewOpenRouter creates a model talking to OpenRouter, reading the API key
// from OPENROUTER_API_KEY unless one is provided.
func NewOpenRouter(modelName string, opts ...Option) (*Model, error) {
	base := []Option{
		WithBaseURL(OpenRouterBaseURL),
		func(o *options) { o.apiKeyEnvVar = openRouterAPIKeyEnvVar },
	}
	return New(modelName, append(base, opts...)...)
}

// NewGroq creates a model talking to Groq, reading the API key from
// GROQ_API_KEY unless one is provided.
func NewGroq(modelName string, opts ...Option) (*Model, error) {
	base := []Option{
		WithBaseURL(GroqBaseURL),
		func(o *options) { o.apiKeyEnvVar = groqAPIKeyEnvVar },
	}
	return New(modelName, append(base, opts...)...)
}

// Info returns basic information about the model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent generates content from the given request.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}

	apiRequest := m.convertRequest(request)
	responseChan := make(chan *model.Response, m.channelBufferSize)

	if request.Stream {
		go m.handleStreamingRequest(ctx, apiRequest, responseChan)
	} else {
		go m.handleNonStreamingRequest(ctx, apiRequest, responseChan)
	}
	return responseChan, nil
}

// convertRequest maps the generic request onto the wire shape. Prior
// history roles collapse onto the protocol's three roles: user stays user,
// system stays system, everything else becomes assistant.
func (m *Model) convertRequest(request *model.Request) *ChatCompletionRequest {
	messages := make([]ChatMessage, 0, len(request.Messages))
	for _, msg := range request.Messages {
		role := "assistant"
		switch msg.Role {
		case model.RoleUser:
			role = "user"
		case model.RoleSystem:
			role = "system"
		}
		messages = append(messages, ChatMessage{Role: role, Content: msg.Content})
	}
	return &ChatCompletionRequest{
		Model:       m.name,
		Messages:    messages,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		TopP:        request.TopP,
		Stop:        request.Stop,
		Stream:      request.Stream,
	}
}

func (m *Model) handleNonStreamingRequest(
	ctx context.Context,
	apiRequest *ChatCompletionRequest,
	responseChan chan<- *model.Response,
) {
	defer close(responseChan)

	resp, err := m.doRequest(ctx, apiRequest, false)
	if err != nil {
		emit(ctx, responseChan, errorResponse(err))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		emit(ctx, responseChan, errorResponse(fmt.Errorf("failed to read response body: %w", err)))
		return
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		emit(ctx, responseChan, errorResponse(fmt.Errorf("failed to parse response: %w", err)))
		return
	}
	emit(ctx, responseChan, m.convertResponse(&completion))
}

func (m *Model) handleStreamingRequest(
	ctx context.Context,
	apiRequest *ChatCompletionRequest,
	responseChan chan<- *model.Response,
) {
	defer close(responseChan)

	apiRequest.Stream = true
	resp, err := m.doRequest(ctx, apiRequest, true)
	if err != nil {
		emit(ctx, responseChan, errorResponse(err))
		return
	}
	defer resp.Body.Close()

	var full strings.Builder
	decoder := sse.NewDecoder(resp.Body)
	for {
		content, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			emit(ctx, responseChan, &model.Response{
				Error: &model.ResponseError{
					Message: fmt.Sprintf("error reading stream: %v", err),
					Type:    model.ErrorTypeStreamError,
				},
				Timestamp: time.Now(),
				Done:      true,
			})
			return
		}
		full.WriteString(content)
		chunk := &model.Response{
			Object:    model.ObjectTypeChatCompletionChunk,
			Model:     m.name,
			Timestamp: time.Now(),
			IsPartial: true,
			Choices: []model.Choice{{
				Delta: model.Message{Role: model.RoleAssistant, Content: content},
			}},
		}
		if !emit(ctx, responseChan, chunk) {
			return
		}
	}

	final := &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		Model:     m.name,
		Timestamp: time.Now(),
		Done:      true,
		Choices: []model.Choice{{
			Message: model.NewAssistantMessage(full.String()),
		}},
	}
	emit(ctx, responseChan, final)
}

// doRequest posts the request and returns the response with a 2xx status.
// Any other status is converted into an API error with the message taken
// from the provider's structured error body when present.
func (m *Model) doRequest(ctx context.Context, apiRequest *ChatCompletionRequest, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(apiRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := m.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range m.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, errors.New(extractAPIError(resp, raw))
	}
	return resp, nil
}

// extractAPIError derives a user-facing message from a non-2xx response.
func extractAPIError(resp *http.Response, body []byte) string {
	msg := ""
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	} else {
		msg = http.StatusText(resp.StatusCode)
		if msg == "" {
			msg = resp.Status
		}
	}
	msg = fmt.Sprintf("API error (status %d): %s", resp.StatusCode, msg)
	if strings.Contains(strings.ToLower(msg), dataPolicyMarker) {
		msg += DataPolicyHint
	}
	return msg
}

func (m *Model) convertResponse(completion *ChatCompletionResponse) *model.Response {
	response := &model.Response{
		ID:        completion.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   completion.Created,
		Model:     completion.Model,
		Timestamp: time.Now(),
		Done:      true,
	}
	for _, choice := range completion.Choices {
		converted := model.Choice{
			Index:   choice.Index,
			Message: model.NewAssistantMessage(choice.Message.Content),
		}
		if choice.FinishReason != "" {
			fr := choice.FinishReason
			converted.FinishReason = &fr
		}
		response.Choices = append(response.Choices, converted)
	}
	if completion.Usage != nil {
		response.Usage = &model.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
	}
	return response
}

func errorResponse(err error) *model.Response {
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

// emit sends a response unless the context is cancelled first. It reports
// whether the send happened.
func emit(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
