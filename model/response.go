package model

import (
	"time"
)

// Error type constants for ResponseError.Type field.
const (
	// ErrorTypeConfiguration marks a missing credential, endpoint or model
	// identifier, detected before any network call is made.
	ErrorTypeConfiguration = "configuration_error"
	// ErrorTypeAPIError marks a non-success response from the provider.
	ErrorTypeAPIError = "api_error"
	// ErrorTypeStreamError marks a transport failure while consuming a stream.
	ErrorTypeStreamError = "stream_error"
	// ErrorTypeToolError marks a failed tool execution. It is never fatal to
	// a turn; the payload is fed back to the model instead.
	ErrorTypeToolError = "tool_error"
	// ErrorTypeRunError marks an orchestration-level failure.
	ErrorTypeRunError = "run_error"
)

// Object type constants for Response.Object field.
const (
	// ObjectTypeChatCompletionChunk is the object type for chat completion chunk events.
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	// ObjectTypeChatCompletion is the object type for chat completion events.
	ObjectTypeChatCompletion = "chat.completion"
	// ObjectTypeError is the object type for error responses.
	ObjectTypeError = "error"
)

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice.
	Index int `json:"index"`

	// Message is the message content.
	Message Message `json:"message,omitempty"`

	// Delta is the delta message content for streaming chunks.
	Delta Message `json:"delta,omitempty"`

	// FinishReason is the reason the choice was finished.
	// "stop", "length", "content_filter", "tool_calls", etc.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// GroundingSource is one citation returned alongside a search-grounded
// response. Sources are attached to the final accumulated response only,
// never to streaming chunks.
type GroundingSource struct {
	// Title is the human-readable source title.
	Title string `json:"title,omitempty"`
	// URI is the source location. Entries without a URI are not useful as
	// citations and are dropped by consumers.
	URI string `json:"uri,omitempty"`
}

// Response is the response from the model.
//
// The Error field represents API-level errors that occur after successful
// communication with the model service. This is different from
// function-level errors returned by GenerateContent(), which indicate
// failures that prevent communication entirely.
type Response struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`

	// Object describes the type of object returned (e.g., "chat.completion").
	Object string `json:"object"`

	// Created is the Unix timestamp when the response was created.
	Created int64 `json:"created"`

	// Model is the model used to generate the response.
	Model string `json:"model"`

	// Choices contains the completion choices.
	Choices []Choice `json:"choices"`

	// Usage contains token usage information (may be nil for streaming responses).
	Usage *Usage `json:"usage,omitempty"`

	// Error contains API-level error information if the request failed.
	Error *ResponseError `json:"error,omitempty"`

	// GroundingSources contains citations for search-grounded responses.
	GroundingSources []GroundingSource `json:"grounding_sources,omitempty"`

	// Timestamp when this response chunk was received (for streaming).
	Timestamp time.Time `json:"timestamp"`

	// Done indicates that no further responses will follow.
	Done bool `json:"done"`

	// IsPartial indicates if this is a partial response.
	IsPartial bool `json:"is_partial"`
}

// IsToolCallResponse checks if the response requests tool calls.
func (rsp *Response) IsToolCallResponse() bool {
	return rsp != nil && len(rsp.Choices) > 0 &&
		(len(rsp.Choices[0].Message.ToolCalls) > 0 || len(rsp.Choices[0].Delta.ToolCalls) > 0)
}

// IsFinalResponse checks if the Response is a final response.
func (rsp *Response) IsFinalResponse() bool {
	if rsp == nil {
		return true
	}
	if rsp.IsPartial {
		return false
	}
	return rsp.Done && (len(rsp.Choices) > 0 || rsp.Error != nil)
}

// ResponseError represents an error response from the API.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`

	// Type is the type of error.
	Type string `json:"type"`
}

// Error implements the error interface so a ResponseError can travel as a
// plain Go error where convenient.
func (e *ResponseError) Error() string {
	return e.Message
}
