package model

import "github.com/nibaldox/chat-llm-terminal/tool"

// Role represents the role of a message author.
type Role string

// Role constants for message authors.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the role of the message author.
	Role Role `json:"role"`
	// Content is the message content.
	Content string `json:"content,omitempty"`
	// ToolID is the ID of the tool call this message responds to.
	ToolID string `json:"tool_id,omitempty"`
	// ToolName is the name of the tool used by a tool response.
	ToolName string `json:"tool_name,omitempty"`
	// ToolCalls is the optional tool calls requested by the assistant.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: content,
	}
}

// NewToolMessage creates a new tool response message.
func NewToolMessage(toolID, toolName, content string) Message {
	return Message{
		Role:     RoleTool,
		ToolID:   toolID,
		ToolName: toolName,
		Content:  content,
	}
}

// GenerationConfig contains configuration for text generation.
type GenerationConfig struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling (0.0 to 1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// Stream indicates whether to stream the response.
	Stream bool `json:"stream"`

	// Stop sequences where the API will stop generating further tokens.
	Stop []string `json:"stop,omitempty"`
}

// Request is the request to the model.
type Request struct {
	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// GenerationConfig contains the generation parameters.
	GenerationConfig `json:",inline"`

	// Tools holds the callable tools exposed to the model, keyed by name.
	Tools map[string]tool.Tool `json:"-"`

	// SearchGrounding enables provider-native web search grounding.
	// When set, Tools must be empty; grounding and custom function
	// declarations are mutually exclusive. Only the Gemini backend
	// honors this flag.
	SearchGrounding bool `json:"-"`
}

// ToolCall represents a call to a tool (function) in the model response.
type ToolCall struct {
	// Type of the tool. Currently, only `function` is supported.
	Type string `json:"type"`
	// Function definition for the tool
	Function FunctionDefinitionParam `json:"function,omitempty"`
	// The ID of the tool call returned by the model.
	ID string `json:"id,omitempty"`
	// Index is the index of the tool call in the message for streaming responses.
	Index *int `json:"index,omitempty"`
}

// FunctionDefinitionParam represents the parameters for a function definition in tool calls.
type FunctionDefinitionParam struct {
	// The name of the function to be called.
	Name string `json:"name"`
	// A description of what the function does, used by the model to choose
	// when and how to call the function.
	Description string `json:"description,omitempty"`
	// Optional arguments to pass to the function, json-encoded.
	Arguments []byte `json:"arguments,omitempty"`
}
