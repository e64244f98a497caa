// Package tool provides tool interfaces and implementations for the agent system.
package tool

import "context"

// Tool is the interface that all tools must implement.
type Tool interface {
	// Declaration returns the metadata the model needs to decide when and
	// how to call the tool.
	Declaration() *Declaration
}

// CallableTool is a tool that can be executed with JSON-encoded arguments.
type CallableTool interface {
	Tool

	// Call executes the tool with the provided JSON arguments.
	Call(ctx context.Context, jsonArgs []byte) (any, error)
}

// Declaration describes a callable tool to the model.
type Declaration struct {
	// Name is the tool name as exposed to the model.
	Name string `json:"name"`
	// Description tells the model what the tool does.
	Description string `json:"description,omitempty"`
	// InputSchema describes the expected arguments.
	InputSchema *Schema `json:"input_schema,omitempty"`
	// OutputSchema describes the result shape, when known.
	OutputSchema *Schema `json:"output_schema,omitempty"`
}

// DataType is the JSON schema type of a schema node.
type DataType string

// JSON schema type constants.
const (
	TypeObject  DataType = "object"
	TypeArray   DataType = "array"
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeInteger DataType = "integer"
	TypeBoolean DataType = "boolean"
	TypeNull    DataType = "null"
)

// Schema is a JSON-schema-like description of a value.
type Schema struct {
	Type        DataType           `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}
