// Package function provides function-based tool implementations for the agent system.
package function

import (
	"context"
	"encoding/json"
	"reflect"

	itool "github.com/nibaldox/chat-llm-terminal/internal/tool"
	"github.com/nibaldox/chat-llm-terminal/log"
	"github.com/nibaldox/chat-llm-terminal/tool"
)

// FunctionTool implements the CallableTool interface for executing functions
// with arguments. It provides a generic way to wrap any function as a tool
// that can be called with JSON arguments and returns results.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(context.Context, I) (O, error)
}

// Option is a function that configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
}

// WithName sets the name of the function tool.
//
// Note: tool names must comply with LLM API requirements; use only English
// letters, numbers, underscores and hyphens for maximum compatibility.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// WithInputSchema sets a custom input schema for the function tool.
// When provided, the automatic schema generation will be skipped.
func WithInputSchema(schema *tool.Schema) Option {
	return func(opts *functionToolOptions) {
		opts.inputSchema = schema
	}
}

// WithOutputSchema sets a custom output schema for the function tool.
// When provided, the automatic schema generation will be skipped.
func WithOutputSchema(schema *tool.Schema) Option {
	return func(opts *functionToolOptions) {
		opts.outputSchema = schema
	}
}

// NewFunctionTool creates a new FunctionTool wrapping fn. Input and output
// schemas are generated by reflection unless provided via options.
func NewFunctionTool[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.name == "" {
		log.Warnf("FunctionTool: name is empty")
	}
	if options.description == "" {
		log.Warnf("FunctionTool: description is empty")
	}

	var (
		emptyI I
		emptyO O
	)

	iSchema := options.inputSchema
	if iSchema == nil {
		iSchema = itool.GenerateJSONSchema(reflect.TypeOf(emptyI))
	}
	oSchema := options.outputSchema
	if oSchema == nil {
		oSchema = itool.GenerateJSONSchema(reflect.TypeOf(emptyO))
	}

	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		fn:           fn,
		inputSchema:  iSchema,
		outputSchema: oSchema,
	}
}

// Call executes the function tool with the provided JSON arguments.
// It unmarshals the given arguments into the tool's input type, then calls
// the underlying function with these arguments.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, err
		}
	}
	return ft.fn(ctx, input)
}

// Declaration returns the tool's declaration information.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}
