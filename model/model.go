// Package model provides interfaces for working with LLMs.
package model

import "context"

// Info contains basic information about a model.
type Info struct {
	// Name is the model identifier sent to the provider.
	Name string
}

// Model is the interface implemented by every backend adapter.
//
// GenerateContent issues one generation call. The returned channel yields
// streaming chunks (IsPartial) followed by one final accumulated response
// (Done), or a single response for non-streaming requests. API-level
// failures arrive as responses carrying a ResponseError; function-level
// failures (bad request, nil request) are returned as an error before any
// network call is made.
type Model interface {
	// GenerateContent generates content based on the given request.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}
