package openaicompat

import "net/http"

const defaultChannelBufferSize = 256

// Default endpoints for the known chat-completions providers.
const (
	// OpenRouterBaseURL is the default endpoint for OpenRouter.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	// GroqBaseURL is the default endpoint for Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// Environment variables consulted for credentials when no API key option
// is provided.
const (
	openRouterAPIKeyEnvVar = "OPENROUTER_API_KEY"
	groqAPIKeyEnvVar       = "GROQ_API_KEY"
)

type options struct {
	BaseURL           string
	APIKey            string
	apiKeyEnvVar      string
	HTTPClient        *http.Client
	ChannelBufferSize int
	ExtraHeaders      map[string]string
}

var defaultOptions = options{
	ChannelBufferSize: defaultChannelBufferSize,
}

// Option is a function that configures the model.
type Option func(*options)

// WithBaseURL sets the API endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.BaseURL = url
	}
}

// WithAPIKey sets the API key directly, bypassing the environment lookup.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.APIKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.HTTPClient = client
	}
}

// WithChannelBufferSize sets the response channel buffer size, 256 by default.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.ChannelBufferSize = size
	}
}

// WithExtraHeaders sets additional HTTP headers sent with every request.
func WithExtraHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.ExtraHeaders = headers
	}
}
