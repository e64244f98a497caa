package gemini

import (
	"google.golang.org/genai"
)

const defaultChannelBufferSize = 256

// Environment variables consulted for credentials when no API key option
// is provided. GEMINI_API_KEY wins over GOOGLE_API_KEY.
const (
	geminiAPIKeyEnvVar = "GEMINI_API_KEY"
	googleAPIKeyEnvVar = "GOOGLE_API_KEY"
)

// options contains configuration options for creating a Gemini model.
type options struct {
	// Buffer size for response channels (default: 256)
	channelBufferSize int
	// API key used when no explicit client config is provided.
	apiKey string
	// geminiClientConfig for building the gemini client.
	geminiClientConfig *genai.ClientConfig
}

var defaultOptions = options{
	channelBufferSize: defaultChannelBufferSize,
}

// Option is a function that configures a Gemini model.
type Option func(*options)

// WithChannelBufferSize sets the channel buffer size, 256 by default.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.channelBufferSize = size
	}
}

// WithAPIKey sets the API key directly, bypassing the environment lookup.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithClientConfig sets the ClientConfig used for genai client
// initialization. When provided it takes precedence over WithAPIKey and the
// environment.
func WithClientConfig(c *genai.ClientConfig) Option {
	return func(o *options) {
		o.geminiClientConfig = c
	}
}
