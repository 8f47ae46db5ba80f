package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/tmc/langchaingo/callbacks"

	"github.com/gatewaylab/agentrun/llms/stop"
	"github.com/gatewaylab/agentrun/log"
)

type options struct {
	apiKey           string
	baseURL          string
	model            string
	httpClient       *http.Client
	stopPolicy       stop.Policy
	schemaName       string
	schema           json.Marshaler
	callbacksHandler callbacks.Handler
	logger           log.Logger
}

// Option is a function that configures an LLM.
type Option func(*options)

// WithAPIKey sets the API key sent as a bearer token.
func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
	}
}

// WithBaseURL sets the gateway URL, including the /v1 suffix.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithModel sets the default model ID. llms.WithModel overrides it per call.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithHTTPClient sets the HTTP client for the LLM.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

// WithStopPolicy decides which models receive stop sequences.
// Default is stop.NeverSendStop.
func WithStopPolicy(policy stop.Policy) Option {
	return func(opts *options) {
		opts.stopPolicy = policy
	}
}

// WithResponseSchema makes JSON mode calls request a json_schema response
// format with the given schema instead of a plain json_object.
func WithResponseSchema(name string, schema json.Marshaler) Option {
	return func(opts *options) {
		opts.schemaName = name
		opts.schema = schema
	}
}

// WithCallbacksHandler sets the callbacks handler for the LLM.
func WithCallbacksHandler(handler callbacks.Handler) Option {
	return func(opts *options) {
		opts.callbacksHandler = handler
	}
}

// WithLogger sets the logger for request and response tracing.
func WithLogger(logger log.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}
