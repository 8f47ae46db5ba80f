package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/llms/stop"
	"github.com/gatewaylab/agentrun/log"
)

var (
	ErrEmptyResponse  = errors.New("no response")
	ErrMissingAPIKey  = errors.New("missing API key")
	ErrMissingBaseURL = errors.New("missing base URL")
)

// LLM is a client for an OpenAI-compatible chat completions gateway.
type LLM struct {
	client           *openai.Client
	model            string
	stopPolicy       stop.Policy
	schemaName       string
	schema           json.Marshaler
	logger           log.Logger
	CallbacksHandler callbacks.Handler
}

var _ llms.Model = (*LLM)(nil)

// New returns a gateway client. An API key and a base URL are required.
//
// Example:
//
//	llm, err := gateway.New(
//		gateway.WithAPIKey("your-api-key"),
//		gateway.WithBaseURL("https://api.poe.com/v1"),
//		gateway.WithModel("Claude-Sonnet-4"),
//		gateway.WithStopPolicy(stop.SendStopExcept("o3", "o4-mini")),
//	)
func New(opts ...Option) (*LLM, error) {
	options := &options{
		stopPolicy: stop.NeverSendStop,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.apiKey == "" {
		return nil, fmt.Errorf(`%w
You can pass it by using gateway.New(gateway.WithAPIKey("{API Key}"))`, ErrMissingAPIKey)
	}
	if options.baseURL == "" {
		return nil, fmt.Errorf(`%w
You can pass it by using gateway.New(gateway.WithBaseURL("https://host/v1"))`, ErrMissingBaseURL)
	}
	if options.stopPolicy == nil {
		options.stopPolicy = stop.NeverSendStop
	}
	if options.logger == nil {
		options.logger = log.WithPrefix(log.GetDefaultLogger(), "gateway")
	}

	config := openai.DefaultConfig(options.apiKey)
	config.BaseURL = strings.TrimRight(options.baseURL, "/")
	if options.httpClient != nil {
		config.HTTPClient = options.httpClient
	}

	return &LLM{
		client:           openai.NewClientWithConfig(config),
		model:            options.model,
		stopPolicy:       options.stopPolicy,
		schemaName:       options.schemaName,
		schema:           options.schema,
		logger:           options.logger,
		CallbacksHandler: options.callbacksHandler,
	}, nil
}

// Model returns the default model ID.
func (o *LLM) Model() string {
	return o.model
}

// Call generates a response from the LLM for the given prompt.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, o, prompt, options...)
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	resp, err := o.generate(ctx, messages, opts)
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}
	return resp, nil
}

func (o *LLM) generate(ctx context.Context, messages []llms.MessageContent, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	req, withheld, err := o.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("request model=%s messages=%d tools=%d stream=%v", req.Model, len(req.Messages), len(req.Tools), opts.StreamingFunc != nil)

	if opts.StreamingFunc != nil {
		return o.stream(ctx, req, withheld, opts.StreamingFunc)
	}

	result, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	resp := &llms.ContentResponse{Choices: make([]*llms.ContentChoice, 0, len(result.Choices))}
	for _, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
			ToolCalls:  fromOpenAIToolCalls(c.Message.ToolCalls),
		}
		applyStops(choice, withheld)
		choice.GenerationInfo = usageInfo(result.Usage)
		resp.Choices = append(resp.Choices, choice)
	}
	o.logger.Debug("response prompt_tokens=%d completion_tokens=%d", result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return resp, nil
}

// buildRequest returns the request and the stop words withheld from it.
func (o *LLM) buildRequest(messages []llms.MessageContent, opts *llms.CallOptions) (openai.ChatCompletionRequest, []string, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	msgs, err := convertMessages(messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		MaxTokens:   opts.MaxTokens,
	}

	var withheld []string
	if len(opts.StopWords) > 0 {
		if o.stopPolicy.SupportsStop(model) {
			req.Stop = opts.StopWords
		} else {
			withheld = opts.StopWords
			o.logger.Debug("withholding %d stop sequences from %s", len(withheld), model)
		}
	}

	for _, t := range opts.Tools {
		if t.Function == nil {
			continue
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	if opts.ToolChoice != nil {
		req.ToolChoice = convertToolChoice(opts.ToolChoice)
	}

	if opts.JSONMode {
		if o.schema != nil {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   o.schemaName,
					Schema: o.schema,
					Strict: true,
				},
			}
		} else {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	return req, withheld, nil
}

func convertToolChoice(choice any) any {
	switch c := choice.(type) {
	case llms.ToolChoice:
		if c.Function == nil {
			return c.Type
		}
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: c.Function.Name},
		}
	case *llms.ToolChoice:
		if c == nil {
			return nil
		}
		return convertToolChoice(*c)
	default:
		return choice
	}
}

func applyStops(choice *llms.ContentChoice, withheld []string) {
	if len(withheld) == 0 {
		return
	}
	if truncated := stop.TruncateAtStop(choice.Content, withheld); len(truncated) < len(choice.Content) {
		choice.Content = truncated
		choice.StopReason = string(openai.FinishReasonStop)
	}
}

func usageInfo(u openai.Usage) map[string]any {
	return map[string]any{
		"PromptTokens":     u.PromptTokens,
		"CompletionTokens": u.CompletionTokens,
		"TotalTokens":      u.TotalTokens,
	}
}
