package gateway

import (
	"context"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/memory"
)

// LoggingHandler logs model calls at debug level and failures at error level.
type LoggingHandler struct {
	callbacks.SimpleHandler
	Logger log.Logger
}

var _ callbacks.Handler = LoggingHandler{}

// NewLoggingHandler returns a handler writing to logger.
func NewLoggingHandler(logger log.Logger) LoggingHandler {
	return LoggingHandler{Logger: logger}
}

func (h LoggingHandler) HandleLLMGenerateContentStart(_ context.Context, ms []llms.MessageContent) {
	h.Logger.Debug("generate start messages=%d", len(ms))
}

func (h LoggingHandler) HandleLLMGenerateContentEnd(_ context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		return
	}
	usage := memory.UsageFromGenerationInfo(res.Choices[0].GenerationInfo)
	h.Logger.Debug("generate end stop_reason=%s input_tokens=%d output_tokens=%d tool_calls=%d",
		res.Choices[0].StopReason, usage.InputTokens, usage.OutputTokens, len(res.Choices[0].ToolCalls))
}

func (h LoggingHandler) HandleLLMError(_ context.Context, err error) {
	h.Logger.Error("generate failed: %v", err)
}
