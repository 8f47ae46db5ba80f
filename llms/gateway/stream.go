package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/llms/stop"
)

// toolCallMerger joins streamed tool call fragments by their index.
type toolCallMerger struct {
	calls map[int]openai.ToolCall
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{calls: make(map[int]openai.ToolCall)}
}

func (m *toolCallMerger) add(calls []openai.ToolCall) {
	for _, call := range calls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		existing, found := m.calls[index]
		if !found {
			m.calls[index] = call
			continue
		}
		if call.ID != "" {
			existing.ID = call.ID
		}
		if call.Type != "" {
			existing.Type = call.Type
		}
		existing.Function.Name += call.Function.Name
		existing.Function.Arguments += call.Function.Arguments
		m.calls[index] = existing
	}
}

func (m *toolCallMerger) toolCalls() []openai.ToolCall {
	indexes := make([]int, 0, len(m.calls))
	for i := range m.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]openai.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call := m.calls[i]
		if call.Type == "" {
			call.Type = openai.ToolTypeFunction
		}
		out = append(out, call)
	}
	return out
}

func (o *LLM) stream(ctx context.Context, req openai.ChatCompletionRequest, withheld []string, fn func(ctx context.Context, chunk []byte) error) (*llms.ContentResponse, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	write := fn
	var filter *stop.StreamFilter
	if len(withheld) > 0 {
		filter = stop.NewStreamFilter(withheld, fn)
		write = filter.Write
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	defer stream.Close()

	var (
		content      strings.Builder
		finishReason string
		usage        openai.Usage
		merger       = newToolCallMerger()
		chunks       int
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream: %w", err)
		}
		chunks++

		if response.Usage != nil {
			usage = *response.Usage
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
		if len(choice.Delta.ToolCalls) > 0 {
			merger.add(choice.Delta.ToolCalls)
		}
		if delta := choice.Delta.Content; delta != "" {
			content.WriteString(delta)
			if err := write(ctx, []byte(delta)); err != nil {
				return nil, err
			}
		}
	}
	if filter != nil {
		if err := filter.Flush(ctx); err != nil {
			return nil, err
		}
	}
	o.logger.Debug("stream done chunks=%d prompt_tokens=%d completion_tokens=%d", chunks, usage.PromptTokens, usage.CompletionTokens)

	if chunks == 0 {
		return nil, ErrEmptyResponse
	}

	choice := &llms.ContentChoice{
		Content:        content.String(),
		StopReason:     finishReason,
		ToolCalls:      fromOpenAIToolCalls(merger.toolCalls()),
		GenerationInfo: usageInfo(usage),
	}
	applyStops(choice, withheld)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}
