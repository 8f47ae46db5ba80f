package gateway

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// convertMessages maps langchaingo messages to chat completion messages.
// Every tool response part becomes its own "tool" message.
func convertMessages(messages []llms.MessageContent) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role, err := convertRole(msg.Role)
		if err != nil {
			return nil, err
		}

		var (
			text      strings.Builder
			toolCalls []openai.ToolCall
		)
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				text.WriteString(p.Text)
			case llms.ToolCall:
				call := openai.ToolCall{ID: p.ID, Type: openai.ToolTypeFunction}
				if p.FunctionCall != nil {
					call.Function = openai.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					}
				}
				toolCalls = append(toolCalls, call)
			case llms.ToolCallResponse:
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    p.Content,
					Name:       p.Name,
					ToolCallID: p.ToolCallID,
				})
			default:
				return nil, fmt.Errorf("unsupported content part %T", part)
			}
		}

		if text.Len() == 0 && len(toolCalls) == 0 {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:      role,
			Content:   text.String(),
			ToolCalls: toolCalls,
		})
	}
	return out, nil
}

func convertRole(role llms.ChatMessageType) (string, error) {
	switch role {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem, nil
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant, nil
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric, "":
		return openai.ChatMessageRoleUser, nil
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool, nil
	default:
		return "", fmt.Errorf("unsupported message role %q", role)
	}
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []llms.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llms.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, llms.ToolCall{
			ID:   c.ID,
			Type: string(c.Type),
			FunctionCall: &llms.FunctionCall{
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			},
		})
	}
	return out
}
