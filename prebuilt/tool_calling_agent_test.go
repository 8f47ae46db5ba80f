package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/tool"
)

func toolCallResponse(promptTokens int, calls ...llms.ToolCall) llms.ContentResponse {
	return llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				ToolCalls: calls,
				GenerationInfo: map[string]any{
					"PromptTokens":     promptTokens,
					"CompletionTokens": 3,
				},
			},
		},
	}
}

func functionCall(id, name, arguments string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

func newAddTool() tool.Tool {
	return tool.New(
		"add",
		"Adds two numbers.",
		tool.Inputs(
			tool.Param{Name: "a", Type: "number", Description: "first operand"},
			tool.Param{Name: "b", Type: "number", Description: "second operand"},
		),
		"number",
		func(ctx context.Context, args map[string]any) (any, error) {
			a, aok := args["a"].(float64)
			b, bok := args["b"].(float64)
			if !aok || !bok {
				return nil, fmt.Errorf("a and b must be numbers")
			}
			return a + b, nil
		},
	)
}

func newToolCallingAgent(t *testing.T, model llms.Model, config agent.Config) *agent.Agent {
	t.Helper()
	config.Model = model
	if config.Logger == nil {
		config.Logger = &log.NoOpLogger{}
	}
	a, err := CreateToolCallingAgent(config, ToolCallingConfig{})
	require.NoError(t, err)
	return a
}

func TestToolCallingAgentCallsTools(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			toolCallResponse(11, functionCall("call-a", "add", `{"a": 3, "b": 4}`)),
			toolCallResponse(13, functionCall("call-b", "final_answer", `{"answer": "seven"}`)),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{Tools: []tool.Tool{newAddTool()}})

	result, err := a.Run(context.Background(), "What is 3 + 4?")
	require.NoError(t, err)
	assert.Equal(t, "seven", result.Output)
	assert.Equal(t, 24, a.TotalInputTokens())

	steps := actionSteps(result.Steps)
	require.Len(t, steps, 2)
	assert.Equal(t, "7", steps[0].Observations)
	assert.Equal(t, 7.0, steps[0].ActionOutput)
	assert.Equal(t, []memory.ToolCall{{ID: "call-a", Name: "add", Arguments: map[string]any{"a": 3.0, "b": 4.0}}}, steps[0].ToolCalls)
	assert.True(t, steps[1].IsFinalAnswer)

	opts := mockLLM.options[0]
	assert.Equal(t, "required", opts.ToolChoice)
	assert.Equal(t, []string{"Observation:", "Calling tools:"}, opts.StopWords)
	var names []string
	for _, lt := range opts.Tools {
		names = append(names, lt.Function.Name)
	}
	assert.Equal(t, []string{"add", "final_answer"}, names)
}

func TestToolCallingAgentParsesTextBlob(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			textResponse("Action:\n{\n  \"name\": \"final_answer\",\n  \"arguments\": {\"answer\": \"from text\"}\n}", 6),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{})

	result, err := a.Run(context.Background(), "Answer")
	require.NoError(t, err)
	assert.Equal(t, "from text", result.Output)

	step := actionSteps(result.Steps)[0]
	require.Len(t, step.ToolCalls, 1)
	assert.Equal(t, "call_1", step.ToolCalls[0].ID)
}

func TestToolCallingAgentUnknownToolIsRecorded(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			toolCallResponse(1, functionCall("c1", "search", `{"query": "go"}`)),
			toolCallResponse(1, functionCall("c2", "final_answer", `{"answer": "gave up"}`)),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{Tools: []tool.Tool{newAddTool()}})

	result, err := a.Run(context.Background(), "Search go")
	require.NoError(t, err)
	assert.Equal(t, "gave up", result.Output)

	steps := actionSteps(result.Steps)
	require.Len(t, steps, 2)
	require.NotNil(t, steps[0].Error)
	assert.Equal(t, string(agent.KindExecution), steps[0].Error.Kind)
	assert.Equal(t, "Unknown tool search, should be one of: add, final_answer.", steps[0].Error.Message)
}

func TestToolCallingAgentParsingError(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			textResponse("I will just think about it.", 1),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{})

	_, err := a.Run(context.Background(), "Think", agent.WithStopOnError(true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrParsing))
}

func TestToolCallingAgentMaxSteps(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			toolCallResponse(5, functionCall("c1", "add", `{"a": 1, "b": 1}`)),
			toolCallResponse(5, functionCall("c2", "add", `{"a": 2, "b": 2}`)),
			textResponse("best effort answer", 8),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{Tools: []tool.Tool{newAddTool()}, MaxSteps: 2})

	result, err := a.Run(context.Background(), "Keep adding")
	require.NoError(t, err)
	assert.Equal(t, "best effort answer", result.Output)
	assert.Equal(t, agent.StateMaxStepsError, result.State)
	assert.Equal(t, 18, a.TotalInputTokens())

	steps := actionSteps(result.Steps)
	require.Len(t, steps, 3)
	require.NotNil(t, steps[2].Error)
	assert.Equal(t, string(agent.KindMaxSteps), steps[2].Error.Kind)
	assert.Equal(t, 3, steps[2].StepNumber)

	// The final answer prompt carries the task.
	last := mockLLM.messages[2]
	require.NotEmpty(t, last)
	final := last[len(last)-1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, final, "Keep adding")
}

func TestToolCallingAgentUsesStateVariables(t *testing.T) {
	mockLLM := &MockLLM{
		responses: []llms.ContentResponse{
			toolCallResponse(1, functionCall("c1", "add", `{"a": "base", "b": 2}`)),
			toolCallResponse(1, functionCall("c2", "final_answer", `{"answer": "done"}`)),
		},
	}
	a := newToolCallingAgent(t, mockLLM, agent.Config{Tools: []tool.Tool{newAddTool()}})

	result, err := a.Run(context.Background(), "Add two to base", agent.WithAdditionalArgs(map[string]any{"base": 40.0}))
	require.NoError(t, err)
	assert.Equal(t, 42.0, actionSteps(result.Steps)[0].ActionOutput)
}

func TestManagedAgent(t *testing.T) {
	helperLLM := &MockLLM{
		responses: []llms.ContentResponse{
			textResponse("Thought: report.\n<code>\nfinal_answer(\"the machine is idle\")\n</code>", 100),
		},
	}
	helper := newCodeAgent(t, helperLLM, CodeConfig{}, agent.Config{
		Name:        "sysadmin",
		Description: "Checks the state of the machine.",
	})

	managerLLM := &MockLLM{
		responses: []llms.ContentResponse{
			toolCallResponse(30, functionCall("m1", "sysadmin", `{"task": "Is the machine busy?"}`)),
			toolCallResponse(40, functionCall("m2", "final_answer", `{"answer": "idle"}`)),
		},
	}
	manager := newToolCallingAgent(t, managerLLM, agent.Config{
		Name:          "manager",
		ManagedAgents: []*agent.Agent{helper},
	})

	prompt := manager.Memory().SystemPrompt()
	assert.Contains(t, prompt, "- sysadmin: Checks the state of the machine.")

	result, err := manager.Run(context.Background(), "How busy is the machine?")
	require.NoError(t, err)
	assert.Equal(t, "idle", result.Output)
	assert.Equal(t, 170, manager.TotalInputTokens())

	steps := actionSteps(result.Steps)
	assert.Equal(t, "Here is the final answer from your managed agent 'sysadmin':\nthe machine is idle", steps[0].Observations)

	helperTask := helperLLM.messages[0][1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, helperTask, "You're a helpful agent named 'sysadmin'.")
	assert.Contains(t, helperTask, "Is the machine busy?")

	var agents []string
	for _, s := range manager.AllMemorySteps() {
		if action, ok := s.(*memory.ActionStep); ok {
			agents = append(agents, action.AgentName)
		}
	}
	assert.Equal(t, []string{"manager", "manager", "sysadmin"}, agents)
}

func TestParseToolCallText(t *testing.T) {
	call, err := ParseToolCallText("Action:\n{\"name\": \"add\", \"arguments\": \"{\\\"a\\\": 1, \\\"b\\\": 2}\"}")
	require.NoError(t, err)
	assert.Equal(t, "add", call.Name)
	assert.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, call.Arguments)

	call, err = ParseToolCallText(`{"tool_name": "final_answer", "tool_arguments": "plain"}`)
	require.NoError(t, err)
	assert.Equal(t, "final_answer", call.Name)
	assert.Equal(t, "plain", call.Arguments)

	_, err = ParseToolCallText("no json here")
	assert.Error(t, err)

	_, err = ParseToolCallText(`{"arguments": {}}`)
	assert.Error(t, err)

	_, err = ParseToolCallText(`{"name": "broken",}`)
	assert.Error(t, err)
}
