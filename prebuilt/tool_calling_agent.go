package prebuilt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/agent/prompts"
	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/ptc"
	"github.com/gatewaylab/agentrun/tool"
)

// ToolCallingConfig configures the turn of a tool-calling agent.
type ToolCallingConfig struct {
	// Streaming consumes the model output chunk by chunk
	Streaming bool

	// ToolChoice is sent with every generation (default: "required")
	ToolChoice any
}

// ToolCallingStepper implements the turn of an agent that acts through the
// model's native tool calls.
type ToolCallingStepper struct {
	config ToolCallingConfig
}

var _ agent.Stepper = (*ToolCallingStepper)(nil)

// NewToolCallingStepper fills the defaults of config.
func NewToolCallingStepper(config ToolCallingConfig) *ToolCallingStepper {
	if config.ToolChoice == nil {
		config.ToolChoice = "required"
	}
	return &ToolCallingStepper{config: config}
}

// CreateToolCallingAgent creates an agent that acts by calling tools.
func CreateToolCallingAgent(config agent.Config, tc ToolCallingConfig) (*agent.Agent, error) {
	return agent.New(config, NewToolCallingStepper(tc))
}

func (s *ToolCallingStepper) Templates() *prompts.Templates {
	return prompts.ToolCalling()
}

func (s *ToolCallingStepper) PromptData(a *agent.Agent, data *prompts.Data) {}

func (s *ToolCallingStepper) Prepare(ctx context.Context, a *agent.Agent, state map[string]any) error {
	return nil
}

func (s *ToolCallingStepper) Step(ctx context.Context, a *agent.Agent, step *memory.ActionStep) error {
	logger := a.Logger()
	callable := a.CallableTools()

	llmTools, err := tool.LLMTools(callable)
	if err != nil {
		return a.Errorf(agent.KindGeneration, step.StepNumber, err, "Error in generating model output:\n%v", err)
	}
	choice, err := a.Generate(ctx, step, s.config.Streaming,
		llms.WithStopWords(baseStopSequences),
		llms.WithTools(llmTools),
		llms.WithToolChoice(s.config.ToolChoice),
	)
	if err != nil {
		return a.Errorf(agent.KindGeneration, step.StepNumber, err, "Error in generating model output:\n%v", err)
	}
	logger.Debug("output message of the LLM:\n%s", choice.Content)

	var calls []memory.ToolCall
	if len(choice.ToolCalls) > 0 {
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			calls = append(calls, memory.ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: decodeArguments(tc.FunctionCall.Arguments),
			})
		}
	}
	if len(calls) == 0 {
		call, err := ParseToolCallText(choice.Content)
		if err != nil {
			return a.Errorf(agent.KindParsing, step.StepNumber, err, "Error while parsing tool call from model output: %v", err)
		}
		call.ID = fmt.Sprintf("call_%d", a.Memory().Len())
		calls = append(calls, call)
	}
	step.ToolCalls = calls

	toolMap := a.ToolMap()
	var (
		observations []string
		output       any
		final        bool
	)
	for i := range calls {
		call := &calls[i]
		logger.Debug("calling tool %s with arguments %v", call.Name, call.Arguments)
		a.Emit(ctx, agent.Event{Type: agent.EventToolCall, StepNumber: step.StepNumber, ToolCall: call})

		if call.Name == tool.FinalAnswerName {
			output = finalAnswerValue(call.Arguments, a.State())
			final = true
			observation := agent.FormatOutput(output)
			observations = append(observations, observation)
			a.Emit(ctx, agent.Event{Type: agent.EventToolOutput, StepNumber: step.StepNumber, ToolCall: call, Observation: observation})
			continue
		}

		result, err := s.execute(ctx, a, toolMap, call)
		if err != nil {
			step.Observations = strings.Join(observations, "\n")
			return a.Errorf(agent.KindExecution, step.StepNumber, err, "%v", err)
		}
		observation := ptc.TruncateContent(agent.FormatOutput(result), ptc.MaxContentLength)
		logger.Info("observations: %s", observation)
		observations = append(observations, observation)
		output = result
		a.Emit(ctx, agent.Event{Type: agent.EventToolOutput, StepNumber: step.StepNumber, ToolCall: call, Observation: observation})
	}

	step.Observations = strings.Join(observations, "\n")
	step.ActionOutput = output
	step.IsFinalAnswer = final
	a.Emit(ctx, agent.Event{Type: agent.EventActionOutput, StepNumber: step.StepNumber, Output: output, IsFinalAnswer: final})
	return nil
}

func (s *ToolCallingStepper) execute(ctx context.Context, a *agent.Agent, toolMap map[string]tool.Tool, call *memory.ToolCall) (any, error) {
	t, ok := toolMap[call.Name]
	if !ok {
		names := make([]string, 0, len(toolMap))
		for name := range toolMap {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("Unknown tool %s, should be one of: %s.", call.Name, strings.Join(names, ", "))
	}

	args, err := toolArguments(t, call.Arguments, a.State())
	if err != nil {
		return nil, fmt.Errorf("Invalid call to tool '%s': %w", call.Name, err)
	}
	if agent.IsManagedAgentTool(t) {
		if _, ok := args[agent.AdditionalArgsParam]; !ok {
			args[agent.AdditionalArgsParam] = map[string]any{}
		}
	}
	if err := tool.ValidateArguments(t, args); err != nil {
		return nil, fmt.Errorf("Invalid call to tool '%s': %w", call.Name, err)
	}

	result, err := t.Forward(ctx, args)
	if err != nil {
		encoded, _ := json.Marshal(args)
		return nil, fmt.Errorf("Error executing tool '%s' with arguments %s: %w\nPlease try again or use another tool", call.Name, encoded, err)
	}
	return result, nil
}

// toolArguments turns the model's arguments into a map. A bare value is
// accepted for single-input tools, and strings naming a state variable are
// replaced by its value.
func toolArguments(t tool.Tool, raw any, state map[string]any) (map[string]any, error) {
	var args map[string]any
	switch v := raw.(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = make(map[string]any, len(v))
		for k, val := range v {
			args[k] = val
		}
	default:
		names := tool.ParamNames(t)
		if len(names) != 1 {
			return nil, fmt.Errorf("expected a JSON object of arguments, got %v", raw)
		}
		args = map[string]any{names[0]: v}
	}
	for k, v := range args {
		if name, ok := v.(string); ok {
			if val, ok := state[name]; ok {
				args[k] = val
			}
		}
	}
	return args, nil
}

func finalAnswerValue(raw any, state map[string]any) any {
	answer := raw
	if m, ok := raw.(map[string]any); ok {
		if v, ok := m["answer"]; ok {
			answer = v
		}
	}
	if name, ok := answer.(string); ok {
		if val, ok := state[name]; ok {
			return val
		}
	}
	return answer
}

// decodeArguments decodes JSON-encoded arguments, leaving anything else as is.
func decodeArguments(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// ParseToolCallText reads a tool call written as a JSON blob in plain text,
// for models that answer without native tool calls:
//
//	Action:
//	{"name": "search", "arguments": {"query": "..."}}
func ParseToolCallText(text string) (memory.ToolCall, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return memory.ToolCall{}, errors.New("the model output does not contain any JSON blob")
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &blob); err != nil {
		return memory.ToolCall{}, fmt.Errorf("the JSON blob you used is invalid: %w. JSON blob was: %s", err, text[start:end+1])
	}

	name, _ := firstOf(blob, "name", "tool_name", "function").(string)
	if name == "" {
		return memory.ToolCall{}, fmt.Errorf("key \"name\" not found in tool call: %s", text[start:end+1])
	}
	args := firstOf(blob, "arguments", "tool_arguments", "parameters")
	if s, ok := args.(string); ok {
		args = decodeArguments(s)
	}
	return memory.ToolCall{Name: name, Arguments: args}, nil
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
