package memory

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestTaskStepMessages(t *testing.T) {
	step := &TaskStep{Task: "Tell me about you"}
	msgs := step.ToMessages(false)

	require.Len(t, msgs, 1)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "New task:\nTell me about you", msgs[0].Content)
}

func TestSystemPromptStepSummaryMode(t *testing.T) {
	step := &SystemPromptStep{SystemPrompt: "You are an expert assistant."}

	assert.Len(t, step.ToMessages(false), 1)
	assert.Empty(t, step.ToMessages(true))
}

func TestActionStepMessages(t *testing.T) {
	step := &ActionStep{
		StepNumber:   1,
		ModelOutput:  "  Thought: check\n<code>\nprint(1)\n</code>  ",
		ToolCalls:    []ToolCall{{ID: "call_1", Name: "python_interpreter", Arguments: "print(1)"}},
		Observations: "Execution logs:\n1\n",
	}

	msgs := step.ToMessages(false)
	require.Len(t, msgs, 3)

	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, "Thought: check\n<code>\nprint(1)\n</code>", msgs[0].Content)

	assert.Equal(t, RoleToolCall, msgs[1].Role)
	assert.Equal(t,
		`Calling tools:`+"\n"+`[{"function":{"arguments":"print(1)","name":"python_interpreter"},"id":"call_1","type":"function"}]`,
		msgs[1].Content)

	assert.Equal(t, RoleToolResponse, msgs[2].Role)
	assert.Equal(t, "Observation:\nExecution logs:\n1\n", msgs[2].Content)

	assert.Len(t, step.ToMessages(true), 2)
}

func TestActionStepErrorMessage(t *testing.T) {
	step := &ActionStep{
		ToolCalls: []ToolCall{{ID: "call_2", Name: "python_interpreter", Arguments: "1/0"}},
		Error:     &StepError{Kind: "execution", Message: "division by zero"},
	}

	msgs := step.ToMessages(false)
	require.Len(t, msgs, 2)
	last := msgs[1]
	assert.Equal(t, RoleToolResponse, last.Role)
	assert.Equal(t,
		"Call id: call_2\nError:\ndivision by zero\nNow let's retry: take care not to repeat previous errors! If you have retried several times, try a completely different approach.\n",
		last.Content)
}

func TestFinalAnswerStepHasNoMessages(t *testing.T) {
	assert.Empty(t, (&FinalAnswerStep{Output: "done"}).ToMessages(false))
}

func TestTimingDuration(t *testing.T) {
	timing := NewTiming()
	assert.Zero(t, timing.Duration())

	timing.Stop()
	require.NotNil(t, timing.EndTime)
	assert.GreaterOrEqual(t, timing.Duration().Nanoseconds(), int64(0))
}

func TestTokenUsage(t *testing.T) {
	u := TokenUsage{InputTokens: 10, OutputTokens: 5}.Add(TokenUsage{InputTokens: 3, OutputTokens: 1})
	assert.Equal(t, 13, u.InputTokens)
	assert.Equal(t, 19, u.Total())
}

func TestAgentMemory(t *testing.T) {
	mem := NewAgentMemory("system")
	mem.Append(&TaskStep{Task: "first"}, &ActionStep{StepNumber: 1, ModelOutput: "answer"})

	assert.Equal(t, 2, mem.Len())
	msgs := mem.ToMessages(false)
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleSystem, msgs[0].Role)

	steps := mem.Steps()
	steps[0] = nil
	assert.NotNil(t, mem.Steps()[0], "Steps must return a copy")

	mem.Reset()
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, "system", mem.SystemPrompt())
}

func TestAgentMemoryConcurrentAccess(t *testing.T) {
	mem := NewAgentMemory("system")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			mem.Append(&ActionStep{StepNumber: n})
		}(i)
		go func() {
			defer wg.Done()
			_ = mem.ToMessages(false)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, mem.Len())
}

func TestToLLMMessages(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "New task:\nx"},
		{Role: RoleAssistant, Content: "thinking"},
		{Role: RoleToolCall, Content: "Calling tools:\n[]"},
		{Role: RoleToolResponse, Content: "Observation:\nok"},
	}

	out := ToLLMMessages(msgs)
	require.Len(t, out, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, out[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, out[2].Role)
	assert.Equal(t, llms.TextContent{Text: "thinking\nCalling tools:\n[]"}, out[2].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, out[3].Role)
}

func TestDecodeStepRoundTrip(t *testing.T) {
	original := &ActionStep{
		AgentName:  "provider_code_agent",
		StepNumber: 2,
		ToolCalls:  []ToolCall{{ID: "call_2", Name: "python_interpreter", Arguments: "x = 1"}},
		Error:      &StepError{Kind: "parsing", Message: "bad"},
		TokenUsage: TokenUsage{InputTokens: 7},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	step, err := DecodeStep(KindAction, data)
	require.NoError(t, err)
	decoded := step.(*ActionStep)
	assert.Equal(t, "provider_code_agent", decoded.Agent())
	assert.Equal(t, original.ToolCalls, decoded.ToolCalls)
	assert.Equal(t, original.Error, decoded.Error)

	_, err = DecodeStep("planning", data)
	assert.Error(t, err)
}

func TestUsageFromGenerationInfo(t *testing.T) {
	assert.Equal(t, 5, UsageFromGenerationInfo(map[string]any{"PromptTokens": 5}).InputTokens)
	assert.Equal(t, 6, UsageFromGenerationInfo(map[string]any{"prompt_tokens": float64(6)}).InputTokens)
	assert.Equal(t, 7, UsageFromGenerationInfo(map[string]any{"completion_tokens": int64(7)}).OutputTokens)
	assert.Zero(t, UsageFromGenerationInfo(nil).InputTokens)
}
