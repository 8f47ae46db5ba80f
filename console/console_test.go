package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/ptc"
)

func finishedStep(n int, output string) *memory.ActionStep {
	timing := memory.Timing{StartTime: time.Unix(0, 0)}
	end := time.Unix(1, 500_000_000)
	timing.EndTime = &end
	return &memory.ActionStep{
		StepNumber:  n,
		Timing:      timing,
		ModelOutput: output,
		TokenUsage:  memory.TokenUsage{InputTokens: 120, OutputTokens: 30},
	}
}

func codeRun() []agent.Event {
	call := &memory.ToolCall{ID: "call_1", Name: ptc.InterpreterToolName, Arguments: "x = 1 + 2\nprint(x)"}
	return []agent.Event{
		{Type: agent.EventRunStart, Agent: "provider", Text: "Tell me the system specs"},
		{Type: agent.EventStepStart, StepNumber: 1},
		{Type: agent.EventToolCall, StepNumber: 1, ToolCall: call},
		{Type: agent.EventToolOutput, StepNumber: 1, ToolCall: call, Observation: "Execution logs:\n3\nLast output from code snippet:\nNone"},
		{Type: agent.EventActionOutput, StepNumber: 1, Output: int64(3)},
		{Type: agent.EventStepEnd, StepNumber: 1, Step: finishedStep(1, "Thought: add numbers")},
		{Type: agent.EventFinalAnswer, Output: "3", IsFinalAnswer: true},
	}
}

func replay(p *Printer, events []agent.Event) {
	for _, ev := range events {
		p.OnEvent(context.Background(), ev)
	}
}

func TestPrinterDebug(t *testing.T) {
	var buf bytes.Buffer
	replay(New(&buf, 2), codeRun())
	out := buf.String()

	assert.Contains(t, out, "New run - provider")
	assert.Contains(t, out, "Tell me the system specs")
	assert.Contains(t, out, "Step 1")
	assert.Contains(t, out, "Executing parsed code:")
	assert.Contains(t, out, "print(x)")
	assert.Contains(t, out, "Observations:\nExecution logs:\n3")
	assert.Contains(t, out, "Out: 3\n")
	assert.Contains(t, out, "Output message of the LLM:\nThought: add numbers")
	assert.Contains(t, out, "[Step 1: Duration 1.50 seconds| Input tokens: 120 | Output tokens: 30]")
	assert.Contains(t, out, "Final answer: 3")
}

func TestPrinterInfoHidesDebug(t *testing.T) {
	var buf bytes.Buffer
	replay(New(&buf, 1), codeRun())
	out := buf.String()

	assert.Contains(t, out, "Out: 3")
	assert.NotContains(t, out, "Output message of the LLM:")
	assert.NotContains(t, out, "Input tokens")
}

func TestPrinterErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, 0)
	replay(p, codeRun())
	assert.Empty(t, buf.String())

	failed := finishedStep(2, "")
	failed.Error = &memory.StepError{Kind: "parsing", Message: "Error in code parsing"}
	p.OnEvent(context.Background(), agent.Event{Type: agent.EventStepEnd, StepNumber: 2, Step: failed})
	assert.Contains(t, buf.String(), "Error in code parsing")
}

func TestPrinterToolCall(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, 1)
	p.OnEvent(context.Background(), agent.Event{
		Type:     agent.EventToolCall,
		Agent:    "tool_calling_agent",
		ToolCall: &memory.ToolCall{Name: "get_system_info", Arguments: map[string]any{}},
	})
	assert.Contains(t, buf.String(), "Calling tool: 'get_system_info' with arguments: {}")
	assert.Contains(t, buf.String(), "AGENT tool_calling_agent: Calling tool get_system_info with arguments {}\n")
}

func TestPrinterToolCallLineAtEveryVerbosity(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, 0)
	p.OnEvent(context.Background(), agent.Event{
		Type:     agent.EventToolCall,
		Agent:    "manager_tool_calling_agent",
		ToolCall: &memory.ToolCall{Name: "provider_tool_calling_agent", Arguments: map[string]any{"task": "Fetch it"}},
	})
	out := buf.String()
	assert.Equal(t, "AGENT manager_tool_calling_agent: Calling tool provider_tool_calling_agent with arguments {\"task\":\"Fetch it\"}\n", out)

	// Code runs are not tool calls of the agent.
	buf.Reset()
	replay(p, codeRun())
	assert.NotContains(t, buf.String(), "AGENT ")
}

func TestPrinterStreamsRawChunks(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, 2, WithInteractive(false))
	events := []agent.Event{
		{Type: agent.EventStepStart, StepNumber: 1},
		{Type: agent.EventStreamDelta, StepNumber: 1, Delta: "Thought: ", Text: "Thought: "},
		{Type: agent.EventStreamDelta, StepNumber: 1, Delta: "done", Text: "Thought: done"},
		{Type: agent.EventStepEnd, StepNumber: 1, Step: finishedStep(1, "Thought: done")},
	}
	replay(p, events)
	out := buf.String()

	assert.Contains(t, out, "Thought: done\n")
	// Streamed output is not printed a second time.
	assert.Equal(t, 1, strings.Count(out, "Thought: done"))
	assert.NotContains(t, out, "Output message of the LLM:")
}

func TestPrinterLiveRerender(t *testing.T) {
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(80))
	require.NoError(t, err)

	var buf bytes.Buffer
	p := New(&buf, 1, WithInteractive(true), WithRenderer(r))
	replay(p, []agent.Event{
		{Type: agent.EventStepStart, StepNumber: 1},
		{Type: agent.EventStreamDelta, StepNumber: 1, Delta: "**Thought**", Text: "**Thought**"},
	})
	assert.NotContains(t, buf.String(), "\x1b[J")

	p.OnEvent(context.Background(), agent.Event{Type: agent.EventStreamDelta, StepNumber: 1, Delta: " done", Text: "**Thought** done"})
	assert.Contains(t, buf.String(), "\x1b[J")
	assert.Contains(t, buf.String(), "done")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
