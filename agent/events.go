package agent

import (
	"context"
	"time"

	"github.com/gatewaylab/agentrun/memory"
)

// EventType names what happened during a run.
type EventType string

const (
	// EventRunStart carries the task of a new run in Text
	EventRunStart EventType = "run_start"

	// EventStepStart is emitted before each action step
	EventStepStart EventType = "step_start"

	// EventStreamDelta carries one chunk of streamed model output
	EventStreamDelta EventType = "stream_delta"

	// EventToolCall is emitted once the action of a step is known
	EventToolCall EventType = "tool_call"

	// EventToolOutput carries the observation of a tool or code execution
	EventToolOutput EventType = "tool_output"

	// EventActionOutput carries the output of a step
	EventActionOutput EventType = "action_output"

	// EventStepEnd is emitted after a step is recorded in memory
	EventStepEnd EventType = "step_end"

	// EventFinalAnswer is emitted when the run ends
	EventFinalAnswer EventType = "final_answer"
)

// Event is delivered to listeners in the order things happen.
type Event struct {
	Type       EventType
	Agent      string
	StepNumber int
	Timestamp  time.Time

	// Delta is set for EventStreamDelta. Text is the output accumulated so far.
	Delta string
	Text  string

	// ToolCall is set for EventToolCall and EventToolOutput.
	ToolCall *memory.ToolCall

	// Observation is set for EventToolOutput.
	Observation string

	// Output and IsFinalAnswer are set for EventActionOutput and EventFinalAnswer.
	Output        any
	IsFinalAnswer bool

	// Step is set for EventStepEnd.
	Step *memory.ActionStep
}

// Listener receives agent events.
type Listener interface {
	OnEvent(ctx context.Context, event Event)
}

// ListenerFunc is a function adapter for Listener
type ListenerFunc func(ctx context.Context, event Event)

// OnEvent implements the Listener interface
func (f ListenerFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// StepCallback runs after each step of a run is finished: the task step, every
// action step and the final answer step.
type StepCallback func(ctx context.Context, a *Agent, step memory.Step)
