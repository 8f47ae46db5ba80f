package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem       Role = "system"
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleToolCall     Role = "tool-call"
	RoleToolResponse Role = "tool-response"
)

// Message is a single chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage counts the tokens of one or more model calls.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add returns the sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Timing records when a step started and, once finished, when it ended.
type Timing struct {
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// NewTiming starts a timing at now.
func NewTiming() Timing {
	return Timing{StartTime: time.Now()}
}

// Stop sets the end time to now.
func (t *Timing) Stop() {
	now := time.Now()
	t.EndTime = &now
}

// Duration is zero until the timing is stopped.
func (t Timing) Duration() time.Duration {
	if t.EndTime == nil {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

// ToolCall is a single tool invocation decided by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// MarshalJSON renders the call in the chat-completions function format.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":   c.ID,
		"type": "function",
		"function": map[string]any{
			"name":      c.Name,
			"arguments": c.Arguments,
		},
	})
}

// UnmarshalJSON accepts the format written by MarshalJSON.
func (c *ToolCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments any    `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Name = raw.Function.Name
	c.Arguments = raw.Function.Arguments
	return nil
}

// StepError is the serializable form of an error recorded on an action step.
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *StepError) Error() string {
	return e.Message
}

// StepKind names the concrete type of a Step.
type StepKind string

const (
	KindSystemPrompt StepKind = "system_prompt"
	KindTask         StepKind = "task"
	KindAction       StepKind = "action"
	KindFinalAnswer  StepKind = "final_answer"
)

// Step is one entry of an agent's memory.
type Step interface {
	Kind() StepKind
	// Agent returns the name of the agent that produced the step.
	Agent() string
	SetAgent(name string)
	// StepTiming returns nil for steps that are not timed.
	StepTiming() *Timing
	ToMessages(summaryMode bool) []Message
}

// SystemPromptStep carries the system prompt.
type SystemPromptStep struct {
	AgentName    string `json:"agent_name,omitempty"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *SystemPromptStep) Kind() StepKind       { return KindSystemPrompt }
func (s *SystemPromptStep) Agent() string        { return s.AgentName }
func (s *SystemPromptStep) SetAgent(name string) { s.AgentName = name }
func (s *SystemPromptStep) StepTiming() *Timing  { return nil }

func (s *SystemPromptStep) ToMessages(summaryMode bool) []Message {
	if summaryMode {
		return nil
	}
	return []Message{{Role: RoleSystem, Content: s.SystemPrompt}}
}

// TaskStep carries the task of a run.
type TaskStep struct {
	AgentName string `json:"agent_name,omitempty"`
	Task      string `json:"task"`
}

func (s *TaskStep) Kind() StepKind       { return KindTask }
func (s *TaskStep) Agent() string        { return s.AgentName }
func (s *TaskStep) SetAgent(name string) { s.AgentName = name }
func (s *TaskStep) StepTiming() *Timing  { return nil }

func (s *TaskStep) ToMessages(summaryMode bool) []Message {
	return []Message{{Role: RoleUser, Content: "New task:\n" + s.Task}}
}

// ActionStep records one generate, parse and execute turn.
type ActionStep struct {
	AgentName          string     `json:"agent_name,omitempty"`
	StepNumber         int        `json:"step_number"`
	Timing             Timing     `json:"timing"`
	ModelInputMessages []Message  `json:"model_input_messages,omitempty"`
	ModelOutput        string     `json:"model_output,omitempty"`
	ModelOutputMessage *Message   `json:"model_output_message,omitempty"`
	CodeAction         string     `json:"code_action,omitempty"`
	ToolCalls          []ToolCall `json:"tool_calls,omitempty"`
	Observations       string     `json:"observations,omitempty"`
	ActionOutput       any        `json:"action_output,omitempty"`
	IsFinalAnswer      bool       `json:"is_final_answer"`
	TokenUsage         TokenUsage `json:"token_usage"`
	Error              *StepError `json:"error,omitempty"`
}

func (s *ActionStep) Kind() StepKind       { return KindAction }
func (s *ActionStep) Agent() string        { return s.AgentName }
func (s *ActionStep) SetAgent(name string) { s.AgentName = name }
func (s *ActionStep) StepTiming() *Timing  { return &s.Timing }

func (s *ActionStep) ToMessages(summaryMode bool) []Message {
	var messages []Message
	if s.ModelOutput != "" && !summaryMode {
		messages = append(messages, Message{Role: RoleAssistant, Content: strings.TrimSpace(s.ModelOutput)})
	}
	if len(s.ToolCalls) > 0 {
		calls, err := json.Marshal(s.ToolCalls)
		if err != nil {
			calls = []byte(fmt.Sprintf("%v", s.ToolCalls))
		}
		messages = append(messages, Message{Role: RoleToolCall, Content: "Calling tools:\n" + string(calls)})
	}
	if s.Observations != "" {
		messages = append(messages, Message{Role: RoleToolResponse, Content: "Observation:\n" + s.Observations})
	}
	if s.Error != nil {
		content := ""
		if len(s.ToolCalls) > 0 {
			content = "Call id: " + s.ToolCalls[0].ID + "\n"
		}
		content += "Error:\n" + s.Error.Message +
			"\nNow let's retry: take care not to repeat previous errors! If you have retried several times, try a completely different approach.\n"
		messages = append(messages, Message{Role: RoleToolResponse, Content: content})
	}
	return messages
}

// FinalAnswerStep carries the answer of a run. It adds nothing to the prompt.
type FinalAnswerStep struct {
	AgentName string `json:"agent_name,omitempty"`
	Output    any    `json:"output"`
}

func (s *FinalAnswerStep) Kind() StepKind       { return KindFinalAnswer }
func (s *FinalAnswerStep) Agent() string        { return s.AgentName }
func (s *FinalAnswerStep) SetAgent(name string) { s.AgentName = name }
func (s *FinalAnswerStep) StepTiming() *Timing  { return nil }

func (s *FinalAnswerStep) ToMessages(summaryMode bool) []Message {
	return nil
}

// DecodeStep rebuilds a step of the given kind from its JSON form.
func DecodeStep(kind StepKind, data []byte) (Step, error) {
	var step Step
	switch kind {
	case KindSystemPrompt:
		step = &SystemPromptStep{}
	case KindTask:
		step = &TaskStep{}
	case KindAction:
		step = &ActionStep{}
	case KindFinalAnswer:
		step = &FinalAnswerStep{}
	default:
		return nil, fmt.Errorf("unknown step kind %q", kind)
	}
	if err := json.Unmarshal(data, step); err != nil {
		return nil, fmt.Errorf("failed to decode %s step: %w", kind, err)
	}
	return step, nil
}
