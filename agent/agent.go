package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/agent/prompts"
	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/tool"
)

const (
	// DefaultMaxSteps bounds a run when neither the agent nor the run sets a limit.
	DefaultMaxSteps = 20

	// UnnamedAgent tags the steps of an agent without a name.
	UnnamedAgent = "unnamed_agent"

	StateSuccess       = "success"
	StateMaxStepsError = "max_steps_error"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Stepper implements one kind of agent turn on top of the shared run loop.
type Stepper interface {
	// Templates returns the default prompt templates of this kind of agent.
	Templates() *prompts.Templates
	// PromptData fills the fields of the system prompt data the stepper owns.
	PromptData(a *Agent, data *prompts.Data)
	// Prepare runs at the start of each run, after the task is recorded.
	Prepare(ctx context.Context, a *Agent, state map[string]any) error
	// Step runs one turn and records it on step. Errors should be *AgentError.
	Step(ctx context.Context, a *Agent, step *memory.ActionStep) error
}

// Config configures an agent.
type Config struct {
	// Model is the LLM to use
	Model llms.Model

	// Name is required for the agent to be managed by another one
	Name string

	// Description tells a manager what the agent does
	Description string

	// Tools are the available tools. A final_answer tool is added when missing.
	Tools []tool.Tool

	// ManagedAgents are exposed to the model as tools
	ManagedAgents []*Agent

	// MaxSteps is the default step limit of a run (default: 20)
	MaxSteps int

	// Instructions are appended to the system prompt
	Instructions string

	// Templates override the stepper's prompt templates
	Templates *prompts.Templates

	// Logger defaults to the package default logger
	Logger log.Logger

	Listeners     []Listener
	StepCallbacks []StepCallback
}

// Agent runs tasks step by step until a final answer.
type Agent struct {
	name          string
	description   string
	model         llms.Model
	stepper       Stepper
	tools         []tool.Tool
	managed       []*Agent
	maxSteps      int
	instructions  string
	templates     *prompts.Templates
	logger        log.Logger
	memory        *memory.AgentMemory
	monitor       *Monitor
	listeners     []Listener
	stepCallbacks []StepCallback
	state         map[string]any
}

// New creates an agent whose turns are implemented by stepper.
func New(config Config, stepper Stepper) (*Agent, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if stepper == nil {
		return nil, fmt.Errorf("stepper is required")
	}
	if config.Name != "" && !identifier.MatchString(config.Name) {
		return nil, fmt.Errorf("agent name %q must be a valid identifier", config.Name)
	}
	if config.MaxSteps <= 0 {
		config.MaxSteps = DefaultMaxSteps
	}
	if config.Templates == nil {
		config.Templates = stepper.Templates()
	}

	name := config.Name
	if name == "" {
		name = UnnamedAgent
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	a := &Agent{
		name:          config.Name,
		description:   config.Description,
		model:         config.Model,
		stepper:       stepper,
		managed:       config.ManagedAgents,
		maxSteps:      config.MaxSteps,
		instructions:  config.Instructions,
		templates:     config.Templates,
		logger:        log.WithPrefix(logger, name),
		memory:        memory.NewAgentMemory(""),
		monitor:       NewMonitor(),
		listeners:     config.Listeners,
		stepCallbacks: config.StepCallbacks,
		state:         map[string]any{},
	}

	seen := map[string]bool{}
	hasFinalAnswer := false
	for _, t := range config.Tools {
		if seen[t.Name()] {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		seen[t.Name()] = true
		hasFinalAnswer = hasFinalAnswer || t.Name() == tool.FinalAnswerName
		a.tools = append(a.tools, t)
	}
	for _, m := range config.ManagedAgents {
		if m.name == "" || m.description == "" {
			return nil, fmt.Errorf("managed agents need a name and a description")
		}
		if seen[m.name] {
			return nil, fmt.Errorf("managed agent name %q collides with another tool or agent", m.name)
		}
		seen[m.name] = true
	}
	if !hasFinalAnswer {
		a.tools = append(a.tools, tool.NewFinalAnswer())
	}

	systemPrompt, err := a.SystemPrompt()
	if err != nil {
		return nil, err
	}
	a.memory.SetSystemPrompt(systemPrompt)
	return a, nil
}

func (a *Agent) Name() string                  { return a.name }
func (a *Agent) Description() string           { return a.description }
func (a *Agent) Model() llms.Model             { return a.model }
func (a *Agent) Memory() *memory.AgentMemory   { return a.memory }
func (a *Agent) Monitor() *Monitor             { return a.monitor }
func (a *Agent) Logger() log.Logger            { return a.logger }
func (a *Agent) MaxSteps() int                 { return a.maxSteps }
func (a *Agent) ManagedAgents() []*Agent       { return a.managed }
func (a *Agent) Templates() *prompts.Templates { return a.templates }

// DisplayName is the agent name, or unnamed_agent.
func (a *Agent) DisplayName() string {
	if a.name == "" {
		return UnnamedAgent
	}
	return a.name
}

// Tools returns the agent's own tools, final_answer included.
func (a *Agent) Tools() []tool.Tool {
	out := make([]tool.Tool, len(a.tools))
	copy(out, a.tools)
	return out
}

// CallableTools returns the tools followed by the managed agents as tools.
func (a *Agent) CallableTools() []tool.Tool {
	out := a.Tools()
	for _, m := range a.managed {
		out = append(out, m.AsTool())
	}
	return out
}

// ToolMap indexes CallableTools by name.
func (a *Agent) ToolMap() map[string]tool.Tool {
	tools := a.CallableTools()
	out := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		out[t.Name()] = t
	}
	return out
}

// State returns the additional arguments of the current run.
func (a *Agent) State() map[string]any {
	return a.state
}

// AddListener registers a listener for the agent's events.
func (a *Agent) AddListener(l Listener) {
	a.listeners = append(a.listeners, l)
}

// AddStepCallback registers a callback run after each finished step.
func (a *Agent) AddStepCallback(cb StepCallback) {
	a.stepCallbacks = append(a.stepCallbacks, cb)
}

// Emit delivers event to every listener.
func (a *Agent) Emit(ctx context.Context, event Event) {
	event.Agent = a.DisplayName()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, l := range a.listeners {
		l.OnEvent(ctx, event)
	}
}

// Errorf creates an AgentError and logs it with the step number.
func (a *Agent) Errorf(kind ErrorKind, stepNumber int, cause error, format string, args ...any) *AgentError {
	err := NewError(kind, cause, format, args...)
	a.logger.Error("step %d: %s", stepNumber, err.Message)
	return err
}

// SystemPrompt renders the system prompt for the current tools.
func (a *Agent) SystemPrompt() (string, error) {
	data := prompts.Data{Instructions: a.instructions}
	for _, t := range a.tools {
		data.Tools = append(data.Tools, prompts.NewToolInfo(t))
	}
	for _, m := range a.managed {
		data.ManagedAgents = append(data.ManagedAgents, prompts.ToolInfo{Name: m.name, Description: m.description})
	}
	a.stepper.PromptData(a, &data)
	return prompts.Render(a.templates.SystemPrompt, data)
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	maxSteps       int
	reset          bool
	additionalArgs map[string]any
	stopOnError    bool
}

// WithMaxSteps overrides the agent's step limit for this run.
func WithMaxSteps(n int) RunOption {
	return func(o *runOptions) {
		o.maxSteps = n
	}
}

// WithReset controls whether memory and monitor are cleared first. Default true.
func WithReset(reset bool) RunOption {
	return func(o *runOptions) {
		o.reset = reset
	}
}

// WithAdditionalArgs passes variables to the run. They are listed in the
// task and made available to the agent's code.
func WithAdditionalArgs(args map[string]any) RunOption {
	return func(o *runOptions) {
		o.additionalArgs = args
	}
}

// WithStopOnError makes parsing and execution errors end the run.
func WithStopOnError(stop bool) RunOption {
	return func(o *runOptions) {
		o.stopOnError = stop
	}
}

// RunResult is the outcome of a run.
type RunResult struct {
	Output     any
	Steps      []memory.Step
	TokenUsage memory.TokenUsage
	Timing     memory.Timing
	// State is "success" or "max_steps_error".
	State string
}

// Run solves task step by step.
func (a *Agent) Run(ctx context.Context, task string, opts ...RunOption) (*RunResult, error) {
	options := runOptions{maxSteps: a.maxSteps, reset: true}
	for _, opt := range opts {
		opt(&options)
	}
	if options.maxSteps <= 0 {
		options.maxSteps = DefaultMaxSteps
	}
	timing := memory.NewTiming()

	systemPrompt, err := a.SystemPrompt()
	if err != nil {
		return nil, err
	}
	a.memory.SetSystemPrompt(systemPrompt)
	if options.reset {
		a.memory.Reset()
		a.monitor.Reset()
	}

	if len(options.additionalArgs) > 0 {
		for k, v := range options.additionalArgs {
			a.state[k] = v
		}
		encoded, err := json.Marshal(options.additionalArgs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode additional arguments: %w", err)
		}
		task += "\nYou have been provided with these additional arguments, that you can access directly using the keys as variables:\n" + string(encoded) + "."
	}

	a.logger.Info("new run: %s", task)
	a.Emit(ctx, Event{Type: EventRunStart, Text: task})
	taskStep := &memory.TaskStep{Task: task}
	a.record(ctx, taskStep)

	if err := a.stepper.Prepare(ctx, a, a.state); err != nil {
		return nil, fmt.Errorf("failed to prepare run: %w", err)
	}

	var (
		output any
		done   bool
		state  = StateSuccess
	)
	stepNumber := 1
	for ; stepNumber <= options.maxSteps && !done; stepNumber++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := &memory.ActionStep{StepNumber: stepNumber, Timing: memory.NewTiming()}
		a.Emit(ctx, Event{Type: EventStepStart, StepNumber: stepNumber})

		stepErr := a.stepper.Step(ctx, a, step)
		step.Timing.Stop()
		if stepErr != nil {
			var agentErr *AgentError
			if !errors.As(stepErr, &agentErr) {
				agentErr = a.Errorf(KindExecution, stepNumber, stepErr, "%v", stepErr)
			}
			step.Error = &memory.StepError{Kind: string(agentErr.Kind), Message: agentErr.Message}
			a.recordAction(ctx, step)
			if agentErr.Kind == KindGeneration || options.stopOnError {
				return nil, agentErr
			}
			continue
		}

		a.recordAction(ctx, step)
		if step.IsFinalAnswer {
			output = step.ActionOutput
			done = true
		}
	}

	if !done {
		step := &memory.ActionStep{StepNumber: stepNumber, Timing: memory.NewTiming()}
		maxErr := a.Errorf(KindMaxSteps, stepNumber, nil, "Reached max steps.")
		answer, usage, err := a.ProvideFinalAnswer(ctx, task)
		step.Timing.Stop()
		if err != nil {
			return nil, a.Errorf(KindGeneration, stepNumber, err, "Error in generating final LLM output:\n%v", err)
		}
		step.Error = &memory.StepError{Kind: string(maxErr.Kind), Message: maxErr.Message}
		step.ActionOutput = answer
		step.TokenUsage = usage
		a.recordAction(ctx, step)
		output = answer
		state = StateMaxStepsError
	}

	timing.Stop()
	final := &memory.FinalAnswerStep{Output: output}
	final.SetAgent(a.DisplayName())
	a.runStepCallbacks(ctx, final)
	a.Emit(ctx, Event{Type: EventFinalAnswer, Output: output, IsFinalAnswer: true})
	a.logger.Info("final answer: %v", output)

	return &RunResult{
		Output:     output,
		Steps:      a.memory.Steps(),
		TokenUsage: a.monitor.TokenUsage(),
		Timing:     timing,
		State:      state,
	}, nil
}

func (a *Agent) record(ctx context.Context, step memory.Step) {
	step.SetAgent(a.DisplayName())
	a.memory.Append(step)
	a.runStepCallbacks(ctx, step)
}

func (a *Agent) recordAction(ctx context.Context, step *memory.ActionStep) {
	a.record(ctx, step)
	a.monitor.Update(step)
	a.logger.Debug("step %d took %s, input tokens %d, output tokens %d",
		step.StepNumber, step.Timing.Duration().Round(time.Millisecond), step.TokenUsage.InputTokens, step.TokenUsage.OutputTokens)
	a.Emit(ctx, Event{Type: EventStepEnd, StepNumber: step.StepNumber, Step: step})
}

func (a *Agent) runStepCallbacks(ctx context.Context, step memory.Step) {
	for _, cb := range a.stepCallbacks {
		cb(ctx, a, step)
	}
}

// Generate calls the model on the memory and records input, output and
// usage on step. Streamed chunks are emitted as EventStreamDelta.
func (a *Agent) Generate(ctx context.Context, step *memory.ActionStep, stream bool, options ...llms.CallOption) (*llms.ContentChoice, error) {
	messages := a.memory.ToMessages(false)
	step.ModelInputMessages = messages

	if stream {
		var text strings.Builder
		options = append(options, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			text.Write(chunk)
			a.Emit(ctx, Event{Type: EventStreamDelta, StepNumber: step.StepNumber, Delta: string(chunk), Text: text.String()})
			return nil
		}))
	}

	resp, err := a.model.GenerateContent(ctx, memory.ToLLMMessages(messages), options...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	step.TokenUsage = memory.UsageFromGenerationInfo(choice.GenerationInfo)
	step.ModelOutputMessage = &memory.Message{Role: memory.RoleAssistant, Content: choice.Content}
	step.ModelOutput = choice.Content
	return choice, nil
}

// ProvideFinalAnswer asks the model for an answer to task based on the memory.
func (a *Agent) ProvideFinalAnswer(ctx context.Context, task string) (string, memory.TokenUsage, error) {
	post, err := prompts.Render(a.templates.FinalAnswer.PostMessages, map[string]any{"Task": task})
	if err != nil {
		return "", memory.TokenUsage{}, err
	}
	messages := []memory.Message{{Role: memory.RoleSystem, Content: a.templates.FinalAnswer.PreMessages}}
	if history := a.memory.ToMessages(false); len(history) > 1 {
		messages = append(messages, history[1:]...)
	}
	messages = append(messages, memory.Message{Role: memory.RoleUser, Content: post})

	resp, err := a.model.GenerateContent(ctx, memory.ToLLMMessages(messages))
	if err != nil {
		return "", memory.TokenUsage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", memory.TokenUsage{}, ErrEmptyResponse
	}
	return resp.Choices[0].Content, memory.UsageFromGenerationInfo(resp.Choices[0].GenerationInfo), nil
}

// TotalInputTokens sums the prompt tokens of this agent and, recursively,
// of its managed agents.
func (a *Agent) TotalInputTokens() int {
	total := a.monitor.TotalInputTokens()
	for _, m := range a.managed {
		total += m.TotalInputTokens()
	}
	return total
}

// AllMemorySteps returns the agent's steps tagged with its name, followed by
// the steps of its managed agents.
func (a *Agent) AllMemorySteps() []memory.Step {
	steps := a.memory.Steps()
	for _, s := range steps {
		s.SetAgent(a.DisplayName())
	}
	for _, m := range a.managed {
		steps = append(steps, m.AllMemorySteps()...)
	}
	return steps
}

// FormatOutput renders a run output for a prompt: strings as they are,
// anything else as JSON.
func FormatOutput(v any) string {
	switch o := v.(type) {
	case nil:
		return ""
	case string:
		return o
	case fmt.Stringer:
		return o.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
