package prebuilt

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/agent/prompts"
	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/memory"
	"github.com/gatewaylab/agentrun/ptc"
)

// Stop sequences shared by every agent kind.
var baseStopSequences = []string{"Observation:", "Calling tools:"}

// CodeConfig configures the turn of a code agent.
type CodeConfig struct {
	// UseStructuredOutput asks the model for a {"thought", "code"} JSON object
	UseStructuredOutput bool

	// CodeBlockTags delimit code in the model output (default: ptc.XMLCodeTags)
	CodeBlockTags ptc.CodeBlockTags

	// Streaming consumes the model output chunk by chunk
	Streaming bool

	// Extractor picks the code block out of the output (default: ptc.DefaultExtractor)
	Extractor ptc.Extractor

	// Interpreter runs the code (default: a ptc.StarlarkInterpreter)
	Interpreter ptc.Interpreter

	// AuthorizedImports restricts the imports of the default interpreter
	AuthorizedImports []string

	// Logger is used by the default interpreter (default: the agent's logger)
	Logger log.Logger
}

// CodeStepper implements the generate, parse, execute turn of a code agent.
type CodeStepper struct {
	config CodeConfig
}

var _ agent.Stepper = (*CodeStepper)(nil)

// NewCodeStepper fills the defaults of config.
func NewCodeStepper(config CodeConfig) *CodeStepper {
	if config.CodeBlockTags == (ptc.CodeBlockTags{}) {
		config.CodeBlockTags = ptc.XMLCodeTags
	}
	if config.Extractor == nil {
		config.Extractor = ptc.DefaultExtractor
	}
	if config.Interpreter == nil {
		var opts []ptc.InterpreterOption
		if config.Logger != nil {
			opts = append(opts, ptc.WithInterpreterLogger(config.Logger))
		}
		if len(config.AuthorizedImports) > 0 {
			opts = append(opts, ptc.WithAuthorizedImports(config.AuthorizedImports...))
		}
		config.Interpreter = ptc.NewStarlarkInterpreter(opts...)
	}
	return &CodeStepper{config: config}
}

// CreateCodeAgent creates an agent that acts by writing code.
func CreateCodeAgent(config agent.Config, code CodeConfig) (*agent.Agent, error) {
	if code.Logger == nil && code.Interpreter == nil && config.Logger != nil {
		code.Logger = log.WithPrefix(config.Logger, "interpreter")
	}
	return agent.New(config, NewCodeStepper(code))
}

// Interpreter returns the interpreter running the agent's code.
func (s *CodeStepper) Interpreter() ptc.Interpreter {
	return s.config.Interpreter
}

// StopSequences are sent with every generation. The closing tag is left out
// when it is part of the opening tag, since it would cut generation short.
func (s *CodeStepper) StopSequences() []string {
	stops := append([]string{}, baseStopSequences...)
	if !s.config.CodeBlockTags.CloseInOpen() {
		stops = append(stops, s.config.CodeBlockTags.Close)
	}
	return stops
}

func (s *CodeStepper) Templates() *prompts.Templates {
	return prompts.Code()
}

func (s *CodeStepper) PromptData(a *agent.Agent, data *prompts.Data) {
	data.CodeBlockOpen = s.config.CodeBlockTags.Open
	data.CodeBlockClose = s.config.CodeBlockTags.Close
	data.StructuredOutput = s.config.UseStructuredOutput
	data.AuthorizedImports = s.config.Interpreter.AuthorizedImports()
}

func (s *CodeStepper) Prepare(ctx context.Context, a *agent.Agent, state map[string]any) error {
	if err := s.config.Interpreter.SendVariables(state); err != nil {
		return err
	}
	s.config.Interpreter.SendTools(a.ToolMap())
	return nil
}

func (s *CodeStepper) Step(ctx context.Context, a *agent.Agent, step *memory.ActionStep) error {
	tags := s.config.CodeBlockTags
	interpreter := s.config.Interpreter
	logger := a.Logger()

	options := []llms.CallOption{llms.WithStopWords(s.StopSequences())}
	if s.config.UseStructuredOutput {
		options = append(options, llms.WithJSONMode())
	}
	choice, err := a.Generate(ctx, step, s.config.Streaming, options...)
	if err != nil {
		return a.Errorf(agent.KindGeneration, step.StepNumber, err, "Error in generating model output:\n%v", err)
	}
	output := choice.Content
	if !s.config.Streaming {
		logger.Debug("output message of the LLM:\n%s", output)
	}
	if !s.config.UseStructuredOutput && output != "" && !strings.HasSuffix(strings.TrimSpace(output), tags.Close) {
		output += tags.Close
		step.ModelOutputMessage.Content = output
	}
	step.ModelOutput = output

	var code string
	if s.config.UseStructuredOutput {
		code, err = ptc.ParseStructuredCode(output, tags, s.config.Extractor)
	} else {
		code, err = ptc.ParseCodeBlobs(output, tags, s.config.Extractor, interpreter)
	}
	if err != nil {
		return a.Errorf(agent.KindParsing, step.StepNumber, err, "Error in code parsing:\n%v\nMake sure to provide correct code blobs.", err)
	}
	code = ptc.FixFinalAnswerCode(code)
	step.CodeAction = code

	call := memory.ToolCall{
		ID:        fmt.Sprintf("call_%d", a.Memory().Len()),
		Name:      interpreter.Language(),
		Arguments: code,
	}
	a.Emit(ctx, agent.Event{Type: agent.EventToolCall, StepNumber: step.StepNumber, ToolCall: &call})
	step.ToolCalls = []memory.ToolCall{call}

	logger.Info("executing parsed code:\n%s", code)
	result, err := interpreter.Execute(ctx, code)
	if err != nil {
		if logs := interpreter.PrintOutputs(); logs != "" {
			step.Observations = "Execution logs:\n" + logs
			logger.Info("execution logs:\n%s", logs)
			a.Emit(ctx, agent.Event{Type: agent.EventToolOutput, StepNumber: step.StepNumber, ToolCall: &call, Observation: step.Observations})
		}
		if ptc.IsImportError(err) {
			logger.Warn("code execution failed due to an unauthorized import: consider authorizing the import when creating the code agent")
		}
		return a.Errorf(agent.KindExecution, step.StepNumber, err, "%v", err)
	}

	truncated := ptc.TruncateContent(ptc.FormatValue(result.Output), ptc.MaxContentLength)
	observation := "Execution logs:\n" + result.Logs
	observation += "Last output from code snippet:\n" + truncated
	step.Observations = observation
	if result.Logs != "" {
		logger.Info("execution logs:\n%s", result.Logs)
	}
	a.Emit(ctx, agent.Event{Type: agent.EventToolOutput, StepNumber: step.StepNumber, ToolCall: &call, Observation: observation})

	if !result.IsFinalAnswer {
		logger.Info("Out: %s", truncated)
	}
	step.ActionOutput = result.Output
	step.IsFinalAnswer = result.IsFinalAnswer
	a.Emit(ctx, agent.Event{
		Type:          agent.EventActionOutput,
		StepNumber:    step.StepNumber,
		Output:        result.Output,
		IsFinalAnswer: result.IsFinalAnswer,
	})
	return nil
}
