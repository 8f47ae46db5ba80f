package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/config"
	"github.com/gatewaylab/agentrun/console"
	"github.com/gatewaylab/agentrun/llms/gateway"
	"github.com/gatewaylab/agentrun/llms/stop"
	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/prebuilt"
	"github.com/gatewaylab/agentrun/ptc"
	"github.com/gatewaylab/agentrun/store"
	"github.com/gatewaylab/agentrun/tool"
	"github.com/gatewaylab/agentrun/transcript"
)

// app holds what every subcommand shares.
type app struct {
	settings  *config.Settings
	out       io.Writer
	logger    log.Logger
	printer   *console.Printer
	model     llms.Model
	tags      ptc.CodeBlockTags
	extractor ptc.Extractor
	format    transcript.Format
	store     store.StepStore
	recorder  *store.Recorder
}

func newApp(ctx context.Context, s *config.Settings, out io.Writer, structured bool) (*app, error) {
	format, err := transcript.ParseFormat(s.TranscriptFormat)
	if err != nil {
		return nil, err
	}
	var tags ptc.CodeBlockTags
	if s.CodeBlockTags != "" {
		if tags, err = ptc.ParseCodeBlockTags(s.CodeBlockTags); err != nil {
			return nil, err
		}
	}
	extractor, err := ptc.ParseExtractor(s.Extractor)
	if err != nil {
		return nil, err
	}
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.NewWriterLogger(os.Stderr, level)

	model, err := newModel(s, logger, structured && s.AgentType == config.AgentTypeCode)
	if err != nil {
		return nil, err
	}

	a := &app{
		settings:  s,
		out:       out,
		logger:    logger,
		printer:   console.New(out, s.Verbosity),
		model:     model,
		tags:      tags,
		extractor: extractor,
		format:    format,
	}
	if s.Store != "" {
		if a.store, err = store.Open(ctx, s.Store); err != nil {
			return nil, err
		}
		a.recorder = store.NewRecorder(a.store, "", logger)
	}
	return a, nil
}

// newModel returns the model client selected by the backend setting.
// Structured runs ask the gateway for the code action JSON schema.
func newModel(s *config.Settings, logger log.Logger, structured bool) (llms.Model, error) {
	policy, ok := stop.ParsePolicy(s.StopPolicy)
	if !ok {
		return nil, fmt.Errorf("unknown stop policy %q", s.StopPolicy)
	}

	switch s.Backend {
	case config.BackendLangchain:
		llm, err := openai.New(
			openai.WithToken(s.APIKey),
			openai.WithBaseURL(s.BaseURL),
			openai.WithModel(s.ModelID),
		)
		if err != nil {
			return nil, err
		}
		return stop.Guard(llm, policy, s.ModelID), nil
	default:
		opts := []gateway.Option{
			gateway.WithAPIKey(s.APIKey),
			gateway.WithBaseURL(s.BaseURL),
			gateway.WithModel(s.ModelID),
			gateway.WithStopPolicy(policy),
			gateway.WithLogger(log.WithPrefix(logger, "gateway")),
			gateway.WithCallbacksHandler(gateway.NewLoggingHandler(logger)),
		}
		if structured {
			opts = append(opts, gateway.WithResponseSchema(ptc.CodeActionSchemaName, ptc.CodeActionSchema()))
		}
		return gateway.New(opts...)
	}
}

type agentSpec struct {
	name        string
	description string
	tools       []tool.Tool
	managed     []*agent.Agent
	maxSteps    int
	structured  bool
}

// newAgent creates an agent of the configured type.
func (a *app) newAgent(spec agentSpec) (*agent.Agent, error) {
	cfg := agent.Config{
		Model:         a.model,
		Name:          spec.name,
		Description:   spec.description,
		Tools:         spec.tools,
		ManagedAgents: spec.managed,
		MaxSteps:      spec.maxSteps,
		Logger:        a.logger,
		Listeners:     []agent.Listener{a.printer},
	}
	if a.settings.AgentType == config.AgentTypeToolCalling {
		return prebuilt.CreateToolCallingAgent(cfg, prebuilt.ToolCallingConfig{Streaming: a.settings.Stream})
	}
	return prebuilt.CreateCodeAgent(cfg, prebuilt.CodeConfig{
		UseStructuredOutput: spec.structured,
		CodeBlockTags:       a.tags,
		Extractor:           a.extractor,
		Streaming:           a.settings.Stream,
	})
}

// agentName prefixes the agent type, e.g. "manager_code_agent".
func (a *app) agentName(role string) string {
	name := a.settings.AgentLabel() + "_agent"
	if role == "" {
		return name
	}
	return role + "_" + name
}

// track records the steps of root and its managed agents when a store is set.
func (a *app) track(root *agent.Agent) {
	if a.recorder != nil {
		a.recorder.Attach(root)
	}
}

// finish prints the transcript of root and the total input tokens.
func (a *app) finish(root *agent.Agent) error {
	if err := transcript.Dump(a.out, root, a.format); err != nil {
		return err
	}
	if a.recorder != nil {
		if err := a.recorder.Err(); err != nil {
			a.logger.Warn("some steps were not recorded: %v", err)
		}
		fmt.Fprintf(a.out, "Run ID: %s\n", a.recorder.RunID())
	}
	return nil
}

func (a *app) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
