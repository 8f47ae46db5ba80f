package agent

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/gatewaylab/agentrun/agent/prompts"
	"github.com/gatewaylab/agentrun/tool"
)

// AdditionalArgsParam is the managed agent argument carrying extra inputs.
const AdditionalArgsParam = "additional_args"

// managedTool exposes an agent to its manager.
type managedTool struct {
	agent *Agent
}

var _ tool.Tool = managedTool{}

// AsTool exposes the agent as a tool taking a task and optional
// additional arguments.
func (a *Agent) AsTool() tool.Tool {
	return managedTool{agent: a}
}

// IsManagedAgentTool reports whether t runs a managed agent.
func IsManagedAgentTool(t tool.Tool) bool {
	_, ok := t.(managedTool)
	return ok
}

func (t managedTool) Name() string        { return t.agent.name }
func (t managedTool) Description() string { return t.agent.description }
func (t managedTool) OutputType() string  { return "string" }

func (t managedTool) Inputs() *jsonschema.Schema {
	return tool.Inputs(
		tool.Param{Name: "task", Type: "string", Description: "Long detailed description of the task."},
		tool.Param{Name: AdditionalArgsParam, Type: "object", Description: "Dictionary of extra inputs to pass to the managed agent, e.g. data or any other contextual information it may need.", Nullable: true},
	)
}

func (t managedTool) Forward(ctx context.Context, args map[string]any) (any, error) {
	task, ok := args["task"].(string)
	if !ok {
		return nil, fmt.Errorf("managed agent %s: task must be a string, got %T", t.agent.name, args["task"])
	}
	extra, _ := args[AdditionalArgsParam].(map[string]any)
	return t.agent.RunManaged(ctx, task, extra)
}

// RunManaged runs task on behalf of a manager and returns the report the
// manager sees.
func (a *Agent) RunManaged(ctx context.Context, task string, additionalArgs map[string]any) (string, error) {
	fullTask, err := prompts.Render(a.templates.ManagedAgent.Task, map[string]any{"Name": a.name, "Task": task})
	if err != nil {
		return "", err
	}

	var opts []RunOption
	if len(additionalArgs) > 0 {
		opts = append(opts, WithAdditionalArgs(additionalArgs))
	}
	result, err := a.Run(ctx, fullTask, opts...)
	if err != nil {
		return "", fmt.Errorf("managed agent %s failed: %w", a.name, err)
	}

	return prompts.Render(a.templates.ManagedAgent.Report, map[string]any{
		"Name":        a.name,
		"FinalAnswer": FormatOutput(result.Output),
	})
}
