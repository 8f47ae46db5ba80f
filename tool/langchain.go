package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/tools"
)

type langchainTool struct {
	tool tools.Tool
}

// FromLangchain adapts a langchaingo tool. It takes a single string argument
// named "input" and returns a string.
func FromLangchain(t tools.Tool) Tool {
	return &langchainTool{tool: t}
}

func (t *langchainTool) Name() string        { return t.tool.Name() }
func (t *langchainTool) Description() string { return t.tool.Description() }
func (t *langchainTool) OutputType() string  { return "string" }

func (t *langchainTool) Inputs() *jsonschema.Schema {
	return Inputs(Param{Name: "input", Type: "string", Description: "The input of the tool"})
}

func (t *langchainTool) Forward(ctx context.Context, args map[string]any) (any, error) {
	var input string
	switch v := args["input"].(type) {
	case string:
		input = v
	case nil:
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("tool %s: failed to encode input: %w", t.Name(), err)
		}
		input = string(data)
	}
	return t.tool.Call(ctx, input)
}
