package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/tmc/langchaingo/llms"
)

// Tool is a named function an agent may call, either from generated code or
// through the model's tool-calling interface.
type Tool interface {
	Name() string
	Description() string
	// Inputs is the JSON schema of the keyword arguments accepted by Forward.
	Inputs() *jsonschema.Schema
	// OutputType is a JSON schema type name ("string", "object", "any", ...).
	OutputType() string
	Forward(ctx context.Context, args map[string]any) (any, error)
}

// ForwardFunc is the body of a FuncTool.
type ForwardFunc func(ctx context.Context, args map[string]any) (any, error)

// FuncTool is a Tool backed by a function.
type FuncTool struct {
	name        string
	description string
	inputs      *jsonschema.Schema
	outputType  string
	fn          ForwardFunc
}

var _ Tool = (*FuncTool)(nil)

// New creates a FuncTool. A nil inputs schema means the tool takes no arguments.
func New(name, description string, inputs *jsonschema.Schema, outputType string, fn ForwardFunc) *FuncTool {
	if inputs == nil {
		inputs = Inputs()
	}
	if outputType == "" {
		outputType = "any"
	}
	return &FuncTool{
		name:        name,
		description: description,
		inputs:      inputs,
		outputType:  outputType,
		fn:          fn,
	}
}

func (t *FuncTool) Name() string               { return t.name }
func (t *FuncTool) Description() string        { return t.description }
func (t *FuncTool) Inputs() *jsonschema.Schema { return t.inputs }
func (t *FuncTool) OutputType() string         { return t.outputType }

func (t *FuncTool) Forward(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// Param describes one keyword argument of a tool.
type Param struct {
	Name        string
	Type        string
	Description string
	// Nullable parameters are optional.
	Nullable bool
}

// Inputs builds an object schema from params, keeping their order.
func Inputs(params ...Param) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	var required []string
	for _, p := range params {
		s := &jsonschema.Schema{Type: p.Type, Description: p.Description}
		if p.Type == "any" {
			s.Type = ""
		}
		if p.Nullable {
			s.Extras = map[string]any{"nullable": true}
		} else {
			required = append(required, p.Name)
		}
		props.Set(p.Name, s)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

// ReflectInputs derives an inputs schema from a Go struct value.
func ReflectInputs(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema
}

// ParamNames returns the argument names of t in declaration order.
func ParamNames(t Tool) []string {
	schema := t.Inputs()
	if schema == nil || schema.Properties == nil {
		return nil
	}
	names := make([]string, 0, schema.Properties.Len())
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Params returns the argument descriptions of t in declaration order.
func Params(t Tool) []Param {
	schema := t.Inputs()
	if schema == nil || schema.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	params := make([]Param, 0, schema.Properties.Len())
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		typ := pair.Value.Type
		if typ == "" {
			typ = "any"
		}
		params = append(params, Param{
			Name:        pair.Key,
			Type:        typ,
			Description: pair.Value.Description,
			Nullable:    !required[pair.Key],
		})
	}
	return params
}

// ValidateArguments checks that args carries every required argument of t
// and nothing it does not declare.
func ValidateArguments(t Tool, args map[string]any) error {
	schema := t.Inputs()
	if schema == nil || schema.Properties == nil {
		return nil
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("tool %s: argument %q is required", t.Name(), name)
		}
	}
	var unknown []string
	for name := range args {
		if _, ok := schema.Properties.Get(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("tool %s: unexpected arguments %v, expected %v", t.Name(), unknown, ParamNames(t))
	}
	return nil
}

// LLMTool converts t to a langchaingo function definition.
func LLMTool(t Tool) (llms.Tool, error) {
	var params map[string]any
	if schema := t.Inputs(); schema != nil {
		data, err := json.Marshal(schema)
		if err != nil {
			return llms.Tool{}, fmt.Errorf("failed to marshal parameters of %s: %w", t.Name(), err)
		}
		if err := json.Unmarshal(data, &params); err != nil {
			return llms.Tool{}, fmt.Errorf("failed to unmarshal parameters of %s: %w", t.Name(), err)
		}
	}
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}, nil
}

// LLMTools converts every tool with LLMTool.
func LLMTools(tools []Tool) ([]llms.Tool, error) {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		lt, err := LLMTool(t)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, nil
}
