// Package prompts holds the prompt templates of code and tool-calling agents.
//
// Templates are YAML documents embedded in the binary. Each field is a
// text/template rendered with the sprig function map.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"gopkg.in/yaml.v3"

	"github.com/gatewaylab/agentrun/tool"
)

//go:embed *.yaml
var files embed.FS

// Templates is one set of agent prompts.
type Templates struct {
	SystemPrompt string              `yaml:"system_prompt"`
	FinalAnswer  FinalAnswerTemplate `yaml:"final_answer"`
	ManagedAgent ManagedTemplate     `yaml:"managed_agent"`
}

// FinalAnswerTemplate frames the memory when a run runs out of steps.
type FinalAnswerTemplate struct {
	PreMessages  string `yaml:"pre_messages"`
	PostMessages string `yaml:"post_messages"`
}

// ManagedTemplate wraps the task given to a managed agent and its report.
type ManagedTemplate struct {
	Task   string `yaml:"task"`
	Report string `yaml:"report"`
}

// ToolInfo is a tool as shown to the model.
type ToolInfo struct {
	Name        string
	Description string
	OutputType  string
	Params      []tool.Param
}

// Data is the input of the system prompt template.
type Data struct {
	Tools             []ToolInfo
	ManagedAgents     []ToolInfo
	AuthorizedImports []string
	CodeBlockOpen     string
	CodeBlockClose    string
	StructuredOutput  bool
	Instructions      string
}

// NewToolInfo describes t for a prompt.
func NewToolInfo(t tool.Tool) ToolInfo {
	return ToolInfo{
		Name:        t.Name(),
		Description: t.Description(),
		OutputType:  t.OutputType(),
		Params:      tool.Params(t),
	}
}

// Parse reads a template set from YAML.
func Parse(data []byte) (*Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	if t.SystemPrompt == "" {
		return nil, fmt.Errorf("prompt templates have no system_prompt")
	}
	return &t, nil
}

// Load reads one of the embedded template sets: "code" or "toolcalling".
func Load(name string) (*Templates, error) {
	data, err := files.ReadFile(name + "_agent.yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown prompt templates %q: %w", name, err)
	}
	return Parse(data)
}

// Code returns the embedded code agent templates.
func Code() *Templates {
	return mustLoad("code")
}

// ToolCalling returns the embedded tool-calling agent templates.
func ToolCalling() *Templates {
	return mustLoad("toolcalling")
}

func mustLoad(name string) *Templates {
	t, err := Load(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes text as a template over data.
func Render(text string, data any) (string, error) {
	tmpl, err := template.New("prompt").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt template: %w", err)
	}
	return buf.String(), nil
}
