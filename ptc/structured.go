package ptc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
)

var structuredPrefix = regexp.MustCompile(`\{\s*"thought"\s*:`)

// ExtractStructuredText drops anything a model printed before the
// {"thought": ...} object. Text without such an object is returned unchanged.
func ExtractStructuredText(text string) string {
	loc := structuredPrefix.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[loc[0]:]
}

// ThoughtAndCodeAnswer is the structured output of a code agent turn.
type ThoughtAndCodeAnswer struct {
	Thought string `json:"thought" jsonschema:"title=Thought,description=A free form text description of the thought process."`
	Code    string `json:"code" jsonschema:"title=Code,description=Valid Python code snippet implementing the thought."`
}

// CodeActionSchemaName names the structured output schema sent to the model.
const CodeActionSchemaName = "ThoughtAndCodeAnswer"

// CodeActionSchema returns the JSON schema of ThoughtAndCodeAnswer: both
// fields required, no additional properties.
func CodeActionSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(&ThoughtAndCodeAnswer{})
	schema.Version = ""
	schema.Title = CodeActionSchemaName
	schema.AdditionalProperties = jsonschema.FalseSchema
	return schema
}

// ParseStructuredCode decodes a structured turn and returns its code. When the
// code field itself wraps a code block, the block's content is returned.
func ParseStructuredCode(text string, tags CodeBlockTags, extractor Extractor) (string, error) {
	if extractor == nil {
		extractor = DefaultExtractor
	}
	var payload map[string]any
	dec := json.NewDecoder(strings.NewReader(ExtractStructuredText(text)))
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode structured output: %w", err)
	}
	raw, ok := payload["code"]
	if !ok {
		return "", fmt.Errorf("structured output has no \"code\" field")
	}
	code, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("structured output field \"code\" must be a string, got %T", raw)
	}
	if inner, ok := extractor.Extract(code, tags); ok {
		return inner, nil
	}
	return code, nil
}
