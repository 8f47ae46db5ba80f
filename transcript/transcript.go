// Package transcript turns the memory of a run into readable messages.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/memory"
)

const toolsLogPrefix = "Calling tools:\n"

// Entry is one message of one agent.
type Entry struct {
	Agent   string      `json:"agent" yaml:"agent"`
	Role    memory.Role `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`
}

// String renders the entry as a transcript block.
func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s\n", strings.ToUpper(e.Agent))
	fmt.Fprintf(&b, "Role: %s\n", strings.ToUpper(string(e.Role)))
	b.WriteString("------------------\n")
	b.WriteString(e.Content)
	b.WriteString("\n==================\n\n")
	return b.String()
}

// Format selects how Write renders entries.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatHTML}

// ParseFormat accepts a format name; empty means text.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	f := Format(strings.ToLower(s))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown transcript format %q, expected one of %v", s, Formats)
}

// SortSteps orders steps by start time. Steps without timing come first, in
// their original order.
func SortSteps(steps []memory.Step) []memory.Step {
	sorted := make([]memory.Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := startTime(sorted[i]), startTime(sorted[j])
		if ti == nil || tj == nil {
			return ti == nil && tj != nil
		}
		return ti.StartTime.Before(tj.StartTime)
	})
	return sorted
}

func startTime(s memory.Step) *memory.Timing {
	t := s.StepTiming()
	if t == nil || t.StartTime.IsZero() {
		return nil
	}
	return t
}

// Messages converts steps, sorted by start time, into entries. Tool-call
// logs are rewritten as one "Function:" block per call.
func Messages(steps []memory.Step) []Entry {
	var entries []Entry
	for _, step := range SortSteps(steps) {
		name := step.Agent()
		if name == "" {
			name = agent.UnnamedAgent
		}
		for _, m := range step.ToMessages(false) {
			entries = append(entries, Entry{Agent: name, Role: m.Role, Content: ExtractLog(m.Content)})
		}
	}
	return entries
}

// loggedCall is a tool call as written in a "Calling tools:" log.
type loggedCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// ExtractLog prettifies a "Calling tools:" log. Dict arguments are listed in
// the order of the log. Other content, and logs that do not parse, are
// returned unchanged.
func ExtractLog(content string) string {
	if !strings.HasPrefix(content, toolsLogPrefix) {
		return content
	}
	var calls []loggedCall
	if err := json.Unmarshal([]byte(strings.TrimPrefix(content, toolsLogPrefix)), &calls); err != nil {
		return content
	}

	var b strings.Builder
	for _, c := range calls {
		fmt.Fprintf(&b, "Function: %s\nArguments:\n", c.Function.Name)
		args, err := orderedArguments(c.Function.Arguments)
		if err != nil {
			return content
		}
		if args == nil {
			var v any
			if len(c.Function.Arguments) > 0 {
				if err := json.Unmarshal(c.Function.Arguments, &v); err != nil {
					return content
				}
			}
			b.WriteString(agent.FormatOutput(v))
			continue
		}
		for _, arg := range args {
			fmt.Fprintf(&b, "\t%s: %s\n", arg.name, agent.FormatOutput(arg.value))
		}
	}
	return b.String()
}

type argument struct {
	name  string
	value any
}

// orderedArguments walks a JSON object keeping its key order. It returns
// nil for anything but an object.
func orderedArguments(raw json.RawMessage) ([]argument, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, nil
	}
	args := []argument{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		args = append(args, argument{name: name, value: value})
	}
	return args, nil
}

// Write renders the entries of steps in format.
func Write(w io.Writer, steps []memory.Step, format Format) error {
	entries := Messages(steps)
	switch format {
	case FormatText, "":
		for _, e := range entries {
			if _, err := fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []Entry{}
		}
		return enc.Encode(entries)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		return enc.Close()
	case FormatHTML:
		return writeHTML(w, entries)
	}
	return fmt.Errorf("unknown transcript format %q", format)
}

// Dump prints every message of a, its managed agents included, then the
// total input tokens.
func Dump(w io.Writer, a *agent.Agent, format Format) error {
	if format == FormatText || format == "" {
		fmt.Fprintln(w, "Dumping agent messages:")
		fmt.Fprintln(w, "***********************")
	}
	if err := Write(w, a.AllMemorySteps(), format); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Total input tokens = %d\n", a.TotalInputTokens())
	return err
}
