// Package console renders agent events for a human reading a terminal.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/gatewaylab/agentrun/agent"
	"github.com/gatewaylab/agentrun/ptc"
)

// Level is the verbosity of the console.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var (
	ruleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	answerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// Printer is an agent.Listener writing to a terminal or any writer.
type Printer struct {
	out         io.Writer
	level       Level
	interactive bool
	width       int
	renderer    *glamour.TermRenderer

	mu sync.Mutex
	// live holds the rendered lines of the stream being re-rendered.
	live int
	// pending is set while raw chunks wait for their closing newline.
	pending      bool
	stepStreamed bool
}

var _ agent.Listener = (*Printer)(nil)

// Option configures a Printer.
type Option func(*Printer)

// WithInteractive forces live re-rendering on or off. By default it is on
// when the writer is a terminal.
func WithInteractive(interactive bool) Option {
	return func(p *Printer) {
		p.interactive = interactive
	}
}

// WithWidth sets the word wrap of rendered markdown (default: 100).
func WithWidth(width int) Option {
	return func(p *Printer) {
		p.width = width
	}
}

// WithRenderer replaces the markdown renderer.
func WithRenderer(r *glamour.TermRenderer) Option {
	return func(p *Printer) {
		p.renderer = r
	}
}

// New returns a printer at the given verbosity: 0 shows errors, 1 adds the
// progress of runs, 2 adds model outputs and step statistics.
func New(out io.Writer, verbosity int, opts ...Option) *Printer {
	p := &Printer{
		out:         out,
		level:       levelFromVerbosity(verbosity),
		interactive: IsTerminal(out),
		width:       100,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.renderer == nil && p.interactive {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(p.width),
		)
		if err == nil {
			p.renderer = r
		}
	}
	return p
}

func levelFromVerbosity(v int) Level {
	switch {
	case v <= 0:
		return LevelError
	case v == 1:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// OnEvent implements agent.Listener.
func (p *Printer) OnEvent(ctx context.Context, ev agent.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case agent.EventRunStart:
		p.print(LevelInfo, p.rule("New run - "+ev.Agent))
		p.print(LevelInfo, panelStyle.Render(ev.Text))
	case agent.EventStepStart:
		p.live = 0
		p.stepStreamed = false
		p.print(LevelInfo, p.rule(fmt.Sprintf("Step %d", ev.StepNumber)))
	case agent.EventStreamDelta:
		p.stream(ev)
	case agent.EventToolCall:
		p.endStream()
		p.toolCall(ev)
	case agent.EventToolOutput:
		if ev.Observation != "" {
			p.print(LevelInfo, titleStyle.Render("Observations:")+"\n"+ev.Observation)
		}
	case agent.EventActionOutput:
		if !ev.IsFinalAnswer && ev.Output != nil {
			p.print(LevelInfo, "Out: "+agent.FormatOutput(ev.Output))
		}
	case agent.EventStepEnd:
		p.endStream()
		p.stepEnd(ev)
	case agent.EventFinalAnswer:
		p.print(LevelInfo, answerStyle.Render("Final answer: "+agent.FormatOutput(ev.Output)))
	}
}

func (p *Printer) print(level Level, text string) {
	if level > p.level {
		return
	}
	fmt.Fprintln(p.out, text)
}

func (p *Printer) rule(title string) string {
	width := p.width
	line := strings.Repeat("━", max(width-len([]rune(title))-2, 4)/2)
	return ruleStyle.Render(line + " " + title + " " + line)
}

func (p *Printer) markdown(text string) string {
	if p.renderer == nil {
		return text
	}
	out, err := p.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// stream shows the output of the model as it arrives. Terminals get the
// whole output re-rendered as markdown, other writers get raw chunks.
func (p *Printer) stream(ev agent.Event) {
	if p.level < LevelInfo {
		return
	}
	p.stepStreamed = true
	if !p.interactive {
		p.pending = true
		io.WriteString(p.out, ev.Delta)
		return
	}
	if p.live > 0 {
		// Move up over the previous rendering and clear to the end of screen.
		fmt.Fprintf(p.out, "\x1b[%dA\x1b[J", p.live)
	}
	rendered := p.markdown(ev.Text)
	fmt.Fprintln(p.out, rendered)
	p.live = strings.Count(rendered, "\n") + 1
}

func (p *Printer) endStream() {
	if p.pending {
		fmt.Fprintln(p.out)
	}
	p.pending = false
	p.live = 0
}

func (p *Printer) toolCall(ev agent.Event) {
	if ev.ToolCall == nil {
		return
	}
	if code, ok := ev.ToolCall.Arguments.(string); ok && ev.ToolCall.Name == ptc.InterpreterToolName {
		p.print(LevelInfo, titleStyle.Render("Executing parsed code:")+"\n"+panelStyle.Render(code))
		return
	}
	args := agent.FormatOutput(ev.ToolCall.Arguments)
	p.print(LevelInfo, panelStyle.Render(fmt.Sprintf("Calling tool: '%s' with arguments: %s", ev.ToolCall.Name, args)))
	// Printed at every verbosity.
	p.print(LevelError, fmt.Sprintf("AGENT %s: Calling tool %s with arguments %s", ev.Agent, ev.ToolCall.Name, args))
}

func (p *Printer) stepEnd(ev agent.Event) {
	step := ev.Step
	if step == nil {
		return
	}
	if step.Error != nil {
		p.print(LevelError, errorStyle.Render(step.Error.Message))
	}
	if !p.stepStreamed && step.ModelOutput != "" {
		p.print(LevelDebug, titleStyle.Render("Output message of the LLM:")+"\n"+p.markdown(step.ModelOutput))
	}
	p.print(LevelDebug, dimStyle.Render(fmt.Sprintf("[Step %d: Duration %.2f seconds| Input tokens: %d | Output tokens: %d]",
		step.StepNumber, step.Timing.Duration().Round(10*time.Millisecond).Seconds(),
		step.TokenUsage.InputTokens, step.TokenUsage.OutputTokens)))
}
