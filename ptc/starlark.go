package ptc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/tool"
	starlarkjson "go.starlark.net/lib/json"
	starlarkmath "go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	sourceName     = "code.py"
	lastOutputName = "__last_output__"
	contextKey     = "context"
	finalKey       = "final_answer"

	// DefaultMaxOperations bounds the Starlark steps of one execution.
	DefaultMaxOperations = 10_000_000
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// libraryModules are the importable modules backed by Starlark libraries.
var libraryModules = map[string]starlark.Value{
	"json": starlarkjson.Module,
	"math": starlarkmath.Module,
	"time": starlarktime.Module,
}

var errFinalAnswer = errors.New("final answer")

type finalState struct {
	set   bool
	value any
}

// StarlarkInterpreter executes Python-like code with go.starlark.net.
// Globals defined by one execution are visible, and mutable, in the next.
type StarlarkInterpreter struct {
	mu            sync.Mutex
	globals       starlark.StringDict
	variables     starlark.StringDict
	tools         map[string]tool.Tool
	authorized    map[string]starlark.Value
	maxOperations uint64
	prints        strings.Builder
	logger        log.Logger
}

var _ Interpreter = (*StarlarkInterpreter)(nil)

// InterpreterOption configures a StarlarkInterpreter.
type InterpreterOption func(*StarlarkInterpreter)

// WithAuthorizedImports restricts the importable modules. Names without a
// Starlark library behind them are ignored.
func WithAuthorizedImports(modules ...string) InterpreterOption {
	return func(s *StarlarkInterpreter) {
		s.authorized = make(map[string]starlark.Value, len(modules))
		for _, name := range modules {
			if m, ok := libraryModules[name]; ok {
				s.authorized[name] = m
			}
		}
	}
}

// WithMaxOperations sets the step budget of one execution. Zero disables it.
func WithMaxOperations(n uint64) InterpreterOption {
	return func(s *StarlarkInterpreter) {
		s.maxOperations = n
	}
}

// WithInterpreterLogger sets the logger reporting rewritten imports,
// refused imports and interrupted executions.
func WithInterpreterLogger(logger log.Logger) InterpreterOption {
	return func(s *StarlarkInterpreter) {
		s.logger = logger
	}
}

// NewStarlarkInterpreter creates an interpreter with every library module
// authorized.
func NewStarlarkInterpreter(opts ...InterpreterOption) *StarlarkInterpreter {
	s := &StarlarkInterpreter{
		globals:       starlark.StringDict{},
		variables:     starlark.StringDict{},
		tools:         map[string]tool.Tool{},
		authorized:    libraryModules,
		maxOperations: DefaultMaxOperations,
		logger:        &log.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StarlarkInterpreter) Language() string {
	return InterpreterToolName
}

// AuthorizedImports lists the importable modules in name order.
func (s *StarlarkInterpreter) AuthorizedImports() []string {
	return sortedKeys(s.authorized)
}

// SendTools replaces the callable tools. A tool named final_answer is used
// by the final_answer builtin.
func (s *StarlarkInterpreter) SendTools(tools map[string]tool.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = make(map[string]tool.Tool, len(tools))
	for name, t := range tools {
		s.tools[name] = t
	}
}

// SendVariables makes vars readable as globals.
func (s *StarlarkInterpreter) SendVariables(vars map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range vars {
		sv, err := toStarlark(v)
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
		sv.Freeze()
		s.variables[name] = sv
	}
	return nil
}

// PrintOutputs returns what the last execution printed.
func (s *StarlarkInterpreter) PrintOutputs() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prints.String()
}

// Reset drops globals carried over from previous executions.
func (s *StarlarkInterpreter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = starlark.StringDict{}
	s.prints.Reset()
}

// Check parses code without running it. Import statements are accepted
// whatever the module.
func (s *StarlarkInterpreter) Check(code string) error {
	src, err := rewriteImports(code, nil)
	if err != nil {
		return err
	}
	_, err = fileOptions.Parse(sourceName, src, 0)
	return err
}

func (s *StarlarkInterpreter) Execute(ctx context.Context, code string) (CodeOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prints.Reset()

	src, err := rewriteImports(code, s.authorized)
	if err != nil {
		s.logger.Warn("refused code: %v", err)
		return CodeOutput{}, err
	}
	if src != code {
		s.logger.Debug("rewrote imports:\n%s", src)
	}
	f, err := fileOptions.Parse(sourceName, src, 0)
	if err != nil {
		return CodeOutput{}, fmt.Errorf("syntax error: %w", err)
	}
	captureTrailingExpression(f)

	builtins := s.builtins()
	env := make(starlark.StringDict, len(builtins)+len(s.globals))
	for name, v := range builtins {
		env[name] = v
	}
	for name, v := range s.globals {
		env[name] = v
	}

	final := &finalState{}
	thread := &starlark.Thread{
		Name: "agent",
		Print: func(_ *starlark.Thread, msg string) {
			s.prints.WriteString(msg)
			s.prints.WriteByte('\n')
		},
	}
	thread.SetLocal(contextKey, ctx)
	thread.SetLocal(finalKey, final)
	if s.maxOperations > 0 {
		thread.SetMaxExecutionSteps(s.maxOperations)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	// Chunks share one unfrozen module scope, so lists and dicts built
	// by a step can be updated by the next.
	err = starlark.ExecREPLChunk(f, thread, env)
	for name, v := range env {
		if _, builtin := builtins[name]; builtin && s.globals[name] == nil {
			continue
		}
		if name != lastOutputName {
			s.globals[name] = v
		}
	}

	logs := s.prints.String()
	if final.set {
		return CodeOutput{Output: final.value, Logs: logs, IsFinalAnswer: true}, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Warn("code execution interrupted: %v", ctxErr)
			return CodeOutput{Logs: logs}, fmt.Errorf("code execution interrupted: %w", ctxErr)
		}
		var ie *ImportError
		if errors.As(err, &ie) {
			return CodeOutput{Logs: logs}, ie
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return CodeOutput{Logs: logs}, fmt.Errorf("Code execution failed:\n%s", evalErr.Backtrace())
		}
		return CodeOutput{Logs: logs}, err
	}

	out := CodeOutput{Logs: logs}
	if v, ok := env[lastOutputName]; ok {
		out.Output, err = fromStarlark(v)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// builtins are the names every execution starts with: helper functions,
// modules, variables and tools.
func (s *StarlarkInterpreter) builtins() starlark.StringDict {
	p := starlark.StringDict{
		"round": starlark.NewBuiltin("round", builtinRound),
		"sum":   starlark.NewBuiltin("sum", builtinSum),
	}
	for name, m := range s.authorized {
		p[name] = m
	}
	for name, v := range s.variables {
		p[name] = v
	}
	for name, t := range s.tools {
		if name == tool.FinalAnswerName {
			continue
		}
		p[name] = toolBuiltin(name, t)
	}
	p[tool.FinalAnswerName] = starlark.NewBuiltin(tool.FinalAnswerName, s.finalAnswer)
	return p
}

func (s *StarlarkInterpreter) finalAnswer(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var answer any
	if t, ok := s.tools[tool.FinalAnswerName]; ok {
		goArgs, err := callArguments(t, args, kwargs)
		if err != nil {
			return nil, err
		}
		answer, err = t.Forward(threadContext(thread), goArgs)
		if err != nil {
			return nil, err
		}
	} else {
		var v starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "answer", &v); err != nil {
			return nil, err
		}
		var err error
		if answer, err = fromStarlark(v); err != nil {
			return nil, err
		}
	}
	if st, ok := thread.Local(finalKey).(*finalState); ok {
		st.set = true
		st.value = answer
	}
	return nil, errFinalAnswer
}

func toolBuiltin(name string, t tool.Tool) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		goArgs, err := callArguments(t, args, kwargs)
		if err != nil {
			return nil, err
		}
		out, err := t.Forward(threadContext(thread), goArgs)
		if err != nil {
			return nil, fmt.Errorf("error calling tool %s: %w", name, err)
		}
		return toStarlark(out)
	})
}

// callArguments maps positional arguments onto the tool's parameters in
// declaration order and merges keyword arguments.
func callArguments(t tool.Tool, args starlark.Tuple, kwargs []starlark.Tuple) (map[string]any, error) {
	names := tool.ParamNames(t)
	if len(args) > len(names) {
		return nil, fmt.Errorf("%s() takes %d positional arguments but %d were given", t.Name(), len(names), len(args))
	}
	out := make(map[string]any, len(args)+len(kwargs))
	for i, arg := range args {
		v, err := fromStarlark(arg)
		if err != nil {
			return nil, err
		}
		out[names[i]] = v
	}
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%s() got multiple values for argument %q", t.Name(), key)
		}
		v, err := fromStarlark(kv[1])
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	if err := tool.ValidateArguments(t, out); err != nil {
		return nil, err
	}
	return out, nil
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// captureTrailingExpression turns a trailing top-level expression statement
// into an assignment so its value can be read back after execution.
func captureTrailingExpression(f *syntax.File) {
	if len(f.Stmts) == 0 {
		return
	}
	last, ok := f.Stmts[len(f.Stmts)-1].(*syntax.ExprStmt)
	if !ok {
		return
	}
	start, _ := last.X.Span()
	f.Stmts[len(f.Stmts)-1] = &syntax.AssignStmt{
		OpPos: start,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: start, Name: lastOutputName},
		RHS:   last.X,
	}
}

var (
	importLine     = regexp.MustCompile(`^(\s*)import\s+(.+?)\s*$`)
	fromImportLine = regexp.MustCompile(`^(\s*)from\s+([\w.]+)\s+import\s+(.+?)\s*$`)
)

// rewriteImports replaces Python import statements with assignments from
// the predeclared modules. With a nil authorized map every import becomes a
// no-op, which is enough for syntax checks.
func rewriteImports(code string, authorized map[string]starlark.Value) (string, error) {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if m := importLine.FindStringSubmatch(line); m != nil {
			var stmts []string
			for _, spec := range strings.Split(m[2], ",") {
				module, alias := splitAlias(spec)
				if err := checkImport(module, authorized); err != nil {
					return "", err
				}
				if alias != "" && alias != module {
					stmts = append(stmts, alias+" = "+module)
				}
			}
			lines[i] = m[1] + joinStatements(stmts, authorized)
			continue
		}
		if m := fromImportLine.FindStringSubmatch(line); m != nil {
			module := m[2]
			if err := checkImport(module, authorized); err != nil {
				return "", err
			}
			names := strings.Trim(m[3], "() ")
			var stmts []string
			for _, spec := range strings.Split(names, ",") {
				name, alias := splitAlias(spec)
				if name == "" {
					continue
				}
				if alias == "" {
					alias = name
				}
				stmts = append(stmts, alias+" = "+module+"."+name)
			}
			lines[i] = m[1] + joinStatements(stmts, authorized)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func splitAlias(spec string) (name, alias string) {
	fields := strings.Fields(spec)
	switch {
	case len(fields) == 3 && fields[1] == "as":
		return fields[0], fields[2]
	case len(fields) >= 1:
		return fields[0], ""
	}
	return "", ""
}

func joinStatements(stmts []string, authorized map[string]starlark.Value) string {
	if authorized == nil || len(stmts) == 0 {
		return "pass"
	}
	return strings.Join(stmts, "; ")
}

func checkImport(module string, authorized map[string]starlark.Value) error {
	if authorized == nil {
		return nil
	}
	root, _, _ := strings.Cut(module, ".")
	if _, ok := authorized[root]; ok && root == module {
		return nil
	}
	return &ImportError{Module: module, Authorized: sortedKeys(authorized)}
}

func builtinRound(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("round: got %s, want number", x.Type())
	}
	if ndigits == starlark.None {
		if i, isInt := x.(starlark.Int); isInt {
			return i, nil
		}
		return starlark.MakeInt64(int64(math.RoundToEven(f))), nil
	}
	var n int
	if err := starlark.AsInt(ndigits, &n); err != nil {
		return nil, fmt.Errorf("round: ndigits: %w", err)
	}
	p := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*p) / p), nil
}

func builtinSum(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var acc starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &acc); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		next, err := starlark.Binary(syntax.PLUS, acc, elem)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}
