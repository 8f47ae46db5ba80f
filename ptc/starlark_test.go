package ptc

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gatewaylab/agentrun/log"
	"github.com/gatewaylab/agentrun/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTools() map[string]tool.Tool {
	add := tool.New("add", "Adds two integers", tool.Inputs(
		tool.Param{Name: "a", Type: "integer"},
		tool.Param{Name: "b", Type: "integer"},
	), "integer", func(ctx context.Context, args map[string]any) (any, error) {
		return args["a"].(int64) + args["b"].(int64), nil
	})
	info := tool.New("get_info", "Returns a struct", nil, "object", func(ctx context.Context, args map[string]any) (any, error) {
		return tool.SystemInfo{CPUPercent: 5.5, MemoryTotalMB: 1024, MemoryUsedMB: 256}, nil
	})
	fail := tool.New("fail", "Always fails", nil, "string", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	return map[string]tool.Tool{"add": add, "get_info": info, "fail": fail}
}

func TestStarlarkPrintAndTrailingExpression(t *testing.T) {
	interp := NewStarlarkInterpreter()

	out, err := interp.Execute(context.Background(), "x = 2\nprint('x is', x)\nx * 21")
	require.NoError(t, err)
	assert.Equal(t, "x is 2\n", out.Logs)
	assert.Equal(t, int64(42), out.Output)
	assert.False(t, out.IsFinalAnswer)
}

func TestStarlarkNoTrailingExpression(t *testing.T) {
	out, err := NewStarlarkInterpreter().Execute(context.Background(), "y = 1")
	require.NoError(t, err)
	assert.Nil(t, out.Output)
}

func TestStarlarkFinalAnswer(t *testing.T) {
	interp := NewStarlarkInterpreter()

	out, err := interp.Execute(context.Background(), "print('done')\nfinal_answer({'answer': 7})\nprint('unreachable')")
	require.NoError(t, err)
	assert.True(t, out.IsFinalAnswer)
	assert.Equal(t, map[string]any{"answer": int64(7)}, out.Output)
	assert.Equal(t, "done\n", out.Logs)
}

func TestStarlarkFinalAnswerTool(t *testing.T) {
	interp := NewStarlarkInterpreter()
	interp.SendTools(map[string]tool.Tool{tool.FinalAnswerName: tool.NewFinalAnswer()})

	out, err := interp.Execute(context.Background(), "final_answer(answer='ok')")
	require.NoError(t, err)
	assert.True(t, out.IsFinalAnswer)
	assert.Equal(t, "ok", out.Output)
}

func TestStarlarkTools(t *testing.T) {
	interp := NewStarlarkInterpreter()
	interp.SendTools(newTestTools())

	out, err := interp.Execute(context.Background(), "add(1, b=2)")
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Output)

	out, err = interp.Execute(context.Background(), "info = get_info()\nprint(info.cpu_percent, info['memory_used_mb'])")
	require.NoError(t, err)
	assert.Equal(t, "5.5 256\n", out.Logs)

	_, err = interp.Execute(context.Background(), "add(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "b" is required`)

	_, err = interp.Execute(context.Background(), "print('before')\nfail()")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "before\n", interp.PrintOutputs())
}

func TestStarlarkGlobalsPersist(t *testing.T) {
	interp := NewStarlarkInterpreter()

	_, err := interp.Execute(context.Background(), "total = 40")
	require.NoError(t, err)
	out, err := interp.Execute(context.Background(), "total + 2")
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.Output)

	interp.Reset()
	_, err = interp.Execute(context.Background(), "total")
	assert.Error(t, err)
}

func TestStarlarkGlobalsStayMutable(t *testing.T) {
	interp := NewStarlarkInterpreter()
	ctx := context.Background()

	_, err := interp.Execute(ctx, "items = [1]\nseen = {}\ncount = 0")
	require.NoError(t, err)
	_, err = interp.Execute(ctx, "items.append(2)\nseen['cpu'] = True\ncount = count + 1")
	require.NoError(t, err)
	_, err = interp.Execute(ctx, "items.extend([3])\ncount += 1")
	require.NoError(t, err)

	out, err := interp.Execute(ctx, "[items, sorted(seen.keys()), count]")
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{int64(1), int64(2), int64(3)}, []any{"cpu"}, int64(2)}, out.Output)
}

func TestStarlarkLogger(t *testing.T) {
	var buf strings.Builder
	interp := NewStarlarkInterpreter(
		WithAuthorizedImports("math"),
		WithMaxOperations(0),
		WithInterpreterLogger(log.NewWriterLogger(&buf, log.LogLevelDebug)),
	)

	_, err := interp.Execute(context.Background(), "import math\nmath.floor(1.5)")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "rewrote imports:")

	_, err = interp.Execute(context.Background(), "import os")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "refused code: Import of os is not allowed")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = interp.Execute(ctx, "while True:\n    pass")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "code execution interrupted")
}

func TestStarlarkVariables(t *testing.T) {
	interp := NewStarlarkInterpreter()
	require.NoError(t, interp.SendVariables(map[string]any{"limit": 20, "names": []any{"a", "b"}}))

	out, err := interp.Execute(context.Background(), "len(names) + limit")
	require.NoError(t, err)
	assert.Equal(t, int64(22), out.Output)
}

func TestStarlarkImports(t *testing.T) {
	interp := NewStarlarkInterpreter()

	out, err := interp.Execute(context.Background(), "import math\nfrom json import encode as enc\nenc({'r': math.floor(2.7)})")
	require.NoError(t, err)
	assert.Equal(t, `{"r":2}`, out.Output)

	_, err = interp.Execute(context.Background(), "import os\nprint(os.getcwd())")
	require.Error(t, err)
	assert.True(t, IsImportError(err))
	assert.Equal(t, "Import of os is not allowed. Authorized imports are: ['json', 'math', 'time']", err.Error())
}

func TestStarlarkAuthorizedImports(t *testing.T) {
	interp := NewStarlarkInterpreter(WithAuthorizedImports("math"))

	_, err := interp.Execute(context.Background(), "import json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Authorized imports are: ['math']")
	assert.Equal(t, []string{"math"}, interp.AuthorizedImports())
	assert.Equal(t, []string{"json", "math", "time"}, NewStarlarkInterpreter().AuthorizedImports())
}

func TestStarlarkMaxOperations(t *testing.T) {
	interp := NewStarlarkInterpreter(WithMaxOperations(1000))

	_, err := interp.Execute(context.Background(), "while True:\n    pass")
	require.Error(t, err)
}

func TestStarlarkContextCancel(t *testing.T) {
	interp := NewStarlarkInterpreter(WithMaxOperations(0))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := interp.Execute(ctx, "while True:\n    pass")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStarlarkCheck(t *testing.T) {
	interp := NewStarlarkInterpreter()

	assert.NoError(t, interp.Check("import os\nx = 1"))
	assert.Error(t, interp.Check("Thought: nothing to run"))
}

func TestStarlarkBuiltins(t *testing.T) {
	out, err := NewStarlarkInterpreter().Execute(context.Background(), "[sum([1, 2, 3]), round(2.5), round(3.14159, 2)]")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(6), int64(2), 3.14}, out.Output)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "None", FormatValue(nil))
	assert.Equal(t, "True", FormatValue(true))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "plain", FormatValue("plain"))
	assert.Equal(t, `{"a":1}`, FormatValue(map[string]any{"a": 1}))
}
