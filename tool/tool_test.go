package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSampler struct {
	snap Snapshot
	err  error
}

func (s fixedSampler) Sample(ctx context.Context) (Snapshot, error) {
	return s.snap, s.err
}

// echoTool implements langchaingo's tools.Tool for testing
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echoes its input" }
func (echoTool) Call(ctx context.Context, input string) (string, error) {
	return "echo: " + input, nil
}

func TestNewSystemInfo(t *testing.T) {
	snap := Snapshot{
		CPUPercent:  12.5,
		MemoryTotal: 16*mib + mib - 1,
		MemoryUsed:  mib - 1,
	}

	info := NewSystemInfo(snap)
	assert.Equal(t, 12.5, info.CPUPercent)
	assert.Equal(t, int64(16), info.MemoryTotalMB)
	assert.Equal(t, int64(0), info.MemoryUsedMB)
	assert.NoError(t, info.Validate())
}

func TestPercentagesAreClamped(t *testing.T) {
	info := NewExtendedSystemInfo(Snapshot{
		CPUPercent:    130,
		MemoryPercent: -4,
		HasSwap:       true,
		SwapTotal:     2 * mib,
		SwapUsed:      mib,
		SwapPercent:   100.5,
	})

	assert.Equal(t, 100.0, info.CPUPercent)
	assert.Equal(t, 0.0, info.MemoryPercent)
	require.NotNil(t, info.SwapPercent)
	assert.Equal(t, 100.0, *info.SwapPercent)
	assert.Equal(t, int64(2), *info.SwapTotalMB)
	assert.Equal(t, int64(1), *info.SwapUsedMB)
	assert.NoError(t, info.Validate())
}

func TestExtendedSystemInfoWithoutSwap(t *testing.T) {
	info := NewExtendedSystemInfo(Snapshot{MemoryTotal: 4 * mib})
	assert.Nil(t, info.SwapTotalMB)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "swap")
	assert.Contains(t, string(data), `"memory_total_mb":4`)
}

func TestSystemInfoValidate(t *testing.T) {
	assert.Error(t, SystemInfo{CPUPercent: 101}.Validate())
	assert.Error(t, SystemInfo{MemoryUsedMB: -1}.Validate())
}

func TestSystemInfoTool(t *testing.T) {
	tl := NewSystemInfoTool(fixedSampler{snap: Snapshot{CPUPercent: 3, MemoryTotal: 8 * mib, MemoryUsed: 3 * mib}})

	assert.Equal(t, "get_system_info", tl.Name())
	assert.Empty(t, ParamNames(tl))

	out, err := tl.Forward(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SystemInfo{CPUPercent: 3, MemoryTotalMB: 8, MemoryUsedMB: 3}, out)
}

func TestSystemInfoToolSamplerError(t *testing.T) {
	tl := NewExtendedSystemInfoTool(fixedSampler{err: errors.New("no procfs")})
	_, err := tl.Forward(context.Background(), nil)
	assert.EqualError(t, err, "no procfs")
}

func TestSystemInfoStringTool(t *testing.T) {
	tl := NewSystemInfoStringTool(fixedSampler{snap: Snapshot{CPUPercent: 1, MemoryTotal: 2 * mib, MemoryUsed: mib}})

	out, err := tl.Forward(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, `The system information is: {"cpu_percent":1,"memory_total_mb":2,"memory_used_mb":1}`, out)
	assert.Equal(t, "string", tl.OutputType())
}

func TestFinalAnswer(t *testing.T) {
	tl := NewFinalAnswer()
	out, err := tl.Forward(context.Background(), map[string]any{"answer": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	params := Params(tl)
	require.Len(t, params, 1)
	assert.Equal(t, Param{Name: "answer", Type: "any", Description: "The final answer to the problem"}, params[0])
}

func TestValidateArguments(t *testing.T) {
	tl := New("search", "Search", Inputs(
		Param{Name: "query", Type: "string"},
		Param{Name: "limit", Type: "integer", Nullable: true},
	), "string", nil)

	assert.NoError(t, ValidateArguments(tl, map[string]any{"query": "go"}))
	assert.NoError(t, ValidateArguments(tl, map[string]any{"query": "go", "limit": 3}))

	err := ValidateArguments(tl, map[string]any{"limit": 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"query" is required`)

	err = ValidateArguments(tl, map[string]any{"query": "go", "page": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected arguments [page]")
}

func TestLLMTool(t *testing.T) {
	tl := New("search", "Search the web", Inputs(
		Param{Name: "query", Type: "string", Description: "What to look for"},
		Param{Name: "additional_args", Type: "object", Nullable: true},
	), "string", nil)

	lt, err := LLMTool(tl)
	require.NoError(t, err)
	assert.Equal(t, "function", lt.Type)
	assert.Equal(t, "search", lt.Function.Name)

	params := lt.Function.Parameters.(map[string]any)
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []any{"query"}, params["required"])
	props := params["properties"].(map[string]any)
	assert.Equal(t, true, props["additional_args"].(map[string]any)["nullable"])
}

func TestReflectInputs(t *testing.T) {
	type args struct {
		Task string `json:"task" jsonschema:"description=The task"`
		Note string `json:"note,omitempty"`
	}
	schema := ReflectInputs(&args{})
	tl := New("delegate", "", schema, "string", nil)

	assert.Equal(t, []string{"task", "note"}, ParamNames(tl))
	assert.Equal(t, []string{"task"}, schema.Required)
}

func TestFromLangchain(t *testing.T) {
	tl := FromLangchain(echoTool{})

	assert.Equal(t, "echo", tl.Name())
	assert.Equal(t, []string{"input"}, ParamNames(tl))

	out, err := tl.Forward(context.Background(), map[string]any{"input": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)

	out, err = tl.Forward(context.Background(), map[string]any{"input": map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.(string), `echo: {"a":1}`))
}
