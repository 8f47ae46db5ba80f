package ptc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gatewaylab/agentrun/tool"
)

// CodeOutput is the result of one execution.
type CodeOutput struct {
	// Output is the value passed to final_answer, or the value of the
	// trailing expression statement, or nil.
	Output        any
	Logs          string
	IsFinalAnswer bool
}

// Interpreter runs model-written code in a sandbox.
type Interpreter interface {
	SyntaxChecker
	Execute(ctx context.Context, code string) (CodeOutput, error)
	// PrintOutputs returns what the last execution printed, even when it failed.
	PrintOutputs() string
	SendTools(tools map[string]tool.Tool)
	SendVariables(vars map[string]any) error
	// Language names the interpreter in prompts and tool-call records.
	Language() string
	// AuthorizedImports lists the modules code may import.
	AuthorizedImports() []string
}

// InterpreterToolName is the tool name recorded for code actions.
const InterpreterToolName = "python_interpreter"

// ImportError is returned when code imports a module outside the
// authorized list.
type ImportError struct {
	Module     string
	Authorized []string
}

func (e *ImportError) Error() string {
	quoted := make([]string, len(e.Authorized))
	for i, name := range e.Authorized {
		quoted[i] = "'" + name + "'"
	}
	return fmt.Sprintf("Import of %s is not allowed. Authorized imports are: [%s]", e.Module, strings.Join(quoted, ", "))
}

// IsImportError reports whether err is, or wraps, an ImportError.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatValue renders an execution output the way it is shown to the model.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
