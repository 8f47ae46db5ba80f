package tool

import "context"

// FinalAnswerName is the name of the tool that ends a run.
const FinalAnswerName = "final_answer"

// NewFinalAnswer returns the tool agents call to hand back their answer.
// Forward returns the answer unchanged.
func NewFinalAnswer() *FuncTool {
	return New(
		FinalAnswerName,
		"Provides a final answer to the given problem.",
		Inputs(Param{Name: "answer", Type: "any", Description: "The final answer to the problem"}),
		"any",
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["answer"], nil
		},
	)
}
