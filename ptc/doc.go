// Package ptc implements programmatic tool calling for code agents: finding
// the code in a model's output, cleaning it up, and running it in a sandbox
// where tools are plain function calls.
//
// # Extraction
//
// An Extractor picks the code block to run. AnchoredLastBlock, the default,
// returns the last block whose opening tag starts a line, so drafts a
// thinking model writes inline before its real answer are skipped.
// UnanchoredLastBlock and AllBlocks are available for models that need them.
//
//	code, ok := ptc.AnchoredLastBlock.Extract(output, ptc.XMLCodeTags)
//
// ParseCodeBlobs wraps an extractor with the fallbacks used by the agent loop,
// and ParseStructuredCode reads {"thought": ..., "code": ...} outputs.
//
// # Execution
//
// StarlarkInterpreter runs the Python dialect understood by go.starlark.net.
// Tools are exposed as builtins taking positional or keyword arguments, and
// final_answer ends the execution:
//
//	interp := ptc.NewStarlarkInterpreter(ptc.WithAuthorizedImports("math"))
//	interp.SendTools(map[string]tool.Tool{"get_system_info": tool.NewSystemInfoTool(nil)})
//	out, err := interp.Execute(ctx, "info = get_system_info()\nfinal_answer(info.memory_used_mb)")
//
// Imports of modules other than json, math and time fail with an ImportError.
package ptc
