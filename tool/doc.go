// Package tool defines the Tool interface agents call and the built-in tools.
//
// A Tool declares its keyword arguments as a JSON schema (invopop/jsonschema),
// so the same definition feeds the code agent's prompt, the Starlark builtins
// and the tool-calling request sent to the model.
//
// Built-in tools:
//
//   - final_answer: returns its "answer" argument and ends the run
//   - get_system_info: CPU and memory metrics read with gopsutil
//   - system_info_tool: the same metrics rendered as a sentence
//
// langchaingo tools can be used through FromLangchain.
package tool
