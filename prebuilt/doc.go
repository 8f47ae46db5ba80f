// Package prebuilt provides the two ready-to-use agent flavours: code agents
// that act by writing code, and tool-calling agents that act through the
// model's native tool calls.
//
// Both are agent.Stepper implementations; the agent package owns the run loop,
// memory, events and managed agents, the steppers own one turn.
//
// # Code Agent
//
// The model answers with a thought followed by a code block. The last block
// is extracted, run in a sandboxed Starlark interpreter where tools are plain
// functions, and its print output becomes the next observation. The run ends
// when the code calls final_answer.
//
//	llm, _ := gateway.New(
//		gateway.WithAPIKey(os.Getenv("POE_API_KEY")),
//		gateway.WithBaseURL(os.Getenv("POE_BASE_URL")),
//		gateway.WithModel("Claude-Sonnet-4"),
//	)
//
//	codeAgent, err := prebuilt.CreateCodeAgent(agent.Config{
//		Model:    llm,
//		Name:     "code_agent",
//		Tools:    []tool.Tool{tool.NewSystemInfoTool(nil)},
//		MaxSteps: 3,
//	}, prebuilt.CodeConfig{})
//
//	result, err := codeAgent.Run(ctx, "What is the system information?")
//
// With UseStructuredOutput the model is asked, in JSON mode, for a
// {"thought": ..., "code": ...} object instead of free text. Pair it with
// gateway.WithResponseSchema(ptc.CodeActionSchemaName, ptc.CodeActionSchema())
// so the gateway enforces the schema.
//
// CodeBlockTags changes the delimiters (XML <code> tags by default, or
// markdown fences), and Extractor changes which block is run.
//
// # Tool-Calling Agent
//
// Tools are sent as function definitions with tool_choice "required". Every
// returned tool call is executed and its result becomes an observation; a call
// to final_answer ends the run.
//
//	toolAgent, err := prebuilt.CreateToolCallingAgent(agent.Config{
//		Model: llm,
//		Name:  "tool_calling_agent",
//		Tools: []tool.Tool{tool.NewExtendedSystemInfoTool(nil)},
//	}, prebuilt.ToolCallingConfig{Streaming: true})
//
// # Managed Agents
//
// Either flavour can manage others. A managed agent needs a name and a
// description and is offered to its manager as a tool taking a task:
//
//	provider, _ := prebuilt.CreateCodeAgent(agent.Config{
//		Model:       llm,
//		Name:        "provider_code_agent",
//		Description: "A provider agent, which can fetch system information.",
//		Tools:       []tool.Tool{tool.NewSystemInfoStringTool(nil)},
//		MaxSteps:    2,
//	}, prebuilt.CodeConfig{})
//
//	manager, _ := prebuilt.CreateCodeAgent(agent.Config{
//		Model:         llm,
//		Name:          "manager_code_agent",
//		ManagedAgents: []*agent.Agent{provider},
//		MaxSteps:      2,
//	}, prebuilt.CodeConfig{})
package prebuilt
