// agentrun - LLM agent sessions against OpenAI-compatible gateways
//
// agentrun runs code-writing and tool-calling agents, alone or as
// manager/provider hierarchies, against an inference gateway that speaks the
// OpenAI chat-completions protocol. It copes with the quirks such gateways
// show in practice: models that reject stop sequences, thinking models whose
// drafts leak into code blocks, and structured outputs wrapped in prose.
//
// # Quick Start
//
// Set the credentials, in the environment or in a .env file:
//
//	POE_API_KEY=...
//	POE_BASE_URL=https://api.poe.com/v1
//	MODEL=Claude-Sonnet-4
//
// Then run one of the bundled sessions:
//
//	go run ./cmd/agentrun simple
//	go run ./cmd/agentrun tools --agent-type tool-calling
//	go run ./cmd/agentrun structured --stream
//	go run ./cmd/agentrun multi --store sqlite://runs.db
//	go run ./cmd/agentrun history --store sqlite://runs.db --run-id <id> --transcript-format html
//
// Every session prints the transcript of all agents involved followed by
// the total number of input tokens.
//
// # Library Use
//
//	import (
//		"github.com/gatewaylab/agentrun/agent"
//		"github.com/gatewaylab/agentrun/llms/gateway"
//		"github.com/gatewaylab/agentrun/prebuilt"
//		"github.com/gatewaylab/agentrun/tool"
//	)
//
//	func main() {
//		llm, _ := gateway.New(
//			gateway.WithAPIKey(os.Getenv("POE_API_KEY")),
//			gateway.WithBaseURL(os.Getenv("POE_BASE_URL")),
//			gateway.WithModel("Gemini-2.5-Flash"),
//		)
//
//		a, _ := prebuilt.CreateCodeAgent(agent.Config{
//			Model:    llm,
//			Name:     "code_agent",
//			Tools:    []tool.Tool{tool.NewSystemInfoTool(nil)},
//			MaxSteps: 3,
//		}, prebuilt.CodeConfig{})
//
//		result, err := a.Run(context.Background(), "Are there more than 20 MB of memory free?")
//		if err != nil {
//			panic(err)
//		}
//		fmt.Println(result.Output, a.TotalInputTokens())
//	}
//
// # Packages
//
//   - agent: the step loop, memory, events, errors and managed agents
//   - agent/prompts: embedded YAML prompt templates
//   - prebuilt: code and tool-calling agents
//   - ptc: code extraction and the sandboxed Starlark interpreter
//   - tool: the tool interface, final_answer and the system information tools
//   - memory: chat messages and memory steps
//   - llms/gateway: langchaingo model over go-openai for OpenAI-compatible gateways
//   - llms/stop: per-model stop sequence policies
//   - store: step persistence (memory, file, sqlite, redis, postgres)
//   - transcript: text, JSON, YAML and HTML transcripts
//   - console: rich terminal output of running agents
//   - config: flags, environment and .env settings
//   - log: leveled logging over golog
//
// # Stop Sequences
//
// Some gateway models reject the stop parameter. The gateway client never
// sends it by default and truncates the output at the first stop sequence
// instead, so agents see the same text either way. Use
// gateway.WithStopPolicy(stop.SendStopExcept(...)) to send it to models that
// accept it.
package agentrun
