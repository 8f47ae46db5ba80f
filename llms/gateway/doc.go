// Package gateway implements llms.Model on top of go-openai for
// OpenAI-compatible gateways such as Poe.
//
// The client forwards tool definitions, tool choice and JSON response
// formats, streams when a streaming function is set, and reports token usage
// in GenerationInfo under PromptTokens, CompletionTokens and TotalTokens.
// Stop sequences follow a stop.Policy: withheld ones are applied to the
// response text on the client side.
//
//	llm, err := gateway.New(
//		gateway.WithAPIKey(os.Getenv("POE_API_KEY")),
//		gateway.WithBaseURL("https://api.poe.com/v1"),
//		gateway.WithModel("GPT-4o"),
//	)
package gateway
