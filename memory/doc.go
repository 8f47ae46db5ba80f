// Package memory holds the step log of an agent run and turns it into chat
// messages for the next model call.
//
// An AgentMemory is a system prompt followed by ordered steps: a TaskStep per
// Run, an ActionStep per generate/parse/execute turn and a FinalAnswerStep at
// the end. ToMessages flattens them in order; ToLLMMessages converts the
// result to langchaingo message contents, mapping tool-call messages to the
// assistant role and tool responses to the user role and merging consecutive
// messages of the same role.
package memory
