package memory

import (
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// AgentMemory is the system prompt plus the ordered steps of an agent.
// Reads and writes may come from different goroutines.
type AgentMemory struct {
	mu           sync.RWMutex
	systemPrompt SystemPromptStep
	steps        []Step
}

// NewAgentMemory creates an empty memory with the given system prompt.
func NewAgentMemory(systemPrompt string) *AgentMemory {
	return &AgentMemory{systemPrompt: SystemPromptStep{SystemPrompt: systemPrompt}}
}

// SystemPrompt returns the current system prompt.
func (m *AgentMemory) SystemPrompt() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.systemPrompt.SystemPrompt
}

// SetSystemPrompt replaces the system prompt.
func (m *AgentMemory) SetSystemPrompt(prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemPrompt.SystemPrompt = prompt
}

// Reset drops every step. The system prompt is kept.
func (m *AgentMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = nil
}

// Append adds steps at the end of the memory.
func (m *AgentMemory) Append(steps ...Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Steps returns a copy of the step slice.
func (m *AgentMemory) Steps() []Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// Len returns the number of steps, not counting the system prompt.
func (m *AgentMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

// ToMessages flattens the system prompt and every step into chat messages.
func (m *AgentMemory) ToMessages(summaryMode bool) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.systemPrompt.ToMessages(summaryMode)
	for _, step := range m.steps {
		messages = append(messages, step.ToMessages(summaryMode)...)
	}
	return messages
}

// ToLLMMessages converts chat messages to langchaingo message contents.
// Tool calls become assistant messages, tool responses become user messages,
// and consecutive messages that end up with the same role are merged.
func ToLLMMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := chatMessageType(msg.Role)
		if n := len(out); n > 0 && out[n-1].Role == role {
			last := out[n-1].Parts[len(out[n-1].Parts)-1].(llms.TextContent)
			out[n-1].Parts[len(out[n-1].Parts)-1] = llms.TextContent{Text: last.Text + "\n" + msg.Content}
			continue
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant, RoleToolCall:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
