package memory

// UsageFromGenerationInfo reads token usage from a choice's GenerationInfo.
// It accepts both the PromptTokens and prompt_tokens spellings used by
// different providers, with integer or floating point values.
func UsageFromGenerationInfo(info map[string]any) TokenUsage {
	return TokenUsage{
		InputTokens:  intValue(info, "PromptTokens", "prompt_tokens", "input_tokens"),
		OutputTokens: intValue(info, "CompletionTokens", "completion_tokens", "output_tokens"),
	}
}

func intValue(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float32:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
