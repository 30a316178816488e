package llm

import (
	"context"
	"strings"
)

// mockClient returns deterministic completions so the full pipeline can run
// locally without API keys. Responses are keyed off markers that the qa
// prompts embed in their system prompts.
type mockClient struct{}

// NewMock creates the mock completion client.
func NewMock() Client {
	return &mockClient{}
}

func (m *mockClient) Complete(_ context.Context, systemPrompt, userPrompt string, _ float32) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "clarification_response or new_question"):
		return "new_question", nil
	case strings.Contains(systemPrompt, "answer yes or no"):
		return "yes", nil
	case strings.Contains(systemPrompt, "comma-separated list of indices"):
		return "1, 2, 3, 4, 5", nil
	default:
		// Expansion, HyDE and generation calls get a trimmed echo.
		text := strings.TrimSpace(userPrompt)
		if runes := []rune(text); len(runes) > 200 {
			text = string(runes[:200])
		}

		return text, nil
	}
}
