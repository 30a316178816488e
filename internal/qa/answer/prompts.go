package answer

import (
	"context"
	"strings"
)

// PromptSource supplies runtime overrides for the system prompts of the
// judgment and generation calls. The storage settings table satisfies it;
// a nil source keeps the compiled-in prompts.
type PromptSource interface {
	GetSetting(ctx context.Context, key string, target interface{}) error
}

const (
	promptKeySufficiency = "prompt_sufficiency"
	promptKeyGenerate    = "prompt_generate"
	promptKeyVerify      = "prompt_verify"
)

func systemPrompt(ctx context.Context, src PromptSource, key, fallback string) string {
	if src == nil {
		return fallback
	}

	var override string
	if err := src.GetSetting(ctx, key, &override); err != nil || strings.TrimSpace(override) == "" {
		return fallback
	}

	return override
}
