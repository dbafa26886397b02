package environment

import (
	"context"
	"os"

	"github.com/promptobjects/core/internal/model"
	"github.com/promptobjects/core/internal/poerr"
)

// defaultModels maps each provider to a reasonable default when the
// manifest doesn't name one.
var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-20250514",
	"gemini":    "gemini-2.0-flash",
}

// registerProviders builds and registers every LLM adapter this
// process has credentials for. An environment with no keys configured
// boots with an empty model.Registry and fails lazily the first time a
// turn needs one.
func registerProviders(ctx context.Context, manifest Manifest, models *model.Registry) error {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		models.Register("openai", model.NewOpenAIProvider(key, modelFor("openai", manifest)))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		models.Register("anthropic", model.NewAnthropicProvider(key, modelFor("anthropic", manifest), 4096))
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		provider, err := model.NewGeminiProvider(ctx, key, modelFor("gemini", manifest))
		if err != nil {
			return poerr.Wrap(poerr.KindLLM, "constructing gemini provider", err)
		}
		models.Register("gemini", provider)
	}

	if manifest.LLMProvider != "" {
		if err := models.SetActive(manifest.LLMProvider); err != nil {
			return err
		}
	}
	return nil
}

func modelFor(provider string, manifest Manifest) string {
	if manifest.LLMProvider == provider && manifest.LLMModel != "" {
		return manifest.LLMModel
	}
	return defaultModels[provider]
}
