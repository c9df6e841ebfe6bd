package cmd

import (
	"fmt"

	"github.com/coreclaw/agentcore/internal/config"
	"github.com/coreclaw/agentcore/internal/providers"
)

// openAICompatBase maps a provider name to its default OpenAI-compatible
// chat-completions base URL, for providers that don't set api_base
// explicitly in config.
var openAICompatBase = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"xai":        "https://api.x.ai/v1",
	"minimax":    "https://api.minimax.chat/v1",
	"cohere":     "https://api.cohere.ai/compatibility/v1",
	"perplexity": "https://api.perplexity.ai",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
}

// buildProvider constructs a Provider for the named provider using cfg's
// credentials. Anthropic gets its own native client; every other known
// provider name is treated as an OpenAI-compatible chat-completions
// endpoint (spec §6), since that is the lowest common denominator the
// pack's model gateways all speak.
func buildProvider(name string, cfg *config.Config, model string) (providers.Provider, error) {
	switch name {
	case "anthropic":
		pc := cfg.Providers.Anthropic
		if pc.APIKey == "" {
			return nil, fmt.Errorf("provider %q has no api_key configured", name)
		}
		opts := []providers.AnthropicOption{}
		if model != "" {
			opts = append(opts, providers.WithAnthropicModel(model))
		}
		if pc.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(pc.APIBase))
		}
		return providers.NewAnthropicProvider(pc.APIKey, opts...), nil
	case "openai", "openrouter", "groq", "deepseek", "mistral", "xai", "minimax", "cohere", "perplexity", "gemini":
		pc := providerConfigByName(cfg, name)
		if pc.APIKey == "" {
			return nil, fmt.Errorf("provider %q has no api_key configured", name)
		}
		base := pc.APIBase
		if base == "" {
			base = openAICompatBase[name]
		}
		opts := []providers.OpenAIOption{providers.WithOpenAIName(name)}
		if model != "" {
			opts = append(opts, providers.WithOpenAIModel(model))
		}
		if base != "" {
			opts = append(opts, providers.WithOpenAIBaseURL(base))
		}
		return providers.NewOpenAIProvider(pc.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func providerConfigByName(cfg *config.Config, name string) config.ProviderConfig {
	p := cfg.Providers
	switch name {
	case "openai":
		return p.OpenAI
	case "openrouter":
		return p.OpenRouter
	case "groq":
		return p.Groq
	case "deepseek":
		return p.DeepSeek
	case "mistral":
		return p.Mistral
	case "xai":
		return p.XAI
	case "minimax":
		return p.MiniMax
	case "cohere":
		return p.Cohere
	case "perplexity":
		return p.Perplexity
	case "gemini":
		return p.Gemini
	default:
		return config.ProviderConfig{}
	}
}

// allProviderNames lists every provider buildProvider knows how to
// construct, so buildProviderRegistry can register every credentialed one
// under its own name — the vision/image-generation tool overrides
// (VisionConfig/ImageGenConfig) select a provider by exactly this name.
var allProviderNames = []string{
	"anthropic", "openai", "openrouter", "groq", "gemini",
	"deepseek", "mistral", "xai", "minimax", "cohere", "perplexity",
}

// buildProviderRegistry registers the default agent provider plus every
// other provider with a configured API key, so vision/image-generation tool
// overrides can resolve a provider by name even when it isn't the default
// chat provider.
func buildProviderRegistry(cfg *config.Config) (*providers.Registry, providers.Provider, error) {
	reg := providers.NewRegistry()

	defaultName := cfg.Agents.Defaults.Provider
	defaultModel := cfg.Agents.Defaults.Model
	defaultProvider, err := buildProvider(defaultName, cfg, defaultModel)
	if err != nil {
		return nil, nil, fmt.Errorf("default provider: %w", err)
	}
	reg.Register(defaultProvider)

	for _, name := range allProviderNames {
		if name == defaultName {
			continue
		}
		if p, err := buildProvider(name, cfg, ""); err == nil {
			reg.Register(p)
		}
	}

	return reg, defaultProvider, nil
}
