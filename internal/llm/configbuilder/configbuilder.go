package configbuilder

import (
	"fmt"
	"sort"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/llm"
	llmgemini "github.com/animus-coder/contractfix/internal/llm/providers/gemini"
	llmollama "github.com/animus-coder/contractfix/internal/llm/providers/ollama"
	llmopenai "github.com/animus-coder/contractfix/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs a registry and providers from config.
func BuildRegistryFromConfig(cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()

	for name, pCfg := range cfg.Providers {
		p, err := buildProvider(name, pCfg)
		if err != nil {
			return nil, err
		}
		reg.RegisterProvider(name, p)
	}

	// Sorted so the implicit default (first registered) is stable when none is marked.
	names := make([]string, 0, len(cfg.Models))
	for name := range cfg.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	var explicitDefault string
	for _, name := range names {
		if cfg.Models[name].Default {
			explicitDefault = name
			break
		}
	}
	for _, name := range names {
		mCfg := cfg.Models[name]
		maxTokens := mCfg.MaxTokens
		if maxTokens == 0 {
			maxTokens = cfg.Providers[mCfg.Provider].MaxTokens
		}
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       mCfg.Model,
			Temperature: mCfg.Temperature,
			MaxTokens:   maxTokens,
		}, name == explicitDefault)
	}

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

func buildProvider(name string, cfg config.ProviderConfig) (llm.Provider, error) {
	switch cfg.Type {
	case "openai", "openrouter", "vllm", "lmstudio", "custom":
		return llmopenai.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "ollama":
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout), nil
	case "gemini":
		return llmgemini.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}
