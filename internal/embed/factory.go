package embed

import (
	"encoding/json"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// ProviderConfig is the recognized shape of an EmbeddingProfile's
// provider_config JSON column: per-profile overrides of the global
// EMBEDDER_BASE_URL / EMBEDDER_API_KEY configuration (spec §6), plus the
// contextual-embedding guards spec §4.7 allows to be set per profile.
type ProviderConfig struct {
	BaseURL          string `json:"base_url"`
	APIKey           string `json:"api_key"`
	ContextualMaxChars  int  `json:"contextual_max_chars"`
	ContextualMaxChunks int  `json:"contextual_max_chunks"`
	ContextualStrict    *bool `json:"contextual_strict"`
}

// ParseProviderConfig decodes an EmbeddingProfile's provider_config column.
// Callers outside this package use it to resolve per-profile overrides
// (e.g. the contextual-embedding guards) the same way the factory does.
func ParseProviderConfig(raw json.RawMessage) ProviderConfig {
	var cfg ProviderConfig
	if len(raw) == 0 {
		return cfg
	}
	_ = json.Unmarshal(raw, &cfg)
	return cfg
}

// BuildOptions carries the inputs the factory needs beyond the profile
// itself: the process-wide embedder defaults and an optional shared
// circuit breaker (one per provider is typical; nil disables the guard).
type BuildOptions struct {
	UseFake       bool
	DefaultBaseURL string
	DefaultAPIKey  string
	Breaker        *apperrors.CircuitBreaker
}

// New builds the Embedder for an embedding profile (spec §4.3/§9's tagged
// provider variant). UseFake forces the deterministic fake regardless of
// the profile's declared provider, matching EMBEDDER_USE_FAKE.
func New(provider, model string, dims int, providerConfig json.RawMessage, opts BuildOptions) (Embedder, error) {
	if opts.UseFake {
		return NewFake(dims), nil
	}

	pc := ParseProviderConfig(providerConfig)
	baseURL := firstNonEmpty(pc.BaseURL, opts.DefaultBaseURL)
	apiKey := firstNonEmpty(pc.APIKey, opts.DefaultAPIKey)

	switch provider {
	case "voyage":
		return NewVoyage(baseURL, apiKey, model, dims, opts.Breaker), nil
	case "jina":
		return NewJina(baseURL, apiKey, model, dims, opts.Breaker), nil
	case "openai_compat":
		if baseURL == "" {
			return nil, apperrors.Validation("openai_compat provider requires a base_url").WithDetail("provider", provider)
		}
		return NewOpenAICompat(baseURL, apiKey, model, dims, opts.Breaker), nil
	case "fake":
		return NewFake(dims), nil
	default:
		return nil, apperrors.Validation("unknown embedding provider").WithDetail("provider", provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
