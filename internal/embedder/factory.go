package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables consulted by NewFromEnv.
const (
	EnvProvider     = "COCO_EMBEDDING_PROVIDER"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
)

// Config holds explicit embedder configuration.
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// New creates an embedder from explicit configuration.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)
	switch strings.ToLower(cfg.Provider) {
	case ProviderAuto:
		return NewFromEnv()
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// NewFromEnv creates an embedder from the environment. An explicit
// COCO_EMBEDDING_PROVIDER wins; otherwise the first provider with an
// API key is used, falling back to the local provider.
func NewFromEnv() (Embedder, error) {
	cache := NewCache(0)
	switch provider := DetectProvider(); provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(os.Getenv(EnvOpenAIAPIKey), cache)
	case ProviderJina:
		return NewJinaProvider(os.Getenv(EnvJinaAPIKey), cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// DetectProvider reports which provider NewFromEnv would pick.
func DetectProvider() string {
	if provider := strings.ToLower(os.Getenv(EnvProvider)); provider != "" && provider != ProviderAuto {
		return provider
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	return ProviderLocal
}
