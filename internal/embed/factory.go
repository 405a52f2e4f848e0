package embed

import (
	"fmt"
	"strings"
)

// Provider names accepted by NewFactory.
const (
	ProviderOllama      = "ollama"
	ProviderJina        = "jina"
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
)

// Options configures the backends built by NewFactory.
type Options struct {
	Provider string
	// Endpoint overrides the provider's default URL.
	Endpoint string
	APIKey   string
	// Dimensions requests server-side truncation where supported. 0 = native.
	Dimensions        int
	RequestsPerSecond float64
}

// NewFactory returns a Factory for the configured provider. Precision is part
// of the cache key only; none of the hosted APIs take a dtype.
func NewFactory(opts Options) (Factory, error) {
	switch strings.ToLower(opts.Provider) {
	case ProviderOllama, "":
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:11434"
		}
		return func(key Key) (BatchEmbedder, error) {
			if key.Model == "" {
				return nil, fmt.Errorf("embed: ollama needs a model name")
			}
			return NewOllamaEmbedder(endpoint, key.Model), nil
		}, nil

	case ProviderJina:
		return func(key Key) (BatchEmbedder, error) {
			if opts.APIKey == "" {
				return nil, fmt.Errorf("embed: JINA_API_KEY is not set")
			}
			e := NewJinaEmbedder(opts.APIKey, key.Model, opts.Dimensions, opts.RequestsPerSecond)
			if opts.Endpoint != "" {
				e.endpoint = opts.Endpoint
			}
			return e, nil
		}, nil

	case ProviderOpenAI:
		return func(key Key) (BatchEmbedder, error) {
			if opts.APIKey == "" && opts.Endpoint == "" {
				return nil, fmt.Errorf("embed: OPENAI_API_KEY is not set")
			}
			return NewOpenAIEmbedder(opts.APIKey, opts.Endpoint, key.Model, opts.Dimensions), nil
		}, nil

	case ProviderHuggingFace, "hf":
		return func(key Key) (BatchEmbedder, error) {
			if key.Model == "" {
				return nil, fmt.Errorf("embed: huggingface needs a model id")
			}
			return NewHFEmbedder(key.Model, opts.APIKey, opts.Endpoint), nil
		}, nil
	}
	return nil, fmt.Errorf("embed: unknown provider %q", opts.Provider)
}
