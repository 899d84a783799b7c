package llm

import "fmt"

// Factory creates providers from configuration.
type Factory struct{}

// NewProvider creates a provider by name. The baseURL is only honored by
// OpenAI-compatible providers.
func (f *Factory) NewProvider(name, apiKey, baseURL string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(apiKey, baseURL), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
