package agent

import "fmt"

// AuthProfile holds credentials for one provider backend.
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
}

// ProviderCreator builds providers from auth profiles. Tests swap it for
// fakes.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (Provider, error)
}

// ProviderFactory is the default ProviderCreator.
type ProviderFactory struct{}

// NewProvider creates a provider based on the profile's backend name.
func (f *ProviderFactory) NewProvider(profile AuthProfile) (Provider, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
