package imagegen

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Providers
//
// | Provider | Endpoint                           | Default model              |
// |----------|------------------------------------|----------------------------|
// | openai   | POST {base}/responses              | gpt-4o                     |
// | gemini   | genai Models.GenerateContent       | gemini-3-pro-image-preview |
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const (
	// DefaultOpenAIModel drives the Responses API call with the image tool.
	DefaultOpenAIModel = "gpt-4o"

	// DefaultGeminiModel is the Gemini model with native image output.
	DefaultGeminiModel = "gemini-3-pro-image-preview"

	// DefaultOpenAIBaseURL is the OpenAI REST API base URL.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// Options selects and configures a Generator backend.
type Options struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// New returns the Generator for opts.Provider. An empty API key is accepted:
// the returned Generator fails every attempt with MissingCredential.
func New(ctx context.Context, opts Options) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAIClient(OpenAIOptions{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			BaseURL:    opts.BaseURL,
			HTTPClient: opts.HTTPClient,
		}), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			HTTPClient: opts.HTTPClient,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q (want %s or %s)", opts.Provider, ProviderOpenAI, ProviderGemini)
	}
}

// DefaultModel returns the default model for a provider.
func DefaultModel(provider string) string {
	if strings.EqualFold(provider, ProviderGemini) {
		return DefaultGeminiModel
	}
	return DefaultOpenAIModel
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
