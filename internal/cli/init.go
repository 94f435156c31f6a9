package cli

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/config"
	"github.com/shrayg/beybladez/internal/imagegen"
)

// InitGenerator builds the generator for the configured provider. An empty
// apiKey is allowed: every attempt then fails with MissingCredential.
func InitGenerator(ctx context.Context, cfg config.Config, apiKey string) (imagegen.Generator, error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	gen, err := imagegen.New(ctx, imagegen.Options{
		Provider:   cfg.Provider,
		APIKey:     apiKey,
		Model:      cfg.Model(),
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}

	if apiKey == "" {
		log.Warn().Str("provider", cfg.Provider).Msg("No API key configured, generation will fail until one is set")
	} else {
		log.Info().Str("provider", cfg.Provider).Str("model", cfg.Model()).Msg("Image generator initialized")
	}
	return gen, nil
}
