package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// GeminiClient generates images with a Gemini image model through the genai SDK.
type GeminiClient struct {
	models contentGenerator
	model  string
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini backend. With an empty API key no SDK
// client is created and every attempt fails with MissingCredential.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	c := &GeminiClient{model: model}

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

// Generate sends the prompt and image as one user turn. Inline image parts in
// the reply become image generation items in candidate and part order, so the
// same first-match rule applies as for the Responses API.
func (c *GeminiClient) Generate(ctx context.Context, req Request) Result {
	if c.models == nil {
		log.Warn().Msg("Gemini API key not configured, skipping request")
		return Failure(NewError(KindMissingCredential, errors.New("GEMINI_API_KEY is not set")))
	}

	imageData, err := base64.StdEncoding.DecodeString(req.Image.Base64)
	if err != nil {
		return Failure(NewError(KindEncodingFailed, fmt.Errorf("failed to decode payload: %w", err)))
	}

	startTime := time.Now()
	log.Info().
		Str("model", c.model).
		Int("image_bytes", len(imageData)).
		Msg("Sending image to Gemini for generation")

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.Prompt},
			{InlineData: &genai.Blob{MIMEType: req.Image.MIMEType, Data: imageData}},
		},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			log.Error().Int("code", apiErr.Code).Str("status", apiErr.Status).Msg("Gemini API returned error")
		} else {
			log.Error().Err(err).Msg("Gemini request failed")
		}
		return Failure(NewError(KindTransport, err))
	}

	items := outputItemsFromGemini(resp)
	result := SelectImage(items)
	if !result.Succeeded() {
		log.Warn().
			Int("output_items", len(items)).
			Str("kind", result.Err.Kind.String()).
			Dur("duration", time.Since(startTime)).
			Msg("Gemini response carried no usable image")
		return result
	}

	log.Info().
		Int("output_items", len(items)).
		Int("result_chars", len(result.DataURI)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini image generation complete")
	return result
}

// outputItemsFromGemini flattens candidates into tagged output items.
func outputItemsFromGemini(resp *genai.GenerateContentResponse) []OutputItem {
	if resp == nil {
		return nil
	}
	var items []OutputItem
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil {
				b64 := base64.StdEncoding.EncodeToString(part.InlineData.Data)
				items = append(items, OutputItem{
					Kind:   KindImageGenerationCall,
					Status: string(candidate.FinishReason),
					Result: &b64,
				})
				continue
			}
			if part.Text != "" {
				items = append(items, OutputItem{Kind: KindMessage})
			}
		}
	}
	return items
}
