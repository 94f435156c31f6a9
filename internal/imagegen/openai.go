package imagegen

// openai.go calls the OpenAI Responses API with the image_generation tool.
// The reply's output array mixes message, reasoning and image items; only the
// first image_generation_call item is used.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the default client. Its Timeout, if any, bounds
	// every attempt; the default client has none.
	HTTPClient *http.Client
}

// OpenAIClient generates images through the OpenAI Responses API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

var _ Generator = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new client for the Responses API.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// --- REST API request/response types ---

type responsesRequest struct {
	Model string          `json:"model"`
	Input []responsesTurn `json:"input"`
	Tools []responsesTool `json:"tools"`
}

type responsesTurn struct {
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type responsesTool struct {
	Type string `json:"type"`
}

type responsesResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output []OutputItem    `json:"output"`
	Error  *responsesError `json:"error,omitempty"`
}

type responsesError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// errorEnvelope is the body shape of non-2xx replies.
type errorEnvelope struct {
	Error *responsesError `json:"error"`
}

func buildResponsesRequest(model string, req Request) responsesRequest {
	tool := req.Tool
	if tool == "" {
		tool = ToolImageGeneration
	}
	return responsesRequest{
		Model: model,
		Input: []responsesTurn{
			{
				Role: "user",
				Content: []responsesContent{
					{Type: "input_text", Text: req.Prompt},
					{Type: "input_image", ImageURL: req.Image.DataURI(), Detail: "auto"},
				},
			},
		},
		Tools: []responsesTool{{Type: string(tool)}},
	}
}

// Generate sends one request and reduces the reply to a Result. It never
// retries and never returns a Go error; every failure is classified.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) Result {
	if c.apiKey == "" {
		log.Warn().Msg("OpenAI API key not configured, skipping request")
		return Failure(NewError(KindMissingCredential, errors.New("OPENAI_API_KEY is not set")))
	}

	startTime := time.Now()
	log.Info().
		Str("model", c.model).
		Str("tool", string(req.Tool)).
		Int("payload_chars", len(req.Image.Base64)).
		Msg("Sending image to OpenAI for generation")

	body, err := json.Marshal(buildResponsesRequest(c.model, req))
	if err != nil {
		return Failure(NewError(KindTransport, fmt.Errorf("failed to marshal request: %w", err)))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return Failure(NewError(KindTransport, fmt.Errorf("failed to create request: %w", err)))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(startTime)).Msg("OpenAI request failed")
		return Failure(NewError(KindTransport, fmt.Errorf("HTTP request failed: %w", err)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(NewError(KindTransport, fmt.Errorf("failed to read response: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("OpenAI Responses API returned error")
		return Failure(NewError(KindTransport, statusError(resp.StatusCode, respBody)))
	}

	var parsed responsesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		log.Error().Err(err).Str("body", truncateString(string(respBody), 200)).Msg("Unparseable OpenAI response")
		return Failure(NewError(KindTransport, fmt.Errorf("failed to parse response: %w", err)))
	}

	if parsed.Error != nil {
		return Failure(NewError(KindTransport, fmt.Errorf("API error: %s (code: %s)", parsed.Error.Message, parsed.Error.Code)))
	}

	result := SelectImage(parsed.Output)
	if !result.Succeeded() {
		log.Warn().
			Str("response_id", parsed.ID).
			Str("status", parsed.Status).
			Int("output_items", len(parsed.Output)).
			Str("kind", result.Err.Kind.String()).
			Dur("duration", time.Since(startTime)).
			Msg("OpenAI response carried no usable image")
		return result
	}

	log.Info().
		Str("response_id", parsed.ID).
		Int("output_items", len(parsed.Output)).
		Int("result_chars", len(result.DataURI)).
		Dur("duration", time.Since(startTime)).
		Msg("OpenAI image generation complete")

	return result
}

// statusError describes a non-2xx reply, preferring the API's own message.
func statusError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return fmt.Errorf("API returned status %d: %s", status, env.Error.Message)
	}
	return fmt.Errorf("API returned status %d: %s", status, truncateString(string(body), 200))
}
