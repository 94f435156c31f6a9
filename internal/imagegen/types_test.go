package imagegen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestSelectImage(t *testing.T) {
	tests := []struct {
		name     string
		items    []OutputItem
		wantURI  string
		wantKind Kind
	}{
		{"nil", nil, "", KindNoImageReturned},
		{"no image items", []OutputItem{{Kind: KindMessage}, {Kind: "reasoning"}}, "", KindNoImageReturned},
		{"single", []OutputItem{{Kind: KindImageGenerationCall, Result: strPtr("iVBORw0KG")}}, "data:image/png;base64,iVBORw0KG", 0},
		{"first of two", []OutputItem{
			{Kind: KindImageGenerationCall, Result: strPtr("first")},
			{Kind: KindImageGenerationCall, Result: strPtr("second")},
		}, "data:image/png;base64,first", 0},
		{"first empty, second full", []OutputItem{
			{Kind: KindImageGenerationCall, Result: strPtr("")},
			{Kind: KindImageGenerationCall, Result: strPtr("second")},
		}, "", KindEmptyResult},
		{"missing result", []OutputItem{{Kind: KindImageGenerationCall}}, "", KindEmptyResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SelectImage(tt.items)
			if tt.wantURI != "" {
				assert.True(t, result.Succeeded())
				assert.Equal(t, tt.wantURI, result.DataURI)
				assert.Empty(t, result.Reason())
				return
			}
			require.NotNil(t, result.Err)
			assert.Equal(t, tt.wantKind, result.Err.Kind)
			assert.Equal(t, "Failed to generate image.", result.Reason())
		})
	}
}

func TestNewRequestUsesImageTool(t *testing.T) {
	req := testRequest()
	assert.Equal(t, ToolImageGeneration, req.Tool)
	assert.Equal(t, "image_generation", string(req.Tool))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("attempt 3: %w", NewError(KindEmptyResult, nil))
	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindEmptyResult, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "TransportError", KindTransport.String())
	assert.Equal(t, "MissingCredential", KindMissingCredential.String())
	assert.Equal(t, "Unknown", Kind(99).String())
}

func TestNewSelectsProvider(t *testing.T) {
	ctx := context.Background()

	gen, err := New(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, gen)

	gen, err = New(ctx, Options{Provider: "Gemini"})
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, gen)

	_, err = New(ctx, Options{Provider: "dalle"})
	assert.Error(t, err)

	assert.Equal(t, DefaultGeminiModel, DefaultModel("gemini"))
	assert.Equal(t, DefaultOpenAIModel, DefaultModel("openai"))
}
