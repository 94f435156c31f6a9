package filehandler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/shrayg/beybladez/internal/encoder"
)

// PreviewMaxDimension bounds the width and height of Upload.Preview.
const PreviewMaxDimension = 256

// Normalized is the result of ToPNG.
type Normalized struct {
	Data      []byte
	Converted bool
	Width     int
	Height    int
	Preview   string
}

// ToPNG returns data as PNG. PNG input is returned unchanged after its
// header is checked; anything else is decoded and re-encoded. Images over
// MaxPixels are rejected from their header before any pixel data is decoded.
func ToPNG(data []byte, mimeType string) (Normalized, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Normalized{}, fmt.Errorf("failed to decode %s: %w", mimeType, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return Normalized{}, fmt.Errorf("%w: %dx%d, limit is %d", ErrTooManyPixels, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Normalized{}, fmt.Errorf("failed to decode %s: %w", mimeType, err)
	}

	bounds := img.Bounds()
	out := Normalized{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if format == "png" {
		out.Data = data
	} else {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return Normalized{}, fmt.Errorf("failed to encode PNG: %w", err)
		}
		out.Data = buf.Bytes()
		out.Converted = true

		log.Debug().
			Str("format", format).
			Int("input_size", len(data)).
			Int("output_size", buf.Len()).
			Msg("Image re-encoded as PNG")
	}

	preview, err := previewDataURI(img)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to build preview, continuing without it")
	} else {
		out.Preview = preview
	}

	return out, nil
}

// previewDataURI resizes img to fit PreviewMaxDimension and returns it as a
// PNG data URI.
func previewDataURI(img image.Image) (string, error) {
	bounds := img.Bounds()
	w, h := calculateThumbnailDimensions(bounds.Dx(), bounds.Dy(), PreviewMaxDimension)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}

	payload, err := encoder.NewPayload(context.Background(), &buf)
	if err != nil {
		return "", err
	}
	return payload.DataURI(), nil
}

// calculateThumbnailDimensions calculates new dimensions maintaining aspect ratio.
func calculateThumbnailDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	if width > height {
		newWidth := maxDimension
		newHeight := int(float64(height) * float64(maxDimension) / float64(width))
		return newWidth, newHeight
	}

	newHeight := maxDimension
	newWidth := int(float64(width) * float64(maxDimension) / float64(height))
	return newWidth, newHeight
}
