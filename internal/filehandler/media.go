// Package filehandler loads images chosen by the user and prepares them for
// upload.
//
// Every upload is declared as image/png downstream, so LoadImage hands back
// PNG bytes: PNG files pass through untouched and the other supported formats
// are decoded and re-encoded. EXIF metadata is read with
// evanoberholster/imagemeta on a best-effort basis for display; it never
// reaches the PNG that is sent on.
package filehandler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxUploadBytes is the largest file LoadImage accepts.
const MaxUploadBytes = 20 << 20

// MaxPixels bounds width*height of an accepted image. A small compressed
// file can declare dimensions whose decoded form would not fit in memory.
const MaxPixels = 50_000_000

// SupportedImageExtensions defines the file extensions that are supported for image upload.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

var (
	ErrUnsupported = errors.New("unsupported image type")
	ErrTooLarge    = errors.New("image exceeds upload limit")

	// ErrTooManyPixels wraps ErrTooLarge so callers checking the size
	// limit also catch oversized dimensions.
	ErrTooManyPixels = fmt.Errorf("%w: too many pixels", ErrTooLarge)
)

// Upload is an image ready to hand to the session controller.
type Upload struct {
	Path string
	Name string
	// SourceMIME is the type of the file on disk; Data is always PNG.
	SourceMIME string
	Data       []byte
	Converted  bool
	Width      int
	Height     int
	// Preview is a small PNG data URI for display.
	Preview  string
	Size     int64
	ModTime  time.Time
	Metadata *ImageMetadata
}

// LoadImage validates and reads the image at path and normalises it to PNG.
func LoadImage(path string) (*Upload, error) {
	log.Debug().Str("path", path).Msg("Loading image")

	ext := strings.ToLower(filepath.Ext(path))
	mimeType, err := GetMIMEType(ext)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, filepath.Base(path), info.Size(), MaxUploadBytes)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	upload := &Upload{
		Path:       path,
		Name:       filepath.Base(path),
		SourceMIME: mimeType,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}

	img, err := ToPNG(raw, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", upload.Name, err)
	}
	upload.Data = img.Data
	upload.Converted = img.Converted
	upload.Width = img.Width
	upload.Height = img.Height
	upload.Preview = img.Preview

	meta, err := ExtractImageMetadata(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No EXIF metadata, continuing without it")
	} else {
		upload.Metadata = meta
		logMetadata(upload.Name, meta)
	}

	log.Info().
		Str("name", upload.Name).
		Str("source_mime", mimeType).
		Bool("converted", upload.Converted).
		Int("width", upload.Width).
		Int("height", upload.Height).
		Int("png_bytes", len(upload.Data)).
		Msg("Image loaded")

	return upload, nil
}

// GetMIMEType returns the MIME type for a given file extension.
func GetMIMEType(ext string) (string, error) {
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(ext)]; ok {
		return mimeType, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
}

// IsImage returns true if the file extension corresponds to a supported image.
func IsImage(ext string) bool {
	_, ok := SupportedImageExtensions[strings.ToLower(ext)]
	return ok
}

// Extensions returns the supported extensions as glob patterns, for file
// picker filters.
func Extensions() []string {
	patterns := make([]string, 0, len(SupportedImageExtensions))
	for ext := range SupportedImageExtensions {
		patterns = append(patterns, "*"+ext)
	}
	sort.Strings(patterns)
	return patterns
}
