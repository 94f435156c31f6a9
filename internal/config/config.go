// Package config resolves runtime settings from the environment, after
// loading .env.local and .env from the working directory when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/imagegen"
	"github.com/shrayg/beybladez/internal/store"
)

// Gallery backends.
const (
	GalleryFile     = "file"
	GalleryDynamoDB = "dynamodb"
)

// EnvFiles are loaded in order. Variables already set are never
// overwritten, so .env.local wins over .env and the real environment wins
// over both.
var EnvFiles = []string{".env.local", ".env"}

type Config struct {
	Provider      string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiModel   string

	OutputDir    string
	Gallery      string
	GalleryFile  string
	GalleryTable string
	S3Bucket     string

	APIKeySSMParam string
	HTTPTimeout    time.Duration
	DesktopNotify  bool
	Metrics        bool
	LogLevel       string
}

// Model returns the configured model for the active provider.
func (c Config) Model() string {
	if c.Provider == imagegen.ProviderGemini {
		return c.GeminiModel
	}
	return c.OpenAIModel
}

// SetModel overrides the model for the active provider.
func (c *Config) SetModel(model string) {
	if c.Provider == imagegen.ProviderGemini {
		c.GeminiModel = model
		return
	}
	c.OpenAIModel = model
}

// UsesAWS reports whether any configured component needs AWS credentials.
func (c Config) UsesAWS() bool {
	return c.Gallery == GalleryDynamoDB || c.S3Bucket != "" || c.APIKeySSMParam != ""
}

// Load reads the env files and environment and validates the result.
func Load() (Config, error) {
	for _, f := range EnvFiles {
		if err := godotenv.Load(f); err == nil {
			log.Debug().Str("file", f).Msg("Loaded env file")
		}
	}

	c := Config{
		Provider:       strings.ToLower(getenv("BEYBLADEZ_PROVIDER", imagegen.ProviderOpenAI)),
		OpenAIModel:    getenv("OPENAI_MODEL", imagegen.DefaultOpenAIModel),
		OpenAIBaseURL:  getenv("OPENAI_BASE_URL", imagegen.DefaultOpenAIBaseURL),
		GeminiModel:    getenv("GEMINI_MODEL", imagegen.DefaultGeminiModel),
		OutputDir:      getenv("BEYBLADEZ_OUTPUT_DIR", "."),
		Gallery:        strings.ToLower(getenv("BEYBLADEZ_GALLERY", GalleryFile)),
		GalleryFile:    os.Getenv("BEYBLADEZ_GALLERY_FILE"),
		GalleryTable:   os.Getenv("BEYBLADEZ_GALLERY_TABLE"),
		S3Bucket:       os.Getenv("BEYBLADEZ_S3_BUCKET"),
		APIKeySSMParam: os.Getenv("BEYBLADEZ_API_KEY_SSM_PARAM"),
		LogLevel:       getenv("BEYBLADEZ_LOG_LEVEL", "info"),
	}

	if c.GalleryFile == "" {
		path, err := store.DefaultFilePath()
		if err != nil {
			return Config{}, err
		}
		c.GalleryFile = path
	}

	secs, err := getInt("BEYBLADEZ_HTTP_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}
	c.HTTPTimeout = time.Duration(secs) * time.Second

	if c.DesktopNotify, err = getBool("BEYBLADEZ_DESKTOP_NOTIFY"); err != nil {
		return Config{}, err
	}
	if c.Metrics, err = getBool("BEYBLADEZ_METRICS"); err != nil {
		return Config{}, err
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks enumerated values and cross-field requirements. It is
// called again after flag overrides.
func (c Config) Validate() error {
	switch c.Provider {
	case imagegen.ProviderOpenAI, imagegen.ProviderGemini:
	default:
		return fmt.Errorf("BEYBLADEZ_PROVIDER must be %q or %q, got %q", imagegen.ProviderOpenAI, imagegen.ProviderGemini, c.Provider)
	}

	switch c.Gallery {
	case GalleryFile:
	case GalleryDynamoDB:
		if c.GalleryTable == "" {
			return fmt.Errorf("BEYBLADEZ_GALLERY_TABLE is required when BEYBLADEZ_GALLERY=%s", GalleryDynamoDB)
		}
	default:
		return fmt.Errorf("BEYBLADEZ_GALLERY must be %q or %q, got %q", GalleryFile, GalleryDynamoDB, c.Gallery)
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("BEYBLADEZ_HTTP_TIMEOUT must not be negative")
	}
	return nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", k, v, err)
	}
	return n, nil
}

func getBool(k string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", k, v, err)
	}
	return b, nil
}
