package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shrayg/beybladez/internal/cli"
	"github.com/shrayg/beybladez/internal/config"
	"github.com/shrayg/beybladez/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Flags shared by every subcommand. Empty means "use the environment".
var (
	providerFlag string
	modelFlag    string
	outFlag      string
	galleryFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "beybladez",
	Short: "Turn a photo into a Beyblade-style illustration",
	Long: `beybladez uploads an image, asks an image model to redraw it as a
Beyblade-style illustration, and saves the result locally or to a gallery.

Configuration comes from the environment (and .env / .env.local files);
the flags below override it.

Examples:
  beybladez generate -i photo.jpg
  beybladez generate --pick --save
  beybladez generate -i photo.png --provider gemini --out s3://my-bucket
  beybladez gallery list --json
  beybladez interactive`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "Image provider: openai or gemini")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model name for the selected provider")
	rootCmd.PersistentFlags().StringVarP(&outFlag, "out", "o", "", "Download directory, or s3://bucket to save to S3")
	rootCmd.PersistentFlags().StringVar(&galleryFlag, "gallery", "", "Gallery backend: file or dynamodb")

	rootCmd.Version = version
	rootCmd.AddCommand(generateCmd, galleryCmd, interactiveCmd)
}

func main() {
	logging.Init(os.Getenv("BEYBLADEZ_LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("Command failed")
		if hint := cli.Hint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if providerFlag != "" {
		cfg.Provider = strings.ToLower(providerFlag)
	}
	if modelFlag != "" {
		cfg.SetModel(modelFlag)
	}
	if outFlag != "" {
		cfg.OutputDir = outFlag
	}
	if galleryFlag != "" {
		cfg.Gallery = strings.ToLower(galleryFlag)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	logging.Init(cfg.LogLevel)
	return cfg, nil
}
