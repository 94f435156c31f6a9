package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shrayg/beybladez/internal/cli"
	"github.com/shrayg/beybladez/internal/filehandler"
	"github.com/shrayg/beybladez/internal/notify"
	"github.com/shrayg/beybladez/internal/session"
)

var (
	imageFlag string
	pickFlag  bool
	saveFlag  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one illustration from an image and download it",
	Long: `Uploads the image, waits for the generation to finish, and downloads the
result to the output directory. With --save the result is also added to the
gallery. Without -i or --pick the image path is read from stdin.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&imageFlag, "image", "i", "", "Path of the image to upload")
	generateCmd.Flags().BoolVar(&pickFlag, "pick", false, "Choose the image with the native file picker")
	generateCmd.Flags().BoolVar(&saveFlag, "save", false, "Also add the result to the gallery")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := setup(ctx, "generate", cfg, true)
	if err != nil {
		return err
	}

	path := imageFlag
	if path == "" && pickFlag {
		path, err = cli.PickImageFile()
		if err != nil {
			return err
		}
	}
	if path == "" && !pickFlag {
		path = cli.PromptForPath(os.Stdin, os.Stderr, "Image path")
	}

	return generateOnce(ctx, a, path, saveFlag, cmd.OutOrStdout())
}

// generateOnce runs one upload-generate-download cycle and prints where the
// image went. An empty path goes straight to Generate, which rejects it.
func generateOnce(ctx context.Context, a *app, path string, save bool, out io.Writer) error {
	ctrl := a.controller(ctx)

	if path != "" {
		if _, err := upload(ctrl, a.notifier, path); err != nil {
			return err
		}
	}

	attempt, err := ctrl.GenerateWhenReady(ctx)
	if err != nil {
		return err
	}
	ctrl.Wait()

	snap := ctrl.Snapshot()
	if snap.State != session.Succeeded {
		if snap.Result.Err != nil {
			return snap.Result.Err
		}
		return fmt.Errorf("generation ended in state %s", snap.State)
	}
	log.Debug().Str("attempt_id", attempt.ID).Msg("Generation complete")

	location, err := ctrl.Download(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, location)

	if save {
		id, err := ctrl.SaveToGallery(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved to gallery as %d\n", id)
	}
	return nil
}

// upload loads path and hands it to the controller. Load failures are
// reported the same way as encoding failures.
func upload(ctrl *session.Controller, notifier notify.Notifier, path string) (*filehandler.Upload, error) {
	img, err := filehandler.LoadImage(path)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, filehandler.ErrUnsupported) || errors.Is(err, filehandler.ErrTooLarge) {
			reason = cli.Hint(err)
		}
		notifier.Notify(notify.ReadFailed(reason))
		return nil, err
	}

	ctrl.Upload(session.Asset{
		Name:       img.Name,
		Data:       img.Data,
		DisplayURL: img.Preview,
	})
	return img, nil
}
