package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shrayg/beybladez/internal/cli"
	"github.com/shrayg/beybladez/internal/filehandler"
	"github.com/shrayg/beybladez/internal/session"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Drive one session from a prompt",
	Long: `Starts a prompt over a single session. generate returns as soon as the
attempt has started; use status or wait to follow it. A second generate while
one is running is ignored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := setup(ctx, "interactive", cfg, true)
		if err != nil {
			return err
		}
		r := &repl{
			app:  a,
			ctrl: a.controller(ctx),
			out:  cmd.OutOrStdout(),
			pick: cli.PickImageFile,
		}
		return r.run(ctx, os.Stdin)
	},
}

const replHelp = `Commands:
  upload <path>  load an image
  pick           choose an image with the file picker
  generate       start a generation
  status         show the session state
  wait           block until the current work finishes
  download       save the generated image
  save           add the generated image to the gallery
  help           show this help
  quit           exit`

type repl struct {
	app  *app
	ctrl *session.Controller
	out  io.Writer
	pick func() (string, error)

	// image is the last file accepted by upload.
	image *filehandler.Upload
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(r.out, `beybladez interactive, type "help" for commands`)
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, arg, _ := strings.Cut(line, " ")
		if done := r.dispatch(ctx, strings.ToLower(name), strings.TrimSpace(arg)); done {
			break
		}
	}

	r.ctrl.Wait()
	return scanner.Err()
}

// dispatch runs one command and reports whether the loop should end.
func (r *repl) dispatch(ctx context.Context, name, arg string) bool {
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(r.out, replHelp)
	case "upload":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: upload <path>")
			return false
		}
		r.upload(strings.Trim(arg, `"'`))
	case "pick":
		path, err := r.pick()
		if errors.Is(err, cli.ErrCanceled) {
			fmt.Fprintln(r.out, "No file selected")
			return false
		}
		if err != nil {
			r.report(err)
			return false
		}
		r.upload(path)
	case "generate":
		attempt, err := r.ctrl.GenerateWhenReady(ctx)
		if err != nil {
			r.report(err)
			return false
		}
		fmt.Fprintf(r.out, "Generation started (%s)\n", attempt.ID)
	case "status":
		r.status()
	case "wait":
		r.ctrl.Wait()
		r.status()
	case "download":
		location, err := r.ctrl.Download(ctx)
		if err != nil {
			r.report(err)
			return false
		}
		fmt.Fprintf(r.out, "Saved to %s\n", location)
	case "save":
		id, err := r.ctrl.SaveToGallery(ctx)
		if err != nil {
			r.report(err)
			return false
		}
		fmt.Fprintf(r.out, "Added to gallery as %d\n", id)
	default:
		fmt.Fprintf(r.out, "Unknown command %q, type \"help\"\n", name)
	}
	return false
}

func (r *repl) upload(path string) {
	img, err := upload(r.ctrl, r.app.notifier, path)
	if err != nil {
		r.report(err)
		return
	}
	r.image = img
	fmt.Fprintf(r.out, "Uploaded %s\n", path)
}

func (r *repl) status() {
	snap := r.ctrl.Snapshot()
	fmt.Fprintf(r.out, "State: %s\n", snap.State)
	if snap.HasAsset {
		fmt.Fprintf(r.out, "Image: %s (ready: %t)\n", snap.AssetName, snap.PayloadReady)
		if r.image != nil && r.image.Name == snap.AssetName {
			writeImageDetails(r.out, r.image)
		}
	}
	if snap.State == session.Generating {
		fmt.Fprintf(r.out, "Elapsed: %s\n", cli.FormatDurationShort(time.Since(snap.Attempt.StartedAt)))
	}
	if reason := snap.Reason(); reason != "" {
		fmt.Fprintf(r.out, "Reason: %s\n", reason)
	}
	if snap.Published != "" {
		fmt.Fprintln(r.out, `Result ready, use "download" or "save"`)
	}
}

// writeImageDetails prints what is known about an uploaded file. Location
// comes from EXIF and is only ever shown here.
func writeImageDetails(w io.Writer, img *filehandler.Upload) {
	fmt.Fprintf(w, "Dimensions: %dx%d\n", img.Width, img.Height)
	m := img.Metadata
	if m == nil {
		return
	}
	if m.HasDate {
		fmt.Fprintf(w, "Taken: %s\n", m.DateTaken.Format("2006-01-02 15:04"))
	}
	if camera := m.Camera(); camera != "" {
		fmt.Fprintf(w, "Camera: %s\n", camera)
	}
	if m.HasGPS {
		fmt.Fprintf(w, "Location: %s\n", filehandler.CoordinatesToDMS(m.Latitude, m.Longitude))
	}
}

func (r *repl) report(err error) {
	if errors.Is(err, session.ErrBusy) {
		fmt.Fprintln(r.out, "A generation is already running")
		return
	}
	fmt.Fprintf(r.out, "Error: %v\n", err)
	if hint := cli.Hint(err); hint != "" {
		fmt.Fprintln(r.out, hint)
	}
}
