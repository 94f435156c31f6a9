package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shrayg/beybladez/internal/sink"
	"github.com/shrayg/beybladez/internal/store"
)

var jsonFlag bool

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Browse saved illustrations",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery entries in the order they were saved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupGallery(cmd, "gallery list")
		if err != nil {
			return err
		}
		return listGallery(cmd.Context(), a.gallery, cmd.OutOrStdout(), jsonFlag)
	},
}

var galleryDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Save one gallery entry as meme-beanz-<id>.png",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid gallery id %q: %w", args[0], err)
		}
		a, err := setupGallery(cmd, "gallery download")
		if err != nil {
			return err
		}
		return downloadGalleryItem(cmd.Context(), a.gallery, a.sink, id, cmd.OutOrStdout())
	},
}

func init() {
	galleryListCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the records as JSON")
	galleryCmd.AddCommand(galleryListCmd, galleryDownloadCmd)
}

func setupGallery(cmd *cobra.Command, name string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return setup(cmd.Context(), name, cfg, false)
}

// galleryFileName is the download name of a gallery entry.
func galleryFileName(id int64) string {
	return "meme-beanz-" + strconv.FormatInt(id, 10) + ".png"
}

func listGallery(ctx context.Context, gallery store.GalleryStore, out io.Writer, asJSON bool) error {
	records, err := gallery.ReadAll(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		if records == nil {
			records = []store.GalleryRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "Gallery is empty")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSAVED\tIMAGE")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", rec.ID, rec.Timestamp, describeURL(rec.URL))
	}
	return w.Flush()
}

// describeURL shortens inline images to their size.
func describeURL(url string) string {
	if strings.HasPrefix(url, "data:") {
		return fmt.Sprintf("(inline image, %d chars)", len(url))
	}
	return url
}

func downloadGalleryItem(ctx context.Context, gallery store.GalleryStore, s *sink.Sink, id int64, out io.Writer) error {
	records, err := gallery.ReadAll(ctx)
	if err != nil {
		return err
	}
	rec, err := store.Find(records, id)
	if err != nil {
		return fmt.Errorf("gallery id %d: %w", id, err)
	}

	if !strings.HasPrefix(rec.URL, "data:") {
		fmt.Fprintf(out, "Image %d is hosted at %s\n", id, rec.URL)
		return nil
	}

	location, err := s.SaveDataURI(ctx, rec.URL, galleryFileName(id))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, location)
	return nil
}
