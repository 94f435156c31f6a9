package cli

import (
	"errors"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/filehandler"
)

// ErrCanceled is returned when the user closes the picker without choosing.
var ErrCanceled = zenity.ErrCanceled

// selectFile is replaced in tests.
var selectFile = zenity.SelectFile

// PickImageFile opens the native file picker filtered to supported images.
func PickImageFile() (string, error) {
	path, err := selectFile(
		zenity.Title("Select an image"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: filehandler.Extensions(),
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			log.Debug().Msg("File picker canceled")
			return "", ErrCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", err
	}

	log.Debug().Str("path", path).Msg("File picked")
	return path, nil
}
