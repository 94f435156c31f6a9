package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/shrayg/beybladez/internal/auth"
	"github.com/shrayg/beybladez/internal/filehandler"
	"github.com/shrayg/beybladez/internal/imagegen"
	"github.com/shrayg/beybladez/internal/session"
)

// ResolveOutputDir checks that dirPath is a directory, creating it if it
// does not exist, and returns its absolute path.
func ResolveOutputDir(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	case !info.IsDir():
		return "", &os.PathError{Op: "output", Path: dirPath, Err: errors.New("not a directory")}
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}
	return dirPath, nil
}

// Hint returns a one-line suggestion for the user to act on err, or "".
func Hint(err error) string {
	var genErr *imagegen.Error
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case imagegen.KindMissingCredential:
			return "Set OPENAI_API_KEY or GEMINI_API_KEY, or configure BEYBLADEZ_API_KEY_SSM_PARAM"
		case imagegen.KindValidation:
			return "Upload an image with -i <path> or --pick"
		case imagegen.KindEncodingFailed:
			return "Try a different image file"
		case imagegen.KindTransport:
			return "Check your network connection and API key, then try again"
		case imagegen.KindNoImageReturned, imagegen.KindEmptyResult:
			return "The model did not return an image, try again"
		}
	}

	switch {
	case errors.Is(err, auth.ErrNoKey):
		return "Set OPENAI_API_KEY or GEMINI_API_KEY, or configure BEYBLADEZ_API_KEY_SSM_PARAM"
	case errors.Is(err, filehandler.ErrUnsupported):
		return "Supported formats: PNG, JPEG, GIF, WebP, BMP, TIFF"
	case errors.Is(err, filehandler.ErrTooManyPixels):
		return "Images must be 50 megapixels or smaller"
	case errors.Is(err, filehandler.ErrTooLarge):
		return "Images must be 20 MiB or smaller"
	case errors.Is(err, session.ErrBusy):
		return "Wait for the current generation to finish"
	case errors.Is(err, session.ErrNotReady):
		return "The image is still being prepared, try again in a moment"
	}
	return ""
}
