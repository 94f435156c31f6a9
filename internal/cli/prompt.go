package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForPath asks for a file path on out and reads one line from in.
// Surrounding quotes, as left by drag-and-drop into a terminal, are
// stripped. Returns "" if the user enters nothing.
func PromptForPath(in io.Reader, out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label)

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}

	input = strings.TrimSpace(input)
	input = strings.Trim(input, `"'`)
	return input
}
