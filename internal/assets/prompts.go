// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time, so the prompt sent with every generation is fixed per build.
package assets

import (
	_ "embed"
	"strings"
)

//go:embed prompts/beyblade.txt
var beybladePrompt string

// GenerationPrompt is the instruction sent alongside every uploaded image.
// It has no parameters and is not user-editable.
var GenerationPrompt = strings.TrimSpace(beybladePrompt)
