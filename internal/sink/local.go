package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSaver writes images into a directory on disk.
type LocalSaver struct {
	Dir string
}

// Save writes data to Dir/name, creating Dir if needed.
func (l LocalSaver) Save(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := l.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}
