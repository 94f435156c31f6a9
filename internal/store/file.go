package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultGalleryFile is the gallery path relative to the user's home directory.
const DefaultGalleryFile = ".beybladez/gallery.json"

// FileStore implements GalleryStore as a JSON array on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// Compile-time interface check.
var _ GalleryStore = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file and its parent
// directory are created on first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath resolves DefaultGalleryFile under the home directory.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultGalleryFile), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Append reads the current array, adds rec, and atomically replaces the file.
func (s *FileStore) Append(ctx context.Context, rec GalleryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, err := Find(records, rec.ID); err == nil {
		return fmt.Errorf("%w: %d", ErrDuplicateID, rec.ID)
	}
	records = append(records, rec)

	if err := s.write(records); err != nil {
		return err
	}

	log.Debug().Str("path", s.path).Int64("id", rec.ID).Int("count", len(records)).Msg("Gallery record stored")
	return nil
}

// ReadAll returns the stored records in append order. A missing file is an
// empty gallery.
func (s *FileStore) ReadAll(ctx context.Context) ([]GalleryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *FileStore) load() ([]GalleryRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []GalleryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse gallery %s: %w", s.path, err)
	}
	return records, nil
}

func (s *FileStore) write(records []GalleryRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gallery-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace gallery: %w", err)
	}
	return nil
}
