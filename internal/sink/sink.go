// Package sink holds the most recent generated image and hands it to the
// places it can go: a local file (or bucket) and the gallery.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/encoder"
	"github.com/shrayg/beybladez/internal/store"
)

// ErrNoResult is returned when no image has been published.
var ErrNoResult = errors.New("no generated image")

// ErrNoGallery is returned by AppendToGallery when no gallery is configured.
var ErrNoGallery = errors.New("no gallery configured")

// FileSaver writes image bytes under a file name and reports where they went.
type FileSaver interface {
	Save(ctx context.Context, data []byte, name string) (string, error)
}

// ImageHost uploads image bytes and returns a URL that serves them.
type ImageHost interface {
	Host(ctx context.Context, data []byte, name string) (string, error)
}

// Options wires a Sink's collaborators. Any of them may be nil.
type Options struct {
	Saver   FileSaver
	Gallery store.GalleryStore
	Host    ImageHost
}

// Sink is the display surface for the latest result. Safe for concurrent use.
type Sink struct {
	mu      sync.RWMutex
	current string

	saver   FileSaver
	gallery store.GalleryStore
	host    ImageHost
	now     func() time.Time
}

// New creates a Sink.
func New(opts Options) *Sink {
	return &Sink{
		saver:   opts.Saver,
		gallery: opts.Gallery,
		host:    opts.Host,
		now:     time.Now,
	}
}

// Publish replaces the displayed result.
func (s *Sink) Publish(dataURI string) {
	s.mu.Lock()
	s.current = dataURI
	s.mu.Unlock()
}

// Clear removes the displayed result.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}

// Current returns the displayed data URI, or "" if there is none.
func (s *Sink) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// FileName returns the download name for an image saved at t.
func FileName(t time.Time) string {
	return "beybladez-" + strconv.FormatInt(t.UnixMilli(), 10) + ".png"
}

// Download saves the displayed image and returns its location.
func (s *Sink) Download(ctx context.Context) (string, error) {
	current := s.Current()
	if current == "" {
		return "", ErrNoResult
	}
	return s.SaveDataURI(ctx, current, FileName(s.now()))
}

// SaveDataURI decodes dataURI and writes it through the FileSaver as name.
func (s *Sink) SaveDataURI(ctx context.Context, dataURI, name string) (string, error) {
	if s.saver == nil {
		return "", errors.New("no file saver configured")
	}
	_, data, err := encoder.DecodeDataURI(dataURI)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	location, err := s.saver.Save(ctx, data, name)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}

	log.Info().Str("location", location).Int("bytes", len(data)).Msg("Image saved")
	return location, nil
}

// maxIDAttempts bounds how many consecutive IDs AppendToGallery tries.
const maxIDAttempts = 5

// AppendToGallery records dataURI in the gallery. With an ImageHost the bytes
// are uploaded first and the hosted URL is stored instead of the data URI.
func (s *Sink) AppendToGallery(ctx context.Context, dataURI string) (store.GalleryRecord, error) {
	if s.gallery == nil {
		return store.GalleryRecord{}, ErrNoGallery
	}
	if dataURI == "" {
		return store.GalleryRecord{}, ErrNoResult
	}

	now := s.now().UTC()
	rec := store.GalleryRecord{
		ID:        now.UnixMilli(),
		URL:       dataURI,
		Timestamp: now.Format(time.RFC3339),
	}

	if s.host != nil {
		_, data, err := encoder.DecodeDataURI(dataURI)
		if err != nil {
			return store.GalleryRecord{}, fmt.Errorf("failed to decode image: %w", err)
		}
		url, err := s.host.Host(ctx, data, FileName(now))
		if err != nil {
			return store.GalleryRecord{}, fmt.Errorf("failed to host image: %w", err)
		}
		rec.URL = url
	}

	// IDs are milliseconds, so two saves in the same millisecond collide.
	// The later one takes the next free ID instead of overwriting.
	var err error
	for i := 0; i < maxIDAttempts; i++ {
		err = s.gallery.Append(ctx, rec)
		if !errors.Is(err, store.ErrDuplicateID) {
			break
		}
		log.Debug().Int64("id", rec.ID).Msg("Gallery ID taken, trying the next one")
		rec.ID++
	}
	if err != nil {
		return store.GalleryRecord{}, fmt.Errorf("failed to append to gallery: %w", err)
	}

	log.Info().Int64("id", rec.ID).Bool("hosted", s.host != nil).Msg("Image added to gallery")
	return rec, nil
}
