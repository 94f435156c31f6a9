package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shrayg/beybladez/internal/assets"
	"github.com/shrayg/beybladez/internal/encoder"
	"github.com/shrayg/beybladez/internal/imagegen"
	"github.com/shrayg/beybladez/internal/metrics"
	"github.com/shrayg/beybladez/internal/notify"
	"github.com/shrayg/beybladez/internal/sink"
)

// Config wires a Controller. Generator is required.
type Config struct {
	Generator imagegen.Generator
	Notifier  notify.Notifier
	Sink      *sink.Sink
	// Prompt defaults to assets.GenerationPrompt.
	Prompt string
	// Context is the parent of all background work. It defaults to
	// context.Background(); the controller never cancels it.
	Context context.Context
}

// Controller is the generate workflow state machine. It is safe for
// concurrent use; background encoding and generation re-enter through
// callbacks that check they are still current before changing anything.
type Controller struct {
	gen      imagegen.Generator
	notifier notify.Notifier
	sink     *sink.Sink
	prompt   string
	ctx      context.Context

	mu        sync.Mutex
	state     State
	asset     *Asset
	uploadSeq uint64
	payload   *encoder.Payload
	encodeErr error
	token     uint64
	attempt   Attempt
	result    imagegen.Result

	wg sync.WaitGroup
}

// New creates a Controller in the Idle state.
func New(cfg Config) *Controller {
	c := &Controller{
		gen:      cfg.Generator,
		notifier: cfg.Notifier,
		sink:     cfg.Sink,
		prompt:   cfg.Prompt,
		ctx:      cfg.Context,
	}
	if c.notifier == nil {
		c.notifier = notify.LogNotifier{}
	}
	if c.sink == nil {
		c.sink = sink.New(sink.Options{})
	}
	if c.prompt == "" {
		c.prompt = assets.GenerationPrompt
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c
}

// Upload makes asset the current upload and starts encoding it. It is
// accepted in every state. Any previous result is cleared and an attempt
// still in flight is superseded.
func (c *Controller) Upload(asset Asset) {
	c.mu.Lock()
	c.uploadSeq++
	seq := c.uploadSeq
	prev := c.state
	c.asset = &asset
	c.payload = nil
	c.encodeErr = nil
	c.result = imagegen.Result{}
	c.state = Uploaded
	c.sink.Clear()
	c.mu.Unlock()

	log.Info().
		Str("name", asset.Name).
		Int("bytes", len(asset.Data)).
		Uint64("upload_seq", seq).
		Str("previous_state", prev.String()).
		Msg("Image uploaded")
	if prev == Generating {
		log.Debug().Uint64("upload_seq", seq).Msg("Upload supersedes in-flight attempt")
	}

	c.wg.Add(1)
	go c.encode(seq, asset.Data)
}

func (c *Controller) encode(seq uint64, data []byte) {
	defer c.wg.Done()

	payload, err := encoder.NewPayload(c.ctx, bytes.NewReader(data))

	c.mu.Lock()
	if seq != c.uploadSeq {
		c.mu.Unlock()
		log.Debug().Uint64("upload_seq", seq).Msg("Discarding encoding of superseded upload")
		return
	}
	if err != nil {
		c.encodeErr = err
		c.state = Failed
		c.result = imagegen.Failure(imagegen.NewError(imagegen.KindEncodingFailed, err))
		reason := c.result.Reason()
		c.mu.Unlock()

		log.Error().Err(err).Uint64("upload_seq", seq).Msg("Failed to encode uploaded image")
		c.notifier.Notify(notify.ReadFailed(reason))
		return
	}
	c.payload = &payload
	c.mu.Unlock()

	log.Debug().Uint64("upload_seq", seq).Int("payload_chars", len(payload.Base64)).Msg("Upload encoded")
}

// Generate starts one attempt for the current upload and returns without
// waiting for it. Rejections:
//   - no upload: a KindValidation *imagegen.Error, notified
//   - an attempt in flight: ErrBusy, not notified
//   - encoding failed: a KindEncodingFailed *imagegen.Error, not notified
//     again since the encoder already reported it
//   - encoding not finished: ErrNotReady, not notified
func (c *Controller) Generate() (Attempt, error) {
	c.mu.Lock()

	if c.asset == nil {
		c.mu.Unlock()
		err := imagegen.NewError(imagegen.KindValidation, errors.New("generate triggered without an upload"))
		log.Warn().Msg("Generate requested with no image uploaded")
		c.notifier.Notify(notify.NoImageSelected())
		return Attempt{}, err
	}

	if c.state == Generating {
		token := c.token
		c.mu.Unlock()
		log.Debug().Uint64("token", token).Msg("Generate ignored, attempt already in flight")
		return Attempt{}, ErrBusy
	}

	if c.encodeErr != nil {
		genErr := imagegen.NewError(imagegen.KindEncodingFailed, c.encodeErr)
		c.state = Failed
		c.result = imagegen.Failure(genErr)
		c.mu.Unlock()
		log.Debug().Err(genErr).Msg("Generate rejected, upload could not be encoded")
		return Attempt{}, genErr
	}

	if c.payload == nil {
		c.mu.Unlock()
		return Attempt{}, ErrNotReady
	}

	c.token++
	attempt := Attempt{
		Token:     c.token,
		ID:        uuid.NewString(),
		UploadSeq: c.uploadSeq,
		StartedAt: time.Now(),
	}
	c.attempt = attempt
	c.state = Generating
	c.result = imagegen.Result{}
	c.sink.Clear()
	req := imagegen.NewRequest(c.prompt, *c.payload)
	c.mu.Unlock()

	log.Info().
		Str("attempt_id", attempt.ID).
		Uint64("token", attempt.Token).
		Uint64("upload_seq", attempt.UploadSeq).
		Msg("Generation started")

	c.wg.Add(1)
	go c.run(attempt, req)
	return attempt, nil
}

// readyPollInterval is how often GenerateWhenReady retries while encoding.
const readyPollInterval = 20 * time.Millisecond

// GenerateWhenReady calls Generate, retrying while it reports ErrNotReady.
// It returns the first other outcome, or ctx.Err() if ctx ends first.
func (c *Controller) GenerateWhenReady(ctx context.Context) (Attempt, error) {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		attempt, err := c.Generate()
		if !errors.Is(err, ErrNotReady) {
			return attempt, err
		}
		select {
		case <-ctx.Done():
			return Attempt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) run(attempt Attempt, req imagegen.Request) {
	defer c.wg.Done()

	result := c.call(req)
	elapsed := time.Since(attempt.StartedAt)

	c.mu.Lock()
	if attempt.Token != c.token || attempt.UploadSeq != c.uploadSeq || c.state != Generating {
		c.mu.Unlock()
		log.Debug().
			Str("attempt_id", attempt.ID).
			Uint64("token", attempt.Token).
			Bool("succeeded", result.Succeeded()).
			Dur("duration", elapsed).
			Msg("Discarding stale generation result")
		metrics.New(metrics.Namespace).
			Count("StaleResolution").
			Property("attemptId", attempt.ID).
			Flush()
		return
	}

	c.result = result
	if result.Succeeded() {
		c.state = Succeeded
		c.sink.Publish(result.DataURI)
	} else {
		c.state = Failed
	}
	c.mu.Unlock()

	outcome := "Succeeded"
	if result.Succeeded() {
		log.Info().Str("attempt_id", attempt.ID).Dur("duration", elapsed).Msg("Generation succeeded")
		c.notifier.Notify(notify.Generated())
	} else {
		outcome = result.Err.Kind.String()
		log.Error().
			Err(result.Err).
			Str("attempt_id", attempt.ID).
			Str("kind", outcome).
			Dur("duration", elapsed).
			Msg("Generation failed")
		c.notifier.Notify(notify.GenerationFailed(result.Reason()))
	}

	metrics.New(metrics.Namespace).
		Dimension("Outcome", outcome).
		Metric("GenerationLatencyMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("GenerationResult").
		Property("attemptId", attempt.ID).
		Flush()
}

// call invokes the generator, turning a panic or a malformed result into a
// transport failure so that every attempt resolves exactly once.
func (c *Controller) call(req imagegen.Request) (result imagegen.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Generator panicked")
			result = imagegen.Failure(imagegen.NewError(imagegen.KindTransport, fmt.Errorf("generator panic: %v", r)))
		}
	}()

	result = c.gen.Generate(c.ctx, req)
	if !result.Succeeded() && result.Err == nil {
		result = imagegen.Failure(imagegen.NewError(imagegen.KindEmptyResult, errors.New("generator returned neither image nor error")))
	}
	return result
}

// Wait blocks until all background encoding and generation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		HasAsset:     c.asset != nil,
		PayloadReady: c.payload != nil,
		Attempt:      c.attempt,
		Result:       c.result,
		Published:    c.sink.Current(),
	}
	if c.asset != nil {
		snap.AssetName = c.asset.Name
		snap.DisplayURL = c.asset.DisplayURL
	}
	return snap
}

func errNoResult() *imagegen.Error {
	n := notify.NoResult()
	return &imagegen.Error{Kind: imagegen.KindValidation, Message: n.Description, Err: sink.ErrNoResult}
}

// Download saves the published image through the sink.
func (c *Controller) Download(ctx context.Context) (string, error) {
	if c.sink.Current() == "" {
		c.notifier.Notify(notify.NoResult())
		return "", errNoResult()
	}

	location, err := c.sink.Download(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Download failed")
		c.notifier.Notify(notify.SaveFailed(err.Error()))
		return "", err
	}
	c.notifier.Notify(notify.Saved(location))
	return location, nil
}

// SaveToGallery appends the published image to the gallery.
func (c *Controller) SaveToGallery(ctx context.Context) (int64, error) {
	current := c.sink.Current()
	if current == "" {
		c.notifier.Notify(notify.NoResult())
		return 0, errNoResult()
	}

	rec, err := c.sink.AppendToGallery(ctx, current)
	if err != nil {
		log.Error().Err(err).Msg("Gallery save failed")
		c.notifier.Notify(notify.SaveFailed(err.Error()))
		return 0, err
	}
	c.notifier.Notify(notify.AddedToGallery())
	return rec.ID, nil
}
