package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrayg/beybladez/internal/imagegen"
	"github.com/shrayg/beybladez/internal/metrics"
	"github.com/shrayg/beybladez/internal/notify"
	"github.com/shrayg/beybladez/internal/sink"
	"github.com/shrayg/beybladez/internal/store"
)

type generatorFunc func(ctx context.Context, req imagegen.Request) imagegen.Result

func (f generatorFunc) Generate(ctx context.Context, req imagegen.Request) imagegen.Result {
	return f(ctx, req)
}

// gatedGenerator blocks each call until the test releases it with a result.
type gatedGenerator struct {
	mu      sync.Mutex
	reqs    []imagegen.Request
	started chan int
	release []chan imagegen.Result
}

func newGatedGenerator(maxCalls int) *gatedGenerator {
	g := &gatedGenerator{started: make(chan int, maxCalls)}
	for i := 0; i < maxCalls; i++ {
		g.release = append(g.release, make(chan imagegen.Result, 1))
	}
	return g
}

func (g *gatedGenerator) Generate(_ context.Context, req imagegen.Request) imagegen.Result {
	g.mu.Lock()
	idx := len(g.reqs)
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	g.started <- idx
	return <-g.release[idx]
}

func (g *gatedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

func (g *gatedGenerator) awaitStart(t *testing.T, want int) {
	t.Helper()
	select {
	case idx := <-g.started:
		require.Equal(t, want, idx)
	case <-time.After(5 * time.Second):
		t.Fatalf("generator call %d never started", want)
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

// lockedBuffer is a bytes.Buffer safe for one writer and one polling reader.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func redSquarePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadAndEncode(t *testing.T, c *Controller, asset Asset) {
	t.Helper()
	c.Upload(asset)
	require.Eventually(t, func() bool { return c.Snapshot().PayloadReady }, 5*time.Second, time.Millisecond)
}

func TestGenerateSuccessPublishesDataURI(t *testing.T) {
	blob := redSquarePNG(t)
	var got imagegen.Request
	gen := generatorFunc(func(_ context.Context, req imagegen.Request) imagegen.Result {
		got = req
		return imagegen.SelectImage([]imagegen.OutputItem{{Kind: imagegen.KindImageGenerationCall, Result: strPtr("iVBORw0KG")}})
	})
	notes := &recordingNotifier{}
	out := sink.New(sink.Options{})
	c := New(Config{Generator: gen, Notifier: notes, Sink: out, Prompt: "prompt"})

	c.Upload(Asset{Name: "red.png", Data: blob, DisplayURL: "file:///tmp/red.png"})
	c.Wait()

	attempt, err := c.Generate()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), attempt.Token)
	assert.NotEmpty(t, attempt.ID)
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, Succeeded, snap.State)
	assert.Equal(t, "data:image/png;base64,iVBORw0KG", snap.Result.DataURI)
	assert.Equal(t, "data:image/png;base64,iVBORw0KG", snap.Published)
	assert.Equal(t, "data:image/png;base64,iVBORw0KG", out.Current())
	assert.Equal(t, "file:///tmp/red.png", snap.DisplayURL)

	decoded, err := base64.StdEncoding.DecodeString(got.Image.Base64)
	require.NoError(t, err)
	assert.Equal(t, blob, decoded, "request must carry the exact uploaded bytes")
	assert.Equal(t, "image/png", got.Image.MIMEType)
	assert.Equal(t, "prompt", got.Prompt)
	assert.Equal(t, imagegen.ToolImageGeneration, got.Tool)

	sent := notes.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Image generated successfully!", sent[0].Title)
}

func TestGenerateWithoutUpload(t *testing.T) {
	gen := newGatedGenerator(1)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	_, err := c.Generate()

	kind, ok := imagegen.KindOf(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, imagegen.KindValidation, kind)
	assert.Zero(t, gen.calls())
	assert.Equal(t, Idle, c.Snapshot().State)

	sent := notes.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "No image selected", sent[0].Title)
	assert.Equal(t, "Please upload an image first", sent[0].Description)
}

func TestGenerateWhileGeneratingIsNoop(t *testing.T) {
	gen := newGatedGenerator(2)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	uploadAndEncode(t, c, Asset{Name: "a.png", Data: []byte("a")})
	first, err := c.Generate()
	require.NoError(t, err)
	gen.awaitStart(t, 0)

	before := c.Snapshot()
	_, err = c.Generate()
	assert.ErrorIs(t, err, ErrBusy)

	after := c.Snapshot()
	assert.Equal(t, before, after, "busy trigger must not change state")
	assert.Equal(t, Generating, after.State)
	assert.Equal(t, first, after.Attempt)
	assert.Equal(t, 1, gen.calls())
	assert.Empty(t, notes.all())

	gen.release[0] <- imagegen.Success("data:image/png;base64,QQ==")
	c.Wait()
	assert.Equal(t, Succeeded, c.Snapshot().State)
	assert.Equal(t, 1, gen.calls())
}

func TestGenerateBeforeEncodingIsNotReady(t *testing.T) {
	gen := newGatedGenerator(1)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	// An upload whose encoding has not landed yet.
	c.mu.Lock()
	c.asset = &Asset{Name: "pending.png"}
	c.uploadSeq = 1
	c.state = Uploaded
	c.mu.Unlock()

	_, err := c.Generate()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, Uploaded, c.Snapshot().State)
	assert.Zero(t, gen.calls())
	assert.Empty(t, notes.all())
}

func TestStaleResultIsDiscarded(t *testing.T) {
	emf := &lockedBuffer{}
	metrics.SetOutput(emf)
	t.Cleanup(func() { metrics.SetOutput(nil) })

	gen := newGatedGenerator(2)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	uploadAndEncode(t, c, Asset{Name: "first.png", Data: []byte("first")})
	stale, err := c.Generate()
	require.NoError(t, err)
	gen.awaitStart(t, 0)

	uploadAndEncode(t, c, Asset{Name: "second.png", Data: []byte("second")})
	assert.Equal(t, Uploaded, c.Snapshot().State)

	gen.release[0] <- imagegen.Success("data:image/png;base64,U1RBTEU=")
	require.Eventually(t, func() bool { return strings.Contains(emf.String(), "StaleResolution") }, 5*time.Second, time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, Uploaded, snap.State, "stale success must not overwrite the newer upload")
	assert.Equal(t, "second.png", snap.AssetName)
	assert.Empty(t, snap.Published)
	assert.Empty(t, notes.all())

	fresh, err := c.Generate()
	require.NoError(t, err)
	assert.Greater(t, fresh.Token, stale.Token)
	assert.Greater(t, fresh.UploadSeq, stale.UploadSeq)
	gen.awaitStart(t, 1)

	decoded, err := base64.StdEncoding.DecodeString(gen.reqs[1].Image.Base64)
	require.NoError(t, err)
	assert.Equal(t, "second", string(decoded))

	gen.release[1] <- imagegen.Success("data:image/png;base64,RlJFU0g=")
	c.Wait()

	snap = c.Snapshot()
	assert.Equal(t, Succeeded, snap.State)
	assert.Equal(t, "data:image/png;base64,RlJFU0g=", snap.Published)
	require.Len(t, notes.all(), 1)
}

func TestStaleFailureIsDiscarded(t *testing.T) {
	gen := newGatedGenerator(1)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	uploadAndEncode(t, c, Asset{Name: "a.png", Data: []byte("a")})
	_, err := c.Generate()
	require.NoError(t, err)
	gen.awaitStart(t, 0)

	c.Upload(Asset{Name: "b.png", Data: []byte("b")})
	gen.release[0] <- imagegen.Failure(imagegen.NewError(imagegen.KindTransport, errors.New("timeout")))
	c.Wait()

	assert.Equal(t, Uploaded, c.Snapshot().State)
	assert.Empty(t, notes.all())
}

func TestTransportFailureIsRetriggerable(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, imagegen.Request) imagegen.Result {
		calls++
		if calls == 1 {
			return imagegen.Failure(imagegen.NewError(imagegen.KindTransport, errors.New("connection reset")))
		}
		return imagegen.Success("data:image/png;base64,QQ==")
	})
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	c.Upload(Asset{Name: "a.png", Data: []byte("a")})
	c.Wait()
	_, err := c.Generate()
	require.NoError(t, err)
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, Failed, snap.State)
	require.NotNil(t, snap.Result.Err)
	assert.Equal(t, imagegen.KindTransport, snap.Result.Err.Kind)
	assert.Equal(t, "An error occurred while generating the image.", snap.Reason())
	assert.Empty(t, snap.Published)

	sent := notes.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "Generation failed", sent[0].Title)
	assert.Equal(t, notify.SeverityError, sent[0].Severity)

	_, err = c.Generate()
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, Succeeded, c.Snapshot().State)
	assert.Equal(t, 2, calls)
}

func TestNoImageReturnedPublishesNothing(t *testing.T) {
	gen := generatorFunc(func(context.Context, imagegen.Request) imagegen.Result {
		return imagegen.SelectImage(nil)
	})
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes})

	c.Upload(Asset{Name: "a.png", Data: []byte("a")})
	c.Wait()
	_, err := c.Generate()
	require.NoError(t, err)
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, imagegen.KindNoImageReturned, snap.Result.Err.Kind)
	assert.Empty(t, snap.Published)
	require.Len(t, notes.all(), 1)
	assert.Equal(t, "Failed to generate image.", notes.all()[0].Description)
}

func TestEncodingFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := newGatedGenerator(1)
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes, Context: ctx})

	c.Upload(Asset{Name: "broken.png", Data: []byte("broken")})
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, Failed, snap.State)
	require.NotNil(t, snap.Result.Err)
	assert.Equal(t, imagegen.KindEncodingFailed, snap.Result.Err.Kind)
	require.Len(t, notes.all(), 1)
	assert.Equal(t, "Error", notes.all()[0].Title)

	for i := 0; i < 3; i++ {
		_, err := c.Generate()
		kind, ok := imagegen.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, imagegen.KindEncodingFailed, kind)
	}
	_, err := c.GenerateWhenReady(context.Background())
	kind, _ := imagegen.KindOf(err)
	assert.Equal(t, imagegen.KindEncodingFailed, kind)

	assert.Zero(t, gen.calls(), "no network call with a failed payload")
	assert.Len(t, notes.all(), 1, "the read failure is reported once, by the encoder")
	assert.Equal(t, Failed, c.Snapshot().State)
}

func TestGeneratorPanicBecomesTransportFailure(t *testing.T) {
	gen := generatorFunc(func(context.Context, imagegen.Request) imagegen.Result {
		panic("boom")
	})
	c := New(Config{Generator: gen, Notifier: &recordingNotifier{}})

	c.Upload(Asset{Name: "a.png", Data: []byte("a")})
	c.Wait()
	_, err := c.Generate()
	require.NoError(t, err)
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, imagegen.KindTransport, snap.Result.Err.Kind)
}

func TestUploadClearsPreviousResult(t *testing.T) {
	gen := generatorFunc(func(context.Context, imagegen.Request) imagegen.Result {
		return imagegen.Success("data:image/png;base64,QQ==")
	})
	c := New(Config{Generator: gen, Notifier: &recordingNotifier{}})

	c.Upload(Asset{Name: "a.png", Data: []byte("a")})
	c.Wait()
	_, err := c.Generate()
	require.NoError(t, err)
	c.Wait()
	require.Equal(t, Succeeded, c.Snapshot().State)

	c.Upload(Asset{Name: "b.png", Data: []byte("b")})
	snap := c.Snapshot()
	assert.Equal(t, Uploaded, snap.State)
	assert.Empty(t, snap.Published)
	assert.True(t, snap.Result.Err == nil && snap.Result.DataURI == "")
	c.Wait()
}

func TestDownloadAndSaveToGallery(t *testing.T) {
	dir := t.TempDir()
	gallery := store.NewFileStore(filepath.Join(dir, "gallery.json"))
	out := sink.New(sink.Options{Saver: sink.LocalSaver{Dir: dir}, Gallery: gallery})
	gen := generatorFunc(func(context.Context, imagegen.Request) imagegen.Result {
		return imagegen.Success("data:image/png;base64,aGVsbG8=")
	})
	notes := &recordingNotifier{}
	c := New(Config{Generator: gen, Notifier: notes, Sink: out})

	_, err := c.Download(context.Background())
	kind, ok := imagegen.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, imagegen.KindValidation, kind)
	_, err = c.SaveToGallery(context.Background())
	assert.ErrorIs(t, err, sink.ErrNoResult)
	assert.Len(t, notes.all(), 2)

	c.Upload(Asset{Name: "a.png", Data: []byte("a")})
	c.Wait()
	_, err = c.Generate()
	require.NoError(t, err)
	c.Wait()

	loc, err := c.Download(context.Background())
	require.NoError(t, err)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, strings.HasPrefix(filepath.Base(loc), "beybladez-"))

	id, err := c.SaveToGallery(context.Background())
	require.NoError(t, err)
	records, err := gallery.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", records[0].URL)
}

func TestConcurrentGenerateIsSingleFlight(t *testing.T) {
	gen := newGatedGenerator(1)
	c := New(Config{Generator: gen, Notifier: &recordingNotifier{}})
	uploadAndEncode(t, c, Asset{Name: "a.png", Data: []byte("a")})

	var wg sync.WaitGroup
	var mu sync.Mutex
	started, busy := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Generate()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, ErrBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 15, busy)
	gen.awaitStart(t, 0)
	gen.release[0] <- imagegen.Success("data:image/png;base64,QQ==")
	c.Wait()
	assert.Equal(t, 1, gen.calls())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "generating", Generating.String())
	assert.Equal(t, "unknown", State(42).String())
}

func strPtr(s string) *string { return &s }

func TestGenerateWhenReadyWaitsForEncoding(t *testing.T) {
	gen := newGatedGenerator(1)
	c := New(Config{Generator: gen, Notifier: &recordingNotifier{}})

	c.Upload(Asset{Name: "a.png", Data: redSquarePNG(t)})
	attempt, err := c.GenerateWhenReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), attempt.Token)

	gen.awaitStart(t, 0)
	gen.release[0] <- imagegen.Success("data:image/png;base64,QQ==")
	c.Wait()
	assert.Equal(t, Succeeded, c.Snapshot().State)
}

func TestGenerateWhenReadyHonoursContext(t *testing.T) {
	c := New(Config{Generator: newGatedGenerator(1), Notifier: &recordingNotifier{}})
	c.asset = &Asset{Name: "a.png"}
	c.state = Uploaded

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GenerateWhenReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateWhenReadyReturnsValidation(t *testing.T) {
	c := New(Config{Generator: newGatedGenerator(1), Notifier: &recordingNotifier{}})
	_, err := c.GenerateWhenReady(context.Background())
	kind, ok := imagegen.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, imagegen.KindValidation, kind)
}
