package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"strings"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/mediapost/internal/ledger"
	"github.com/your-org/mediapost/internal/media"
	"github.com/your-org/mediapost/pkg/blobstore"
)

type fakeStore struct {
	mu     sync.Mutex
	stored []media.Artifact
	fail   bool
}

func (f *fakeStore) Store(_ context.Context, localPath, key, contentType string) (string, error) {
	if f.fail {
		return "", &blobstore.StorageError{Op: "put", Key: key, Err: errors.New("network down")}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, media.Artifact{LocalPath: localPath, Key: key, ContentType: contentType})
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStore) List(context.Context, string) (*blobstore.Page, error) {
	return &blobstore.Page{}, nil
}

type ledgerCall struct {
	op  string
	key string
}

type fakeLedger struct {
	mu     sync.Mutex
	calls  []ledgerCall
	recent []ledger.Record
	fail   bool
}

func (f *fakeLedger) Begin(_ context.Context, key, contentType string) (uuid.UUID, error) {
	if f.fail {
		return uuid.Nil, errors.New("db down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ledgerCall{op: "begin", key: key})
	return uuid.New(), nil
}

func (f *fakeLedger) Commit(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ledgerCall{op: "commit"})
	return nil
}

func (f *fakeLedger) Recent(_ context.Context, limit int) ([]ledger.Record, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	return f.recent[:limit], nil
}

func (f *fakeLedger) committed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == "commit" {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, store *fakeStore, led *fakeLedger) *Service {
	t.Helper()
	return NewService(Params{
		Store:   store,
		Ledger:  led,
		Events:  NopSink{},
		Logger:  zap.NewNop(),
		WorkDir: t.TempDir(),
	})
}

func jpegUpload(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 10, G: 120, B: 90, A: 255}), image.Point{}, draw.Src)

	buf := &bytes.Buffer{}
	require.NoError(t, imaging.Encode(buf, img, imaging.JPEG))
	return buf
}

func gifUpload(t *testing.T) *bytes.Buffer {
	t.Helper()
	out := &gif.GIF{}
	for i := 0; i < 2; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 16, 16), palette.Plan9)
		out.Image = append(out.Image, frame)
		out.Delay = append(out.Delay, 10)
	}
	buf := &bytes.Buffer{}
	require.NoError(t, gif.EncodeAll(buf, out))
	return buf
}

func TestProcessImageStoresTwoVariantsAndTwoRecords(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	result, err := svc.Process(context.Background(), jpegUpload(t, 3000, 2000), "photo.jpg", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, media.ClassImage, result.Class)
	require.Len(t, store.stored, 2)
	assert.Contains(t, result.Locations, media.RoleSmall)
	assert.Contains(t, result.Locations, media.RoleLarge)
	assert.True(t, strings.HasSuffix(store.stored[0].Key, "-800.jpg"))
	assert.True(t, strings.HasSuffix(store.stored[1].Key, "-2000.jpg"))

	assert.Equal(t, 2, led.committed(), "one committed record per raster variant")
}

func TestProcessGifRecordsOnlyTheAnimatedArtifact(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	result, err := svc.Process(context.Background(), gifUpload(t), "loop.gif", "image/gif")
	require.NoError(t, err)

	assert.Equal(t, media.ClassAnimatedImage, result.Class)
	require.Len(t, store.stored, 2, "gif and preview are both stored")
	assert.Equal(t, 1, led.committed(), "only the gif itself gets a ledger record")
	assert.True(t, strings.HasSuffix(store.stored[0].Key, ".gif"))
	assert.True(t, strings.HasSuffix(store.stored[1].Key, "-preview.jpg"))
}

func TestProcessVideoAndAudioPassThrough(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	result, err := svc.Process(context.Background(), bytes.NewReader([]byte("bits")), "clip.mov", "video/quicktime")
	require.NoError(t, err)
	assert.Equal(t, media.ClassVideo, result.Class)
	require.Len(t, store.stored, 1)
	assert.Equal(t, "video/mp4", store.stored[0].ContentType)

	result, err = svc.Process(context.Background(), bytes.NewReader([]byte("bits")), "song.wav", "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, media.ClassAudio, result.Class)
}

func TestProcessUnsupportedHasZeroSideEffects(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	_, err := svc.Process(context.Background(), bytes.NewReader([]byte("%PDF-")), "doc.pdf", "application/pdf")

	var cerr *media.ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Empty(t, store.stored)
	assert.Empty(t, led.calls)
}

func TestProcessStorageFailureAbortsPipeline(t *testing.T) {
	store := &fakeStore{fail: true}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	_, err := svc.Process(context.Background(), jpegUpload(t, 100, 100), "photo.jpg", "image/jpeg")

	var serr *blobstore.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, led.committed(), "no record is committed without a stored object")
}

func TestProcessIdenticalContentGetsDistinctKeys(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	payload := jpegUpload(t, 100, 100).Bytes()
	for i := 0; i < 2; i++ {
		_, err := svc.Process(context.Background(), bytes.NewReader(payload), "photo.jpg", "image/jpeg")
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, a := range store.stored {
		require.False(t, seen[a.Key], fmt.Sprintf("key %q stored twice", a.Key))
		seen[a.Key] = true
	}
}

func TestLedgerBeginPrecedesStore(t *testing.T) {
	store := &fakeStore{}
	led := &fakeLedger{}
	svc := newTestService(t, store, led)

	_, err := svc.Process(context.Background(), bytes.NewReader([]byte("bits")), "clip.mp4", "video/mp4")
	require.NoError(t, err)

	require.Len(t, led.calls, 2)
	assert.Equal(t, "begin", led.calls[0].op)
	assert.Equal(t, store.stored[0].Key, led.calls[0].key, "pending record references the intended key")
	assert.Equal(t, "commit", led.calls[1].op)
}
