package processor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"imageCutout/internal/filecheck"
	"imageCutout/internal/models"
	"imageCutout/internal/processor"
)

var pngInput = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("payload")...)

type fakeObjectStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	removed []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		uploads: make(map[string][]byte),
	}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploads[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeObjectStore) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removed = append(f.removed, keys...)
	return nil
}

func (f *fakeObjectStore) PublicURL(key string) string {
	return "http://cdn.local/images/" + key
}

type fakeMetadataStore struct {
	mu      sync.Mutex
	saved   []*models.Image
	deleted []string
	saveErr error
	getErr  error
}

func (f *fakeMetadataStore) SaveImage(_ context.Context, image *models.Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		return f.saveErr
	}

	f.saved = append(f.saved, image)
	return nil
}

func (f *fakeMetadataStore) GetImage(_ context.Context, id string) (*models.Image, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Image{ID: id}, nil
}

func (f *fakeMetadataStore) DeleteImage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRemover struct {
	output []byte
	err    error
	called bool
}

func (f *fakeRemover) Remove(_ context.Context, _ []byte, _ string) ([]byte, error) {
	f.called = true
	return f.output, f.err
}

type fakePublisher struct {
	tasks []models.CleanupTask
}

func (f *fakePublisher) SendMessage(_ context.Context, message []byte) error {
	var task models.CleanupTask
	if err := json.Unmarshal(message, &task); err != nil {
		return err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func newValidator() *filecheck.Validator {
	return filecheck.NewValidator(10*1024*1024, []string{"image/png", "image/jpeg", "image/webp"})
}

func newPipeline(objects *fakeObjectStore, db *fakeMetadataStore, remover *fakeRemover, tasks *fakePublisher) *processor.Pipeline {
	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	return processor.NewPipeline(log, newValidator(), objects, db, remover, tasks)
}

func TestUploadSuccess(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{output: []byte("processed bytes")}
	tasks := &fakePublisher{}

	pipeline := newPipeline(objects, db, remover, tasks)

	img, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
	})
	require.NoError(t, err)

	require.Len(t, img.ID, 21)
	require.Len(t, img.ShortID, 8)
	require.False(t, img.IsMirrored)
	require.Equal(t, "http://cdn.local/images/originals/"+img.ID+".png", img.OriginalURL)
	require.Equal(t, "http://cdn.local/images/processed/"+img.ID+".png", img.ProcessedURL)

	// the stored original must be bit-identical to the input
	require.Equal(t, pngInput, objects.uploads[models.OriginalKey(img.ID)])
	require.Equal(t, []byte("processed bytes"), objects.uploads[models.ProcessedKey(img.ID)])

	require.Len(t, db.saved, 1)
	require.Equal(t, img, db.saved[0])
	require.Empty(t, tasks.tasks)
}

func TestUploadMirror(t *testing.T) {
	// remover returns a 2x1 image: red then green
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})

	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, src))

	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{output: buf.Bytes()}

	pipeline := newPipeline(objects, db, remover, &fakePublisher{})

	img, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
		Mirror:      true,
	})
	require.NoError(t, err)
	require.True(t, img.IsMirrored)

	stored := objects.uploads[models.ProcessedKey(img.ID)]
	decoded, _, err := image.Decode(bytes.NewReader(stored))
	require.NoError(t, err)

	// columns swapped: green first, red second
	r, g, _, _ := decoded.At(0, 0).RGBA()
	require.Zero(t, r>>8)
	require.EqualValues(t, 255, g>>8)

	r, g, _, _ = decoded.At(1, 0).RGBA()
	require.EqualValues(t, 255, r>>8)
	require.Zero(t, g>>8)
}

func TestUploadValidationFailure(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{output: []byte("processed")}

	pipeline := newPipeline(objects, db, remover, &fakePublisher{})

	// declared png, jpeg magic bytes
	_, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02},
		Filename:    "spoofed.png",
		ContentType: "image/png",
	})

	var stageErr *processor.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, processor.StageValidation, stageErr.Stage)
	require.ErrorIs(t, err, filecheck.ErrBadSignature)

	// nothing may reach storage or the row store
	require.Empty(t, objects.uploads)
	require.Empty(t, db.saved)
	require.False(t, remover.called)
}

func TestUploadUpstreamFailure(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{err: errors.New("segmentation service down")}
	tasks := &fakePublisher{}

	pipeline := newPipeline(objects, db, remover, tasks)

	_, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
	})

	var stageErr *processor.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, processor.StageUpstream, stageErr.Stage)

	// the original written in phase 1 is still present when the request fails
	require.Len(t, objects.uploads, 1)
	require.Empty(t, db.saved)

	// and a compensating cleanup for exactly that blob was scheduled
	require.Len(t, tasks.tasks, 1)
	task := tasks.tasks[0]
	require.Len(t, task.BlobKeys, 1)
	require.Equal(t, models.OriginalKey(task.ImageID), task.BlobKeys[0])
	require.False(t, task.DeleteRow)
}

func TestUploadOriginalStoreFailure(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{output: []byte("processed")}
	tasks := &fakePublisher{}

	failing := &failingObjectStore{inner: objects, failPrefix: "originals/"}

	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	pipeline := processor.NewPipeline(log, newValidator(), failing, db, remover, tasks)

	_, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
	})

	var stageErr *processor.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, processor.StageStorage, stageErr.Stage)
	require.Empty(t, db.saved)
}

func TestUploadProcessedStoreFailureCompensatesRow(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	remover := &fakeRemover{output: []byte("processed")}
	tasks := &fakePublisher{}

	failing := &failingObjectStore{inner: objects, failPrefix: "processed/"}

	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	pipeline := processor.NewPipeline(log, newValidator(), failing, db, remover, tasks)

	_, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
	})

	var stageErr *processor.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, processor.StageStorage, stageErr.Stage)

	// row insert raced the failing blob write and won; cleanup must undo both
	require.Len(t, tasks.tasks, 1)
	task := tasks.tasks[0]
	require.True(t, task.DeleteRow)
	require.Equal(t, []string{models.OriginalKey(task.ImageID)}, task.BlobKeys)
}

func TestUploadInsertFailure(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{saveErr: errors.New("unique violation")}
	remover := &fakeRemover{output: []byte("processed")}
	tasks := &fakePublisher{}

	pipeline := newPipeline(objects, db, remover, tasks)

	_, err := pipeline.Upload(context.Background(), processor.UploadInput{
		Data:        pngInput,
		Filename:    "photo.png",
		ContentType: "image/png",
	})

	var stageErr *processor.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, processor.StagePersistence, stageErr.Stage)

	// both blobs were written; cleanup covers both, no row to delete
	require.Len(t, tasks.tasks, 1)
	task := tasks.tasks[0]
	require.False(t, task.DeleteRow)
	require.ElementsMatch(t,
		[]string{models.OriginalKey(task.ImageID), models.ProcessedKey(task.ImageID)},
		task.BlobKeys,
	)
}

func TestDelete(t *testing.T) {
	objects := newFakeObjectStore()
	db := &fakeMetadataStore{}
	pipeline := newPipeline(objects, db, &fakeRemover{}, &fakePublisher{})

	require.NoError(t, pipeline.Delete(context.Background(), "abc123"))

	require.ElementsMatch(t,
		[]string{models.OriginalKey("abc123"), models.ProcessedKey("abc123")},
		objects.removed,
	)
	require.Equal(t, []string{"abc123"}, db.deleted)
}

func TestDeleteUnknownImage(t *testing.T) {
	db := &fakeMetadataStore{getErr: errors.New("not found")}
	pipeline := newPipeline(newFakeObjectStore(), db, &fakeRemover{}, &fakePublisher{})

	require.Error(t, pipeline.Delete(context.Background(), "missing"))
	require.Empty(t, db.deleted)
}

// failingObjectStore fails uploads whose key starts with failPrefix and
// forwards everything else.
type failingObjectStore struct {
	inner      *fakeObjectStore
	failPrefix string
}

func (f *failingObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if len(key) >= len(f.failPrefix) && key[:len(f.failPrefix)] == f.failPrefix {
		return errors.New("storage write failed")
	}
	return f.inner.Upload(ctx, key, data, contentType)
}

func (f *failingObjectStore) Remove(ctx context.Context, keys ...string) error {
	return f.inner.Remove(ctx, keys...)
}

func (f *failingObjectStore) PublicURL(key string) string {
	return f.inner.PublicURL(key)
}
