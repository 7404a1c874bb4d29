package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"imageCutout/internal/filecheck"
	"imageCutout/internal/lib/ident"
	"imageCutout/internal/lib/logger/sl"
	"imageCutout/internal/mirror"
	"imageCutout/internal/models"
)

// Stage identifies where in the upload pipeline a failure happened, so the
// handler can map it to a status code without inspecting error text.
type Stage string

const (
	StageValidation  Stage = "validation"
	StageStorage     Stage = "storage"
	StageUpstream    Stage = "upstream"
	StagePersistence Stage = "persistence"
	StageInternal    Stage = "internal"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func failed(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, keys ...string) error
	PublicURL(key string) string
}

type MetadataStore interface {
	SaveImage(ctx context.Context, image *models.Image) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
	DeleteImage(ctx context.Context, id string) error
}

type BackgroundRemover interface {
	Remove(ctx context.Context, data []byte, filename string) ([]byte, error)
}

type TaskPublisher interface {
	SendMessage(ctx context.Context, message []byte) error
}

type UploadInput struct {
	Data        []byte
	Filename    string
	ContentType string
	Mirror      bool
}

// Pipeline sequences validation, identifier minting, the two concurrent
// storage/transform phases and metadata persistence for one upload.
type Pipeline struct {
	log       *slog.Logger
	validator *filecheck.Validator
	objects   ObjectStore
	db        MetadataStore
	remover   BackgroundRemover
	tasks     TaskPublisher
}

func NewPipeline(
	log *slog.Logger,
	validator *filecheck.Validator,
	objects ObjectStore,
	db MetadataStore,
	remover BackgroundRemover,
	tasks TaskPublisher,
) *Pipeline {
	return &Pipeline{
		log:       log,
		validator: validator,
		objects:   objects,
		db:        db,
		remover:   remover,
		tasks:     tasks,
	}
}

// Upload runs the full pipeline. Phase 1 stores the original bytes while the
// background removal call is in flight; phase 2 stores the processed bytes
// while the metadata row is inserted. Each phase joins on both operations
// before the next begins. Side effects already written when a later stage
// fails are handed to the cleanup worker; the failed response does not wait
// for that cleanup.
func (p *Pipeline) Upload(ctx context.Context, in UploadInput) (*models.Image, error) {
	const op = "processor.Upload"

	log := p.log.With(slog.String("op", op))

	if err := p.validator.Validate(in.Data, in.ContentType, int64(len(in.Data))); err != nil {
		return nil, failed(StageValidation, err)
	}

	id, shortID, err := ident.New()
	if err != nil {
		return nil, failed(StageInternal, err)
	}

	originalKey := models.OriginalKey(id)
	processedKey := models.ProcessedKey(id)

	image := &models.Image{
		ID:           id,
		ShortID:      shortID,
		OriginalURL:  p.objects.PublicURL(originalKey),
		ProcessedURL: p.objects.PublicURL(processedKey),
		IsMirrored:   in.Mirror,
	}

	safeName := filecheck.SanitizeFilename(in.Filename)

	var (
		processed []byte
		storeErr  error
		removeErr error
		mirrorErr error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		storeErr = p.objects.Upload(ctx, originalKey, in.Data, "image/png")
	}()
	go func() {
		defer wg.Done()
		processed, removeErr = p.remover.Remove(ctx, in.Data, safeName)
		if removeErr != nil || !in.Mirror {
			return
		}
		processed, mirrorErr = mirror.FlipH(processed)
	}()
	wg.Wait()

	if storeErr != nil {
		log.Error("failed to store original image", sl.Err(storeErr))
		return nil, failed(StageStorage, storeErr)
	}
	if removeErr != nil {
		log.Error("background removal failed", sl.Err(removeErr))
		p.scheduleCleanup(ctx, id, []string{originalKey}, false)
		return nil, failed(StageUpstream, removeErr)
	}
	if mirrorErr != nil {
		log.Error("failed to mirror processed image", sl.Err(mirrorErr))
		p.scheduleCleanup(ctx, id, []string{originalKey}, false)
		return nil, failed(StageInternal, mirrorErr)
	}

	var (
		putErr    error
		insertErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		putErr = p.objects.Upload(ctx, processedKey, processed, "image/png")
	}()
	go func() {
		defer wg.Done()
		insertErr = p.db.SaveImage(ctx, image)
	}()
	wg.Wait()

	if putErr != nil {
		log.Error("failed to store processed image", sl.Err(putErr))
		p.scheduleCleanup(ctx, id, []string{originalKey}, insertErr == nil)
		return nil, failed(StageStorage, putErr)
	}
	if insertErr != nil {
		log.Error("failed to save image metadata", sl.Err(insertErr))
		p.scheduleCleanup(ctx, id, []string{originalKey, processedKey}, false)
		return nil, failed(StagePersistence, insertErr)
	}

	log.Info("upload pipeline completed",
		slog.String("image_id", image.ID),
		slog.String("short_id", image.ShortID),
		slog.Bool("mirrored", image.IsMirrored),
	)

	return image, nil
}

// Delete removes the record and both blobs concurrently. Blob removal
// failures are logged but do not fail the request; the row delete decides
// the outcome.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	const op = "processor.Delete"

	if _, err := p.db.GetImage(ctx, id); err != nil {
		return err
	}

	var (
		blobErr error
		rowErr  error
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		blobErr = p.objects.Remove(ctx, models.OriginalKey(id), models.ProcessedKey(id))
	}()
	go func() {
		defer wg.Done()
		rowErr = p.db.DeleteImage(ctx, id)
	}()
	wg.Wait()

	if blobErr != nil {
		p.log.Error("failed to remove image blobs",
			slog.String("op", op),
			slog.String("image_id", id),
			sl.Err(blobErr),
		)
	}

	return rowErr
}

// scheduleCleanup publishes a compensating delete for side effects already
// written when a later stage failed. The request outcome is already decided;
// a publish failure is only logged.
func (p *Pipeline) scheduleCleanup(ctx context.Context, imageID string, blobKeys []string, deleteRow bool) {
	const op = "processor.scheduleCleanup"

	task := models.CleanupTask{
		TaskID:    uuid.New(),
		ImageID:   imageID,
		BlobKeys:  blobKeys,
		DeleteRow: deleteRow,
	}

	message, err := json.Marshal(task)
	if err != nil {
		p.log.Error("failed to marshal cleanup task", slog.String("op", op), sl.Err(err))
		return
	}

	if err = p.tasks.SendMessage(ctx, message); err != nil {
		p.log.Error("failed to publish cleanup task",
			slog.String("op", op),
			slog.String("image_id", imageID),
			sl.Err(err),
		)
	}
}
