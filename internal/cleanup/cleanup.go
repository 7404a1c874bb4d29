package cleanup

import (
	"context"
	"encoding/json"
	"log/slog"

	"imageCutout/internal/lib/logger/sl"
	"imageCutout/internal/models"
)

type BlobRemover interface {
	Remove(ctx context.Context, keys ...string) error
}

type RowDeleter interface {
	DeleteImage(ctx context.Context, id string) error
}

// Worker removes blobs and metadata rows left behind by partially failed
// uploads, restoring the row-implies-both-blobs invariant eventually.
type Worker struct {
	log     *slog.Logger
	objects BlobRemover
	db      RowDeleter
}

func NewWorker(log *slog.Logger, objects BlobRemover, db RowDeleter) *Worker {
	return &Worker{
		log:     log,
		objects: objects,
		db:      db,
	}
}

// HandleMessage processes one cleanup task. A returned error is logged by the
// consumer; tasks are not redelivered.
func (w *Worker) HandleMessage(ctx context.Context, message []byte) error {
	const op = "cleanup.HandleMessage"

	var task models.CleanupTask
	if err := json.Unmarshal(message, &task); err != nil {
		w.log.Error("failed to unmarshal cleanup task", slog.String("op", op), sl.Err(err))
		return err
	}

	w.log.Info("cleaning up partial upload",
		slog.String("op", op),
		slog.String("task_id", task.TaskID.String()),
		slog.String("image_id", task.ImageID),
	)

	if len(task.BlobKeys) > 0 {
		if err := w.objects.Remove(ctx, task.BlobKeys...); err != nil {
			w.log.Error("failed to remove blobs",
				slog.String("op", op),
				slog.String("image_id", task.ImageID),
				sl.Err(err),
			)
			return err
		}
	}

	if task.DeleteRow {
		if err := w.db.DeleteImage(ctx, task.ImageID); err != nil {
			// the row may have never made it in
			w.log.Warn("failed to delete metadata row",
				slog.String("op", op),
				slog.String("image_id", task.ImageID),
				sl.Err(err),
			)
		}
	}

	return nil
}
