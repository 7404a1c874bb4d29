package models

import "github.com/google/uuid"

// CleanupTask asks the cleanup worker to remove side effects left behind by a
// partially failed upload: blobs already written, and optionally a metadata
// row inserted before a later stage failed.
type CleanupTask struct {
	TaskID    uuid.UUID `json:"task_id"`
	ImageID   string    `json:"image_id"`
	BlobKeys  []string  `json:"blob_keys"`
	DeleteRow bool      `json:"delete_row"`
}
