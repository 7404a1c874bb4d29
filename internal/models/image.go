package models

import "time"

// Image is the persisted record of one upload. It is created exactly once at
// the end of a successful pipeline run and never updated in place.
type Image struct {
	ID           string    `db:"id" json:"id"`
	ShortID      string    `db:"short_id" json:"shortId"`
	OriginalURL  string    `db:"original_url" json:"originalUrl"`
	ProcessedURL string    `db:"processed_url" json:"processedUrl"`
	IsMirrored   bool      `db:"is_mirrored" json:"isMirrored"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Blob keys are derived from the record id alone, so public URLs can be
// computed before the blobs are written.

func OriginalKey(id string) string {
	return "originals/" + id + ".png"
}

func ProcessedKey(id string) string {
	return "processed/" + id + ".png"
}
