package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SyncMarker tracks the vector-store state of one listing. Once a backend
// has handed out an ExternalVectorID it is reused on every later upsert so
// re-syncs update in place instead of inserting duplicates.
type SyncMarker struct {
	ListingID        int64     `json:"listing_id"`
	Synced           bool      `json:"synced"`
	SyncedAt         time.Time `json:"synced_at"`
	ExternalVectorID string    `json:"external_vector_id"`
}
