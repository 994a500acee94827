package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSyncMarker returns the sync marker for a listing, or ErrNotFound if
// the listing has never been synced.
func (s *Store) GetSyncMarker(ctx context.Context, listingID int64) (SyncMarker, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT listing_id, synced, synced_at, external_vector_id
		FROM sync_markers WHERE listing_id = ?`, listingID)

	var m SyncMarker
	var synced int
	var syncedAt string
	err := row.Scan(&m.ListingID, &synced, &syncedAt, &m.ExternalVectorID)
	if err == sql.ErrNoRows {
		return SyncMarker{}, ErrNotFound
	}
	if err != nil {
		return SyncMarker{}, fmt.Errorf("scanning sync marker: %w", err)
	}
	m.Synced = synced != 0
	if syncedAt != "" {
		t, err := time.Parse(time.RFC3339, syncedAt)
		if err != nil {
			return SyncMarker{}, fmt.Errorf("parsing synced_at for listing %d: %w", listingID, err)
		}
		m.SyncedAt = t
	}
	return m, nil
}

// SetSyncMarker inserts or replaces a sync marker.
func (s *Store) SetSyncMarker(ctx context.Context, m SyncMarker) error {
	var syncedAt string
	if !m.SyncedAt.IsZero() {
		syncedAt = m.SyncedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_markers (listing_id, synced, synced_at, external_vector_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			synced = excluded.synced,
			synced_at = excluded.synced_at,
			external_vector_id = excluded.external_vector_id`,
		m.ListingID, boolToInt(m.Synced), syncedAt, m.ExternalVectorID)
	return err
}

// ClearSyncMarker removes the marker for a listing. Clearing a marker that
// does not exist is not an error.
func (s *Store) ClearSyncMarker(ctx context.Context, listingID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_markers WHERE listing_id = ?", listingID)
	return err
}
