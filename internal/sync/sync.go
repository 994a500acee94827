// Package sync keeps the vector store in step with the listing mirror.
// Each listing maps to at most one vector; the sync marker records the
// external vector id so re-syncs update in place.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/htmltext"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

// Report summarizes one sync run.
type Report struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
	Message string   `json:"message"`
}

// OK reports whether the run did any useful work: at least one listing
// matched the sync filters.
func (r Report) OK() bool {
	return r.Total > 0
}

// Synchronizer pushes eligible listings into the configured vector store.
type Synchronizer struct {
	store      *storage.Store
	settings   *settings.Manager
	embeddings *embedding.Manager
	vectors    *vector.Manager
	logger     *slog.Logger
}

func New(store *storage.Store, sm *settings.Manager, em *embedding.Manager, vm *vector.Manager, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		store:      store,
		settings:   sm,
		embeddings: em,
		vectors:    vm,
		logger:     logger,
	}
}

// ShouldSync reports whether a listing belongs in the vector store under
// the current settings. Blocked listings never sync regardless of status.
func (s *Synchronizer) ShouldSync(ctx context.Context, l listing.Listing) (bool, error) {
	if l.AIBlocked {
		return false, nil
	}
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return false, err
	}
	return syncFilter(cfg).Matches(l), nil
}

func syncFilter(cfg settings.Settings) listing.Filter {
	statuses := cfg.SyncStatuses
	if len(statuses) == 0 {
		statuses = []string{listing.StatusPublished}
	}
	return listing.Filter{Statuses: statuses, DirectoryTypes: cfg.SyncDirectoryTypes}
}

// PrepareText builds the text indexed for a listing: title, stripped
// content, and the "Label: Value" custom-field lines, as blank-line
// separated blocks.
func PrepareText(l listing.Listing) string {
	blocks := []string{strings.TrimSpace(l.Title)}

	if content := htmltext.Strip(l.Content); content != "" {
		blocks = append(blocks, content)
	}

	var fields []string
	for _, f := range l.Fields {
		if f.Label == "" || strings.TrimSpace(f.Value) == "" {
			continue
		}
		fields = append(fields, f.Label+": "+strings.TrimSpace(f.Value))
	}
	if len(fields) > 0 {
		blocks = append(blocks, strings.Join(fields, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// PrepareMetadata builds the vector metadata for a listing. Multi-valued
// taxonomies are joined with ", " so they round-trip as display strings.
func PrepareMetadata(l listing.Listing) map[string]string {
	md := map[string]string{
		"listing_id": strconv.FormatInt(l.ID, 10),
		"title":      l.Title,
		"status":     l.Status,
	}
	if len(l.Types) > 0 {
		md["type"] = strings.Join(l.Types, ", ")
	}
	if len(l.Categories) > 0 {
		md["category"] = strings.Join(l.Categories, ", ")
	}
	if len(l.Locations) > 0 {
		md["location"] = strings.Join(l.Locations, ", ")
	}
	if l.Permalink != "" {
		md["permalink"] = l.Permalink
	}
	if l.AIBlocked {
		md["ai_blocked"] = "true"
	}
	return md
}

// UpsertListing syncs one listing. An ineligible listing that was synced
// before is removed from the vector store instead.
func (s *Synchronizer) UpsertListing(ctx context.Context, l listing.Listing) error {
	eligible, err := s.ShouldSync(ctx, l)
	if err != nil {
		return err
	}
	if !eligible {
		return s.removeIfSynced(ctx, l.ID)
	}

	provider, err := s.vectors.Current(ctx)
	if err != nil {
		return err
	}

	record := vector.Record{
		ListingID: l.ID,
		Text:      PrepareText(l),
		Metadata:  PrepareMetadata(l),
	}
	marker, err := s.store.GetSyncMarker(ctx, l.ID)
	if err == nil {
		record.ID = marker.ExternalVectorID
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if !provider.AcceptsText() {
		embedder, err := s.embeddings.Current(ctx)
		if err != nil {
			return err
		}
		vec, err := embedder.Embed(ctx, record.Text)
		if err != nil {
			return err
		}
		record.Vector = vec
	}

	id, err := provider.Upsert(ctx, record)
	if err != nil {
		return err
	}

	return s.store.SetSyncMarker(ctx, storage.SyncMarker{
		ListingID:        l.ID,
		Synced:           true,
		SyncedAt:         time.Now().UTC(),
		ExternalVectorID: id,
	})
}

// removeIfSynced deletes a listing's vector when a marker exists.
func (s *Synchronizer) removeIfSynced(ctx context.Context, listingID int64) error {
	marker, err := s.store.GetSyncMarker(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if marker.ExternalVectorID != "" {
		provider, err := s.vectors.Current(ctx)
		if err != nil {
			return err
		}
		if err := provider.Delete(ctx, marker.ExternalVectorID); err != nil {
			return err
		}
	}
	return s.store.ClearSyncMarker(ctx, listingID)
}

// HandleSave mirrors a listing locally and, when auto-sync is on, pushes
// it to the vector store. Sync failures are logged, not returned: the
// save itself succeeded.
func (s *Synchronizer) HandleSave(ctx context.Context, l listing.Listing) error {
	if err := s.store.SaveListing(ctx, l); err != nil {
		return err
	}
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return err
	}
	if !cfg.AutoSync {
		return nil
	}
	if err := s.UpsertListing(ctx, l); err != nil {
		s.logger.Warn("auto-sync failed", "listing_id", l.ID, "error", err)
	}
	return nil
}

// HandleDelete removes a listing from the vector store and the mirror.
func (s *Synchronizer) HandleDelete(ctx context.Context, listingID int64) error {
	if err := s.removeIfSynced(ctx, listingID); err != nil {
		return err
	}
	err := s.store.DeleteListing(ctx, listingID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// SyncAll pushes eligible listings, in chunks, and reports the outcome.
// With no ids every listing matching the sync filters is considered; with
// explicit ids only those listings are, and unknown ids count as failures.
// Chunk failures are recorded per listing and do not stop the run.
func (s *Synchronizer) SyncAll(ctx context.Context, ids ...int64) (Report, error) {
	cfg, err := s.settings.Load(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	var eligible []listing.Listing
	if len(ids) == 0 {
		listings, err := s.store.Query(ctx, syncFilter(cfg))
		if err != nil {
			return Report{}, err
		}
		eligible = listings[:0]
		for _, l := range listings {
			if !l.AIBlocked {
				eligible = append(eligible, l)
			}
		}
	} else {
		filter := syncFilter(cfg)
		for _, id := range ids {
			l, err := s.store.GetByID(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("listing %d: not found", id))
				continue
			}
			if err != nil {
				return Report{}, err
			}
			if l.AIBlocked || !filter.Matches(l) {
				continue
			}
			eligible = append(eligible, l)
		}
	}

	report.Total = len(eligible) + report.Failed
	if report.Total == 0 {
		report.Message = "no listings matched the sync filters"
		return report, nil
	}
	if len(eligible) == 0 {
		report.Message = fmt.Sprintf("synced 0 of %d listings", report.Total)
		return report, nil
	}

	provider, err := s.vectors.Current(ctx)
	if err != nil {
		return Report{}, err
	}

	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 20
	}

	for start := 0; start < len(eligible); start += chunkSize {
		end := min(start+chunkSize, len(eligible))
		chunk := eligible[start:end]

		if err := s.syncChunk(ctx, provider, chunk); err != nil {
			report.Failed += len(chunk)
			for _, l := range chunk {
				report.Errors = append(report.Errors, fmt.Sprintf("listing %d: %v", l.ID, err))
			}
			s.logger.Warn("sync chunk failed", "from", chunk[0].ID, "count", len(chunk), "error", err)
			continue
		}
		report.Success += len(chunk)
	}

	report.Message = fmt.Sprintf("synced %d of %d listings", report.Success, report.Total)
	s.logger.Info("sync complete", "total", report.Total, "success", report.Success, "failed", report.Failed)
	return report, nil
}

// syncChunk embeds (when needed) and upserts one chunk, then records
// markers. Embedding errors abort the chunk before any store write.
func (s *Synchronizer) syncChunk(ctx context.Context, provider vector.Provider, chunk []listing.Listing) error {
	records := make([]vector.Record, len(chunk))
	for i, l := range chunk {
		records[i] = vector.Record{
			ListingID: l.ID,
			Text:      PrepareText(l),
			Metadata:  PrepareMetadata(l),
		}
		marker, err := s.store.GetSyncMarker(ctx, l.ID)
		if err == nil {
			records[i].ID = marker.ExternalVectorID
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if !provider.AcceptsText() {
		embedder, err := s.embeddings.Current(ctx)
		if err != nil {
			return err
		}
		texts := make([]string, len(records))
		for i, r := range records {
			texts[i] = r.Text
		}
		vectors, err := embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return err
		}
		for i := range records {
			records[i].Vector = vectors[i]
		}
	}

	ids, err := provider.BatchUpsert(ctx, records)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, l := range chunk {
		if err := s.store.SetSyncMarker(ctx, storage.SyncMarker{
			ListingID:        l.ID,
			Synced:           true,
			SyncedAt:         now,
			ExternalVectorID: ids[i],
		}); err != nil {
			return err
		}
	}
	return nil
}
