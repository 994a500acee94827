package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
)

// Compile-time check that Store implements listing.Source.
var _ listing.Source = (*Store)(nil)

// SaveListing inserts or replaces a listing in the mirror.
func (s *Store) SaveListing(ctx context.Context, l listing.Listing) error {
	types, err := json.Marshal(l.Types)
	if err != nil {
		return fmt.Errorf("marshalling types: %w", err)
	}
	categories, err := json.Marshal(l.Categories)
	if err != nil {
		return fmt.Errorf("marshalling categories: %w", err)
	}
	locations, err := json.Marshal(l.Locations)
	if err != nil {
		return fmt.Errorf("marshalling locations: %w", err)
	}
	fields, err := json.Marshal(l.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (id, title, content, status, types, categories, locations, permalink, fields, ai_blocked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			status = excluded.status,
			types = excluded.types,
			categories = excluded.categories,
			locations = excluded.locations,
			permalink = excluded.permalink,
			fields = excluded.fields,
			ai_blocked = excluded.ai_blocked,
			updated_at = excluded.updated_at`,
		l.ID, l.Title, l.Content, l.Status, string(types), string(categories),
		string(locations), l.Permalink, string(fields), boolToInt(l.AIBlocked),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetByID returns the listing or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (listing.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, status, types, categories, locations, permalink, fields, ai_blocked
		FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return listing.Listing{}, ErrNotFound
	}
	return l, err
}

// Query returns listings passing the filter, ordered by id.
// Status filtering happens in SQL; type filtering on the decoded rows.
func (s *Store) Query(ctx context.Context, f listing.Filter) ([]listing.Listing, error) {
	query := `SELECT id, title, content, status, types, categories, locations, permalink, fields, ai_blocked FROM listings`
	var args []interface{}
	if len(f.Statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(",?", len(f.Statuses)-1) + `)`
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	var result []listing.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		if len(f.DirectoryTypes) > 0 && !f.Matches(l) {
			continue
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// DeleteListing removes a listing and its sync marker.
func (s *Store) DeleteListing(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM listings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting listing %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM sync_markers WHERE listing_id = ?", id)
	return err
}

// DirectoryTypes returns the distinct directory type names across all listings.
func (s *Store) DirectoryTypes(ctx context.Context) ([]string, error) {
	return s.distinctJSONColumn(ctx, "types")
}

// Statuses returns the distinct status values across all listings.
func (s *Store) Statuses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT status FROM listings ORDER BY status ASC")
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// distinctJSONColumn collects the distinct elements of a JSON string-array
// column. Listing counts are small enough to decode in process.
func (s *Store) distinctJSONColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+" FROM listings")
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", column, err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", column, err)
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (listing.Listing, error) {
	var l listing.Listing
	var types, categories, locations, fields string
	var aiBlocked int
	err := row.Scan(&l.ID, &l.Title, &l.Content, &l.Status, &types, &categories,
		&locations, &l.Permalink, &fields, &aiBlocked)
	if err != nil {
		return listing.Listing{}, err
	}
	if err := json.Unmarshal([]byte(types), &l.Types); err != nil {
		return listing.Listing{}, fmt.Errorf("decoding types for listing %d: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(categories), &l.Categories); err != nil {
		return listing.Listing{}, fmt.Errorf("decoding categories for listing %d: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(locations), &l.Locations); err != nil {
		return listing.Listing{}, fmt.Errorf("decoding locations for listing %d: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(fields), &l.Fields); err != nil {
		return listing.Listing{}, fmt.Errorf("decoding fields for listing %d: %w", l.ID, err)
	}
	l.AIBlocked = aiBlocked != 0
	return l, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
