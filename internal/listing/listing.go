// Package listing defines the directory listing model and the content
// source contract. Listings are owned by the host directory CMS; this
// service holds a read-mostly mirror and never originates content.
package listing

import (
	"context"
	"strings"
)

// StatusPublished is the only status eligible for retrieval-time inclusion.
const StatusPublished = "publish"

// Field is one custom submission-form field value on a listing.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Listing is a directory entry as mirrored from the host CMS.
type Listing struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"` // may contain HTML, stripped before indexing
	Status     string   `json:"status"`
	Types      []string `json:"types"`
	Categories []string `json:"categories"`
	Locations  []string `json:"locations"`
	Permalink  string   `json:"permalink"`
	Fields     []Field  `json:"fields"`
	AIBlocked  bool     `json:"ai_blocked"`
}

// Published reports whether the listing is visible to end users.
func (l Listing) Published() bool {
	return l.Status == StatusPublished
}

// HasType reports whether the listing carries the given directory type
// (case-insensitive).
func (l Listing) HasType(name string) bool {
	for _, t := range l.Types {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// Filter narrows a listing query. Empty slices mean "include all".
type Filter struct {
	Statuses       []string
	DirectoryTypes []string
}

// Matches reports whether the listing passes the filter.
func (f Filter) Matches(l Listing) bool {
	if len(f.Statuses) > 0 && !containsFold(f.Statuses, l.Status) {
		return false
	}
	if len(f.DirectoryTypes) > 0 {
		found := false
		for _, want := range f.DirectoryTypes {
			if l.HasType(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// Source supplies listings to the sync and retrieval paths.
type Source interface {
	// GetByID returns the listing or storage.ErrNotFound.
	GetByID(ctx context.Context, id int64) (Listing, error)

	// Query returns listings passing the filter, ordered by id.
	Query(ctx context.Context, f Filter) ([]Listing, error)

	// DirectoryTypes returns the distinct type names across all listings.
	DirectoryTypes(ctx context.Context) ([]string, error)

	// Statuses returns the distinct status values across all listings.
	Statuses(ctx context.Context) ([]string, error)
}
