// Package api exposes the assistant over HTTP: settings management, the
// listing mirror, vector sync, and the chat endpoint the site widget talks
// to. A separate MCP surface (mcp.go) exposes the same capabilities to
// agent clients.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/chat"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/retrieval"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	syncer "github.com/MahfuzulAlam/directorist-smart-assistant/internal/sync"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Store      *storage.Store
	Settings   *settings.Manager
	Sync       *syncer.Synchronizer
	Chat       *chat.Dispatcher
	Assembler  *retrieval.Assembler
	Embeddings *embedding.Manager
	Vectors    *vector.Manager
	Token      string // empty disables auth
	Logger     *slog.Logger
}

// NewHandler builds the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(BearerAuth(deps.Token))
	}

	r.Get("/health", handleHealth(deps))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", handleGetSettings(deps))
		r.Put("/settings", handlePutSettings(deps))

		r.Post("/chat", handleChat(deps))
		r.Get("/search", handleSearch(deps))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", handleListListings(deps))
			r.Get("/{id}", handleGetListing(deps))
			r.Put("/{id}", handleSaveListing(deps))
			r.Delete("/{id}", handleDeleteListing(deps))
			r.Post("/{id}/sync", handleSyncListing(deps))
		})

		r.Post("/sync", handleSyncAll(deps))
		r.Get("/directory-types", handleDirectoryTypes(deps))
		r.Get("/listing-statuses", handleListingStatuses(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":          "ok",
			"embedding_ready": deps.Embeddings.Ready(r.Context()),
			"vector_ready":    deps.Vectors.Ready(r.Context()),
		})
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		masked, err := deps.Settings.Masked(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, masked)
	}
}

func handlePutSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var incoming map[string]string
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Settings.Save(r.Context(), incoming); err != nil {
			writeError(w, err)
			return
		}
		masked, err := deps.Settings.Masked(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, masked)
	}
}

type chatRequest struct {
	Message      string         `json:"message"`
	Conversation []chat.Message `json:"conversation,omitempty"`
}

type chatResponse struct {
	Reply  string `json:"reply"`
	Source string `json:"source"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		answer, err := deps.Chat.Ask(r.Context(), req.Message, req.Conversation...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, chatResponse{Reply: answer.Reply, Source: answer.Source})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 0, 50)

		listings, err := deps.Assembler.SearchListings(r.Context(), query, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if listings == nil {
			listings = []listing.Listing{}
		}
		writeJSON(w, listings)
	}
}

func handleListListings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := listing.Filter{
			Statuses:       splitParam(r.URL.Query().Get("status")),
			DirectoryTypes: splitParam(r.URL.Query().Get("type")),
		}
		listings, err := deps.Store.Query(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		if listings == nil {
			listings = []listing.Listing{}
		}
		writeJSON(w, listings)
	}
}

// handleSaveListing mirrors a listing and, when auto-sync is on, pushes it
// to the vector store. The path id wins over any id in the body.
func handleSaveListing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := listingID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid listing id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var l listing.Listing
		if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		l.ID = id

		if err := deps.Sync.HandleSave(r.Context(), l); err != nil {
			writeError(w, err)
			return
		}
		deps.Assembler.InvalidateFallback()
		writeJSON(w, map[string]string{"status": "saved"})
	}
}

func handleGetListing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := listingID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid listing id")
			return
		}
		l, err := deps.Store.GetByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "listing not found")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, l)
	}
}

// handleDeleteListing removes the mirror row and any synced vector.
// Deleting an unknown listing is a no-op, matching host CMS deletes that
// may arrive more than once.
func handleDeleteListing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := listingID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid listing id")
			return
		}
		if err := deps.Sync.HandleDelete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		deps.Assembler.InvalidateFallback()
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func handleSyncListing(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := listingID(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid listing id")
			return
		}
		l, err := deps.Store.GetByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "listing not found")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		if err := deps.Sync.UpsertListing(r.Context(), l); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "synced"})
	}
}

type syncRequest struct {
	PostIDs []int64 `json:"post_ids"`
}

// handleSyncAll runs a bulk sync. An empty (or absent) body syncs every
// listing matching the sync filters; post_ids narrows the run.
func handleSyncAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req syncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		report, err := deps.Sync.SyncAll(r.Context(), req.PostIDs...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, report)
	}
}

func handleDirectoryTypes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := deps.Store.DirectoryTypes(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if types == nil {
			types = []string{}
		}
		writeJSON(w, types)
	}
}

func handleListingStatuses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := deps.Store.Statuses(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if statuses == nil {
			statuses = []string{}
		}
		writeJSON(w, statuses)
	}
}

func listingID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, "invalid listing id")
	}
	return id, nil
}

func splitParam(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
