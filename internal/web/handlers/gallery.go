package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// GalleryRebuilder rebuilds the gallery from storage.
type GalleryRebuilder interface {
	Rebuild(ctx context.Context) (*gallery.Snapshot, error)
}

// GalleryStats reports on the published gallery.
type GalleryStats interface {
	Stats() gallery.Stats
}

// GalleryHandler exposes gallery statistics and manual rebuilds
type GalleryHandler struct {
	rebuilder GalleryRebuilder
	stats     GalleryStats
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(rebuilder GalleryRebuilder, stats GalleryStats) *GalleryHandler {
	return &GalleryHandler{rebuilder: rebuilder, stats: stats}
}

// Stats returns the summary of the published gallery
func (h *GalleryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.stats.Stats())
}

// Rebuild re-embeds all enrollment images and publishes a new gallery
func (h *GalleryHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rebuilder.Rebuild(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap.Stats())
}
