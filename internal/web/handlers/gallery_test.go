package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

type rebuilderFunc func(ctx context.Context) (*gallery.Snapshot, error)

func (f rebuilderFunc) Rebuild(ctx context.Context) (*gallery.Snapshot, error) { return f(ctx) }

func TestGalleryHandler_Stats(t *testing.T) {
	store := gallery.New(nil, gallery.Options{Dim: 2})
	store.Load([]gallery.Entry{
		{Identity: "CS-042", Embedding: gallery.Embedding{0, 1}},
		{Identity: "CS-042", Embedding: gallery.Embedding{0, 2}},
		{Identity: "CS-043", Embedding: gallery.Embedding{1, 0}},
	})
	handler := NewGalleryHandler(nil, store)
	recorder := httptest.NewRecorder()

	handler.Stats(recorder, httptest.NewRequest("GET", "/api/v1/gallery", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var stats gallery.Stats
	parseJSONResponse(t, recorder, &stats)
	if stats.Entries != 3 || stats.Identities != 2 || stats.Dim != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGalleryHandler_Rebuild(t *testing.T) {
	store := gallery.New(nil, gallery.Options{Dim: 2})

	t.Run("success", func(t *testing.T) {
		handler := NewGalleryHandler(rebuilderFunc(func(context.Context) (*gallery.Snapshot, error) {
			return store.Load([]gallery.Entry{{Identity: "CS-042", Embedding: gallery.Embedding{0, 1}}}), nil
		}), store)
		recorder := httptest.NewRecorder()

		handler.Rebuild(recorder, httptest.NewRequest("POST", "/api/v1/gallery/rebuild", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var stats gallery.Stats
		parseJSONResponse(t, recorder, &stats)
		if stats.Entries != 1 || stats.Identities != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("storage down", func(t *testing.T) {
		handler := NewGalleryHandler(rebuilderFunc(func(context.Context) (*gallery.Snapshot, error) {
			return nil, database.Unavailable("list face samples", errors.New("timeout"))
		}), store)
		recorder := httptest.NewRecorder()

		handler.Rebuild(recorder, httptest.NewRequest("POST", "/api/v1/gallery/rebuild", nil))

		assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	})
}
