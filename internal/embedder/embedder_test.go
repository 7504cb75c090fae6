package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/gallery"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestExtractEmbeddings(t *testing.T) {
	imgData := testPNG(t, 8, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part Content-Type = %q, want image/png", ct)
		}
		got, _ := io.ReadAll(file)
		if !bytes.Equal(got, imgData) {
			t.Error("small image should be uploaded unchanged")
		}

		resp := FaceResponse{
			FacesCount: 2,
			Model:      "buffalo_l",
			Faces: []FaceDetection{
				{FaceIndex: 1, Dim: 2, Embedding: []float32{0.5, 0.5}},
				{FaceIndex: 0, Dim: 2, Embedding: []float32{0.1, 0.2}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", time.Second, 1920)
	embs, err := c.ExtractEmbeddings(context.Background(), imgData)
	if err != nil {
		t.Fatalf("ExtractEmbeddings() error = %v", err)
	}
	if len(embs) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(embs))
	}
	if embs[0][0] != 0.1 {
		t.Errorf("first embedding = %v, want face index 0 first", embs[0])
	}
}

func TestExtractEmbeddingsNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"faces_count":0,"faces":[],"model":"buffalo_l"}`))
	}))
	defer server.Close()

	embs, err := NewClient(server.URL, time.Second, 0).ExtractEmbeddings(context.Background(), testPNG(t, 4, 4))
	if err != nil {
		t.Fatalf("ExtractEmbeddings() error = %v", err)
	}
	if len(embs) != 0 {
		t.Errorf("got %d embeddings, want 0", len(embs))
	}
}

func TestExtractEmbeddingsStatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantNoFace bool
	}{
		{"unprocessable", http.StatusUnprocessableEntity, true},
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusInternalServerError, false},
		{"unavailable", http.StatusServiceUnavailable, false},
		{"rate limited", http.StatusTooManyRequests, false},
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"request timeout", http.StatusRequestTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, time.Second, 0).ExtractEmbeddings(context.Background(), testPNG(t, 4, 4))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, gallery.ErrNoFaceDetected); got != tt.wantNoFace {
				t.Errorf("errors.Is(err, ErrNoFaceDetected) = %v, want %v (err: %v)", got, tt.wantNoFace, err)
			}
			if got := errors.Is(err, ErrUnavailable); got == tt.wantNoFace {
				t.Errorf("errors.Is(err, ErrUnavailable) = %v, want %v (err: %v)", got, !tt.wantNoFace, err)
			}
		})
	}
}

func TestRebuildKeepsGalleryWhenRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, 0)
	store := gallery.New(client, gallery.Options{Dim: 2})
	store.Load([]gallery.Entry{{Identity: "S1", Embedding: gallery.Embedding{0, 0}}})

	img := testPNG(t, 4, 4)
	_, err := store.Rebuild(context.Background(), []gallery.Source{{
		Identity: "S2",
		Images:   []gallery.SourceImage{{SampleID: 1, Read: func() ([]byte, error) { return img, nil }}},
	}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Rebuild() error = %v, want ErrUnavailable", err)
	}
	if got := store.Stats().Entries; got != 1 {
		t.Errorf("entries after failed rebuild = %d, want previous 1", got)
	}
}

func TestExtractEmbeddingsInvalidImage(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second, 0).ExtractEmbeddings(context.Background(), []byte("definitely not an image"))
	if !errors.Is(err, ErrInvalidImage) || !errors.Is(err, ErrNoFaceDetected) {
		t.Errorf("error = %v, want ErrInvalidImage matching ErrNoFaceDetected", err)
	}
	if called {
		t.Error("invalid image should not be uploaded")
	}
}

func TestExtractEmbeddingsServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, time.Second, 0).ExtractEmbeddings(context.Background(), testPNG(t, 4, 4))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestPrepareImageDownscales(t *testing.T) {
	out, err := PrepareImage(testPNG(t, 40, 20), 10)
	if err != nil {
		t.Fatalf("PrepareImage() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("result is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("resized to %dx%d, want 10x5", b.Dx(), b.Dy())
	}
}

func TestPrepareImageKeepsSmallImages(t *testing.T) {
	in := testPNG(t, 10, 10)
	out, err := PrepareImage(in, 10)
	if err != nil {
		t.Fatalf("PrepareImage() error = %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("image within bounds should be returned unchanged")
	}
}
