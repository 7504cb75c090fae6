// Package embedder is a client for the external face embedding server.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

const defaultEmbeddingURL = "http://localhost:8000"

var (
	// ErrNoFaceDetected is returned when the server finds no usable face.
	ErrNoFaceDetected = gallery.ErrNoFaceDetected

	// ErrInvalidImage is returned for data that does not decode as an image.
	// It also matches ErrNoFaceDetected, so a corrupt enrollment photo is skipped
	// like a photo without a face.
	ErrInvalidImage = fmt.Errorf("invalid image: %w", gallery.ErrNoFaceDetected)

	// ErrUnavailable marks transport failures and 5xx responses. Callers may retry.
	ErrUnavailable = errors.New("embedding server unavailable")
)

// Client computes face embeddings using the embedding server
type Client struct {
	baseURL      string
	maxImageSize int
	client       *http.Client
}

// NewClient creates a new embedding client. Images whose longest edge exceeds
// maxImageSize are downscaled before upload; zero disables downscaling.
func NewClient(baseURL string, timeout time.Duration, maxImageSize int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = constants.DefaultEmbedderTimeout
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxImageSize: maxImageSize,
		client:       &http.Client{Timeout: timeout},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// statusError is returned for non-200 responses.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

// Unwrap makes 400 and 422 match ErrNoFaceDetected: the server answers those
// for images it cannot decode or find a face in. Any other status (rate limits,
// a wrong URL, auth, 5xx) is ErrUnavailable so a rebuild aborts instead of
// publishing a gallery without faces.
func (e *statusError) Unwrap() error {
	switch e.status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return gallery.ErrNoFaceDetected
	default:
		return ErrUnavailable
	}
}

// postMultipartImage posts the image as the "file" form field with an explicit content type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	return body, nil
}

// DetectFaces detects faces and computes their embeddings.
// Faces are returned ordered by face index.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	prepared, err := PrepareImage(imageData, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", prepared)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sort.SliceStable(faceResp.Faces, func(i, j int) bool {
		return faceResp.Faces[i].FaceIndex < faceResp.Faces[j].FaceIndex
	})
	return &faceResp, nil
}

// ExtractEmbeddings returns one embedding per detected face in detection order.
// An image without faces yields an empty slice and no error.
func (c *Client) ExtractEmbeddings(ctx context.Context, imageData []byte) ([]gallery.Embedding, error) {
	resp, err := c.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	out := make([]gallery.Embedding, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		out = append(out, gallery.Embedding(f.Embedding))
	}
	return out, nil
}

// Health checks that the embedding server answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}
