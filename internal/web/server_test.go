package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/auth"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/imagestore"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// lineEmbedder maps "face:<n>" to the point (n, 0) and anything else to no face.
var lineEmbedder = gallery.EmbedderFunc(func(_ context.Context, image []byte) ([]gallery.Embedding, error) {
	s, ok := strings.CutPrefix(string(image), "face:")
	if !ok {
		return nil, nil
	}
	n, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, err
	}
	return []gallery.Embedding{{float32(n), 0}}, nil
})

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()

	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics.New() error = %v", err)
	}
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	students := mock.NewMockStudentStore()
	store := gallery.New(lineEmbedder, gallery.Options{Dim: 2})
	pipeline := enrollment.New(enrollment.Deps{
		Storage:  students,
		Images:   imagestore.New(t.TempDir()),
		Gallery:  store,
		Embedder: lineEmbedder,
		Metrics:  met,
	})
	ledger := attendance.NewLedger(attendance.NewMemoryStore(), attendance.Options{Location: time.UTC})
	recognizer := recognition.New(lineEmbedder, matcher.New(store, matcher.DefaultPolicy()), ledger, met, nil)

	return NewServer(&cfg, Deps{
		Enroller:   pipeline,
		Recognizer: recognizer,
		History:    ledger,
		Rebuilder:  pipeline,
		Gallery:    store,
		Students:   students,
		Teachers:   mock.NewMockTeacherStore(),
		Tokens:     tokens,
		Registry:   reg,
	})
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestAttendanceFlow(t *testing.T) {
	s := newTestServer(t)

	if rec := do(t, s, "GET", "/api/v1/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	rec := do(t, s, "POST", "/api/v1/teachers", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "analytical",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register teacher = %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, s, "POST", "/api/v1/teachers/login", "", map[string]string{
		"email": "ada@example.com", "password": "analytical",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login teacher = %d: %s", rec.Code, rec.Body)
	}
	var login struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &login)

	rec = do(t, s, "POST", "/api/v1/students", "", map[string]any{
		"rollNo": "CS-042", "name": "Grace", "class": "CS-A",
		"images": []string{b64("face:1"), b64("blurry"), "data:image/jpeg;base64," + b64("face:1.1")},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register student = %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"faces":2`) {
		t.Errorf("register student body = %s, want 2 faces", rec.Body)
	}

	frame := map[string]string{"image": b64("face:1"), "classCode": "cs101", "subject": "Maths"}

	if rec := do(t, s, "POST", "/api/v1/recognize", "", frame); rec.Code != http.StatusUnauthorized {
		t.Errorf("recognize without token = %d, want 401", rec.Code)
	}

	rec = do(t, s, "POST", "/api/v1/recognize", login.Token, frame)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"written"`) {
		t.Fatalf("first recognize = %d: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"confidence":99`) {
		t.Errorf("first recognize body = %s, want confidence 99", rec.Body)
	}

	rec = do(t, s, "POST", "/api/v1/recognize", login.Token, frame)
	if !strings.Contains(rec.Body.String(), `"duplicate":true`) {
		t.Errorf("second recognize = %s, want duplicate", rec.Body)
	}

	rec = do(t, s, "POST", "/api/v1/recognize", login.Token,
		map[string]string{"image": b64("face:5"), "classCode": "CS101", "subject": "MATHS"})
	if !strings.Contains(rec.Body.String(), `"status":"no_match"`) {
		t.Errorf("stranger recognize = %s, want no_match", rec.Body)
	}

	rec = do(t, s, "GET", "/api/v1/students/CS-042/attendance", "", nil)
	var records []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil || len(records) != 1 {
		t.Fatalf("attendance = %s (err %v), want one record", rec.Body, err)
	}
	if records[0]["classCode"] != "CS101" || records[0]["subject"] != "MATHS" {
		t.Errorf("record = %v", records[0])
	}

	rec = do(t, s, "GET", "/api/v1/gallery", "", nil)
	if !strings.Contains(rec.Body.String(), `"entries":2`) {
		t.Errorf("gallery stats = %s", rec.Body)
	}

	rec = do(t, s, "POST", "/api/v1/gallery/rebuild", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("rebuild = %d: %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "GET", "/metrics", "", nil)
	body := rec.Body.String()
	for _, want := range []string{
		`face_attendance_recognitions_total{outcome="written"} 1`,
		`face_attendance_recognitions_total{outcome="duplicate"} 1`,
		`face_attendance_gallery_identities 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestDuplicateStudentRegistration(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"rollNo": "CS-042", "name": "Grace", "images": []string{b64("face:1")}}

	if rec := do(t, s, "POST", "/api/v1/students", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, "POST", "/api/v1/students", "", body); rec.Code != http.StatusConflict {
		t.Errorf("second register = %d, want 409", rec.Code)
	}

	noFaces := map[string]any{"rollNo": "CS-043", "name": "Alan", "images": []string{b64("blurry")}}
	if rec := do(t, s, "POST", "/api/v1/students", "", noFaces); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("register without faces = %d, want 422", rec.Code)
	}
}
