package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/auth"
)

func TestRequireTeacher(t *testing.T) {
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	teacherToken, _, _ := issuer.Issue("7", "ada@example.com", "teacher")
	studentToken, _, _ := issuer.Issue("CS-042", "", "student")

	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		// Verify claims are in context.
		if c := GetClaimsFromContext(r.Context()); c == nil || c.Subject != "7" {
			t.Errorf("claims in context = %+v", c)
		}
		w.WriteHeader(http.StatusOK)
	})
	protectedHandler := RequireTeacher(issuer)(testHandler)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"valid teacher token", "Bearer " + teacherToken, http.StatusOK, true},
		{"lowercase scheme", "bearer " + teacherToken, http.StatusOK, true},
		{"no header", "", http.StatusUnauthorized, false},
		{"wrong scheme", "Basic " + teacherToken, http.StatusUnauthorized, false},
		{"empty token", "Bearer ", http.StatusUnauthorized, false},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, false},
		{"student role", "Bearer " + studentToken, http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/v1/recognize", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			protectedHandler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
			if w.Code != http.StatusOK && w.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestGetClaimsFromContext(t *testing.T) {
	claims := &auth.Claims{Role: "teacher"}
	ctx := SetClaimsInContext(context.Background(), claims)

	if got := GetClaimsFromContext(ctx); got != claims {
		t.Errorf("GetClaimsFromContext() = %v, want %v", got, claims)
	}
	if got := GetClaimsFromContext(context.Background()); got != nil {
		t.Error("GetClaimsFromContext() should return nil for empty context")
	}
}
