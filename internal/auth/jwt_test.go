package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/config"
	"github.com/Leganyst/visit-scheduler/internal/model"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "visit-scheduler", Leeway: 30 * time.Second})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	id := uuid.New()

	tok, err := m.Issue(now, id, RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(tok, now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	a := ActorFromClaims(claims)
	if a.Type != model.ActorAdmin || a.ID == nil || *a.ID != id {
		t.Fatalf("unexpected actor: %+v", a)
	}
}

func TestVerify_Expired(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	tok, err := m.Issue(now.Add(-2*time.Hour), uuid.New(), RoleSubcontractor, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerify_UnknownRole(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	tok, err := m.Issue(now, uuid.New(), "CLIENT", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected ErrInvalidClaims, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	m := newManager(t)
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", Issuer: "visit-scheduler"})
	tok, err := other.Issue(time.Now(), uuid.New(), RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, time.Now()); err == nil {
		t.Fatalf("expected signature check to fail")
	}
}

func TestMiddleware_AdminOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)

	r := gin.New()
	r.GET("/admin", RequireAccessToken(m), RequireRoles(model.ActorAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	admin, _ := m.Issue(time.Now(), uuid.New(), RoleAdmin, time.Hour)
	sub, _ := m.Issue(time.Now(), uuid.New(), RoleSubcontractor, time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"subcontractor", "Bearer " + sub, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
