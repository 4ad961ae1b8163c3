package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestInit_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	l := initTo(&buf, "scheduler", "json", "production")
	l.Info("hello", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if rec["service"] != "scheduler" || rec["k"] != "v" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
}

func TestNewID_Prefix(t *testing.T) {
	id := NewID("req_", time.Now())
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+26 {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := initTo(&buf, "test", "json", "production")

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("missing request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "given")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(HeaderRequestID) != "given" {
		t.Fatalf("request id not propagated: %q", w.Header().Get(HeaderRequestID))
	}
	if !strings.Contains(buf.String(), `"path":"/ping"`) {
		t.Fatalf("request summary not logged: %s", buf.String())
	}
}
