package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cmm/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// initMinimalApp builds an App over a throwaway SQLite database.
func initMinimalApp(t *testing.T, tweaks ...func(*config.Config)) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		DatabaseURL:        filepath.Join(t.TempDir(), "cmm.db"),
		JWTSecret:          "test-secret",
		JWTExpire:          time.Hour,
		AllowedOrigins:     []string{"*"},
		Port:               8000,
		RateLimitPerMinute: 6000,
		RateLimitBurst:     100,
	}
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	app, err := newApp(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestPublicEndpoints(t *testing.T) {
	r := initMinimalApp(t).setupRouter()

	// /healthz
	w := get(r, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("/healthz expected 200, got %d", w.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("/healthz invalid JSON: %v", err)
	}
	if health["status"] != "ok" {
		t.Fatalf("/healthz expected status=ok, got %#v", health)
	}

	// /version
	w = get(r, "/version")
	if w.Code != http.StatusOK {
		t.Fatalf("/version expected 200, got %d", w.Code)
	}
	var ver map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &ver); err != nil {
		t.Fatalf("/version invalid JSON: %v", err)
	}
	if _, ok := ver["version"]; !ok {
		t.Fatalf("/version missing 'version' field")
	}

	// /
	w = get(r, "/")
	if !strings.Contains(w.Body.String(), "CMM API running") {
		t.Fatalf("/ unexpected body %s", w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	r := initMinimalApp(t).setupRouter()
	w := get(r, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("/readyz expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("/readyz invalid JSON: %v", err)
	}
	if body["ready"] != true {
		t.Fatalf("/readyz expected ready=true, got %#v", body)
	}
}

func TestRouterMiddleware(t *testing.T) {
	r := initMinimalApp(t).setupRouter()
	w := get(r, "/healthz")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}

	w = get(r, "/servers")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("/servers without token expected 401, got %d", w.Code)
	}
}

func TestLockoutKeysOnPeerAddress(t *testing.T) {
	r := initMinimalApp(t, func(cfg *config.Config) {
		cfg.AuthLockoutThreshold = 3
	}).setupRouter()

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/servers", nil)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("Authorization", "Bearer not-a-token")
		r.ServeHTTP(w, req)
		codes[w.Code]++
	}
	if codes[http.StatusUnauthorized] != 2 || codes[http.StatusTooManyRequests] != 8 {
		t.Fatalf("expected 2x401 then 8x429, got %v", codes)
	}
}

func TestRegisterLoginThroughRouter(t *testing.T) {
	r := initMinimalApp(t).setupRouter()

	post := func(path, body string) map[string]any {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		var out map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s invalid JSON: %v", path, err)
		}
		return out
	}

	if out := post("/auth/register", `{"email":"ops@example.com","password":"Passw0rd!","role":"tech"}`); out["ok"] != true {
		t.Fatalf("register failed: %#v", out)
	}
	out := post("/auth/login", `{"email":"ops@example.com","password":"Passw0rd!"}`)
	if out["ok"] != true || out["token"] == "" || out["role"] != "tech" {
		t.Fatalf("login failed: %#v", out)
	}
	if out["expires_in"] != float64(3600) {
		t.Fatalf("expected expires_in=3600, got %#v", out["expires_in"])
	}
}

func TestResolvePassword(t *testing.T) {
	if _, err := resolvePassword("short"); err == nil {
		t.Fatal("expected error for short password")
	}
	got, err := resolvePassword("  long-enough  ")
	if err != nil || got != "long-enough" {
		t.Fatalf("resolvePassword = %q, %v", got, err)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.HasPrefix(buf.String(), "cmm ") {
		t.Fatalf("unexpected version output %q", buf.String())
	}
}
