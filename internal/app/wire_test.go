package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/shagun/internal/config"
	"github.com/hitoshi/shagun/internal/database"
)

// newTestServer は接続しないDBハンドルでサーバーを組み立てる。
// DBに触れないリクエストだけでワイヤリングを検証する。
func newTestServer(t *testing.T, mutate func(*config.Config)) *server {
	t.Helper()
	setTestEnv(t)
	restoreDefaultLogger(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := newServer(cfg, db)
	t.Cleanup(srv.close)
	return srv
}

func TestNewServer_ProtectedRouteRequiresSession(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/events/getall", nil)
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestNewServer_MalformedSessionCookie_ReturnsUnauthorized(t *testing.T) {
	srv := newTestServer(t, nil)

	// 署名検証で失敗するため、DBには問い合わせない
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "not-a-jwt"})
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestNewServer_ContributionWithoutEventID_IsRejectedBeforeStore(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/contributions/add", strings.NewReader(`{"name":"Meera","amount":501}`))
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestNewServer_OAuthDisabled_ReturnsNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNewServer_OAuthEnabled_Redirects(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.GoogleClientID = "client-id"
		cfg.GoogleClientSecret = "client-secret"
		cfg.GoogleRedirectURL = "http://localhost:8080/api/auth/google/callback"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); !strings.Contains(loc, "client_id=client-id") {
		t.Errorf("Location = %q, want google auth URL with client_id", loc)
	}
}

func TestNewServer_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output should include runtime collectors")
	}
}

func TestNewServer_HealthReportsUnavailableDatabase(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRateLimiterConfig_ConvertsPerMinute(t *testing.T) {
	cfg := &config.Config{RateLimitGeneral: 120, RateLimitContribution: 30}

	rl := newRateLimiterConfig(cfg)

	if float64(rl.GeneralRate) != 2.0 {
		t.Errorf("GeneralRate = %v, want 2 req/sec", rl.GeneralRate)
	}
	if float64(rl.ContributionRate) != 0.5 {
		t.Errorf("ContributionRate = %v, want 0.5 req/sec", rl.ContributionRate)
	}
	if rl.GeneralBurst != 120 || rl.ContributionBurst != 30 {
		t.Errorf("bursts = %d/%d, want 120/30", rl.GeneralBurst, rl.ContributionBurst)
	}
}
