package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/middleware"
)

// withUserID はセッションミドルウェアが注入するユーザーIDをリクエストに設定する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody はレスポンスボディをmapに読み取る。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// assertSessionCleared はセッションCookieが削除されていることを確認する。
func assertSessionCleared(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	c := findCookie(w, auth.SessionCookieName)
	if c == nil {
		t.Fatal("expected session cookie to be cleared")
	}
	if c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("session cookie = {value:%q maxAge:%d}, want cleared", c.Value, c.MaxAge)
	}
}
