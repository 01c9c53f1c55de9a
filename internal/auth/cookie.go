package auth

import (
	"net/http"
	"time"
)

// SessionCookieName はセッションCookieの名前。
const SessionCookieName = "session"

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge time.Duration
}

// SessionCookieValue はリクエストからセッションCookieの値を取り出す。
// Cookieがない、または値が空の場合はfalseを返す。
func SessionCookieValue(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// NewSessionCookie はセッション値を載せたHttpOnly Cookieを生成する。
func NewSessionCookie(value string, cfg CookieConfig) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie はセッションCookieを削除するためのCookieを生成する。
func ClearSessionCookie(cfg CookieConfig) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
