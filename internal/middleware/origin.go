package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/shagun/internal/model"
)

// NewOriginCheckMiddleware は状態変更リクエストの送信元オリジンを検証するミドルウェアを返す。
// ブラウザが付与するOriginヘッダー（なければRefererのオリジン）が許可リストにない場合は403を返す。
// どちらのヘッダーもないリクエストはブラウザ以外のクライアントとして通過させる。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証しない。
func NewOriginCheckMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowed := newOriginSet(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := requestOrigin(r)
			if origin != "" && !allowed.allows(origin) {
				slog.Warn("cross-origin request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
					Code:     "ORIGIN_NOT_ALLOWED",
					Message:  "許可されていないオリジンからのリクエストです。",
					Category: "auth",
					Action:   "正規のアプリケーションから操作してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestOrigin はOriginヘッダー、なければRefererからオリジンを取り出す。
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "null"
	}
	return u.Scheme + "://" + u.Host
}

// isSafeMethod はHTTPメソッドが安全（状態を変更しない）かを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
