// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var principalContextKey = contextKey("principal")

// SessionValidator はセッションCookieの検証に必要なインターフェース。
// auth.SessionManagerが実装する。
type SessionValidator interface {
	ValidateSessionArtifact(ctx context.Context, value string, checkRevocation bool) (*auth.Principal, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 失効状態も含めて検証するミドルウェアを返す。
// 認証済みの呼び出し元をリクエストコンテキストに注入する。
// 未認証リクエストには401、セッションストアの障害には502を返す。
func NewSessionMiddleware(validator SessionValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからセッション値を取得
			value, ok := auth.SessionCookieValue(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			// 2. 署名・有効期限・失効を検証
			principal, err := validator.ValidateSessionArtifact(r.Context(), value, true)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			// 3. 呼び出し元をコンテキストに注入
			setLoggedUserID(r.Context(), principal.UID)
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*auth.Principal)
	if !ok || p == nil || p.UID == "" {
		return nil, false
	}
	return p, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("user ID not found in context")
	}
	return p.UID, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// ContextWithUserID はユーザーIDだけを持つ呼び出し元をコンテキストに注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithPrincipal(ctx, &auth.Principal{UID: userID})
}
