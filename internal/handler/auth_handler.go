// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/middleware"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/validation"
)

const oauthStateCookie = "oauth_state"

// loginCompletePage はOAuthコールバック後に自サイトのページからフロントエンドへ遷移させる。
// Googleから始まるリダイレクト連鎖のままではSameSite=StrictのCookieが最初の遷移で送られない。
var loginCompletePage = template.Must(template.New("login-complete").Parse(`<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><meta http-equiv="refresh" content="{{.Refresh}}"><title>ログイン完了</title></head>
<body><p><a href="{{.URL}}">アプリに戻る</a></p></body>
</html>
`))

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.SessionManagerが実装する。
type AuthServiceInterface interface {
	IssueCredential(ctx context.Context, name, email, password string) (*auth.Identity, string, error)
	SignIn(ctx context.Context, email, password string) (*auth.Identity, string, error)
	CreateSessionArtifact(ctx context.Context, idToken string) (*auth.SessionArtifact, string, error)
	EndSession(ctx context.Context, value string)
	CurrentUser(ctx context.Context, uid string) (*auth.Identity, error)
	VerifyEmail(ctx context.Context, token string) error
	OAuthEnabled() bool
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.SessionArtifact, string, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string // OAuthログイン後のリダイレクト先
	Cookie  auth.CookieConfig
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	validator *validation.Validator
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, validator *validation.Validator, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: validator,
		config:    config,
	}
}

// signupRequest はサインアップリクエストのボディ。
type signupRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// sessionRequest はセッションCookie発行リクエストのボディ。
type sessionRequest struct {
	IDToken string `json:"idToken"`
}

// userResponse はアカウント情報のAPIレスポンス。
type userResponse struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"emailVerified"`
}

// credentialResponse はサインアップ・ログインのレスポンス。
type credentialResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

func toUserResponse(identity *auth.Identity) userResponse {
	return userResponse{
		UID:           identity.UID,
		Email:         identity.Email,
		Name:          identity.Name,
		EmailVerified: identity.EmailVerified,
	}
}

// Signup はアカウントを作成し、IDトークンを返す。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validator.Struct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	identity, token, err := h.service.IssueCredential(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, credentialResponse{
		Message: "User created successfully",
		Token:   token,
		User:    toUserResponse(identity),
	})
}

// Login はメールアドレスとパスワードを照合し、IDトークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.Struct(req); err != nil {
		// 入力不足も資格情報の不一致と区別しない
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	identity, token, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, credentialResponse{
		Message: "Login successful",
		Token:   token,
		User:    toUserResponse(identity),
	})
}

// CreateSession はIDトークンをセッションCookieと交換する。
// POST /api/auth/session
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	_, value, err := h.service.CreateSessionArtifact(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, auth.NewSessionCookie(value, h.config.Cookie))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Session created"})
}

// Logout はユーザーのセッションを失効させ、Cookieを削除する。
// 失効に失敗してもCookieは削除し、成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if value, ok := auth.SessionCookieValue(r); ok {
		h.service.EndSession(r.Context(), value)
	}

	http.SetCookie(w, auth.ClearSessionCookie(h.config.Cookie))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	identity, err := h.service.CurrentUser(r.Context(), caller.UID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(identity))
}

// VerifyEmail は確認リンクのトークンでメールアドレスを確認済みにする。
// GET /api/auth/verify-email?token=xxx
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.service.VerifyEmail(r.Context(), token); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Email verified"})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /api/auth/google/login
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理し、セッションCookieを設定する。
// GET /api/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		http.NotFound(w, r)
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid state parameter"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("missing authorization code"))
		return
	}

	// 3. 認証処理
	_, value, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	// 4. セッションCookieを設定し、自サイトのページを経由してフロントエンドへ遷移する
	http.SetCookie(w, auth.NewSessionCookie(value, h.config.Cookie))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	data := struct{ URL, Refresh string }{h.config.BaseURL, "0;url=" + h.config.BaseURL}
	if err := loginCompletePage.Execute(w, data); err != nil {
		slog.Error("failed to render login complete page", slog.String("error", err.Error()))
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
