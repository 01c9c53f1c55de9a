package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/user"
)

// UserServiceInterface はアカウント管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// ChangePassword はパスワードを変更し、全セッションを失効させる。
	ChangePassword(ctx context.Context, uid string, in user.PasswordChange) error
	// Withdraw はユーザーの退会処理を実行する。
	// user、identities、sessions、events、contributionsを一括削除する。
	Withdraw(ctx context.Context, uid string) error
}

// UserHandler はアカウント管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookie  auth.CookieConfig
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, cookie auth.CookieConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookie:  cookie,
	}
}

// ChangePassword はパスワードを変更する。全セッションが失効するためCookieも削除する。
// POST /api/auth/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req user.PasswordChange
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), caller.UID, req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, auth.ClearSessionCookie(h.cookie))
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Password changed. Please log in again."})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/auth/account
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), caller.UID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, auth.ClearSessionCookie(h.cookie))
	w.WriteHeader(http.StatusNoContent)
}
