// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/validation"
)

// AccountStore はアカウントの参照・変更・削除インターフェース。
type AccountStore interface {
	GetUser(ctx context.Context, uid string) (*auth.Identity, error)
	ChangePassword(ctx context.Context, uid, currentPassword, newPassword string) error
	DeleteUser(ctx context.Context, uid string) error
}

// SessionRevoker はユーザーの全セッションを失効させるインターフェース。
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, uid string) error
}

// PasswordChange はパスワード変更の入力。
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// Service はアカウント管理のサービス層。
// パスワード変更と退会処理のビジネスロジックを提供する。
type Service struct {
	accounts  AccountStore
	sessions  SessionRevoker
	validator *validation.Validator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts AccountStore, sessions SessionRevoker, validator *validation.Validator) *Service {
	return &Service{
		accounts:  accounts,
		sessions:  sessions,
		validator: validator,
	}
}

// ChangePassword は現在のパスワードを照合して変更し、全セッションを失効させる。
// 変更後は再ログインが必要になる。
func (s *Service) ChangePassword(ctx context.Context, uid string, in PasswordChange) error {
	if err := s.validator.Struct(in); err != nil {
		return err
	}
	if err := s.accounts.ChangePassword(ctx, uid, in.CurrentPassword, in.NewPassword); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllSessions(ctx, uid); err != nil {
		return fmt.Errorf("パスワード変更後のセッション失効に失敗しました: %w", err)
	}

	slog.Info("password changed", slog.String("user_id", uid))
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions（+ トークン失効） → user（+ CASCADE: identities, events, contributions）
func (s *Service) Withdraw(ctx context.Context, uid string) error {
	// ユーザー存在確認
	if _, err := s.accounts.GetUser(ctx, uid); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", uid),
	)

	// 1. セッションを失効
	if err := s.sessions.RevokeAllSessions(ctx, uid); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. ユーザーを削除（イベントと寄付はCASCADEで削除される）
	if err := s.accounts.DeleteUser(ctx, uid); err != nil {
		return err
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", uid),
	)
	return nil
}
