package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/validation"
)

// --- モック定義 ---

type mockAccountStore struct {
	getUserFn        func(ctx context.Context, uid string) (*auth.Identity, error)
	changePasswordFn func(ctx context.Context, uid, currentPassword, newPassword string) error
	deleteUserFn     func(ctx context.Context, uid string) error
}

func (m *mockAccountStore) GetUser(ctx context.Context, uid string) (*auth.Identity, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, uid)
	}
	return &auth.Identity{UID: uid}, nil
}

func (m *mockAccountStore) ChangePassword(ctx context.Context, uid, currentPassword, newPassword string) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, uid, currentPassword, newPassword)
	}
	return nil
}

func (m *mockAccountStore) DeleteUser(ctx context.Context, uid string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, uid)
	}
	return nil
}

type mockSessionRevoker struct {
	revokeAllSessionsFn func(ctx context.Context, uid string) error
}

func (m *mockSessionRevoker) RevokeAllSessions(ctx context.Context, uid string) error {
	if m.revokeAllSessionsFn != nil {
		return m.revokeAllSessionsFn(ctx, uid)
	}
	return nil
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

// --- Withdraw ---

// TestService_Withdraw_Order はセッション失効の後にユーザーが削除されることを検証する。
func TestService_Withdraw_Order(t *testing.T) {
	var calls []string
	accounts := &mockAccountStore{
		deleteUserFn: func(ctx context.Context, uid string) error {
			calls = append(calls, "delete:"+uid)
			return nil
		},
	}
	sessions := &mockSessionRevoker{
		revokeAllSessionsFn: func(ctx context.Context, uid string) error {
			calls = append(calls, "revoke:"+uid)
			return nil
		},
	}

	svc := NewService(accounts, sessions, validation.New())
	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"revoke:user-1", "delete:user-1"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	accounts := &mockAccountStore{
		getUserFn: func(ctx context.Context, uid string) (*auth.Identity, error) {
			return nil, model.NewUserNotFoundError()
		},
		deleteUserFn: func(ctx context.Context, uid string) error {
			t.Fatal("DeleteUser should not be called")
			return nil
		},
	}

	svc := NewService(accounts, &mockSessionRevoker{}, validation.New())
	err := svc.Withdraw(context.Background(), "nonexistent-user")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

// TestService_Withdraw_RevokeFailure はセッション失効に失敗したらユーザーを削除しないことを検証する。
func TestService_Withdraw_RevokeFailure(t *testing.T) {
	accounts := &mockAccountStore{
		deleteUserFn: func(ctx context.Context, uid string) error {
			t.Fatal("DeleteUser should not be called")
			return nil
		},
	}
	sessions := &mockSessionRevoker{
		revokeAllSessionsFn: func(ctx context.Context, uid string) error {
			return errors.New("db down")
		},
	}

	svc := NewService(accounts, sessions, validation.New())
	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// --- ChangePassword ---

// TestService_ChangePassword_RevokesSessions はパスワード変更後に全セッションが失効することを検証する。
func TestService_ChangePassword_RevokesSessions(t *testing.T) {
	var gotCurrent, gotNew string
	revoked := false
	accounts := &mockAccountStore{
		changePasswordFn: func(ctx context.Context, uid, currentPassword, newPassword string) error {
			gotCurrent, gotNew = currentPassword, newPassword
			return nil
		},
	}
	sessions := &mockSessionRevoker{
		revokeAllSessionsFn: func(ctx context.Context, uid string) error {
			revoked = true
			return nil
		},
	}

	svc := NewService(accounts, sessions, validation.New())
	err := svc.ChangePassword(context.Background(), "user-1", PasswordChange{
		CurrentPassword: "old-password",
		NewPassword:     "new-password",
	})
	if err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if gotCurrent != "old-password" || gotNew != "new-password" {
		t.Errorf("passwords = %q, %q", gotCurrent, gotNew)
	}
	if !revoked {
		t.Error("expected sessions to be revoked")
	}
}

// TestService_ChangePassword_WrongCurrent は現在のパスワード不一致で失効しないことを検証する。
func TestService_ChangePassword_WrongCurrent(t *testing.T) {
	accounts := &mockAccountStore{
		changePasswordFn: func(ctx context.Context, uid, currentPassword, newPassword string) error {
			return model.NewInvalidCredentialsError()
		},
	}
	sessions := &mockSessionRevoker{
		revokeAllSessionsFn: func(ctx context.Context, uid string) error {
			t.Fatal("sessions should not be revoked")
			return nil
		},
	}

	svc := NewService(accounts, sessions, validation.New())
	err := svc.ChangePassword(context.Background(), "user-1", PasswordChange{
		CurrentPassword: "wrong",
		NewPassword:     "new-password",
	})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

// TestService_ChangePassword_ShortPassword は短すぎる新パスワードが検証エラーになることを検証する。
func TestService_ChangePassword_ShortPassword(t *testing.T) {
	accounts := &mockAccountStore{
		changePasswordFn: func(ctx context.Context, uid, currentPassword, newPassword string) error {
			t.Fatal("ChangePassword should not be called")
			return nil
		},
	}

	svc := NewService(accounts, &mockSessionRevoker{}, validation.New())
	err := svc.ChangePassword(context.Background(), "user-1", PasswordChange{
		CurrentPassword: "old-password",
		NewPassword:     "short",
	})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}
