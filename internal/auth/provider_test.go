package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/shagun/internal/model"
)

func newTestProvider(users *memUserRepo, identities *mockIdentityRepo) *LocalProvider {
	if identities == nil {
		identities = &mockIdentityRepo{}
	}
	return NewLocalProvider(users, identities, NewTokenSigner("id-secret", "shagun"), LocalProviderConfig{
		IDTokenTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	})
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func TestLocalProvider_CreateUser_ThenVerifyPassword(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()

	created, err := p.CreateUser(ctx, "  Asha@Example.com ", "correct-horse")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if created.Email != "asha@example.com" {
		t.Errorf("email = %q, want normalized address", created.Email)
	}
	if created.EmailVerified {
		t.Error("新規アカウントは未確認であるべき")
	}

	got, err := p.VerifyPassword(ctx, "asha@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if got.UID != created.UID {
		t.Errorf("UID = %q, want %q", got.UID, created.UID)
	}
}

func TestLocalProvider_CreateUser_Duplicate(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()

	if _, err := p.CreateUser(ctx, "dup@example.com", "password1"); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	_, err := p.CreateUser(ctx, "DUP@example.com", "password2")
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyExists)
}

func TestLocalProvider_VerifyPassword_InvalidCredentials(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()
	if _, err := p.CreateUser(ctx, "a@example.com", "password1"); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	_, err := p.VerifyPassword(ctx, "a@example.com", "wrong")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)

	_, err = p.VerifyPassword(ctx, "nobody@example.com", "password1")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestLocalProvider_VerifyIDToken_RevokedBeforeWatermark(t *testing.T) {
	users := newMemUserRepo()
	p := newTestProvider(users, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }
	p.signer.now = func() time.Time { return base.Add(time.Minute) }

	identity, err := p.CreateUser(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	token, err := p.IssueIDToken(ctx, identity)
	if err != nil {
		t.Fatalf("IssueIDToken returned error: %v", err)
	}
	if _, err := p.VerifyIDToken(ctx, token); err != nil {
		t.Fatalf("発行直後のトークンは有効であるべき: %v", err)
	}

	// 発行の5秒後に失効
	p.now = func() time.Time { return base.Add(5 * time.Second) }
	if err := p.RevokeRefreshTokens(ctx, identity.UID); err != nil {
		t.Fatalf("RevokeRefreshTokens returned error: %v", err)
	}

	_, err = p.VerifyIDToken(ctx, token)
	assertAPIErrorCode(t, err, model.ErrCodeUnauthenticated)

	// 失効後に発行したトークンは有効
	fresh, _ := p.IssueIDToken(ctx, identity)
	if _, err := p.VerifyIDToken(ctx, fresh); err != nil {
		t.Errorf("失効後に発行したトークンは有効であるべき: %v", err)
	}
}

func TestLocalProvider_VerifyIDToken_Garbage(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)

	for _, token := range []string{"", "abc", "a.b.c"} {
		_, err := p.VerifyIDToken(context.Background(), token)
		assertAPIErrorCode(t, err, model.ErrCodeUnauthenticated)
	}
}

func TestLocalProvider_ConfirmEmail(t *testing.T) {
	users := newMemUserRepo()
	p := newTestProvider(users, nil)
	ctx := context.Background()

	identity, _ := p.CreateUser(ctx, "a@example.com", "password1")
	token, err := p.EmailVerificationToken(ctx, identity.UID)
	if err != nil {
		t.Fatalf("EmailVerificationToken returned error: %v", err)
	}

	// IDトークンは確認トークンとして使えない
	idToken, _ := p.IssueIDToken(ctx, identity)
	assertAPIErrorCode(t, p.ConfirmEmail(ctx, idToken), model.ErrCodeUnauthenticated)

	if err := p.ConfirmEmail(ctx, token); err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	got, _ := p.GetUser(ctx, identity.UID)
	if !got.EmailVerified {
		t.Error("確認後はEmailVerifiedがtrueであるべき")
	}
}

func TestLocalProvider_ChangePassword(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()

	identity, _ := p.CreateUser(ctx, "a@example.com", "old-password")

	assertAPIErrorCode(t, p.ChangePassword(ctx, identity.UID, "wrong", "new-password"), model.ErrCodeInvalidCredentials)

	if err := p.ChangePassword(ctx, identity.UID, "old-password", "new-password"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := p.VerifyPassword(ctx, "a@example.com", "new-password"); err != nil {
		t.Errorf("新しいパスワードでログインできるべき: %v", err)
	}
	_, err := p.VerifyPassword(ctx, "a@example.com", "old-password")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)
}

func TestLocalProvider_SignInWithOAuth_NewAndExisting(t *testing.T) {
	users := newMemUserRepo()
	var linked *model.Identity
	identities := &mockIdentityRepo{
		findByProviderFn: func(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
			if linked != nil && linked.ProviderUserID == providerUserID {
				return linked, nil
			}
			return nil, nil
		},
	}
	p := newTestProvider(users, identities)
	ctx := context.Background()

	info := &OAuthUserInfo{
		Provider:       ProviderGoogle,
		ProviderUserID: "google-1",
		Email:          "g@example.com",
		EmailVerified:  true,
		Name:           "G User",
	}
	first, err := p.SignInWithOAuth(ctx, info)
	if err != nil {
		t.Fatalf("SignInWithOAuth returned error: %v", err)
	}
	if !first.EmailVerified || first.Name != "G User" {
		t.Errorf("unexpected identity: %+v", first)
	}

	linked = &model.Identity{UserID: first.UID, Provider: ProviderGoogle, ProviderUserID: "google-1"}
	second, err := p.SignInWithOAuth(ctx, info)
	if err != nil {
		t.Fatalf("SignInWithOAuth returned error: %v", err)
	}
	if second.UID != first.UID {
		t.Errorf("既存identityは同じユーザーに解決されるべき: %q != %q", second.UID, first.UID)
	}
}

func TestLocalProvider_SignInWithOAuth_LinksVerifiedEmail(t *testing.T) {
	users := newMemUserRepo()
	var created *model.Identity
	identities := &mockIdentityRepo{
		createFn: func(_ context.Context, identity *model.Identity) error {
			created = identity
			return nil
		},
	}
	p := newTestProvider(users, identities)
	ctx := context.Background()

	existing, _ := p.CreateUser(ctx, "a@example.com", "password1")

	got, err := p.SignInWithOAuth(ctx, &OAuthUserInfo{
		Provider:       ProviderGoogle,
		ProviderUserID: "google-9",
		Email:          "A@example.com",
		EmailVerified:  true,
	})
	if err != nil {
		t.Fatalf("SignInWithOAuth returned error: %v", err)
	}
	if got.UID != existing.UID {
		t.Errorf("UID = %q, want existing %q", got.UID, existing.UID)
	}
	if created == nil || created.UserID != existing.UID {
		t.Errorf("identityが既存ユーザーに紐付けられていない: %+v", created)
	}
}

func TestLocalProvider_SignInWithOAuth_UnverifiedEmailDoesNotTakeOver(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()

	if _, err := p.CreateUser(ctx, "a@example.com", "password1"); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	_, err := p.SignInWithOAuth(ctx, &OAuthUserInfo{
		Provider:       ProviderGoogle,
		ProviderUserID: "google-x",
		Email:          "a@example.com",
		EmailVerified:  false,
	})
	assertAPIErrorCode(t, err, model.ErrCodeAlreadyExists)
}

func TestLocalProvider_DeleteUser(t *testing.T) {
	p := newTestProvider(newMemUserRepo(), nil)
	ctx := context.Background()

	identity, _ := p.CreateUser(ctx, "a@example.com", "password1")
	if err := p.DeleteUser(ctx, identity.UID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	assertAPIErrorCode(t, p.DeleteUser(ctx, identity.UID), model.ErrCodeUserNotFound)
}
