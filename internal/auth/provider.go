package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/repository"
)

// Identity は認証プロバイダーが発行するアカウント情報。
// ドメイン側はUIDとEmailを読み取るだけで、発行や変更はしない。
type Identity struct {
	UID           string
	Email         string
	Name          string
	EmailVerified bool
}

func identityFromUser(u *model.User) *Identity {
	return &Identity{
		UID:           u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
	}
}

// CredentialProvider は資格情報の発行・検証・失効を担う認証プロバイダーの契約。
type CredentialProvider interface {
	// CreateUser はメールアドレスとパスワードでアカウントを作成する。
	// 既に使われているメールアドレスならALREADY_EXISTSを返す。
	CreateUser(ctx context.Context, email, password string) (*Identity, error)
	// VerifyPassword はパスワードを照合する。不一致や未登録はINVALID_CREDENTIALSを返す。
	VerifyPassword(ctx context.Context, email, password string) (*Identity, error)
	// SignInWithOAuth は外部IdPのユーザー情報からアカウントを特定し、なければ作成する。
	SignInWithOAuth(ctx context.Context, info *OAuthUserInfo) (*Identity, error)
	// IssueIDToken はクライアントに渡すIDトークンを発行する。
	IssueIDToken(ctx context.Context, identity *Identity) (string, error)
	// VerifyIDToken はIDトークンを検証する。失効済みならUNAUTHENTICATEDを返す。
	VerifyIDToken(ctx context.Context, token string) (*Identity, error)
	// RevokeRefreshTokens は現時点より前に発行された全トークンを失効させる。
	RevokeRefreshTokens(ctx context.Context, uid string) error
	// UpdateDisplayName は表示名を設定する。
	UpdateDisplayName(ctx context.Context, uid, name string) error
	// GetUser はアカウント情報を返す。
	GetUser(ctx context.Context, uid string) (*Identity, error)
	// EmailVerificationToken はメールアドレス確認リンク用のトークンを発行する。
	EmailVerificationToken(ctx context.Context, uid string) (string, error)
	// ConfirmEmail は確認トークンを検証し、メールアドレスを確認済みにする。
	ConfirmEmail(ctx context.Context, token string) error
	// ChangePassword は現在のパスワードを照合して新しいパスワードに変更する。
	ChangePassword(ctx context.Context, uid, currentPassword, newPassword string) error
	// DeleteUser はアカウントを削除する。
	DeleteUser(ctx context.Context, uid string) error
}

// LocalProviderConfig はLocalProviderの設定。
type LocalProviderConfig struct {
	IDTokenTTL     time.Duration
	VerifyEmailTTL time.Duration
	BcryptCost     int
}

// LocalProvider はPostgreSQLのusersテーブルとbcryptで動く認証プロバイダー。
// IDトークンはHS256のJWTで、users.tokens_valid_afterより前に発行されたものは失効扱いになる。
type LocalProvider struct {
	users      repository.UserRepository
	identities repository.IdentityRepository
	signer     *TokenSigner
	config     LocalProviderConfig
	now        func() time.Time
	dummyHash  []byte
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(
	users repository.UserRepository,
	identities repository.IdentityRepository,
	signer *TokenSigner,
	config LocalProviderConfig,
) *LocalProvider {
	if config.IDTokenTTL <= 0 {
		config.IDTokenTTL = time.Hour
	}
	if config.VerifyEmailTTL <= 0 {
		config.VerifyEmailTTL = 24 * time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	// 未登録メールアドレスでも照合時間を揃えるためのハッシュ
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dummy-password"), config.BcryptCost)
	return &LocalProvider{
		users:      users,
		identities: identities,
		signer:     signer,
		config:     config,
		now:        time.Now,
		dummyHash:  dummy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser はメールアドレスとパスワードでアカウントを作成する。
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (*Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.config.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, model.NewValidationError("password is too long")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := p.now()
	user := &model.User{
		ID:               uuid.New().String(),
		Email:            normalizeEmail(email),
		PasswordHash:     string(hash),
		TokensValidAfter: now.Truncate(time.Second),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return identityFromUser(user), nil
}

// VerifyPassword はパスワードを照合する。
func (p *LocalProvider) VerifyPassword(ctx context.Context, email, password string) (*Identity, error) {
	user, err := p.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(password))
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return identityFromUser(user), nil
}

// SignInWithOAuth は外部IdPのユーザー情報からアカウントを特定し、なければ作成する。
// 確認済みメールアドレスが既存アカウントと一致する場合はidentityを紐付ける。
func (p *LocalProvider) SignInWithOAuth(ctx context.Context, info *OAuthUserInfo) (*Identity, error) {
	identity, err := p.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		return p.GetUser(ctx, identity.UserID)
	}

	now := p.now()
	link := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if info.EmailVerified {
		existing, err := p.users.FindByEmail(ctx, normalizeEmail(info.Email))
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if existing != nil {
			link.UserID = existing.ID
			if err := p.identities.Create(ctx, link); err != nil {
				return nil, fmt.Errorf("failed to link identity: %w", err)
			}
			slog.Info("identity linked to existing user",
				slog.String("user_id", existing.ID),
				slog.String("provider", info.Provider),
			)
			return identityFromUser(existing), nil
		}
	}

	user := &model.User{
		ID:               uuid.New().String(),
		Email:            normalizeEmail(info.Email),
		Name:             info.Name,
		EmailVerified:    info.EmailVerified,
		TokensValidAfter: now.Truncate(time.Second),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	link.UserID = user.ID
	if err := p.users.CreateWithIdentity(ctx, user, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return identityFromUser(user), nil
}

// IssueIDToken はIDトークンを発行する。
func (p *LocalProvider) IssueIDToken(_ context.Context, identity *Identity) (string, error) {
	token, err := p.signer.Sign(TokenSpec{
		Audience: AudienceIDToken,
		Subject:  identity.UID,
		Email:    identity.Email,
		IssuedAt: p.now(),
		TTL:      p.config.IDTokenTTL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return token, nil
}

// VerifyIDToken はIDトークンを検証する。
// 発行時刻（秒精度）がtokens_valid_afterより前なら失効済みとして扱う。
func (p *LocalProvider) VerifyIDToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := p.signer.Verify(token, AudienceIDToken)
	if err != nil {
		return nil, model.NewUnauthenticatedError()
	}

	user, err := p.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthenticatedError()
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Time.Before(user.TokensValidAfter) {
		return nil, model.NewUnauthenticatedError()
	}
	return identityFromUser(user), nil
}

// RevokeRefreshTokens は現時点より前に発行された全トークンを失効させる。
func (p *LocalProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	err := p.users.RevokeTokens(ctx, uid, p.now().Truncate(time.Second))
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return nil
}

// UpdateDisplayName は表示名を設定する。
func (p *LocalProvider) UpdateDisplayName(ctx context.Context, uid, name string) error {
	err := p.users.UpdateName(ctx, uid, name)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	return err
}

// GetUser はアカウント情報を返す。
func (p *LocalProvider) GetUser(ctx context.Context, uid string) (*Identity, error) {
	user, err := p.users.FindByID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return identityFromUser(user), nil
}

// EmailVerificationToken はメールアドレス確認リンク用のトークンを発行する。
func (p *LocalProvider) EmailVerificationToken(ctx context.Context, uid string) (string, error) {
	identity, err := p.GetUser(ctx, uid)
	if err != nil {
		return "", err
	}
	return p.signer.Sign(TokenSpec{
		Audience: AudienceVerifyEmail,
		Subject:  identity.UID,
		Email:    identity.Email,
		IssuedAt: p.now(),
		TTL:      p.config.VerifyEmailTTL,
	})
}

// ConfirmEmail は確認トークンを検証し、メールアドレスを確認済みにする。
// トークン発行後にメールアドレスが変わっていれば確認しない。
func (p *LocalProvider) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := p.signer.Verify(token, AudienceVerifyEmail)
	if err != nil {
		return model.NewUnauthenticatedError()
	}
	user, err := p.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !strings.EqualFold(user.Email, claims.Email) {
		return model.NewUnauthenticatedError()
	}
	if user.EmailVerified {
		return nil
	}
	return p.users.MarkEmailVerified(ctx, user.ID)
}

// ChangePassword は現在のパスワードを照合して新しいパスワードに変更する。
func (p *LocalProvider) ChangePassword(ctx context.Context, uid, currentPassword, newPassword string) error {
	user, err := p.users.FindByID(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return model.NewInvalidCredentialsError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.config.BcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return model.NewValidationError("password is too long")
	}
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return p.users.UpdatePasswordHash(ctx, uid, string(hash))
}

// DeleteUser はアカウントを削除する。イベント・寄付・セッションはCASCADE削除される。
func (p *LocalProvider) DeleteUser(ctx context.Context, uid string) error {
	err := p.users.DeleteByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewUserNotFoundError()
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialProvider = (*LocalProvider)(nil)
