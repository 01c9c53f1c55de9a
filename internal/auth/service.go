// Package auth は資格情報の発行・検証、セッション管理、OAuthログインを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/shagun/internal/mail"
	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/model"
	"github.com/hitoshi/shagun/internal/repository"
)

// SessionArtifact はCookieに載せるセッションの内容。
type SessionArtifact struct {
	UID       string
	Email     string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal は検証済みセッションから得た呼び出し元。
type Principal struct {
	UID       string
	Email     string
	SessionID string
}

// ServiceConfig はSessionManagerの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration // 固定の有効期間。アクセスしても延長しない
	BaseURL       string        // 確認メールのリンク生成に使う
}

// SessionManager はサインアップ・ログイン・セッションの発行と検証・失効を扱う。
type SessionManager struct {
	provider CredentialProvider
	sessions repository.SessionRepository
	signer   *TokenSigner
	oauth    OAuthProvider
	mailer   mail.Mailer
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
// oauthはGoogleログインが無効な場合nilでよい。
func NewSessionManager(
	provider CredentialProvider,
	sessions repository.SessionRepository,
	signer *TokenSigner,
	oauth OAuthProvider,
	mailer mail.Mailer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *SessionManager {
	if mailer == nil {
		mailer = mail.LogMailer{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 10 * 24 * time.Hour
	}
	return &SessionManager{
		provider: provider,
		sessions: sessions,
		signer:   signer,
		oauth:    oauth,
		mailer:   mailer,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// SessionMaxAge はセッションの有効期間を返す。
func (m *SessionManager) SessionMaxAge() time.Duration {
	return m.config.SessionMaxAge
}

// IssueCredential はアカウントを作成し、IDトークンを発行する。
// 表示名の設定と確認メールの送信はベストエフォートで、失敗してもサインアップは成功する。
func (m *SessionManager) IssueCredential(ctx context.Context, name, email, password string) (*Identity, string, error) {
	identity, err := m.provider.CreateUser(ctx, email, password)
	if err != nil {
		m.metrics.RecordAuthAttempt("signup", "failure")
		return nil, "", err
	}

	if err := m.provider.UpdateDisplayName(ctx, identity.UID, name); err != nil {
		slog.Warn("failed to set display name",
			slog.String("user_id", identity.UID),
			slog.String("error", err.Error()),
		)
	} else {
		identity.Name = name
	}

	if err := m.SendVerificationEmail(ctx, identity); err != nil {
		slog.Warn("failed to send verification email",
			slog.String("user_id", identity.UID),
			slog.String("error", err.Error()),
		)
	}

	token, err := m.provider.IssueIDToken(ctx, identity)
	if err != nil {
		m.metrics.RecordAuthAttempt("signup", "failure")
		return nil, "", err
	}

	m.metrics.RecordAuthAttempt("signup", "success")
	slog.Info("user signed up", slog.String("user_id", identity.UID))
	return identity, token, nil
}

// SignIn はメールアドレスとパスワードを照合し、IDトークンを発行する。
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*Identity, string, error) {
	identity, err := m.provider.VerifyPassword(ctx, email, password)
	if err != nil {
		m.metrics.RecordAuthAttempt("login", "failure")
		return nil, "", err
	}

	token, err := m.provider.IssueIDToken(ctx, identity)
	if err != nil {
		m.metrics.RecordAuthAttempt("login", "failure")
		return nil, "", err
	}

	m.metrics.RecordAuthAttempt("login", "success")
	return identity, token, nil
}

// SendVerificationEmail は確認リンク付きのメールを送る。
func (m *SessionManager) SendVerificationEmail(ctx context.Context, identity *Identity) error {
	token, err := m.provider.EmailVerificationToken(ctx, identity.UID)
	if err != nil {
		return fmt.Errorf("failed to issue verification token: %w", err)
	}

	link := strings.TrimRight(m.config.BaseURL, "/") + "/api/auth/verify-email?token=" + url.QueryEscape(token)
	msg, err := mail.VerificationEmail(identity.Email, identity.Name, link)
	if err != nil {
		return err
	}
	return m.mailer.Send(ctx, msg)
}

// VerifyEmail は確認リンクのトークンでメールアドレスを確認済みにする。
func (m *SessionManager) VerifyEmail(ctx context.Context, token string) error {
	return m.provider.ConfirmEmail(ctx, token)
}

// CreateSessionArtifact は検証済みIDトークンをセッションCookieの値と交換する。
// セッションはサーバー側にも記録し、失効時に行を削除する。
func (m *SessionManager) CreateSessionArtifact(ctx context.Context, idToken string) (*SessionArtifact, string, error) {
	identity, err := m.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		m.metrics.RecordAuthAttempt("session", "failure")
		return nil, "", err
	}
	return m.issueSession(ctx, identity, "session")
}

func (m *SessionManager) issueSession(ctx context.Context, identity *Identity, op string) (*SessionArtifact, string, error) {
	now := m.now()
	artifact := &SessionArtifact{
		UID:       identity.UID,
		Email:     identity.Email,
		SessionID: uuid.New().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.config.SessionMaxAge),
	}

	session := &model.Session{
		ID:        artifact.SessionID,
		UserID:    artifact.UID,
		ExpiresAt: artifact.ExpiresAt,
		CreatedAt: now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		m.metrics.RecordAuthAttempt(op, "failure")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", model.NewUnauthenticatedError()
		}
		return nil, "", fmt.Errorf("failed to save session: %w", err)
	}

	value, err := m.signer.Sign(TokenSpec{
		Audience: AudienceSession,
		Subject:  artifact.UID,
		Email:    artifact.Email,
		ID:       artifact.SessionID,
		IssuedAt: now,
		TTL:      m.config.SessionMaxAge,
	})
	if err != nil {
		m.metrics.RecordAuthAttempt(op, "failure")
		return nil, "", fmt.Errorf("failed to sign session: %w", err)
	}

	m.metrics.RecordAuthAttempt(op, "success")
	return artifact, value, nil
}

// ValidateSessionArtifact はCookieの値を検証して呼び出し元を返す。
// 署名と有効期限を先に検証するため、期限切れは失効状態に関係なくUNAUTHENTICATEDになる。
// checkRevocationがtrueの場合はサーバー側のセッション行の存在も確認する。
func (m *SessionManager) ValidateSessionArtifact(ctx context.Context, value string, checkRevocation bool) (*Principal, error) {
	claims, err := m.signer.Verify(value, AudienceSession)
	if err != nil {
		outcome := "invalid"
		if errors.Is(err, ErrExpiredToken) {
			outcome = "expired"
		}
		m.metrics.RecordSessionValidation(outcome)
		return nil, model.NewUnauthenticatedError()
	}
	if claims.ID == "" {
		m.metrics.RecordSessionValidation("invalid")
		return nil, model.NewUnauthenticatedError()
	}

	if checkRevocation {
		session, err := m.sessions.FindByID(ctx, claims.ID)
		if err != nil {
			m.metrics.RecordSessionValidation("error")
			slog.Error("failed to look up session",
				slog.String("session_id", claims.ID),
				slog.String("error", err.Error()),
			)
			return nil, model.NewUpstreamFailureError()
		}
		if session == nil || session.UserID != claims.Subject {
			m.metrics.RecordSessionValidation("revoked")
			return nil, model.NewUnauthenticatedError()
		}
	}

	m.metrics.RecordSessionValidation("valid")
	return &Principal{
		UID:       claims.Subject,
		Email:     claims.Email,
		SessionID: claims.ID,
	}, nil
}

// RevokeAllSessions はユーザーの全セッションとトークンを失効させる。
// 失効後は既存のCookieがcheckRevocation付きの検証に通らない。
func (m *SessionManager) RevokeAllSessions(ctx context.Context, uid string) error {
	if err := m.sessions.DeleteByUserID(ctx, uid); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := m.provider.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	slog.Info("all sessions revoked", slog.String("user_id", uid))
	return nil
}

// EndSession はログアウト時にユーザーのセッションを失効させる。
// 失敗はログとメトリクスに残すだけで、呼び出し元にはエラーを返さない。
func (m *SessionManager) EndSession(ctx context.Context, value string) {
	principal, err := m.ValidateSessionArtifact(ctx, value, false)
	if err != nil {
		return
	}
	if err := m.RevokeAllSessions(ctx, principal.UID); err != nil {
		m.metrics.RecordSessionRevokeFailure()
		slog.Error("failed to revoke sessions on logout",
			slog.String("user_id", principal.UID),
			slog.String("error", err.Error()),
		)
	}
}

// CurrentUser はアカウント情報を返す。
func (m *SessionManager) CurrentUser(ctx context.Context, uid string) (*Identity, error) {
	return m.provider.GetUser(ctx, uid)
}

// OAuthEnabled は外部IdPログインが設定されているかを返す。
func (m *SessionManager) OAuthEnabled() bool {
	return m.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (m *SessionManager) GetLoginURL(state string) string {
	return m.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はプロバイダー側でアカウントを自動作成する。
func (m *SessionManager) HandleCallback(ctx context.Context, code string) (*SessionArtifact, string, error) {
	info, err := m.oauth.ExchangeCode(ctx, code)
	if err != nil {
		m.metrics.RecordAuthAttempt("oauth", "failure")
		slog.Error("failed to exchange oauth code", slog.String("error", err.Error()))
		return nil, "", model.NewUpstreamFailureError()
	}

	identity, err := m.provider.SignInWithOAuth(ctx, info)
	if err != nil {
		m.metrics.RecordAuthAttempt("oauth", "failure")
		return nil, "", err
	}
	return m.issueSession(ctx, identity, "oauth")
}
