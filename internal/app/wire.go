package app

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/resend/resend-go/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/shagun/internal/aggregate"
	"github.com/hitoshi/shagun/internal/auth"
	"github.com/hitoshi/shagun/internal/authz"
	"github.com/hitoshi/shagun/internal/config"
	"github.com/hitoshi/shagun/internal/contribution"
	"github.com/hitoshi/shagun/internal/event"
	"github.com/hitoshi/shagun/internal/handler"
	"github.com/hitoshi/shagun/internal/mail"
	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/middleware"
	"github.com/hitoshi/shagun/internal/repository"
	"github.com/hitoshi/shagun/internal/security"
	"github.com/hitoshi/shagun/internal/user"
	"github.com/hitoshi/shagun/internal/validation"
)

// トークンの発行者名。IDトークンとセッションで署名鍵を分ける。
const (
	idTokenIssuer = "shagun-idp"
	sessionIssuer = "shagun-session"
)

// server はAPIサーバーの構成要素。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンドのゴルーチンを停止する。
func (s *server) close() {
	s.rateLimiter.Stop()
}

// newMailer はRESEND_API_KEYがあればResend経由、なければログ出力のMailerを返す。
func newMailer(cfg *config.Config) mail.Mailer {
	if cfg.ResendAPIKey == "" {
		slog.Warn("RESEND_API_KEY is not set; verification emails are logged only")
		return mail.LogMailer{}
	}
	return mail.NewRetryMailer(mail.NewResendMailer(resend.NewClient(cfg.ResendAPIKey), cfg.MailFrom), 0)
}

// newOAuthProvider はGoogleログインの設定が揃っている場合のみプロバイダーを返す。
func newOAuthProvider(cfg *config.Config) auth.OAuthProvider {
	if !cfg.OAuthEnabled() {
		return nil
	}
	return auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
}

// newRateLimiterConfig は1分あたりの設定値をトークンバケットの設定に変換する。
func newRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.ContributionRate = rate.Limit(float64(cfg.RateLimitContribution) / 60.0)
	rl.ContributionBurst = cfg.RateLimitContribution
	return rl
}

// newServer はDB接続から全依存関係をワイヤリングし、HTTPハンドラーを構築する。
// DBへの問い合わせはリクエスト処理時まで行わない。
func newServer(cfg *config.Config, db *sql.DB) *server {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	identityRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	contributionRepo := repository.NewPostgresContributionRepo(db)

	// 3. 認証
	provider := auth.NewLocalProvider(
		userRepo, identityRepo,
		auth.NewTokenSigner(cfg.IDTokenSecret, idTokenIssuer),
		auth.LocalProviderConfig{IDTokenTTL: cfg.IDTokenTTL},
	)
	sessions := auth.NewSessionManager(
		provider, sessionRepo,
		auth.NewTokenSigner(cfg.SessionSecret, sessionIssuer),
		newOAuthProvider(cfg), newMailer(cfg), collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge, BaseURL: cfg.BaseURL},
	)

	// 4. ドメインサービス
	validator := validation.New()
	guard := authz.NewGuard(collector)
	aggregator := aggregate.NewAggregator(contributionRepo, collector)

	eventService := event.NewService(eventRepo, guard, aggregator, validator)
	contributionService := contribution.NewService(
		contributionRepo, eventRepo, aggregator, guard,
		security.NewTextSanitizer(), validator, collector,
	)
	userService := user.NewService(provider, sessions, validator)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(newRateLimiterConfig(cfg))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		SessionValidator:   sessions,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
		RequestTimeout:     cfg.RequestTimeout,
		Health:             db,

		AuthService: sessions,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie: auth.CookieConfig{
				Domain: cfg.CookieDomain,
				Secure: cfg.CookieSecure,
				MaxAge: sessions.SessionMaxAge(),
			},
		},
		Validator: validator,

		EventService:        eventService,
		ContributionService: contributionService,
		UserService:         userService,
	})

	return &server{handler: router, rateLimiter: rateLimiter}
}
