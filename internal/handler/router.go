package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/shagun/internal/metrics"
	"github.com/hitoshi/shagun/internal/middleware"
	"github.com/hitoshi/shagun/internal/validation"
)

// HealthChecker はデータベースの疎通確認インターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	SessionValidator   middleware.SessionValidator
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	RequestTimeout     time.Duration
	Health             HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Validator   *validation.Validator

	// イベント・寄付
	EventService        EventServiceInterface
	ContributionService ContributionServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → SecurityHeaders → CORS → OriginCheck → Timeout
//
// 認証が必要なルートには Session → RateLimit(General) を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewOriginCheckMiddleware(deps.CORSAllowedOrigins))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Validator, deps.AuthConfig)
	eventHandler := NewEventHandler(deps.EventService)
	contributionHandler := NewContributionHandler(deps.ContributionService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig.Cookie)

	// 認証が必要なルートのミドルウェアスタック: Session → RateLimit(General)
	authenticated := chi.Chain(
		middleware.NewSessionMiddleware(deps.SessionValidator),
		deps.RateLimiter.GeneralMiddleware(),
	)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.Health))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/session", authHandler.CreateSession)
		r.Get("/verify-email", authHandler.VerifyEmail)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Post("/password", userHandler.ChangePassword)
			r.Delete("/account", userHandler.Withdraw)
		})
	})

	// --- イベント ---
	r.Route("/api/events", func(r chi.Router) {
		// ゲスト向けの公開情報は認証不要
		r.Get("/public/{eventId}", eventHandler.GetPublicEvent)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Post("/addevent", eventHandler.AddEvent)
			r.Get("/getall", eventHandler.GetAllEvents)
			r.Get("/event/{eventId}", eventHandler.GetEvent)
			r.Put("/event/{eventId}", eventHandler.UpdateEvent)
			r.Delete("/event/{eventId}", eventHandler.DeleteEvent)
		})
	})

	// --- 寄付 ---
	r.Route("/api/contributions", func(r chi.Router) {
		// ゲストの寄付は認証不要。IP単位でレート制限する
		r.With(deps.RateLimiter.ContributionMiddleware()).Post("/add", contributionHandler.AddContribution)

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/get/{eventId}", contributionHandler.GetContributions)
			r.Get("/gettotal", contributionHandler.GetTotal)
		})
	})

	return r
}

// healthHandler はデータベースへの疎通を確認するヘルスチェックハンドラー。
func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
