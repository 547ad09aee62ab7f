package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go-identity-service/internal/app"
	"go-identity-service/internal/config"
	"go-identity-service/internal/database"
	"go-identity-service/internal/http/handler"
	"go-identity-service/internal/http/middleware"
	"go-identity-service/internal/http/router"
	"go-identity-service/internal/oauth"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/repository"
	"go-identity-service/internal/security"
	"go-identity-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(provideLogger, provideObservabilityRuntime)

var RuntimeInfraSet = wire.NewSet(provideOpenDB, provideRedis)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewLoginSessionRepository,
	repository.NewSignupSessionRepository,
	repository.NewPasswordResetSessionRepository,
	repository.NewEmailVerificationSessionRepository,
	repository.NewAccountLinkSessionRepository,
	repository.NewExternalIdentityRepository,
)

var SecuritySet = wire.NewSet(provideStateSigner, provideCookieManager)

var ServiceSet = wire.NewSet(
	provideEmailGateway,
	provideCaptchaGateway,
	provideOAuthGateways,
	provideIconStorage,
	provideSweeper,
	service.NewSignupService,
	service.NewAuthService,
	service.NewPasswordResetService,
	service.NewEmailVerificationService,
	service.NewAccountLinkService,
	provideOAuthService,
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewOAuthHandler,
	handler.NewUserHandler,
	handler.NewHealthHandler,
	provideAuthenticator,
	provideLimiter,
	provideBypass,
	provideRouterDependencies,
	provideRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideLogger(cfg *config.Config) *slog.Logger {
	return observability.NewLogger(cfg)
}

func provideObservabilityRuntime(cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideRedis(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis url, falling back to local rate limiting", "error", err.Error())
		return nil
	}
	client := redis.NewClient(opts)
	observability.InstrumentRedis(client)
	return client
}

func provideStateSigner(cfg *config.Config) *security.StateSigner {
	return security.NewStateSigner(cfg.StateSigningSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, "lax")
}

func provideEmailGateway(cfg *config.Config, logger *slog.Logger) service.EmailGateway {
	// SMTP delivery is deployment plumbing; every environment so far
	// reads codes from structured logs.
	return service.NewDevEmailGateway(logger)
}

func provideCaptchaGateway(cfg *config.Config) service.CaptchaGateway {
	if cfg.TurnstileSecret == "" {
		return service.DevCaptchaGateway{}
	}
	return service.NewTurnstileCaptchaGateway(cfg.TurnstileSecret)
}

func provideOAuthGateways(cfg *config.Config) map[string]oauth.Gateway {
	gateways := map[string]oauth.Gateway{
		"google": oauth.NewGoogleGateway(oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
	}
	if cfg.DiscordClientID != "" {
		gateways["discord"] = oauth.NewDiscordGateway(oauth.DiscordConfig{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURL,
		})
	}
	return gateways
}

func provideOAuthService(
	users repository.UserRepository,
	identities repository.ExternalIdentityRepository,
	loginSessions repository.LoginSessionRepository,
	linkSessions repository.AccountLinkSessionRepository,
	gateways map[string]oauth.Gateway,
	signer *security.StateSigner,
	cfg *config.Config,
	logger *slog.Logger,
) *service.OAuthService {
	return service.NewOAuthService(users, identities, loginSessions, linkSessions, gateways, signer, cfg.WebRedirectURIs, cfg.MobileRedirectSchemes, logger)
}

func provideIconStorage(cfg *config.Config, users repository.UserRepository) (*service.IconStorageService, error) {
	return service.NewIconStorageService(
		cfg.StorageEndpoint,
		cfg.StorageAccessKey,
		cfg.StorageSecretKey,
		cfg.StorageBucket,
		cfg.StoragePublicBaseURL,
		cfg.StorageUseSSL,
		users,
	)
}

func provideSweeper(
	loginSessions repository.LoginSessionRepository,
	signupSessions repository.SignupSessionRepository,
	resetSessions repository.PasswordResetSessionRepository,
	verificationSessions repository.EmailVerificationSessionRepository,
	linkSessions repository.AccountLinkSessionRepository,
	cfg *config.Config,
	logger *slog.Logger,
) *service.SessionSweeper {
	return service.NewSessionSweeper(loginSessions, signupSessions, resetSessions, verificationSessions, linkSessions, cfg.SessionSweepInterval, logger)
}

func provideAuthenticator(auth *service.AuthService) *middleware.Authenticator {
	return middleware.NewAuthenticator(auth)
}

func provideLimiter(client redis.UniversalClient) middleware.Limiter {
	if client == nil {
		return middleware.NewLocalTokenBucketLimiter()
	}
	return middleware.NewRedisRateLimiter(client, "ratelimit")
}

func provideBypass(cfg *config.Config) middleware.BypassEvaluator {
	return middleware.NewRequestBypassEvaluator(middleware.RequestBypassConfig{
		EnableInternalProbeBypass: true,
	})
}

func provideRouterDependencies(
	auth *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	user *handler.UserHandler,
	health *handler.HealthHandler,
	authenticator *middleware.Authenticator,
	cfg *config.Config,
) routerDeps {
	deps := routerDeps{
		Auth:          auth,
		OAuth:         oauthHandler,
		User:          user,
		Health:        health,
		Authenticator: authenticator,
	}
	if cfg != nil {
		deps.CORSOrigins = cfg.CORSAllowedOrigins
		deps.AuthRateLimitRPM = cfg.AuthRateLimitPerMin
		deps.APIRateLimitRPM = cfg.APIRateLimitPerMin
	}
	return deps
}

// routerDeps mirrors router.Dependencies so the limiter and bypass can
// be injected separately from the handler bundle.
type routerDeps router.Dependencies

func provideRouter(deps routerDeps, limiter middleware.Limiter, bypass middleware.BypassEvaluator) http.Handler {
	full := router.Dependencies(deps)
	full.Limiter = limiter
	full.Bypass = bypass
	return router.New(full)
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// MigrationRunner opens the database and applies migrations, for the
// `migrate` subcommand.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}
