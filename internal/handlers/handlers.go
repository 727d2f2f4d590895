package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wayfarer/api/internal/audit"
	"wayfarer/api/internal/cache"
	"wayfarer/api/internal/config"
	"wayfarer/api/internal/jobs"
	"wayfarer/api/internal/middleware"
	"wayfarer/api/internal/models"
	"wayfarer/api/internal/ratelimit"
	"wayfarer/api/internal/repository"
	"wayfarer/api/internal/service"
)

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	authService   *service.AuthService
	auditRecorder *audit.Recorder
	reaper        *jobs.Reaper
	db            *pgxpool.Pool
	cache         *redis.Client
	users         *repository.UserRepository
	sessions      *repository.SessionRepository
	events        *repository.EventRepository
	sessionCache  *cache.SessionCache
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, redisClient *redis.Client, cfg *config.AppConfig) HandlerSet {
	queryTimeout := cfg.Postgres.QueryTimeout
	userRepo := repository.NewUserRepository(db, queryTimeout)
	sessionRepo := repository.NewSessionRepository(db, queryTimeout)
	rateRepo := repository.NewRateLimitRepository(db, queryTimeout)
	eventRepo := repository.NewEventRepository(db, queryTimeout)

	limiter := ratelimit.New(rateRepo, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	recorder := audit.NewRecorder(eventRepo, log, 256)
	sessionCache := cache.NewSessionCache(redisClient, cfg.Security.AccessTokenTTL)

	authService := service.NewAuthService(userRepo, sessionRepo, limiter, recorder, sessionCache, cfg, log)
	reaper := jobs.NewReaper(userRepo, sessionRepo, limiter, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		authService:   authService,
		auditRecorder: recorder,
		reaper:        reaper,
		db:            db,
		cache:         redisClient,
		users:         userRepo,
		sessions:      sessionRepo,
		events:        eventRepo,
		sessionCache:  sessionCache,
	}
}

// Reaper exposes the cleanup reaper so the hosting process can manage
// its lifecycle.
func (h HandlerSet) Reaper() *jobs.Reaper {
	return h.reaper
}

// AuditRecorder is exposed for shutdown draining.
func (h HandlerSet) AuditRecorder() *audit.Recorder {
	return h.auditRecorder
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/password-reset", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ResetPassword)

		protected := v1.Group("/auth")
		protected.Use(
			middleware.Auth(h.cfg, h.users, h.sessions, h.sessionCache, h.log),
		)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.POST("/logout-all", h.LogoutAll)

		admin := v1.Group("/admin")
		admin.Use(
			middleware.Auth(h.cfg, h.users, h.sessions, h.sessionCache, h.log),
			middleware.RequireRoles(h.auditRecorder, models.UserRoleAdmin),
		)
		admin.GET("/security-events", h.ListSecurityEvents)
		admin.POST("/cleanup", h.TriggerCleanup)
	}
}
