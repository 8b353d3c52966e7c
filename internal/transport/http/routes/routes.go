package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/infra/config"
	"github.com/learnhub/iam-service/internal/infra/telemetry"
	"github.com/learnhub/iam-service/internal/transport/http/handlers"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Users        *usecase.UserService
	Roles        *usecase.RoleService
	Permissions  *usecase.PermissionService
	OAuth        *usecase.OAuthService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *telemetry.Metrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	if httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err == nil {
		r.Use(httpMetrics.Handler())
	} else if deps.Logger != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authMiddleware := middleware.RequireAuth(deps.Services.Auth)

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Registration, deps.Metrics)
		authHandler.RegisterRoutes(
			authGroup,
			buildRateLimitMiddlewares(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts),
			buildRateLimitMiddlewares(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts),
			buildRateLimitMiddlewares(deps, "auth_refresh_ip", deps.Config.RateLimit.RefreshMaxAttempts),
		)

		if deps.Services.OAuth != nil {
			oauthGroup := api.Group("/oauth")
			oauthHandler := handlers.NewOAuthHandler(deps.Services.OAuth, deps.Services.Auth, deps.Metrics)
			oauthHandler.RegisterRoutes(oauthGroup)
		}

		meGroup := api.Group("/me")
		meGroup.Use(authMiddleware)
		meHandler := handlers.NewMeHandler(deps.Services.Users, deps.Services.Permissions)
		meHandler.RegisterRoutes(meGroup)

		rolesGroup := api.Group("/roles")
		rolesGroup.Use(authMiddleware, middleware.RequirePermission(deps.Services.Permissions, "roles:manage"))
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles, deps.Services.Permissions)
		roleHandler.RegisterRoutes(rolesGroup)

		permissionsGroup := api.Group("/permissions")
		permissionsGroup.Use(authMiddleware, middleware.RequirePermission(deps.Services.Permissions, "permissions:manage"))
		permissionHandler := handlers.NewPermissionHandler(deps.Services.Permissions)
		permissionHandler.RegisterRoutes(permissionsGroup)

		adminUsersGroup := api.Group("/admin/users")
		adminUsersGroup.Use(authMiddleware, middleware.RequirePermission(deps.Services.Permissions, "users:manage"))
		adminUserHandler := handlers.NewAdminUserHandler(deps.Services.Users, deps.Services.Roles, deps.Services.Permissions)
		adminUserHandler.RegisterRoutes(adminUsersGroup)
	}

	handlers.RegisterSwagger(r)

	return r
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
