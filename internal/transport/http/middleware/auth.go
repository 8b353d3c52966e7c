package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/learnhub/iam-service/internal/infra/logger"
	"github.com/learnhub/iam-service/internal/usecase"
)

// ErrorResponse mirrors the handlers' error body so middleware rejections
// look the same as handler rejections on the wire.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   message,
		TraceID: GetTraceID(c),
	})
}

// bearerToken extracts the token from an Authorization header, returning a
// caller-facing message when the header is absent or malformed.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format: must start with 'Bearer'"
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", "missing access token"
	}

	return token, ""
}

// RequireAuth verifies the bearer access token and stores the resolved
// claims on the request context for downstream handlers.
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c)
		if problem != "" {
			abortWithError(c, http.StatusUnauthorized, problem)
			return
		}

		claims, err := authService.ParseAccessToken(token)
		if err != nil {
			appLogger.WithContext(c.Request.Context()).Debug("access token rejected",
				zap.String("token", appLogger.MaskToken(token)),
				zap.Error(err),
			)
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				abortWithError(c, http.StatusUnauthorized, "access token expired")
			case errors.Is(err, usecase.ErrInvalidAccessToken):
				abortWithError(c, http.StatusUnauthorized, "invalid access token")
			default:
				abortWithError(c, http.StatusInternalServerError, "authentication failed")
			}
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set("claims", claims)
		c.Set("roles", claims.Roles)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.UserID
		}

		c.Next()
	}
}

// RequirePermission checks the authenticated user's effective permission set
// for the required capability. Admin blanket and resource wildcards apply.
func RequirePermission(permissions *usecase.PermissionService, required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetAuthenticatedUserID(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		allowed, err := permissions.HasPermission(c.Request.Context(), userID, required)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "permission check failed")
			return
		}
		if !allowed {
			abortWithError(c, http.StatusForbidden, "insufficient permissions")
			return
		}

		c.Next()
	}
}

// GetAuthenticatedUserID returns the user ID set by RequireAuth.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	id, ok := value.(string)
	return id, ok && id != ""
}
