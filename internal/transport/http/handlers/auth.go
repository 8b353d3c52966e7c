package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/infra/telemetry"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

const (
	// refreshCookieName holds the refresh token between calls. The cookie is
	// HTTP-only and scoped to the auth endpoints, so scripts never see the
	// token and browsers only send it where rotation and revocation happen.
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

// AuthHandler exposes registration, login, and token lifecycle endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
	metrics      *telemetry.Metrics
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService, metrics *telemetry.Metrics) *AuthHandler {
	return &AuthHandler{auth: auth, registration: registration, metrics: metrics}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the credential endpoints.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares, registerMiddlewares, refreshMiddlewares []gin.HandlerFunc) {
	r.POST("/register", append(append([]gin.HandlerFunc{}, registerMiddlewares...), h.register)...)
	r.POST("/login", append(append([]gin.HandlerFunc{}, loginMiddlewares...), h.login)...)
	r.POST("/refresh", append(append([]gin.HandlerFunc{}, refreshMiddlewares...), h.refresh)...)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
}

func (h *AuthHandler) sessionMetadata(c *gin.Context) usecase.SessionMetadata {
	meta := usecase.SessionMetadata{}

	if ip := strings.TrimSpace(c.ClientIP()); ip != "" {
		meta.IP = &ip
	}
	if ua := strings.TrimSpace(c.Request.UserAgent()); ua != "" {
		meta.UserAgent = &ua
	}

	return meta
}

// Register godoc
// @Summary Register a new account
// @Description Creates an account with the supplied credentials and signs it in.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration payload"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	input := usecase.RegisterInput{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		FullName: strings.TrimSpace(req.FullName),
		Phone:    req.Phone,
	}

	session, err := h.registration.Register(c.Request.Context(), input, h.sessionMetadata(c))
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Error()))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
		}, http.StatusInternalServerError, "failed to register account")
		return
	}

	setRefreshCookie(c, session)
	c.JSON(http.StatusCreated, newSessionResponse(session))
}

// Login godoc
// @Summary Authenticate with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login payload"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, h.sessionMetadata(c))
	if err != nil {
		h.metrics.ObserveLogin("password", "failure")
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account inactive"},
		}, http.StatusInternalServerError, "authentication failed")
		return
	}

	h.metrics.ObserveLogin("password", "success")
	setRefreshCookie(c, session)
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Description Issues a new token pair and invalidates the presented refresh token. The token is read from the refresh_token cookie, or from the body for non-browser clients.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest false "Fallback refresh payload"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	_ = c.ShouldBindJSON(&req)

	token := presentedRefreshToken(c, req.RefreshToken)
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh token is required"))
		return
	}

	session, err := h.auth.Refresh(c.Request.Context(), token, h.sessionMetadata(c))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account inactive"},
		}, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	setRefreshCookie(c, session)
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Logout godoc
// @Summary Revoke the presented refresh token
// @Description Revokes the supplied refresh token, or every session of the account when all_sessions is set.
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	token := presentedRefreshToken(c, req.RefreshToken)
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh token is required"))
		return
	}

	clearRefreshCookie(c)

	if err := h.auth.Logout(c.Request.Context(), token, req.AllSessions); err != nil {
		// Revoking an already dead token is a no-op from the client's view.
		if errors.Is(err, usecase.ErrInvalidRefreshToken) {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke session"))
		return
	}

	c.Status(http.StatusNoContent)
}

func newSessionResponse(session *usecase.AuthSession) SessionResponse {
	return SessionResponse{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   session.ExpiresIn,
		User:        newUserSummary(session.User),
	}
}

// setRefreshCookie stores the rotated refresh token. Secure follows the
// request scheme so local development over plain HTTP still works.
func setRefreshCookie(c *gin.Context, session *usecase.AuthSession) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, session.RefreshToken, session.RefreshExpiresIn,
		refreshCookiePath, "", c.Request.TLS != nil, true)
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", c.Request.TLS != nil, true)
}

// presentedRefreshToken prefers the cookie and falls back to the request
// body for clients that hold the token themselves.
func presentedRefreshToken(c *gin.Context, fromBody string) string {
	if token, err := c.Cookie(refreshCookieName); err == nil && token != "" {
		return token
	}
	return strings.TrimSpace(fromBody)
}
