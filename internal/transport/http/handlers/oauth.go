package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/infra/telemetry"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

// OAuthHandler drives the provider authorization flow and connection
// management endpoints.
type OAuthHandler struct {
	oauth   *usecase.OAuthService
	auth    *usecase.AuthService
	metrics *telemetry.Metrics
}

// NewOAuthHandler constructs OAuthHandler.
func NewOAuthHandler(oauth *usecase.OAuthService, auth *usecase.AuthService, metrics *telemetry.Metrics) *OAuthHandler {
	return &OAuthHandler{oauth: oauth, auth: auth, metrics: metrics}
}

// RegisterRoutes binds the provider flow and connection endpoints.
func (h *OAuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	authMiddleware := middleware.RequireAuth(h.auth)

	r.GET("/:provider/authorize", h.authorize)
	r.POST("/:provider/callback", h.callback)
	r.POST("/:provider/link", authMiddleware, h.link)
	r.DELETE("/:provider", authMiddleware, h.unlink)
	r.GET("/connections", authMiddleware, h.connections)
}

var oauthProviderCases = []ErrorCase{
	{Err: usecase.ErrUnknownProvider, Status: http.StatusNotFound, Message: "unknown provider"},
	{Err: usecase.ErrProviderDisabled, Status: http.StatusNotFound, Message: "provider not available"},
}

// Authorize godoc
// @Summary Begin a provider authorization flow
// @Description Returns the consent URL with a fresh state and PKCE verifier the client must present on callback.
// @Tags OAuth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} OAuthAuthorizeResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/oauth/{provider}/authorize [get]
func (h *OAuthHandler) authorize(c *gin.Context) {
	intent, err := h.oauth.BeginAuthorization(c.Param("provider"))
	if err != nil {
		RespondWithMappedError(c, err, oauthProviderCases,
			http.StatusInternalServerError, "failed to begin authorization")
		return
	}

	c.JSON(http.StatusOK, OAuthAuthorizeResponse{
		AuthorizationURL: intent.URL,
		State:            intent.State,
		CodeVerifier:     intent.CodeVerifier,
	})
}

// Callback godoc
// @Summary Complete a provider authorization flow
// @Description Redeems the authorization code, provisioning or signing in the matching account.
// @Tags OAuth
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body OAuthCallbackRequest true "Callback payload"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/oauth/{provider}/callback [post]
func (h *OAuthHandler) callback(c *gin.Context) {
	var req OAuthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code and code_verifier are required"))
		return
	}

	provider := c.Param("provider")
	meta := usecase.SessionMetadata{}
	if ip := c.ClientIP(); ip != "" {
		meta.IP = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}

	session, err := h.oauth.CompleteAuthorization(c.Request.Context(), provider, req.Code, req.CodeVerifier, meta)
	if err != nil {
		h.metrics.ObserveLogin(provider, "failure")
		cases := append([]ErrorCase{
			{Err: usecase.ErrOAuthExchangeFailed, Status: http.StatusUnauthorized, Message: "authorization code rejected"},
			{Err: usecase.ErrConflictingAccount, Status: http.StatusConflict, Message: "email already linked to another account"},
			{Err: usecase.ErrMissingProviderEmail, Status: http.StatusBadRequest, Message: "provider did not supply an email"},
			{Err: usecase.ErrInactiveAccount, Status: http.StatusForbidden, Message: "account inactive"},
		}, oauthProviderCases...)
		RespondWithMappedError(c, err, cases,
			http.StatusInternalServerError, "failed to complete authorization")
		return
	}

	h.metrics.ObserveLogin(provider, "success")
	setRefreshCookie(c, session)
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Link godoc
// @Summary Link a provider to the authenticated account
// @Tags OAuth
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body OAuthCallbackRequest true "Link payload"
// @Success 201 {object} OAuthConnectionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/oauth/{provider}/link [post]
func (h *OAuthHandler) link(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req OAuthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code and code_verifier are required"))
		return
	}

	conn, err := h.oauth.LinkProvider(c.Request.Context(), userID, c.Param("provider"), req.Code, req.CodeVerifier)
	if err != nil {
		cases := append([]ErrorCase{
			{Err: usecase.ErrOAuthExchangeFailed, Status: http.StatusUnauthorized, Message: "authorization code rejected"},
			{Err: usecase.ErrProviderAlreadyLinked, Status: http.StatusConflict, Message: "provider already linked"},
			{Err: usecase.ErrConflictingAccount, Status: http.StatusConflict, Message: "identity already linked to another account"},
		}, oauthProviderCases...)
		RespondWithMappedError(c, err, cases,
			http.StatusInternalServerError, "failed to link provider")
		return
	}

	c.JSON(http.StatusCreated, newConnectionPayload(*conn))
}

// Unlink godoc
// @Summary Unlink a provider from the authenticated account
// @Description Refused when it would strip the account of its last sign-in method.
// @Tags OAuth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/oauth/{provider} [delete]
func (h *OAuthHandler) unlink(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.oauth.UnlinkProvider(c.Request.Context(), userID, c.Param("provider")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnknownProvider, Status: http.StatusNotFound, Message: "unknown provider"},
			{Err: usecase.ErrProviderNotLinked, Status: http.StatusNotFound, Message: "provider not linked"},
			{Err: usecase.ErrLastAuthMethod, Status: http.StatusConflict, Message: "cannot remove the last sign-in method"},
		}, http.StatusInternalServerError, "failed to unlink provider")
		return
	}

	c.Status(http.StatusNoContent)
}

// Connections godoc
// @Summary List the authenticated account's linked providers
// @Tags OAuth
// @Produce json
// @Success 200 {object} OAuthConnectionListResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/oauth/connections [get]
func (h *OAuthHandler) connections(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	conns, err := h.oauth.ListConnections(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list connections"))
		return
	}

	payloads := make([]OAuthConnectionPayload, 0, len(conns))
	for _, conn := range conns {
		payloads = append(payloads, newConnectionPayload(conn))
	}

	c.JSON(http.StatusOK, OAuthConnectionListResponse{Connections: payloads})
}
