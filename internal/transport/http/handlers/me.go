package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

// MeHandler exposes self-service account endpoints.
type MeHandler struct {
	users       *usecase.UserService
	permissions *usecase.PermissionService
}

// NewMeHandler constructs MeHandler.
func NewMeHandler(users *usecase.UserService, permissions *usecase.PermissionService) *MeHandler {
	return &MeHandler{users: users, permissions: permissions}
}

// RegisterRoutes binds the self-service endpoints. The group must already
// carry the auth middleware.
func (h *MeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.profile)
	r.PATCH("", h.updateProfile)
	r.POST("/password", h.changePassword)
	r.GET("/permissions", h.effectivePermissions)
}

// Profile godoc
// @Summary Fetch the authenticated account
// @Tags Account
// @Produce json
// @Success 200 {object} UserSummary
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/me [get]
func (h *MeHandler) profile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to load account")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// UpdateProfile godoc
// @Summary Update mutable profile fields
// @Tags Account
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Profile update payload"
// @Success 200 {object} UserSummary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/me [patch]
func (h *MeHandler) updateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid profile payload"))
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, usecase.UpdateProfileInput{
		FullName: req.FullName,
		Phone:    req.Phone,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to update profile")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// ChangePassword godoc
// @Summary Change the account password
// @Description Verifies the current password, applies the policy, and revokes every other session.
// @Tags Account
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Password change payload"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/me/password [post]
func (h *MeHandler) changePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	err := h.users.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var policyErr *security.PasswordValidationError
		if errors.As(err, &policyErr) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Error()))
			return
		}

		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPasswordMismatch, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
			{Err: usecase.ErrNoLocalPassword, Status: http.StatusConflict, Message: "account has no local password"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "account not found"},
		}, http.StatusInternalServerError, "failed to change password")
		return
	}

	c.Status(http.StatusNoContent)
}

// EffectivePermissions godoc
// @Summary List the caller's resolved permissions
// @Description Union of role grants and direct grants, sorted by name.
// @Tags Account
// @Produce json
// @Success 200 {object} EffectivePermissionsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/me/permissions [get]
func (h *MeHandler) effectivePermissions(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	names, err := h.permissions.EffectivePermissions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve permissions"))
		return
	}

	c.JSON(http.StatusOK, EffectivePermissionsResponse{
		UserID:      userID,
		Permissions: names,
	})
}
