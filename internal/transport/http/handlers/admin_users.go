package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

// AdminUserHandler exposes user administration endpoints.
type AdminUserHandler struct {
	users       *usecase.UserService
	roles       *usecase.RoleService
	permissions *usecase.PermissionService
}

// NewAdminUserHandler constructs AdminUserHandler.
func NewAdminUserHandler(users *usecase.UserService, roles *usecase.RoleService, permissions *usecase.PermissionService) *AdminUserHandler {
	return &AdminUserHandler{users: users, roles: roles, permissions: permissions}
}

// RegisterRoutes binds user administration routes. The group must already
// carry auth and permission middleware.
func (h *AdminUserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.listUsers)
	r.GET("/:id", h.getUser)
	r.PATCH("/:id/active", h.setActive)
	r.GET("/:id/roles", h.listUserRoles)
	r.POST("/:id/roles/:roleID", h.assignRole)
	r.DELETE("/:id/roles/:roleID", h.removeRole)
	r.GET("/:id/permissions", h.effectivePermissions)
	r.POST("/:id/permissions/:permissionID", h.grantPermission)
	r.DELETE("/:id/permissions/:permissionID", h.revokePermission)
}

// ListUsers godoc
// @Summary List user accounts
// @Tags Admin
// @Produce json
// @Param is_active query bool false "Filter by active flag"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} UserListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users [get]
func (h *AdminUserHandler) listUsers(c *gin.Context) {
	filter := port.UserFilter{}

	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	page, err := h.users.ListUsers(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list users"))
		return
	}

	summaries := make([]UserSummary, 0, len(page.Users))
	for _, user := range page.Users {
		summaries = append(summaries, newUserSummary(user))
	}

	c.JSON(http.StatusOK, UserListResponse{
		Users:  summaries,
		Total:  page.Total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetUser godoc
// @Summary Fetch one user account
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} UserSummary
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id} [get]
func (h *AdminUserHandler) getUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, newUserSummary(*user))
}

// SetActive godoc
// @Summary Activate or deactivate an account
// @Description Deactivation revokes every session of the account.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body SetActiveRequest true "Active flag"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/active [patch]
func (h *AdminUserHandler) setActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "is_active is required"))
		return
	}

	if err := h.users.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
		}, http.StatusInternalServerError, "failed to update account")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUserRoles godoc
// @Summary List the roles held by a user
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} RoleListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/roles [get]
func (h *AdminUserHandler) listUserRoles(c *gin.Context) {
	roles, err := h.roles.ListUserRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	payloads := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payloads = append(payloads, newRolePayload(role))
	}

	c.JSON(http.StatusOK, RoleListResponse{Roles: payloads})
}

// AssignRole godoc
// @Summary Grant a role to a user
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Param roleID path string true "Role ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/roles/{roleID} [post]
func (h *AdminUserHandler) assignRole(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	err := h.roles.AssignRole(c.Request.Context(), actorID, c.Param("id"), c.Param("roleID"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: usecase.ErrRoleAlreadyAssigned, Status: http.StatusConflict, Message: "role already assigned"},
		}, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.Status(http.StatusNoContent)
}

// RemoveRole godoc
// @Summary Revoke a role from a user
// @Description Administrators cannot revoke their own admin role.
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Param roleID path string true "Role ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/roles/{roleID} [delete]
func (h *AdminUserHandler) removeRole(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	err := h.roles.RemoveRole(c.Request.Context(), actorID, c.Param("id"), c.Param("roleID"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
			{Err: usecase.ErrRoleNotAssigned, Status: http.StatusConflict, Message: "role not assigned"},
			{Err: usecase.ErrSelfDemotion, Status: http.StatusConflict, Message: "cannot revoke own admin role"},
		}, http.StatusInternalServerError, "failed to remove role")
		return
	}

	c.Status(http.StatusNoContent)
}

// EffectivePermissions godoc
// @Summary List a user's resolved permissions
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} EffectivePermissionsResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/permissions [get]
func (h *AdminUserHandler) effectivePermissions(c *gin.Context) {
	userID := c.Param("id")

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

// GrantPermission godoc
// @Summary Grant a permission directly to a user
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Param permissionID path string true "Permission ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/permissions/{permissionID} [post]
func (h *AdminUserHandler) grantPermission(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	err := h.permissions.GrantToUser(c.Request.Context(), actorID, c.Param("id"), c.Param("permissionID"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to grant permission")
		return
	}

	c.Status(http.StatusNoContent)
}

// RevokePermission godoc
// @Summary Revoke a directly granted permission from a user
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Param permissionID path string true "Permission ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/permissions/{permissionID} [delete]
func (h *AdminUserHandler) revokePermission(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	err := h.permissions.RevokeFromUser(c.Request.Context(), actorID, c.Param("id"), c.Param("permissionID"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to revoke permission")
		return
	}

	c.Status(http.StatusNoContent)
}
