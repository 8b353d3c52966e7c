package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/transport/http/middleware"
	"github.com/learnhub/iam-service/internal/usecase"
)

// RoleHandler exposes role administration endpoints.
type RoleHandler struct {
	roles       *usecase.RoleService
	permissions *usecase.PermissionService
}

// NewRoleHandler constructs RoleHandler.
func NewRoleHandler(roles *usecase.RoleService, permissions *usecase.PermissionService) *RoleHandler {
	return &RoleHandler{roles: roles, permissions: permissions}
}

// RegisterRoutes binds role administration routes. The group must already
// carry auth and permission middleware.
func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.createRole)
	r.GET("", h.listRoles)
	r.GET("/:id", h.getRole)
	r.DELETE("/:id", h.deleteRole)
	r.POST("/:id/permissions", h.grantPermissions)
	r.PUT("/:id/permissions", h.replacePermissions)
	r.DELETE("/:id/permissions/:permissionID", h.revokePermission)
}

// CreateRole godoc
// @Summary Create a custom role
// @Tags Roles
// @Accept json
// @Produce json
// @Param request body RoleCreateRequest true "Role payload"
// @Success 201 {object} RolePayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles [post]
func (h *RoleHandler) createRole(c *gin.Context) {
	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	input := usecase.CreateRoleInput{Name: strings.TrimSpace(req.Name)}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed != "" {
			input.Description = &trimmed
		}
	}

	role, err := h.roles.CreateRole(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
		}, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, newRolePayload(*role))
}

// ListRoles godoc
// @Summary List all roles
// @Tags Roles
// @Produce json
// @Success 200 {object} RoleListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles [get]
func (h *RoleHandler) listRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
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

// GetRole godoc
// @Summary Fetch one role
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 200 {object} RolePayload
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles/{id} [get]
func (h *RoleHandler) getRole(c *gin.Context) {
	role, err := h.roles.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to load role")
		return
	}

	c.JSON(http.StatusOK, newRolePayload(*role))
}

// DeleteRole godoc
// @Summary Delete a custom role
// @Description System roles cannot be deleted.
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles/{id} [delete]
func (h *RoleHandler) deleteRole(c *gin.Context) {
	if err := h.roles.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrSystemRole, Status: http.StatusConflict, Message: "system roles cannot be deleted"},
		}, http.StatusInternalServerError, "failed to delete role")
		return
	}

	c.Status(http.StatusNoContent)
}

// GrantPermissions godoc
// @Summary Attach permissions to a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param request body PermissionGrantRequest true "Permission IDs"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles/{id}/permissions [post]
func (h *RoleHandler) grantPermissions(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	var req PermissionGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "permission_ids is required"))
		return
	}

	err := h.permissions.GrantToRole(c.Request.Context(), actorID, c.Param("id"), req.PermissionIDs)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to grant permissions")
		return
	}

	c.Status(http.StatusNoContent)
}

// ReplacePermissions godoc
// @Summary Replace the full permission set of a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path string true "Role ID"
// @Param request body PermissionGrantRequest true "Permission IDs"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles/{id}/permissions [put]
func (h *RoleHandler) replacePermissions(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	var req PermissionGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "permission_ids is required"))
		return
	}

	err := h.permissions.ReplaceRolePermissions(c.Request.Context(), actorID, c.Param("id"), req.PermissionIDs)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to replace permissions")
		return
	}

	c.Status(http.StatusNoContent)
}

// RevokePermission godoc
// @Summary Detach one permission from a role
// @Tags Roles
// @Produce json
// @Param id path string true "Role ID"
// @Param permissionID path string true "Permission ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/roles/{id}/permissions/{permissionID} [delete]
func (h *RoleHandler) revokePermission(c *gin.Context) {
	actorID, _ := middleware.GetAuthenticatedUserID(c)

	err := h.permissions.RevokeFromRole(c.Request.Context(), actorID, c.Param("id"), c.Param("permissionID"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrRoleNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to revoke permission")
		return
	}

	c.Status(http.StatusNoContent)
}
