package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/usecase"
)

// PermissionHandler exposes permission definition administration.
type PermissionHandler struct {
	permissions *usecase.PermissionService
}

// NewPermissionHandler constructs PermissionHandler.
func NewPermissionHandler(permissions *usecase.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissions: permissions}
}

// RegisterRoutes binds permission administration routes. The group must
// already carry auth and permission middleware.
func (h *PermissionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.createPermission)
	r.GET("", h.listPermissions)
	r.DELETE("/:id", h.deletePermission)
}

// CreatePermission godoc
// @Summary Define a permission
// @Description Creates a resource:action permission definition.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param request body PermissionCreateRequest true "Permission payload"
// @Success 201 {object} PermissionPayload
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/permissions [post]
func (h *PermissionHandler) createPermission(c *gin.Context) {
	var req PermissionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid permission payload"))
		return
	}

	permission, err := h.permissions.CreatePermission(c.Request.Context(), usecase.CreatePermissionInput{
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidPermissionName, Status: http.StatusBadRequest, Message: "invalid permission name"},
			{Err: usecase.ErrPermissionExists, Status: http.StatusConflict, Message: "permission already exists"},
		}, http.StatusInternalServerError, "failed to create permission")
		return
	}

	c.JSON(http.StatusCreated, newPermissionPayload(*permission))
}

// ListPermissions godoc
// @Summary List permission definitions
// @Tags Permissions
// @Produce json
// @Param resource query string false "Filter by resource"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} PermissionListResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/permissions [get]
func (h *PermissionHandler) listPermissions(c *gin.Context) {
	filter := port.PermissionFilter{
		Resource: c.Query("resource"),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}

	permissions, total, err := h.permissions.ListPermissions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list permissions"))
		return
	}

	payloads := make([]PermissionPayload, 0, len(permissions))
	for _, permission := range permissions {
		payloads = append(payloads, newPermissionPayload(permission))
	}

	c.JSON(http.StatusOK, PermissionListResponse{
		Permissions: payloads,
		Total:       total,
	})
}

// DeletePermission godoc
// @Summary Delete a permission definition
// @Tags Permissions
// @Produce json
// @Param id path string true "Permission ID"
// @Success 204 {string} string ""
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/admin/permissions/{id} [delete]
func (h *PermissionHandler) deletePermission(c *gin.Context) {
	if err := h.permissions.DeletePermission(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrPermissionNotFound, Status: http.StatusNotFound, Message: "permission not found"},
		}, http.StatusInternalServerError, "failed to delete permission")
		return
	}

	c.Status(http.StatusNoContent)
}
