package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegishq/aegis/internal/access"
	"github.com/aegishq/aegis/internal/models"
	"github.com/aegishq/aegis/internal/services"
)

type RoleHandler struct {
	roles     *services.RoleService
	evaluator *access.Evaluator
}

func NewRoleHandler(roles *services.RoleService, evaluator *access.Evaluator) *RoleHandler {
	return &RoleHandler{roles: roles, evaluator: evaluator}
}

// RoleRequest is the wire shape for creating and updating roles.
type RoleRequest struct {
	Name               string   `json:"name" binding:"required"`
	Description        string   `json:"description"`
	Permissions        []string `json:"permissions"`
	IsExternalCustomer bool     `json:"is_external_customer"`
	AllowedRoutes      []string `json:"allowed_routes"`
	// AffectedUserIDs lists the users holding this role, so their cached
	// decisions can be invalidated together with the mutation.
	AffectedUserIDs []string `json:"affected_user_ids"`
}

func (r *RoleRequest) apply(role *models.Role) error {
	role.Name = r.Name
	role.Description = r.Description
	role.IsExternalCustomer = r.IsExternalCustomer
	if err := role.SetPermissionList(r.Permissions); err != nil {
		return err
	}
	return role.SetRouteList(r.AllowedRoutes)
}

func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, roles)
}

func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.GetByUUID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) Create(c *gin.Context) {
	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var role models.Role
	if err := req.apply(&role); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.roles.Create(c.Request.Context(), &role); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRoleNameExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, role)
}

func (h *RoleHandler) Update(c *gin.Context) {
	role, err := h.roles.GetByUUID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var req RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.apply(role); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.roles.Update(c.Request.Context(), role); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Role contents changed; stale decisions must not outlive the change.
	for _, userID := range req.AffectedUserIDs {
		h.evaluator.InvalidateUser(c.Request.Context(), userID)
	}

	c.JSON(http.StatusOK, role)
}

func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
