package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/response"
)

// RoleHandler manages the role and permission catalogue.
type RoleHandler struct {
	svc *services.RoleService
}

func NewRoleHandler(svc *services.RoleService) *RoleHandler {
	return &RoleHandler{svc: svc}
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required,max=100,permission_name"`
	Description string `json:"description" validate:"max=500"`
}

type createRoleRequest struct {
	Name          string   `json:"name" validate:"required,max=64,role_name"`
	Description   string   `json:"description" validate:"max=500"`
	PermissionIDs []string `json:"permission_ids" validate:"dive,uuid"`
}

// POST /api/v1/roles/permissions
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	var body createPermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}
	perm, err := h.svc.CreatePermission(requestContext(c), services.CreatePermissionInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, perm)
}

// GET /api/v1/roles/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.svc.ListPermissions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}

// POST /api/v1/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var body createRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	role, err := h.svc.CreateRole(requestContext(c), services.CreateRoleInput{
		Name:          body.Name,
		Description:   body.Description,
		PermissionIDs: body.PermissionIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// GET /api/v1/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.svc.ListRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// GET /api/v1/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.svc.GetRole(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/v1/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteRole(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /api/v1/roles/:id/permissions/:permission_id
func (h *RoleHandler) AttachPermission(c *gin.Context) {
	role, err := h.svc.AttachPermission(requestContext(c), c.Param("id"), c.Param("permission_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/v1/roles/:id/permissions/:permission_id
func (h *RoleHandler) DetachPermission(c *gin.Context) {
	role, err := h.svc.DetachPermission(requestContext(c), c.Param("id"), c.Param("permission_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}
