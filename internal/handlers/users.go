package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/response"
)

type UserHandler struct {
	svc *services.UserService
}

func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type createUserRequest struct {
	Email     string   `json:"email" validate:"required,email"`
	FullName  string   `json:"full_name" validate:"max=200"`
	Roles     []string `json:"roles" validate:"dive,required"`
	Superuser bool     `json:"is_superuser"`
}

// GET /api/v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	user, err := h.svc.Get(requestContext(c), principal.User.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	skip := parseIntQuery(c, "skip", 0)
	limit := parseIntQuery(c, "limit", 100)

	users, total, err := h.svc.List(requestContext(c), skip, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{Skip: skip, Limit: limit, Total: int(total)})
}

// GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.svc.Create(requestContext(c), services.CreateUserInput{
		Email:     body.Email,
		FullName:  body.FullName,
		RoleNames: body.Roles,
		Superuser: body.Superuser,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// PATCH /api/v1/users/:id/activate
func (h *UserHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// PATCH /api/v1/users/:id/deactivate
func (h *UserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	user, err := h.svc.SetActive(requestContext(c), c.Param("id"), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// DELETE /api/v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// POST /api/v1/users/:id/roles/:role_id
func (h *UserHandler) AssignRole(c *gin.Context) {
	user, err := h.svc.AssignRole(requestContext(c), c.Param("id"), c.Param("role_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// DELETE /api/v1/users/:id/roles/:role_id
func (h *UserHandler) RemoveRole(c *gin.Context) {
	user, err := h.svc.RemoveRole(requestContext(c), c.Param("id"), c.Param("role_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}
