package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/response"
)

// APIKeyHandler exposes the caller's own API keys.
type APIKeyHandler struct {
	svc *services.APIKeyService
}

func NewAPIKeyHandler(svc *services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{svc: svc}
}

type createAPIKeyRequest struct {
	Name          string     `json:"name" validate:"required,max=100"`
	Description   string     `json:"description" validate:"max=500"`
	ExpiresAt     *time.Time `json:"expires_at" validate:"omitempty,future"`
	RoleIDs       []string   `json:"role_ids" validate:"max=50,dive,uuid"`
	PermissionIDs []string   `json:"permission_ids" validate:"max=200,dive,uuid"`
}

// apiKeySummary is the list view of a key; it never carries the secret.
type apiKeySummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func summarise(key models.APIKey) apiKeySummary {
	return apiKeySummary{
		ID:          key.ID,
		Name:        key.Name,
		Description: key.Description,
		IsActive:    key.IsActive,
		ExpiresAt:   key.ExpiresAt,
		LastUsedAt:  key.LastUsedAt,
		CreatedAt:   key.CreatedAt,
	}
}

// POST /api/v1/api-keys
func (h *APIKeyHandler) Create(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	var body createAPIKeyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	key, err := h.svc.Create(requestContext(c), principal.User.ID, services.CreateAPIKeyInput{
		Name:          body.Name,
		Description:   body.Description,
		ExpiresAt:     body.ExpiresAt,
		RoleIDs:       body.RoleIDs,
		PermissionIDs: body.PermissionIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, key)
}

// GET /api/v1/api-keys
func (h *APIKeyHandler) List(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	keys, err := h.svc.List(requestContext(c), principal.User.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]apiKeySummary, 0, len(keys))
	for _, key := range keys {
		out = append(out, summarise(key))
	}
	response.Success(c, http.StatusOK, out)
}

// GET /api/v1/api-keys/:id
func (h *APIKeyHandler) Get(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	key, err := h.svc.Get(requestContext(c), c.Param("id"), principal.User.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, key)
}

// PATCH /api/v1/api-keys/:id/activate
func (h *APIKeyHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// PATCH /api/v1/api-keys/:id/deactivate
func (h *APIKeyHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *APIKeyHandler) setActive(c *gin.Context, active bool) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	key, err := h.svc.SetActive(requestContext(c), c.Param("id"), principal.User.ID, active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, key)
}

// DELETE /api/v1/api-keys/:id
func (h *APIKeyHandler) Delete(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(c), c.Param("id"), principal.User.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
