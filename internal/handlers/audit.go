package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/v1/audit
func (h *AuditHandler) List(c *gin.Context) {
	skip := parseIntQuery(c, "skip", 0)
	limit := parseIntQuery(c, "limit", 50)

	var filters services.AuditFilters
	filters.UserID = c.Query("user_id")
	filters.Action = c.Query("action")
	filters.Result = c.Query("result")
	filters.Resource = c.Query("resource")
	filters.Method = c.Query("method")
	filters.APIKeyID = c.Query("api_key_id")

	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.Error(c, errors.NewBadRequest("since must be an RFC3339 timestamp"))
			return
		}
		filters.Since = &t
	}
	if u := c.Query("until"); u != "" {
		t, err := time.Parse(time.RFC3339, u)
		if err != nil {
			response.Error(c, errors.NewBadRequest("until must be an RFC3339 timestamp"))
			return
		}
		filters.Until = &t
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Skip: skip, Limit: limit, Filters: filters})
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to list audit logs"))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Skip: skip, Limit: limit, Total: int(total)})
}
