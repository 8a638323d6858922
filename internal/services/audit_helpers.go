package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/pkg/logger"
)

// recordAudit logs the supplied entry while tolerating audit failures. Request
// metadata carried by the context fills any fields the caller left blank.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.UserID == nil && actor.UserID != "" {
			id := actor.UserID
			entry.UserID = &id
		}
		if entry.Actor == "" {
			entry.Actor = actor.Email
		}
		if entry.Method == "" {
			entry.Method = actor.Method
		}
		if entry.APIKeyID == nil && actor.APIKeyID != "" {
			id := actor.APIKeyID
			entry.APIKeyID = &id
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("failed to record audit entry", zap.String("action", entry.Action), zap.Error(err))
	}
}
