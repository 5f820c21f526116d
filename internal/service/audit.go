package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID    string
	SectorID  string
	Role      models.UserRole
	IPAddress string
	UserAgent string
}

// ActorFromClaims builds an actor from validated token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, SectorID: claims.SectorID, Role: claims.Role}
}

// recordAudit stores an audit entry. Failures are logged and never fail the caller.
func recordAudit(ctx context.Context, repo auditLogger, logger *zap.Logger, actor Actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if repo == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: models.StringPtr(resourceID),
		UserID:     models.StringPtr(actor.UserID),
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := repo.CreateAuditLog(ctx, entry); err != nil {
		logger.Warn("failed to record audit log", zap.String("action", action), zap.String("resource_id", resourceID), zap.Error(err))
	}
}
