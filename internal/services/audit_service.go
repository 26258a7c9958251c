package services

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"coopledger/internal/logger"
	"coopledger/internal/models"
	"coopledger/internal/repository"
)

// redactedKeys are shareholder fields stored encrypted at rest. Their
// plaintext must not reach the audit trail.
var redactedKeys = map[string]bool{
	"national_id": true,
	"iban":        true,
	"bic":         true,
}

const redacted = "[redacted]"

type auditService struct {
	logs repository.AuditLogRepository
	log  *zap.SugaredLogger
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(store repository.Store) AuditServicer {
	return &auditService{logs: store.AuditLogs(), log: logger.Named("audit")}
}

// Log records who did what to which ledger resource. A failed write is
// logged and swallowed so the audited operation, which has already
// committed, still reports success.
func (s *auditService) Log(ctx context.Context, actor, coopID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{}) {
	entry := &models.AuditLog{
		CoopID:       coopID,
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      s.encodeChanges(action, changes),
	}

	if err := s.logs.Create(ctx, entry); err != nil {
		s.log.Errorw("failed to write audit entry",
			"error", err,
			"coop_id", coopID,
			"actor", actor,
			"action", action,
			"resource", resourceType+"/"+resourceID,
		)
	}
}

func (s *auditService) encodeChanges(action string, changes map[string]interface{}) string {
	if len(changes) == 0 {
		return ""
	}
	clean := make(map[string]interface{}, len(changes))
	for k, v := range changes {
		if redactedKeys[strings.ToLower(k)] {
			clean[k] = redacted
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		s.log.Warnw("audit changes not serializable", "error", err, "action", action)
		return "{}"
	}
	return string(data)
}
