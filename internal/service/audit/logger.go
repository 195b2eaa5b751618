package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/pkg/logger"
)

// AuditLogger writes audit entries on a best-effort basis: a failed write is
// logged and never fails the operation being audited.
type AuditLogger struct {
	service *Service
	log     *logger.Logger
}

func NewAuditLogger(service *Service, log *logger.Logger) *AuditLogger {
	return &AuditLogger{
		service: service,
		log:     log,
	}
}

func (l *AuditLogger) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	if err := l.service.Log(ctx, userID, action, entityType, entityID, opts); err != nil {
		l.log.Error(err, "failed to write audit log",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID.String(),
		)
	}
}

// LogSync returns the write error to the caller.
func (l *AuditLogger) LogSync(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	return l.service.Log(ctx, userID, action, entityType, entityID, opts)
}
