package authcore

import (
	"github.com/IMQS/log"
)

type AuditActionType string

const (
	AuditActionAuthentication     AuditActionType = "Login"
	AuditActionFailedLogin        AuditActionType = "Failed Login"
	AuditActionCreated            AuditActionType = "Created"
	AuditActionUpdated            AuditActionType = "Updated"
	AuditActionDeleted            AuditActionType = "Deleted"
	AuditActionRevoked            AuditActionType = "Revoked"
	AuditActionExpired            AuditActionType = "Expired"
	AuditActionLocked             AuditActionType = "Account Locked"
	AuditActionUnlocked           AuditActionType = "Account Unlocked"
	AuditActionSessionCreated     AuditActionType = "Session Created"
	AuditActionSessionTerminated  AuditActionType = "Session Terminated"
	AuditActionSessionRegenerated AuditActionType = "Session Id Regenerated"
	AuditActionReauthRequired     AuditActionType = "Reauthentication Required"
	AuditActionReauthCompleted    AuditActionType = "Reauthentication Completed"
)

type Auditor interface {
	AuditUserAction(identity, item, context string, auditActionType AuditActionType)
}

// logAuditor writes the audit trail through the ordinary logger. Deployments
// with a real audit backend implement Auditor themselves.
type logAuditor struct {
	logger *log.Logger
}

func NewLogAuditor(logger *log.Logger) Auditor {
	return &logAuditor{logger: logger}
}

func (x *logAuditor) AuditUserAction(identity, item, context string, auditActionType AuditActionType) {
	if context != "" {
		x.logger.Infof("AUDIT %v: %v (%v) (%v)", auditActionType, identity, item, context)
	} else {
		x.logger.Infof("AUDIT %v: %v (%v)", auditActionType, identity, item)
	}
}
