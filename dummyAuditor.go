package authcore

import (
	"sync"
)

// Auditor that simply records audit entries in memory, for tests
type dummyAuditor struct {
	entriesLock sync.Mutex
	entries     []dummyAuditEntry
}

type dummyAuditEntry struct {
	identity string
	item     string
	context  string
	action   AuditActionType
}

func newDummyAuditor() *dummyAuditor {
	return &dummyAuditor{}
}

func (d *dummyAuditor) AuditUserAction(identity, item, context string, auditActionType AuditActionType) {
	d.entriesLock.Lock()
	defer d.entriesLock.Unlock()
	d.entries = append(d.entries, dummyAuditEntry{identity, item, context, auditActionType})
}

func (d *dummyAuditor) has(identity string, action AuditActionType) bool {
	d.entriesLock.Lock()
	defer d.entriesLock.Unlock()
	for _, entry := range d.entries {
		if entry.identity == identity && entry.action == action {
			return true
		}
	}
	return false
}

func (d *dummyAuditor) count() int {
	d.entriesLock.Lock()
	defer d.entriesLock.Unlock()
	return len(d.entries)
}
