package authcore

import (
	"runtime"
	"sync/atomic"

	"github.com/IMQS/log"
)

type SessionStats struct {
	InvalidSessionIDs  uint64
	ExpiredSessions    uint64
	GoodSessions       uint64
	Terminations       uint64
	ReauthTriggers     uint64
	BindingViolations  uint64
	SuspiciousAccesses uint64
}

func isPowerOf2(x uint64) bool {
	return 0 == x&(x-1)
}

func (x *SessionStats) IncrementAndLog(name string, val *uint64, logger *log.Logger) {
	n := atomic.AddUint64(val, 1)
	if isPowerOf2(n) || (n&255) == 0 {
		logger.Infof("%v %v", n, name)
	}
}

func (x *SessionStats) IncrementInvalidSessionID(logger *log.Logger) {
	x.IncrementAndLog("invalid session ids", &x.InvalidSessionIDs, logger)
}

func (x *SessionStats) IncrementExpiredSession(logger *log.Logger) {
	x.IncrementAndLog("expired sessions", &x.ExpiredSessions, logger)
}

func (x *SessionStats) IncrementGoodSession(logger *log.Logger) {
	x.IncrementAndLog("good sessions", &x.GoodSessions, logger)
}

func (x *SessionStats) IncrementTermination(logger *log.Logger) {
	x.IncrementAndLog("terminations", &x.Terminations, logger)
}

func (x *SessionStats) IncrementReauthTrigger(logger *log.Logger) {
	x.IncrementAndLog("reauth triggers", &x.ReauthTriggers, logger)
}

func (x *SessionStats) IncrementBindingViolation(logger *log.Logger) {
	x.IncrementAndLog("binding violations", &x.BindingViolations, logger)
}

func (x *SessionStats) IncrementSuspiciousAccess(logger *log.Logger) {
	x.IncrementAndLog("suspicious accesses", &x.SuspiciousAccesses, logger)
}

// SessionValidator answers whether a session is still acceptable for use,
// without mutating it.
type SessionValidator struct {
	timeouts *SessionTimeoutManager
}

func NewSessionValidator(timeouts *SessionTimeoutManager) *SessionValidator {
	return &SessionValidator{timeouts: timeouts}
}

func (x *SessionValidator) IsExpired(session *Session) bool {
	if session.State() == SessionExpired {
		return true
	}
	return x.timeouts.SessionTimeoutSeconds > 0 && session.DurationSeconds() > int64(x.timeouts.SessionTimeoutSeconds)
}

func (x *SessionValidator) IsInactive(session *Session) bool {
	return x.timeouts.InactivityTimeoutSeconds > 0 && session.IdleSeconds() > int64(x.timeouts.InactivityTimeoutSeconds)
}

// IsValid means: not nil, not terminal, not SUSPENDED, not past its age
// timeout, not past its idle timeout. A session pending re-authentication is still valid; it just
// cannot do anything privileged until it re-proves itself.
func (x *SessionValidator) IsValid(session *Session) bool {
	if session == nil || session.State().IsTerminal() || session.State() == SessionSuspended {
		return false
	}
	return !x.IsExpired(session) && !x.IsInactive(session)
}

// ValidateSecurityContext checks that the session's security attributes
// still carry the keys the caller requires.
func (x *SessionValidator) ValidateSecurityContext(session *Session, requiredKeys []string) bool {
	for _, key := range requiredKeys {
		if _, exists := session.SecurityAttribute(key); !exists {
			return false
		}
	}
	return true
}

/*
SessionManager is the single hub that higher layers talk to for sessions.
All public methods of SessionManager are callable from multiple threads.

Every read of a session through Get applies the timeout rules first, so a
session that outlived its age or idle budget transitions to EXPIRED the
moment anyone looks at it.
*/
type SessionManager struct {
	// Stats must be first so that we are guaranteed to get it 8-byte aligned.
	// We atomically increment counters inside SessionStats, and the atomic
	// functions need 8-byte alignment on their operands.
	Stats   SessionStats
	Auditor Auditor
	Log     *log.Logger

	store       SessionStore
	creation    *SessionCreationService
	renewal     *SessionRenewalService
	termination *SessionTerminationService
	concurrent  *ConcurrentSessionManager
	timeouts    *SessionTimeoutManager
	validator   *SessionValidator
	reauth      ReauthenticationPolicy
	trigger     *ReauthenticationTrigger
	hijacking   *HijackingPrevention
}

// NewSessionManager assembles the session subsystem from the specified pieces.
// store may be nil, in which case an in-memory store is used.
func NewSessionManager(logfile string, cfg *Config, store SessionStore) *SessionManager {
	m := &SessionManager{}
	m.Log = log.New(resolveLogfile(logfile), runtime.GOOS != "windows")
	if store == nil {
		store = newMemSessionStore()
	}
	m.store = store

	generator := NewSessionIDGenerator()
	m.creation = NewSessionCreationService(m.Log, store, generator, cfg.MaxConcurrentSessions)
	m.renewal = NewSessionRenewalService(m.Log, store, generator)
	m.termination = NewSessionTerminationService(m.Log, store)
	m.concurrent = NewConcurrentSessionManager(m.Log, store, cfg.MaxConcurrentSessions)
	m.timeouts = NewSessionTimeoutManager(m.Log, cfg.SessionTimeoutMinutes*60, cfg.InactivityTimeoutSeconds, cfg.ReauthTimeoutSeconds)
	m.validator = NewSessionValidator(m.timeouts)
	m.reauth = DefaultReauthenticationPolicy()
	m.reauth.ReauthTimeoutSeconds = cfg.ReauthTimeoutSeconds
	m.trigger = NewReauthenticationTrigger(m.Log, m.reauth)
	m.hijacking = NewHijackingPrevention(m.Log, cfg.EnforceIPBinding, cfg.EnforceUserAgentBinding, cfg.MaxConcurrentSessions)

	m.Log.Infof("Session manager started up\n")
	return m
}

func resolveLogfile(logfile string) string {
	if logfile != "" {
		return logfile
	}
	return log.Stdout
}

func (x *SessionManager) audit(identity, item string, action AuditActionType) {
	if x.Auditor != nil {
		x.Auditor.AuditUserAction(identity, item, "", action)
	}
}

// Create starts a session for the user, enforcing the concurrent limit.
func (x *SessionManager) Create(userID, ipAddress, userAgent string) (*Session, error) {
	session, err := x.creation.Create(userID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	x.Stats.IncrementGoodSession(x.Log)
	x.audit(userID, "Session", AuditActionSessionCreated)
	return session, nil
}

// Get returns the session if it is still valid. A session that has outlived
// a timeout transitions to EXPIRED on this read and Get returns nil.
func (x *SessionManager) Get(sessionID string) *Session {
	session, err := x.store.Get(sessionID)
	if err != nil || session == nil {
		x.Stats.IncrementInvalidSessionID(x.Log)
		return nil
	}
	x.timeouts.ProcessTimeouts(session)
	if !x.validator.IsValid(session) {
		if !session.State().IsTerminal() {
			session.SetState(SessionExpired)
		}
		if session.State() == SessionExpired {
			x.Stats.IncrementExpiredSession(x.Log)
		}
		return nil
	}
	return session
}

// Validate checks existence, timeouts, origin binding and anomaly signals in
// one call. Suspicious activity does not fail validation; it adds the
// SUSPICIOUS_ACTIVITY reason and lets the caller decide.
func (x *SessionManager) Validate(sessionID, ipAddress, userAgent string) bool {
	session := x.Get(sessionID)
	if session == nil {
		return false
	}
	if !x.hijacking.ValidateSessionBinding(session, ipAddress, userAgent) {
		x.Stats.IncrementBindingViolation(x.Log)
		return false
	}
	if x.hijacking.DetectSuspiciousActivity(session, ipAddress) {
		x.Stats.IncrementSuspiciousAccess(x.Log)
		session.AddReauthReason(ReauthSuspiciousActivity)
	}
	return true
}

// Touch renews the session: bumps the access count and moves lastAccessed.
func (x *SessionManager) Touch(sessionID string) (*Session, error) {
	return x.renewal.Renew(sessionID)
}

// RegenerateID swaps the session onto a fresh id, preserving its state and
// attributes. Call this on privilege boundaries to shut out fixation.
func (x *SessionManager) RegenerateID(sessionID string) (*Session, error) {
	session, err := x.renewal.RegenerateID(sessionID)
	if err != nil {
		return nil, err
	}
	x.audit(session.UserID, "Session", AuditActionSessionRegenerated)
	return session, nil
}

// TriggerReauth adds a pending re-authentication reason to the session.
func (x *SessionManager) TriggerReauth(sessionID string, reason ReauthReason) error {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return NewError(ErrSessionNotFound, sessionID)
	}
	if err := session.AddReauthReason(reason); err != nil {
		return err
	}
	x.Stats.IncrementReauthTrigger(x.Log)
	x.Log.Infof("Re-authentication triggered, reason %v (%v)", reason, session.UserID)
	x.audit(session.UserID, "Session", AuditActionReauthRequired)
	return nil
}

// IsReauthenticationRequired applies the re-authentication policy: pending
// reasons, or a stale lastReauthentication.
func (x *SessionManager) IsReauthenticationRequired(sessionID string) (bool, error) {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, NewError(ErrSessionNotFound, sessionID)
	}
	return x.reauth.RequiresReauthentication(session), nil
}

// MarkReauthenticated completes a re-authentication for the session.
func (x *SessionManager) MarkReauthenticated(sessionID string) error {
	session, err := x.renewal.RefreshAfterReauth(sessionID)
	if err != nil {
		return err
	}
	x.audit(session.UserID, "Session", AuditActionReauthCompleted)
	return nil
}

// Terminate flips the session to TERMINATED. The record is retained.
func (x *SessionManager) Terminate(sessionID string) error {
	if err := x.termination.Terminate(sessionID); err != nil {
		return err
	}
	x.Stats.IncrementTermination(x.Log)
	return nil
}

// Delete removes the session record entirely.
func (x *SessionManager) Delete(sessionID string) error {
	return x.termination.Delete(sessionID)
}

// TerminateAllUserSessions ends every non-terminal session of the user
// (SUSPENDED included) and returns the count.
func (x *SessionManager) TerminateAllUserSessions(userID string) (int, error) {
	count, err := x.termination.TerminateAllUserSessions(userID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		x.audit(userID, "Session", AuditActionSessionTerminated)
	}
	return count, nil
}

// TerminateAllExcept ends every non-terminal session of the user other than
// keepID, and returns the count.
func (x *SessionManager) TerminateAllExcept(userID, keepID string) (int, error) {
	return x.termination.TerminateAllExcept(userID, keepID)
}

// GetActiveSessionCount counts the user's sessions in ACTIVE or REQUIRES_REAUTH.
func (x *SessionManager) GetActiveSessionCount(userID string) (int, error) {
	return x.concurrent.ActiveSessionCount(userID)
}

// Timeouts exposes the timeout manager for remaining-time queries.
func (x *SessionManager) Timeouts() *SessionTimeoutManager {
	return x.timeouts
}

// Hijacking exposes the hijacking-prevention checks.
func (x *SessionManager) Hijacking() *HijackingPrevention {
	return x.hijacking
}

// Trigger exposes the event-driven re-authentication trigger.
func (x *SessionManager) Trigger() *ReauthenticationTrigger {
	return x.trigger
}

func (x *SessionManager) Close() {
	if x.store != nil {
		x.store.Close()
		x.store = nil
	}
	if x.Log != nil {
		x.Log.Infof("Session manager has shut down")
	}
}
