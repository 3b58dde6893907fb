package authcore

import (
	"sync"
	"time"
)

type SessionState string

const (
	SessionActive         SessionState = "ACTIVE"
	SessionRequiresReauth SessionState = "REQUIRES_REAUTH"
	SessionExpired        SessionState = "EXPIRED"
	SessionTerminated     SessionState = "TERMINATED"
	SessionSuspended      SessionState = "SUSPENDED"
)

// IsTerminal reports whether the state admits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == SessionExpired || s == SessionTerminated
}

// ReauthReason is an enumerated cause requiring the principal to prove
// identity again without invalidating the session.
type ReauthReason string

const (
	ReauthSessionTimeout          ReauthReason = "SESSION_TIMEOUT"
	ReauthPrivilegeEscalation     ReauthReason = "PRIVILEGE_ESCALATION"
	ReauthRoleChange              ReauthReason = "ROLE_CHANGE"
	ReauthSecurityAttributeChange ReauthReason = "SECURITY_ATTRIBUTE_CHANGE"
	ReauthOrganizationDefined     ReauthReason = "ORGANIZATION_DEFINED"
	ReauthSuspiciousActivity      ReauthReason = "SUSPICIOUS_ACTIVITY"
	ReauthManualRequest           ReauthReason = "MANUAL_REQUEST"
	ReauthSessionRenewal          ReauthReason = "SESSION_RENEWAL"
)

/*
Session is the server-side record of an ongoing authenticated interaction,
keyed by an opaque high-entropy id. A session carries two invariants:

  - RequiresReauthentication is true exactly when the state is
    REQUIRES_REAUTH or there is at least one pending reason.
  - EXPIRED and TERMINATED are terminal.

The session guards its own mutable fields, so a session retrieved from a
SessionStore can be touched from multiple request contexts concurrently.
SessionID, UserID, CreatedAt, IPAddress and UserAgent never change after
creation; regenerating the id produces a new Session.
*/
type Session struct {
	SessionID string
	UserID    string
	CreatedAt time.Time
	IPAddress string
	UserAgent string

	lock                 sync.Mutex
	state                SessionState
	lastAccessed         time.Time
	lastReauthentication time.Time
	accessCount          int64
	attributes           map[string]interface{}
	securityAttributes   map[string]interface{}
	pendingReauthReasons map[ReauthReason]bool
}

func newSession(sessionID, userID, ipAddress, userAgent string, now time.Time) *Session {
	return &Session{
		SessionID:            sessionID,
		UserID:               userID,
		CreatedAt:            now,
		IPAddress:            ipAddress,
		UserAgent:            userAgent,
		state:                SessionActive,
		lastAccessed:         now,
		lastReauthentication: now,
		attributes:           make(map[string]interface{}),
		securityAttributes:   make(map[string]interface{}),
		pendingReauthReasons: make(map[ReauthReason]bool),
	}
}

func (x *Session) State() SessionState {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.state
}

// SetState transitions the session. Transitions out of a terminal state are
// rejected.
func (x *Session) SetState(state SessionState) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	if x.state.IsTerminal() && state != x.state {
		return NewError(ErrSessionNotRenewable, string(x.state))
	}
	x.state = state
	return nil
}

// Touch records an access: bumps the access count and moves lastAccessed.
func (x *Session) Touch() {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.lastAccessed = time.Now()
	x.accessCount++
}

func (x *Session) AccessCount() int64 {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.accessCount
}

func (x *Session) LastAccessed() time.Time {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.lastAccessed
}

func (x *Session) LastReauthentication() time.Time {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.lastReauthentication
}

// AddReauthReason records a pending reason. An ACTIVE session transitions to
// REQUIRES_REAUTH; a terminal session rejects the reason.
func (x *Session) AddReauthReason(reason ReauthReason) error {
	x.lock.Lock()
	defer x.lock.Unlock()
	if x.state.IsTerminal() {
		return NewError(ErrSessionNotRenewable, string(x.state))
	}
	x.pendingReauthReasons[reason] = true
	if x.state == SessionActive {
		x.state = SessionRequiresReauth
	}
	return nil
}

// MarkReauthenticated clears all pending reasons, records the
// re-authentication time, and returns a REQUIRES_REAUTH session to ACTIVE.
func (x *Session) MarkReauthenticated() {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.pendingReauthReasons = make(map[ReauthReason]bool)
	x.lastReauthentication = time.Now()
	if x.state == SessionRequiresReauth {
		x.state = SessionActive
	}
}

// RequiresReauthentication holds exactly when the state is REQUIRES_REAUTH
// or a reason is pending.
func (x *Session) RequiresReauthentication() bool {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.state == SessionRequiresReauth || len(x.pendingReauthReasons) > 0
}

func (x *Session) PendingReauthReasons() []ReauthReason {
	x.lock.Lock()
	defer x.lock.Unlock()
	reasons := make([]ReauthReason, 0, len(x.pendingReauthReasons))
	for reason := range x.pendingReauthReasons {
		reasons = append(reasons, reason)
	}
	return reasons
}

func (x *Session) HasReauthReason(reason ReauthReason) bool {
	x.lock.Lock()
	defer x.lock.Unlock()
	return x.pendingReauthReasons[reason]
}

func (x *Session) SetAttribute(key string, value interface{}) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.attributes[key] = value
}

func (x *Session) Attribute(key string) (interface{}, bool) {
	x.lock.Lock()
	defer x.lock.Unlock()
	value, exists := x.attributes[key]
	return value, exists
}

// Attributes returns a copy of the attribute map.
func (x *Session) Attributes() map[string]interface{} {
	x.lock.Lock()
	defer x.lock.Unlock()
	return copyAttributes(x.attributes)
}

func (x *Session) SetSecurityAttribute(key string, value interface{}) {
	x.lock.Lock()
	defer x.lock.Unlock()
	x.securityAttributes[key] = value
}

func (x *Session) SecurityAttribute(key string) (interface{}, bool) {
	x.lock.Lock()
	defer x.lock.Unlock()
	value, exists := x.securityAttributes[key]
	return value, exists
}

// SecurityAttributes returns a copy of the security attribute map.
func (x *Session) SecurityAttributes() map[string]interface{} {
	x.lock.Lock()
	defer x.lock.Unlock()
	return copyAttributes(x.securityAttributes)
}

// DurationSeconds is the positive age of the session.
func (x *Session) DurationSeconds() int64 {
	return int64(time.Since(x.CreatedAt).Seconds())
}

// IdleSeconds is the time since the last access.
func (x *Session) IdleSeconds() int64 {
	return int64(time.Since(x.LastAccessed()).Seconds())
}

// IsLive reports whether the session counts toward the concurrent-session
// limit: ACTIVE or REQUIRES_REAUTH.
func (x *Session) IsLive() bool {
	state := x.State()
	return state == SessionActive || state == SessionRequiresReauth
}

func copyAttributes(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
