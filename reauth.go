package authcore

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/IMQS/log"
	"github.com/wI2L/jsondiff"
)

/*
ReauthenticationPolicy decides when a live session must prove its identity
again. Time drives the baseline: a session whose last re-authentication is
older than ReauthTimeoutSeconds needs one. The per-trigger switches control
which events (privilege escalation, role change, security attribute change)
demand one too, and OrganizationDefined names arbitrary deployment-specific
events that map onto the ORGANIZATION_DEFINED reason.
*/
type ReauthenticationPolicy struct {
	ReauthTimeoutSeconds            int
	ReauthOnPrivilegeEscalation     bool
	ReauthOnRoleChange              bool
	ReauthOnSecurityAttributeChange bool
	OrganizationDefinedEvents       map[string]bool
}

func DefaultReauthenticationPolicy() ReauthenticationPolicy {
	return ReauthenticationPolicy{
		ReauthTimeoutSeconds:            3600,
		ReauthOnPrivilegeEscalation:     true,
		ReauthOnRoleChange:              true,
		ReauthOnSecurityAttributeChange: true,
	}
}

// RequiresReauthentication holds when the session already has pending
// reasons, or its last re-authentication is older than the policy timeout.
func (x *ReauthenticationPolicy) RequiresReauthentication(session *Session) bool {
	if session.RequiresReauthentication() {
		return true
	}
	if x.ReauthTimeoutSeconds <= 0 {
		return false
	}
	return time.Since(session.LastReauthentication()) > time.Duration(x.ReauthTimeoutSeconds)*time.Second
}

// TimeoutVerdict says what ProcessTimeouts did to a session in one tick.
type TimeoutVerdict string

const (
	TimeoutNone        TimeoutVerdict = "NONE"
	TimeoutExpiredAge  TimeoutVerdict = "EXPIRED_AGE"
	TimeoutExpiredIdle TimeoutVerdict = "EXPIRED_IDLE"
	TimeoutReauthDue   TimeoutVerdict = "REAUTH_DUE"
)

/*
SessionTimeoutManager evaluates the three independent timeouts. Per tick, at
most one state change applies, in the order: absolute session age, then
inactivity, then re-authentication age. The first two expire the session;
the third only adds the SESSION_TIMEOUT reason.
*/
type SessionTimeoutManager struct {
	Log                      *log.Logger
	SessionTimeoutSeconds    int
	InactivityTimeoutSeconds int
	ReauthTimeoutSeconds     int
}

func NewSessionTimeoutManager(logger *log.Logger, sessionTimeoutSeconds, inactivityTimeoutSeconds, reauthTimeoutSeconds int) *SessionTimeoutManager {
	return &SessionTimeoutManager{
		Log:                      logger,
		SessionTimeoutSeconds:    sessionTimeoutSeconds,
		InactivityTimeoutSeconds: inactivityTimeoutSeconds,
		ReauthTimeoutSeconds:     reauthTimeoutSeconds,
	}
}

func (x *SessionTimeoutManager) ProcessTimeouts(session *Session) TimeoutVerdict {
	if session.State().IsTerminal() {
		return TimeoutNone
	}

	if x.SessionTimeoutSeconds > 0 && session.DurationSeconds() > int64(x.SessionTimeoutSeconds) {
		session.SetState(SessionExpired)
		x.Log.Infof("Session expired, age exceeded %vs (%v)", x.SessionTimeoutSeconds, session.UserID)
		return TimeoutExpiredAge
	}
	if x.InactivityTimeoutSeconds > 0 && session.IdleSeconds() > int64(x.InactivityTimeoutSeconds) {
		session.SetState(SessionExpired)
		x.Log.Infof("Session expired, idle exceeded %vs (%v)", x.InactivityTimeoutSeconds, session.UserID)
		return TimeoutExpiredIdle
	}
	if x.ReauthTimeoutSeconds > 0 && time.Since(session.LastReauthentication()) > time.Duration(x.ReauthTimeoutSeconds)*time.Second {
		if !session.HasReauthReason(ReauthSessionTimeout) {
			session.AddReauthReason(ReauthSessionTimeout)
			return TimeoutReauthDue
		}
	}
	return TimeoutNone
}

// RemainingSessionSeconds is the time until the age timeout, clamped to zero.
func (x *SessionTimeoutManager) RemainingSessionSeconds(session *Session) int64 {
	return clampSeconds(int64(x.SessionTimeoutSeconds) - session.DurationSeconds())
}

// RemainingInactivitySeconds is the time until the idle timeout, clamped to zero.
func (x *SessionTimeoutManager) RemainingInactivitySeconds(session *Session) int64 {
	return clampSeconds(int64(x.InactivityTimeoutSeconds) - session.IdleSeconds())
}

// RemainingReauthSeconds is the time until a re-authentication falls due,
// clamped to zero.
func (x *SessionTimeoutManager) RemainingReauthSeconds(session *Session) int64 {
	elapsed := int64(time.Since(session.LastReauthentication()).Seconds())
	return clampSeconds(int64(x.ReauthTimeoutSeconds) - elapsed)
}

func clampSeconds(seconds int64) int64 {
	if seconds < 0 {
		return 0
	}
	return seconds
}

/*
ReauthenticationTrigger translates security-relevant events into pending
re-authentication reasons, honouring the policy's per-trigger switches.
*/
type ReauthenticationTrigger struct {
	Log    *log.Logger
	policy ReauthenticationPolicy
}

func NewReauthenticationTrigger(logger *log.Logger, policy ReauthenticationPolicy) *ReauthenticationTrigger {
	return &ReauthenticationTrigger{Log: logger, policy: policy}
}

// OnPrivilegeEscalation fires when the principal requests elevated rights.
func (x *ReauthenticationTrigger) OnPrivilegeEscalation(session *Session) bool {
	if !x.policy.ReauthOnPrivilegeEscalation {
		return false
	}
	return x.apply(session, ReauthPrivilegeEscalation)
}

func (x *ReauthenticationTrigger) OnRoleChange(session *Session) bool {
	if !x.policy.ReauthOnRoleChange {
		return false
	}
	return x.apply(session, ReauthRoleChange)
}

func (x *ReauthenticationTrigger) OnSecurityAttributeChange(session *Session) bool {
	if !x.policy.ReauthOnSecurityAttributeChange {
		return false
	}
	return x.apply(session, ReauthSecurityAttributeChange)
}

// OnOrganizationDefined fires for deployment-specific events named in the
// policy's OrganizationDefinedEvents set.
func (x *ReauthenticationTrigger) OnOrganizationDefined(session *Session, event string) bool {
	if !x.policy.OrganizationDefinedEvents[event] {
		return false
	}
	return x.apply(session, ReauthOrganizationDefined)
}

func (x *ReauthenticationTrigger) apply(session *Session, reason ReauthReason) bool {
	if err := session.AddReauthReason(reason); err != nil {
		return false
	}
	x.Log.Infof("Re-authentication required, reason %v (%v)", reason, session.UserID)
	return true
}

/*
PrivilegeChangeDetector compares role sets and security attribute maps
between two observations of a principal. Attribute changes are rendered as a
JSON patch, which goes into the audit context so an operator can see exactly
what moved.
*/
type PrivilegeChangeDetector struct {
	Log *log.Logger
}

func NewPrivilegeChangeDetector(logger *log.Logger) *PrivilegeChangeDetector {
	return &PrivilegeChangeDetector{Log: logger}
}

// RolesChanged compares two role sets, ignoring order and duplicates.
func (x *PrivilegeChangeDetector) RolesChanged(oldRoles, newRoles []string) bool {
	return !equalStringSets(oldRoles, newRoles)
}

// IsEscalation reports whether newRoles grants anything oldRoles did not.
func (x *PrivilegeChangeDetector) IsEscalation(oldRoles, newRoles []string) bool {
	held := map[string]bool{}
	for _, role := range oldRoles {
		held[role] = true
	}
	for _, role := range newRoles {
		if !held[role] {
			return true
		}
	}
	return false
}

// SecurityAttributesChanged diffs the two maps. The returned patch is an
// RFC 6902 JSON Patch document, empty when nothing changed.
func (x *PrivilegeChangeDetector) SecurityAttributesChanged(oldAttrs, newAttrs map[string]interface{}) (bool, string) {
	patch, err := jsondiff.Compare(oldAttrs, newAttrs)
	if err != nil {
		x.Log.Warnf("Security attribute diff failed (%v)", err)
		return true, ""
	}
	if len(patch) == 0 {
		return false, ""
	}
	rendered, err := json.Marshal(patch)
	if err != nil {
		return true, ""
	}
	return true, string(rendered)
}

func equalStringSets(a, b []string) bool {
	as := append([]string{}, a...)
	bs := append([]string{}, b...)
	sort.Strings(as)
	sort.Strings(bs)
	as = dedupeSorted(as)
	bs = dedupeSorted(bs)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func dedupeSorted(list []string) []string {
	out := list[:0]
	for i, s := range list {
		if i == 0 || list[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}
