package authcore

import (
	"strings"
	"time"

	"github.com/IMQS/log"
)

const (
	// A session that has never been touched but is older than this is
	// treated as a possible fixation attempt.
	fixationIdleThreshold = 300 * time.Second

	// Access counts beyond this are flagged as anomalous regardless of origin.
	suspiciousAccessCount = 1000
)

/*
HijackingPrevention binds sessions to their origin and looks for the access
patterns of a stolen or fixated session id. Binding checks are exact-match;
the suspicion heuristics are deliberately coarse (a /24 comparison and an
access-count ceiling) and feed the SUSPICIOUS_ACTIVITY reason rather than
terminating anything themselves.
*/
type HijackingPrevention struct {
	Log                     *log.Logger
	EnforceIPBinding        bool
	EnforceUserAgentBinding bool
	MaxConcurrentSessions   int

	generator *SessionIDGenerator
}

func NewHijackingPrevention(logger *log.Logger, enforceIP, enforceUserAgent bool, maxConcurrentSessions int) *HijackingPrevention {
	return &HijackingPrevention{
		Log:                     logger,
		EnforceIPBinding:        enforceIP,
		EnforceUserAgentBinding: enforceUserAgent,
		MaxConcurrentSessions:   maxConcurrentSessions,
		generator:               NewSessionIDGenerator(),
	}
}

// ValidateSessionBinding checks the request's origin against the values
// captured at session creation. A session created without an IP (or user
// agent) skips that check.
func (x *HijackingPrevention) ValidateSessionBinding(session *Session, ipAddress, userAgent string) bool {
	if x.EnforceIPBinding && session.IPAddress != "" {
		if session.IPAddress != ipAddress {
			x.Log.Warnf("Session IP binding violated, %v != %v (%v)", ipAddress, session.IPAddress, session.UserID)
			return false
		}
	}
	if x.EnforceUserAgentBinding && session.UserAgent != "" {
		if session.UserAgent != userAgent {
			x.Log.Warnf("Session user-agent binding violated (%v)", session.UserID)
			return false
		}
	}
	return true
}

// DetectSuspiciousActivity flags an IP that moved outside the stored
// address's /24, and independently flags an implausible access count.
func (x *HijackingPrevention) DetectSuspiciousActivity(session *Session, ipAddress string) bool {
	if session.IPAddress != "" && ipAddress != "" && session.IPAddress != ipAddress {
		if !sameSubnet24(session.IPAddress, ipAddress) {
			x.Log.Warnf("Session moved networks, %v -> %v (%v)", session.IPAddress, ipAddress, session.UserID)
			return true
		}
	}
	if session.AccessCount() > suspiciousAccessCount {
		x.Log.Warnf("Session access count %v exceeds threshold (%v)", session.AccessCount(), session.UserID)
		return true
	}
	return false
}

// DetectSessionFixation flags a session that was created long ago but never
// accessed. An id that was planted rather than issued tends to look exactly
// like this.
func (x *HijackingPrevention) DetectSessionFixation(session *Session) bool {
	if session.AccessCount() != 0 {
		return false
	}
	return time.Since(session.LastAccessed()) > fixationIdleThreshold
}

// IsConcurrentSessionLimitExceeded is the bare limit predicate.
func (x *HijackingPrevention) IsConcurrentSessionLimitExceeded(activeCount int) bool {
	if x.MaxConcurrentSessions <= 0 {
		return false
	}
	return activeCount >= x.MaxConcurrentSessions
}

// RegenerateSessionID draws a fresh id. Swapping the stored session onto it
// is the caller's job (see SessionRenewalService.RegenerateID).
func (x *HijackingPrevention) RegenerateSessionID() string {
	return x.generator.Generate()
}

// sameSubnet24 compares the first three dotted octets of two IPv4 addresses.
// Anything that does not look like dotted-quad compares false.
func sameSubnet24(a, b string) bool {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	if len(aParts) != 4 || len(bParts) != 4 {
		return false
	}
	return aParts[0] == bParts[0] && aParts[1] == bParts[1] && aParts[2] == bParts[2]
}
