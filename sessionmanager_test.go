package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testSessionConfig() *Config {
	cfg := &Config{}
	cfg.Reset()
	cfg.MaxConcurrentSessions = 2
	cfg.EnforceIPBinding = true
	cfg.EnforceUserAgentBinding = true
	return cfg
}

func newTestSessionManager(t *testing.T, cfg *Config) (*SessionManager, *dummyAuditor) {
	manager := NewSessionManager("", cfg, nil)
	auditor := newDummyAuditor()
	manager.Auditor = auditor
	return manager, auditor
}

func TestSessionManagerCreateAndGet(t *testing.T) {
	manager, auditor := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	assert.True(t, auditor.has(aliceIdentity, AuditActionSessionCreated))

	got := manager.Get(session.SessionID)
	if got == nil {
		t.Fatalf("Get returned nil for a live session")
	}
	assert.Equal(t, session.SessionID, got.SessionID)

	assert.Nil(t, manager.Get("no-such-session"))
	assert.True(t, manager.Stats.InvalidSessionIDs > 0)
}

func TestSessionManagerConcurrentLimit(t *testing.T) {
	manager, _ := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	if _, err := manager.Create(carolIdentity, homeIP, homeAgent); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := manager.Create(carolIdentity, homeIP, homeAgent); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := manager.Create(carolIdentity, homeIP, homeAgent); !hasBase(err, ErrConcurrentLimit) {
		t.Errorf("Expected ErrConcurrentLimit, got %v", err)
	}

	count, err := manager.GetActiveSessionCount(carolIdentity)
	if err != nil {
		t.Fatalf("GetActiveSessionCount failed: %v", err)
	}
	assert.Equal(t, 2, count)
}

func TestSessionManagerValidate(t *testing.T) {
	manager, _ := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	assert.True(t, manager.Validate(session.SessionID, homeIP, homeAgent))

	// A binding violation fails validation outright
	assert.False(t, manager.Validate(session.SessionID, awayIP, homeAgent))
	assert.True(t, manager.Stats.BindingViolations > 0)

	assert.False(t, manager.Validate("no-such-session", homeIP, homeAgent))
}

func TestSessionManagerSuspiciousActivity(t *testing.T) {
	cfg := testSessionConfig()
	cfg.EnforceIPBinding = false
	manager, _ := newTestSessionManager(t, cfg)
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// With IP binding off, a network move still validates, but flags the
	// session for re-authentication
	assert.True(t, manager.Validate(session.SessionID, awayIP, homeAgent))
	assert.True(t, session.HasReauthReason(ReauthSuspiciousActivity))
	assert.True(t, manager.Stats.SuspiciousAccesses > 0)
}

func TestSessionManagerTimeouts(t *testing.T) {
	cfg := testSessionConfig()
	cfg.SessionTimeoutMinutes = 30
	manager, _ := newTestSessionManager(t, cfg)
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Age the session past its absolute timeout; the next Get expires it
	session.CreatedAt = time.Now().Add(-31 * time.Minute)
	assert.Nil(t, manager.Get(session.SessionID))
	assert.Equal(t, SessionExpired, session.State())
	assert.True(t, manager.Stats.ExpiredSessions > 0)
}

func TestSessionManagerReauthFlow(t *testing.T) {
	manager, auditor := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	required, err := manager.IsReauthenticationRequired(session.SessionID)
	if err != nil {
		t.Fatalf("IsReauthenticationRequired failed: %v", err)
	}
	assert.False(t, required)

	if err := manager.TriggerReauth(session.SessionID, ReauthManualRequest); err != nil {
		t.Fatalf("TriggerReauth failed: %v", err)
	}
	assert.True(t, auditor.has(aliceIdentity, AuditActionReauthRequired))

	required, _ = manager.IsReauthenticationRequired(session.SessionID)
	assert.True(t, required)
	assert.Equal(t, SessionRequiresReauth, session.State())

	// A session pending reauth is still retrievable
	assert.NotNil(t, manager.Get(session.SessionID))

	if err := manager.MarkReauthenticated(session.SessionID); err != nil {
		t.Fatalf("MarkReauthenticated failed: %v", err)
	}
	assert.True(t, auditor.has(aliceIdentity, AuditActionReauthCompleted))
	assert.Equal(t, SessionActive, session.State())

	if err := manager.TriggerReauth("no-such-session", ReauthManualRequest); !hasBase(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManagerRegenerateID(t *testing.T) {
	manager, auditor := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	session.SetAttribute("key1", "value1")
	oldID := session.SessionID

	replacement, err := manager.RegenerateID(oldID)
	if err != nil {
		t.Fatalf("RegenerateID failed: %v", err)
	}
	assert.NotEqual(t, oldID, replacement.SessionID)
	assert.Nil(t, manager.Get(oldID))
	assert.NotNil(t, manager.Get(replacement.SessionID))
	value, _ := replacement.Attribute("key1")
	assert.Equal(t, "value1", value)
	assert.True(t, auditor.has(aliceIdentity, AuditActionSessionRegenerated))
}

func TestSessionManagerTerminate(t *testing.T) {
	manager, auditor := newTestSessionManager(t, testSessionConfig())
	defer manager.Close()

	session, err := manager.Create(aliceIdentity, homeIP, homeAgent)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := manager.Terminate(session.SessionID); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	assert.Nil(t, manager.Get(session.SessionID))
	assert.True(t, manager.Stats.Terminations > 0)

	if err := manager.Delete(session.SessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	s1, _ := manager.Create(bobIdentity, homeIP, homeAgent)
	manager.Create(bobIdentity, homeIP, homeAgent)
	count, err := manager.TerminateAllUserSessions(bobIdentity)
	if err != nil {
		t.Fatalf("TerminateAllUserSessions failed: %v", err)
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, SessionTerminated, s1.State())
	assert.True(t, auditor.has(bobIdentity, AuditActionSessionTerminated))
}

func TestSessionValidatorSecurityContext(t *testing.T) {
	timeouts := newTimeoutManager(1800, 600, 3600)
	validator := NewSessionValidator(timeouts)

	session := newSession("s1", aliceIdentity, homeIP, homeAgent, time.Now())
	session.SetSecurityAttribute("clearance", "secret")

	assert.True(t, validator.ValidateSecurityContext(session, []string{"clearance"}))
	assert.False(t, validator.ValidateSecurityContext(session, []string{"clearance", "department"}))
	assert.True(t, validator.ValidateSecurityContext(session, nil))

	assert.True(t, validator.IsValid(session))
	session.SetState(SessionSuspended)
	assert.False(t, validator.IsValid(session))
	assert.False(t, validator.IsValid(nil))
}

func TestSessionStatsDamping(t *testing.T) {
	assert.True(t, isPowerOf2(1))
	assert.True(t, isPowerOf2(2))
	assert.True(t, isPowerOf2(1024))
	assert.False(t, isPowerOf2(3))
	assert.False(t, isPowerOf2(1000))
}
