package authcore

import (
	"crypto/rand"
	"encoding/base64"
	"sort"
	"sync"
	"time"

	"github.com/IMQS/log"
)

const (
	// 32 bytes of entropy, base64url encoded without padding = 43 printable
	// characters. With 256 bits of entropy, a population of a million live
	// sessions still leaves an attacker a search space far beyond reach.
	defaultSessionIDBytes = 32
)

// SessionIDGenerator draws session ids from crypto/rand and encodes them
// URL-safe without padding, so an id can travel in a cookie or a path
// segment unescaped.
type SessionIDGenerator struct {
	numBytes int
}

func NewSessionIDGenerator() *SessionIDGenerator {
	return &SessionIDGenerator{numBytes: defaultSessionIDBytes}
}

func NewSessionIDGeneratorWithLength(numBytes int) (*SessionIDGenerator, error) {
	if numBytes < 16 {
		return nil, NewError(ErrInvalidArgument, "session ids need at least 16 bytes of entropy")
	}
	return &SessionIDGenerator{numBytes: numBytes}, nil
}

func (x *SessionIDGenerator) Generate() string {
	raw := make([]byte, x.numBytes)
	rand.Read(raw)
	return base64.RawURLEncoding.EncodeToString(raw)
}

/*
SessionCreationService creates sessions, enforcing the concurrent-session
limit. The count-then-insert pair runs under one mutex so two racing creates
cannot both slip under the limit.
*/
type SessionCreationService struct {
	Log           *log.Logger
	store         SessionStore
	generator     *SessionIDGenerator
	maxConcurrent int

	createLock sync.Mutex
}

func NewSessionCreationService(logger *log.Logger, store SessionStore, generator *SessionIDGenerator, maxConcurrent int) *SessionCreationService {
	return &SessionCreationService{
		Log:           logger,
		store:         store,
		generator:     generator,
		maxConcurrent: maxConcurrent,
	}
}

// Create starts a new ACTIVE session for the user. ipAddress and userAgent
// may be empty; absent values skip the hijacking binding checks later.
func (x *SessionCreationService) Create(userID, ipAddress, userAgent string) (*Session, error) {
	if userID == "" {
		return nil, ErrIdentifierEmpty
	}

	x.createLock.Lock()
	defer x.createLock.Unlock()

	if x.maxConcurrent > 0 {
		count, err := x.store.CountActiveForUser(userID)
		if err != nil {
			return nil, err
		}
		if count >= x.maxConcurrent {
			x.Log.Warnf("Session creation rejected, %v active sessions (%v)", count, userID)
			return nil, NewError(ErrConcurrentLimit, userID)
		}
	}

	session := newSession(x.generator.Generate(), userID, ipAddress, userAgent, time.Now())
	if err := x.store.Put(session); err != nil {
		return nil, err
	}
	x.Log.Infof("Session created (%v)", userID)
	return session, nil
}

/*
SessionRenewalService renews sessions and regenerates session ids. Renewal is
only permitted while the session is ACTIVE or REQUIRES_REAUTH.
*/
type SessionRenewalService struct {
	Log       *log.Logger
	store     SessionStore
	generator *SessionIDGenerator
}

func NewSessionRenewalService(logger *log.Logger, store SessionStore, generator *SessionIDGenerator) *SessionRenewalService {
	return &SessionRenewalService{Log: logger, store: store, generator: generator}
}

// Renew records an access on a live session. EXPIRED and TERMINATED reject.
func (x *SessionRenewalService) Renew(sessionID string) (*Session, error) {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewError(ErrSessionNotFound, sessionID)
	}
	if !session.IsLive() {
		return nil, NewError(ErrSessionNotRenewable, string(session.State()))
	}
	session.Touch()
	return session, nil
}

// RegenerateID swaps the session onto a fresh id. The replacement inherits
// the state, the origin binding (IP, user agent), both attribute maps and
// any pending re-authentication reasons; its CreatedAt resets to now. The
// old id disappears atomically with the new id's appearance.
func (x *SessionRenewalService) RegenerateID(sessionID string) (*Session, error) {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewError(ErrSessionNotFound, sessionID)
	}

	now := time.Now()
	replacement := newSession(x.generator.Generate(), session.UserID, session.IPAddress, session.UserAgent, now)
	replacement.state = session.State()
	replacement.lastReauthentication = session.LastReauthentication()
	replacement.attributes = session.Attributes()
	replacement.securityAttributes = session.SecurityAttributes()
	for _, reason := range session.PendingReauthReasons() {
		replacement.pendingReauthReasons[reason] = true
	}

	if err := x.store.Swap(sessionID, replacement); err != nil {
		return nil, err
	}
	x.Log.Infof("Session id regenerated (%v)", session.UserID)
	return replacement, nil
}

// RefreshAfterReauth completes a re-authentication: pending reasons clear,
// the re-authentication time moves to now, REQUIRES_REAUTH returns to ACTIVE.
func (x *SessionRenewalService) RefreshAfterReauth(sessionID string) (*Session, error) {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewError(ErrSessionNotFound, sessionID)
	}
	session.MarkReauthenticated()
	x.Log.Infof("Session re-authenticated (%v)", session.UserID)
	return session, nil
}

/*
SessionTerminationService ends sessions. Termination flips the state to
TERMINATED but retains the record for audit; deletion removes the record.
*/
type SessionTerminationService struct {
	Log   *log.Logger
	store SessionStore
}

func NewSessionTerminationService(logger *log.Logger, store SessionStore) *SessionTerminationService {
	return &SessionTerminationService{Log: logger, store: store}
}

func (x *SessionTerminationService) Terminate(sessionID string) error {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return NewError(ErrSessionNotFound, sessionID)
	}
	if session.State() == SessionTerminated {
		return nil
	}
	if err := session.SetState(SessionTerminated); err != nil {
		return err
	}
	x.Log.Infof("Session terminated (%v)", session.UserID)
	return nil
}

func (x *SessionTerminationService) Expire(sessionID string) error {
	session, err := x.store.Get(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return NewError(ErrSessionNotFound, sessionID)
	}
	if session.State() == SessionExpired {
		return nil
	}
	return session.SetState(SessionExpired)
}

func (x *SessionTerminationService) Delete(sessionID string) error {
	return x.store.Delete(sessionID)
}

// TerminateAllUserSessions terminates every non-terminal session of the user
// and returns the number of sessions it terminated.
func (x *SessionTerminationService) TerminateAllUserSessions(userID string) (int, error) {
	return x.TerminateAllExcept(userID, "")
}

// TerminateAllExcept terminates every non-terminal session of the user whose
// id differs from keepID, and returns the count.
func (x *SessionTerminationService) TerminateAllExcept(userID, keepID string) (int, error) {
	sessions, err := x.store.SessionsForUser(userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, session := range sessions {
		if session.SessionID == keepID || session.State() == SessionTerminated {
			continue
		}
		if err := session.SetState(SessionTerminated); err != nil {
			continue
		}
		count++
	}
	if count > 0 {
		x.Log.Infof("Terminated %v sessions (%v)", count, userID)
	}
	return count, nil
}

/*
ConcurrentSessionManager accounts for the number of live sessions per user
and can make room for a new login by retiring the oldest one.
*/
type ConcurrentSessionManager struct {
	Log        *log.Logger
	store      SessionStore
	maxAllowed int
}

func NewConcurrentSessionManager(logger *log.Logger, store SessionStore, maxAllowed int) *ConcurrentSessionManager {
	return &ConcurrentSessionManager{Log: logger, store: store, maxAllowed: maxAllowed}
}

// ActiveSessions returns the user's live sessions (ACTIVE or REQUIRES_REAUTH).
func (x *ConcurrentSessionManager) ActiveSessions(userID string) ([]*Session, error) {
	sessions, err := x.store.SessionsForUser(userID)
	if err != nil {
		return nil, err
	}
	live := []*Session{}
	for _, session := range sessions {
		if session.IsLive() {
			live = append(live, session)
		}
	}
	return live, nil
}

func (x *ConcurrentSessionManager) ActiveSessionCount(userID string) (int, error) {
	return x.store.CountActiveForUser(userID)
}

func (x *ConcurrentSessionManager) HasReachedLimit(userID string) (bool, error) {
	if x.maxAllowed <= 0 {
		return false, nil
	}
	count, err := x.store.CountActiveForUser(userID)
	if err != nil {
		return false, err
	}
	return count >= x.maxAllowed, nil
}

// TerminateOldestIfLimitExceeded retires the user's oldest live session
// (smallest CreatedAt, ties broken by id) when the live count has reached
// the limit. Returns the terminated session's id, or empty when no session
// was terminated.
func (x *ConcurrentSessionManager) TerminateOldestIfLimitExceeded(userID string) (string, error) {
	if x.maxAllowed <= 0 {
		return "", nil
	}
	live, err := x.ActiveSessions(userID)
	if err != nil {
		return "", err
	}
	if len(live) < x.maxAllowed {
		return "", nil
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		}
		return live[i].SessionID < live[j].SessionID
	})
	oldest := live[0]
	if err := oldest.SetState(SessionTerminated); err != nil {
		return "", err
	}
	x.Log.Infof("Oldest session terminated to honour concurrent limit (%v)", userID)
	return oldest.SessionID, nil
}
