package authcore

import (
	"sync"
	"time"
)

/*
AuthenticationStorage owns every authenticator, its password history, and its
failed-attempt record, keyed by (identifier, type). Each identifier scopes at
most one authenticator per type.

Implementations must be safe for concurrent use. The unit of linearizability
is a single call; compound read-modify-write sequences belong in the
AuthenticatorManager, which holds its own exclusion over the identifier for
the duration of the operation.
*/
type AuthenticationStorage interface {
	// StoreAuthenticator inserts or replaces the authenticator for
	// (auth.Identifier, auth.Type). The store keeps its own copy.
	StoreAuthenticator(auth *Authenticator) error
	// GetAuthenticator returns a copy, or nil if absent.
	GetAuthenticator(identifier string, atype AuthenticatorType) (*Authenticator, error)
	// GetAuthenticators returns copies of every authenticator bound to the identifier.
	GetAuthenticators(identifier string) ([]*Authenticator, error)
	DeleteAuthenticator(identifier string, atype AuthenticatorType) error
	AuthenticatorExists(identifier string, atype AuthenticatorType) bool

	// AppendPasswordHistory appends a hash to the identifier's history
	// (most recent last) and trims the history to maxSize entries.
	AppendPasswordHistory(identifier, hash string, maxSize int) error
	GetPasswordHistory(identifier string) ([]string, error)

	// RecordFailedAttempt appends 'when' to the identifier's attempt timestamps.
	RecordFailedAttempt(identifier string, when time.Time) error
	// CountFailedAttemptsSince counts attempt timestamps at or after 'since'.
	CountFailedAttemptsSince(identifier string, since time.Time) (int, error)
	ResetFailedAttempts(identifier string) error

	SetLockout(identifier string, until time.Time) error
	GetLockout(identifier string) (time.Time, error)
	ClearLockout(identifier string) error

	Close()
}

// Storage that simply keeps authenticators, history and attempt state in memory
type memAuthenticationStorage struct {
	recordsLock sync.RWMutex
	records     map[string]*memAuthRecord
}

type memAuthRecord struct {
	authenticators  map[AuthenticatorType]*Authenticator
	passwordHistory []string
	failedAttempts  []time.Time
	lockedUntil     time.Time
}

func NewMemAuthenticationStorage() AuthenticationStorage {
	return newMemAuthenticationStorage()
}

func newMemAuthenticationStorage() *memAuthenticationStorage {
	s := &memAuthenticationStorage{}
	s.records = make(map[string]*memAuthRecord)
	return s
}

func (x *memAuthenticationStorage) record(identifier string) *memAuthRecord {
	rec := x.records[identifier]
	if rec == nil {
		rec = &memAuthRecord{
			authenticators: make(map[AuthenticatorType]*Authenticator),
		}
		x.records[identifier] = rec
	}
	return rec
}

func (x *memAuthenticationStorage) StoreAuthenticator(auth *Authenticator) error {
	if auth.Identifier == "" {
		return ErrIdentifierEmpty
	}
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	x.record(auth.Identifier).authenticators[auth.Type] = auth.Clone()
	return nil
}

func (x *memAuthenticationStorage) GetAuthenticator(identifier string, atype AuthenticatorType) (*Authenticator, error) {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	if rec := x.records[identifier]; rec != nil {
		if auth := rec.authenticators[atype]; auth != nil {
			return auth.Clone(), nil
		}
	}
	return nil, nil
}

func (x *memAuthenticationStorage) GetAuthenticators(identifier string) ([]*Authenticator, error) {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	list := []*Authenticator{}
	if rec := x.records[identifier]; rec != nil {
		for _, auth := range rec.authenticators {
			list = append(list, auth.Clone())
		}
	}
	return list, nil
}

func (x *memAuthenticationStorage) DeleteAuthenticator(identifier string, atype AuthenticatorType) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	if rec := x.records[identifier]; rec != nil {
		if _, exists := rec.authenticators[atype]; exists {
			delete(rec.authenticators, atype)
			return nil
		}
	}
	return NewError(ErrAuthenticatorNotFound, identifier)
}

func (x *memAuthenticationStorage) AuthenticatorExists(identifier string, atype AuthenticatorType) bool {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	if rec := x.records[identifier]; rec != nil {
		return rec.authenticators[atype] != nil
	}
	return false
}

func (x *memAuthenticationStorage) AppendPasswordHistory(identifier, hash string, maxSize int) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	rec := x.record(identifier)
	rec.passwordHistory = append(rec.passwordHistory, hash)
	if maxSize >= 0 && len(rec.passwordHistory) > maxSize {
		rec.passwordHistory = rec.passwordHistory[len(rec.passwordHistory)-maxSize:]
	}
	return nil
}

func (x *memAuthenticationStorage) GetPasswordHistory(identifier string) ([]string, error) {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	if rec := x.records[identifier]; rec != nil {
		history := make([]string, len(rec.passwordHistory))
		copy(history, rec.passwordHistory)
		return history, nil
	}
	return []string{}, nil
}

func (x *memAuthenticationStorage) RecordFailedAttempt(identifier string, when time.Time) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	rec := x.record(identifier)
	rec.failedAttempts = append(rec.failedAttempts, when)
	return nil
}

func (x *memAuthenticationStorage) CountFailedAttemptsSince(identifier string, since time.Time) (int, error) {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	count := 0
	if rec := x.records[identifier]; rec != nil {
		for _, when := range rec.failedAttempts {
			if !when.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (x *memAuthenticationStorage) ResetFailedAttempts(identifier string) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	if rec := x.records[identifier]; rec != nil {
		rec.failedAttempts = nil
	}
	return nil
}

func (x *memAuthenticationStorage) SetLockout(identifier string, until time.Time) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	x.record(identifier).lockedUntil = until
	return nil
}

func (x *memAuthenticationStorage) GetLockout(identifier string) (time.Time, error) {
	x.recordsLock.RLock()
	defer x.recordsLock.RUnlock()
	if rec := x.records[identifier]; rec != nil {
		return rec.lockedUntil, nil
	}
	return time.Time{}, nil
}

func (x *memAuthenticationStorage) ClearLockout(identifier string) error {
	x.recordsLock.Lock()
	defer x.recordsLock.Unlock()
	if rec := x.records[identifier]; rec != nil {
		rec.lockedUntil = time.Time{}
	}
	return nil
}

func (x *memAuthenticationStorage) Close() {
}
