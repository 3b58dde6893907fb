package authcore

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/IMQS/log"
	"github.com/google/uuid"
)

/*
AuthenticatorManager owns the lifecycle of authenticators. Every identifier
holds at most one authenticator per type, and every state transition
(ACTIVE, EXPIRED, REVOKED, LOCKED) goes through here.

All public methods are callable from multiple threads. Compound operations
serialize on a per-identifier mutex. New password hashes are computed before
that mutex is taken; verifying a password against stored hashes runs under
it. Because the mutex is per identifier, a slow bcrypt round on one
identifier does not stall operations on another.
*/
type AuthenticatorManager struct {
	Log     *log.Logger
	Auditor Auditor

	storage       AuthenticationStorage
	hasher        *PasswordHasher
	policy        PasswordPolicy
	validator     *PasswordValidator
	certValidator *CertificateValidator

	identifierLocksLock sync.Mutex
	identifierLocks     map[string]*sync.Mutex
}

func NewAuthenticatorManager(logger *log.Logger, storage AuthenticationStorage, hasher *PasswordHasher, policy PasswordPolicy, certValidator *CertificateValidator) *AuthenticatorManager {
	m := &AuthenticatorManager{}
	m.Log = logger
	m.storage = storage
	m.hasher = hasher
	m.policy = policy
	m.validator = NewPasswordValidator(policy)
	m.certValidator = certValidator
	m.identifierLocks = make(map[string]*sync.Mutex)
	return m
}

func (x *AuthenticatorManager) Policy() PasswordPolicy {
	return x.policy
}

// identifierLock returns the mutex that serializes compound operations on
// a single identifier. Locks are never discarded; the population of
// identifiers is bounded by the population of users.
func (x *AuthenticatorManager) identifierLock(identifier string) *sync.Mutex {
	x.identifierLocksLock.Lock()
	defer x.identifierLocksLock.Unlock()
	lock := x.identifierLocks[identifier]
	if lock == nil {
		lock = &sync.Mutex{}
		x.identifierLocks[identifier] = lock
	}
	return lock
}

func (x *AuthenticatorManager) audit(identifier, item string, action AuditActionType) {
	if x.Auditor != nil {
		x.Auditor.AuditUserAction(identifier, item, "", action)
	}
}

// CreatePassword registers a new password authenticator for the identifier.
// The password must satisfy the policy, and the identifier must not already
// have a PASSWORD authenticator.
func (x *AuthenticatorManager) CreatePassword(identifier, password string) (*Authenticator, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrIdentifierEmpty
	}
	if result := x.validator.Validate(password); !result.Valid {
		return nil, NewError(ErrPolicyViolation, strings.Join(result.Violations, "; "))
	}

	// Hash before taking the identifier lock. If a concurrent create wins the
	// race, we discard the hash and report a duplicate.
	hash, err := x.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	if x.storage.AuthenticatorExists(identifier, AuthenticatorTypePassword) {
		return nil, NewError(ErrAuthenticatorExists, identifier)
	}

	now := time.Now()
	auth := &Authenticator{
		ID:           uuid.New().String(),
		Identifier:   identifier,
		Type:         AuthenticatorTypePassword,
		Status:       AuthenticatorActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    x.passwordExpiry(now),
		PasswordHash: hash,
	}
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return nil, err
	}
	if err := x.storage.AppendPasswordHistory(identifier, hash, x.policy.PasswordHistorySize); err != nil {
		return nil, err
	}
	x.storage.ResetFailedAttempts(identifier)
	x.storage.ClearLockout(identifier)

	x.Log.Infof("Password authenticator created (%v)", identifier)
	x.audit(identifier, "Authenticator: "+identifier, AuditActionCreated)
	return auth, nil
}

// CreateCertificate registers a PKI authenticator from an X.509 certificate.
// The certificate must pass format, validity and trust-chain validation.
func (x *AuthenticatorManager) CreateCertificate(identifier string, cert *x509.Certificate) (*Authenticator, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrIdentifierEmpty
	}
	if cert == nil {
		return nil, NewError(ErrInvalidArgument, "certificate may not be nil")
	}
	if result := x.certValidator.Validate(cert); !result.Valid {
		return nil, NewError(ErrCertificateInvalid, result.Message)
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	if x.storage.AuthenticatorExists(identifier, AuthenticatorTypePKICert) {
		return nil, NewError(ErrAuthenticatorExists, identifier)
	}

	now := time.Now()
	auth := &Authenticator{
		ID:                     uuid.New().String(),
		Identifier:             identifier,
		Type:                   AuthenticatorTypePKICert,
		Status:                 AuthenticatorActive,
		CreatedAt:              now,
		UpdatedAt:              now,
		ExpiresAt:              cert.NotAfter,
		SubjectDN:              cert.Subject.String(),
		SerialNumber:           cert.SerialNumber.String(),
		CertificateFingerprint: CertificateFingerprint(cert),
	}
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return nil, err
	}

	x.Log.Infof("PKI authenticator created (%v) (%v)", identifier, auth.SubjectDN)
	x.audit(identifier, "Authenticator: "+identifier, AuditActionCreated)
	return auth, nil
}

// CertificateFingerprint is the hex SHA-256 digest over the DER-encoded certificate.
func CertificateFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// ValidatePassword verifies the password against the stored authenticator.
// nil means the password matched and the attempt state has been reset.
// A mismatch records a failed attempt and may transition the authenticator
// to LOCKED; the caller gets ErrInvalidPassword for the attempt that crossed
// the threshold, and ErrAccountLocked for attempts while locked.
func (x *AuthenticatorManager) ValidatePassword(identifier, password string) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrIdentifierEmpty
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	auth, err := x.storage.GetAuthenticator(identifier, AuthenticatorTypePassword)
	if err != nil {
		return err
	}
	if auth == nil {
		return NewError(ErrAuthenticatorNotFound, identifier)
	}
	if auth, err = x.unlockIfElapsed(auth); err != nil {
		return err
	}
	if auth.Status == AuthenticatorRevoked {
		return NewError(ErrAuthenticatorRevoked, identifier)
	}
	if auth.IsLocked() {
		return NewError(ErrAccountLocked, identifier)
	}
	if auth.IsExpired() {
		return NewError(ErrAuthenticatorExpired, identifier)
	}
	if auth.Status != AuthenticatorActive {
		return NewError(ErrAuthenticatorNotFound, identifier)
	}

	if x.hasher.Verify(password, auth.PasswordHash) {
		x.storage.ResetFailedAttempts(identifier)
		x.storage.ClearLockout(identifier)
		if auth.FailedAttempts != 0 {
			auth.FailedAttempts = 0
			auth.LockedUntil = time.Time{}
			x.storage.StoreAuthenticator(auth)
		}
		return nil
	}

	return x.recordFailure(auth)
}

// recordFailure appends a failed attempt and locks the authenticator once the
// count inside the lockout window reaches the policy threshold.
// Caller holds the identifier lock.
func (x *AuthenticatorManager) recordFailure(auth *Authenticator) error {
	now := time.Now()
	x.storage.RecordFailedAttempt(auth.Identifier, now)
	windowStart := now.Add(-time.Duration(x.policy.LockoutWindowMinutes) * time.Minute)
	count, err := x.storage.CountFailedAttemptsSince(auth.Identifier, windowStart)
	if err != nil {
		return err
	}
	auth.FailedAttempts = count
	if count >= x.policy.MaxFailedAttempts {
		auth.Status = AuthenticatorLocked
		auth.LockedUntil = now.Add(time.Duration(x.policy.LockoutDurationMinutes) * time.Minute)
		auth.UpdatedAt = now
		x.storage.SetLockout(auth.Identifier, auth.LockedUntil)
		x.Log.Warnf("Authenticator locked after %v failed attempts (%v)", count, auth.Identifier)
		x.audit(auth.Identifier, "Authenticator: "+auth.Identifier, AuditActionLocked)
	}
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return err
	}
	return NewError(ErrInvalidPassword, auth.Identifier)
}

// unlockIfElapsed returns the authenticator to ACTIVE when its lockout time
// has passed. No explicit unlock call is needed.
// Caller holds the identifier lock.
func (x *AuthenticatorManager) unlockIfElapsed(auth *Authenticator) (*Authenticator, error) {
	if auth.Status != AuthenticatorLocked || auth.LockedUntil.IsZero() || time.Now().Before(auth.LockedUntil) {
		return auth, nil
	}
	auth.Status = AuthenticatorActive
	auth.LockedUntil = time.Time{}
	auth.FailedAttempts = 0
	auth.UpdatedAt = time.Now()
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return nil, err
	}
	x.storage.ClearLockout(auth.Identifier)
	x.storage.ResetFailedAttempts(auth.Identifier)
	x.Log.Infof("Lockout elapsed, authenticator unlocked (%v)", auth.Identifier)
	x.audit(auth.Identifier, "Authenticator: "+auth.Identifier, AuditActionUnlocked)
	return auth, nil
}

// ValidateCertificate verifies that the presented certificate is the one
// bound to the identifier, and that it still passes certificate validation.
func (x *AuthenticatorManager) ValidateCertificate(identifier string, cert *x509.Certificate) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrIdentifierEmpty
	}
	if cert == nil {
		return NewError(ErrInvalidArgument, "certificate may not be nil")
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	auth, err := x.storage.GetAuthenticator(identifier, AuthenticatorTypePKICert)
	if err != nil {
		return err
	}
	if auth == nil {
		return NewError(ErrAuthenticatorNotFound, identifier)
	}
	if auth.Status == AuthenticatorRevoked {
		return NewError(ErrAuthenticatorRevoked, identifier)
	}
	if auth.IsExpired() {
		return NewError(ErrAuthenticatorExpired, identifier)
	}
	if CertificateFingerprint(cert) != auth.CertificateFingerprint {
		return NewError(ErrCertificateInvalid, "certificate does not match the registered authenticator")
	}
	if result := x.certValidator.Validate(cert); !result.Valid {
		return NewError(ErrCertificateInvalid, result.Message)
	}
	return nil
}

// UpdatePassword replaces the password after verifying the old one. The new
// password must satisfy the policy and must not match any hash retained in
// the identifier's history.
func (x *AuthenticatorManager) UpdatePassword(identifier, oldPassword, newPassword string) (*Authenticator, error) {
	// Full validation of the old password, including attempt recording and
	// lockout. A caller probing old passwords burns attempts like any login.
	if err := x.ValidatePassword(identifier, oldPassword); err != nil {
		return nil, err
	}
	if result := x.validator.Validate(newPassword); !result.Valid {
		return nil, NewError(ErrPolicyViolation, strings.Join(result.Violations, "; "))
	}

	newHash, err := x.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	history, err := x.storage.GetPasswordHistory(identifier)
	if err != nil {
		return nil, err
	}
	for _, oldHash := range history {
		if x.hasher.Verify(newPassword, oldHash) {
			return nil, NewError(ErrInvalidPastPassword, identifier)
		}
	}

	auth, err := x.storage.GetAuthenticator(identifier, AuthenticatorTypePassword)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, NewError(ErrAuthenticatorNotFound, identifier)
	}

	now := time.Now()
	auth.PasswordHash = newHash
	auth.Status = AuthenticatorActive
	auth.FailedAttempts = 0
	auth.LockedUntil = time.Time{}
	auth.UpdatedAt = now
	auth.ExpiresAt = x.passwordExpiry(now)
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return nil, err
	}
	if err := x.storage.AppendPasswordHistory(identifier, newHash, x.policy.PasswordHistorySize); err != nil {
		return nil, err
	}
	x.storage.ResetFailedAttempts(identifier)
	x.storage.ClearLockout(identifier)

	x.Log.Infof("Password updated (%v)", identifier)
	x.audit(identifier, "Authenticator: "+identifier, AuditActionUpdated)
	return auth, nil
}

// RenewPassword replaces the password of an EXPIRED authenticator. Renewal
// of an authenticator that has not expired is rejected; use UpdatePassword.
func (x *AuthenticatorManager) RenewPassword(identifier, newPassword string) (*Authenticator, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrIdentifierEmpty
	}
	if result := x.validator.Validate(newPassword); !result.Valid {
		return nil, NewError(ErrPolicyViolation, strings.Join(result.Violations, "; "))
	}

	newHash, err := x.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	auth, err := x.storage.GetAuthenticator(identifier, AuthenticatorTypePassword)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, NewError(ErrAuthenticatorNotFound, identifier)
	}
	if !auth.IsExpired() {
		return nil, NewError(ErrAuthenticatorNotExpired, identifier)
	}

	history, err := x.storage.GetPasswordHistory(identifier)
	if err != nil {
		return nil, err
	}
	for _, oldHash := range history {
		if x.hasher.Verify(newPassword, oldHash) {
			return nil, NewError(ErrInvalidPastPassword, identifier)
		}
	}

	now := time.Now()
	auth.PasswordHash = newHash
	auth.Status = AuthenticatorActive
	auth.FailedAttempts = 0
	auth.LockedUntil = time.Time{}
	auth.UpdatedAt = now
	auth.ExpiresAt = x.passwordExpiry(now)
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return nil, err
	}
	if err := x.storage.AppendPasswordHistory(identifier, newHash, x.policy.PasswordHistorySize); err != nil {
		return nil, err
	}
	x.storage.ResetFailedAttempts(identifier)
	x.storage.ClearLockout(identifier)

	x.Log.Infof("Password renewed after expiry (%v)", identifier)
	x.audit(identifier, "Authenticator: "+identifier, AuditActionUpdated)
	return auth, nil
}

// Revoke permanently disables the authenticator. Revocation is terminal.
func (x *AuthenticatorManager) Revoke(identifier string, atype AuthenticatorType) error {
	return x.setStatus(identifier, atype, AuthenticatorRevoked, AuditActionRevoked)
}

// Expire forces the authenticator into EXPIRED, making it eligible for renewal.
func (x *AuthenticatorManager) Expire(identifier string, atype AuthenticatorType) error {
	return x.setStatus(identifier, atype, AuthenticatorExpired, AuditActionExpired)
}

func (x *AuthenticatorManager) setStatus(identifier string, atype AuthenticatorType, status AuthenticatorStatus, action AuditActionType) error {
	if strings.TrimSpace(identifier) == "" {
		return ErrIdentifierEmpty
	}
	lock := x.identifierLock(identifier)
	lock.Lock()
	defer lock.Unlock()

	auth, err := x.storage.GetAuthenticator(identifier, atype)
	if err != nil {
		return err
	}
	if auth == nil {
		return NewError(ErrAuthenticatorNotFound, identifier)
	}
	auth.Status = status
	auth.UpdatedAt = time.Now()
	if err := x.storage.StoreAuthenticator(auth); err != nil {
		return err
	}
	x.Log.Infof("Authenticator status changed to %v (%v)", status, identifier)
	x.audit(identifier, "Authenticator: "+identifier, action)
	return nil
}

// List returns every authenticator bound to the identifier.
func (x *AuthenticatorManager) List(identifier string) ([]*Authenticator, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrIdentifierEmpty
	}
	return x.storage.GetAuthenticators(identifier)
}

// Get returns the authenticator for (identifier, type), or nil if absent.
func (x *AuthenticatorManager) Get(identifier string, atype AuthenticatorType) (*Authenticator, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrIdentifierEmpty
	}
	return x.storage.GetAuthenticator(identifier, atype)
}

// IsExpired reports whether the authenticator for (identifier, type) has expired.
func (x *AuthenticatorManager) IsExpired(identifier string, atype AuthenticatorType) (bool, error) {
	auth, err := x.Get(identifier, atype)
	if err != nil {
		return false, err
	}
	if auth == nil {
		return false, NewError(ErrAuthenticatorNotFound, identifier)
	}
	return auth.IsExpired(), nil
}

func (x *AuthenticatorManager) passwordExpiry(from time.Time) time.Time {
	if x.policy.PasswordExpiryDays == 0 {
		return time.Time{}
	}
	return from.Add(time.Duration(x.policy.PasswordExpiryDays) * 24 * time.Hour)
}
