package authcore

import (
	"errors"
)

var (
	// NOTE: These 'base' error strings may not be prefixes of each other,
	// otherwise it violates our NewError() concept, which ensures that
	// any authcore error starts with one of these *unique* prefixes
	ErrIdentifierEmpty         = errors.New("Identifier may not be empty")
	ErrAuthenticatorNotFound   = errors.New("Authenticator not found")
	ErrAuthenticatorExists     = errors.New("Authenticator already exists")
	ErrAuthenticatorNotExpired = errors.New("Only expired authenticators can be renewed")
	ErrAuthenticatorRevoked    = errors.New("Authenticator has been revoked")
	ErrAuthenticatorExpired    = errors.New("Authenticator has expired")
	ErrInvalidPassword         = errors.New("Invalid password")
	ErrCertificateInvalid      = errors.New("Certificate validation failed")
	ErrAccountLocked           = errors.New("Account locked. Please contact your administrator")
	ErrInvalidPastPassword     = errors.New("Invalid previously used password")
	ErrPolicyViolation         = errors.New("Password policy violation")
	ErrInvalidCredential       = errors.New("Invalid credential")
	ErrUnsupportedCredential   = errors.New("Unsupported credential type")
	ErrConcurrentLimit         = errors.New("Concurrent session limit exceeded")
	ErrSessionNotFound         = errors.New("Session not found")
	ErrSessionNotRenewable     = errors.New("Session is not renewable")
	ErrInvalidArgument         = errors.New("Invalid argument")
	ErrInvalidHash             = errors.New("Password hashing failed")
)

// NewError is to be used whenever you return an authcore error. We rely upon
// the prefix of the error string to identify the broad category of the error.
func NewError(base error, detail string) error {
	return errors.New(base.Error() + ": " + detail)
}

// ErrorCode identifies an authentication outcome at the boundary. Outcomes
// travel inside an AuthenticationResult, never as a signaled failure.
type ErrorCode string

const (
	CodeInsufficientFactors       ErrorCode = "INSUFFICIENT_FACTORS"
	CodeIdentifierMismatch        ErrorCode = "IDENTIFIER_MISMATCH"
	CodeUnsupportedCredentialType ErrorCode = "UNSUPPORTED_CREDENTIAL_TYPE"
	CodePolicyNotSatisfied        ErrorCode = "POLICY_NOT_SATISFIED"
	CodeAuthenticatorNotFound     ErrorCode = "AUTHENTICATOR_NOT_FOUND"
	CodeAuthenticatorRevoked      ErrorCode = "AUTHENTICATOR_REVOKED"
	CodeAuthenticatorLocked       ErrorCode = "AUTHENTICATOR_LOCKED"
	CodeAuthenticatorExpired      ErrorCode = "AUTHENTICATOR_EXPIRED"
	CodeInvalidPassword           ErrorCode = "INVALID_PASSWORD"
	CodeCertificateInvalid        ErrorCode = "CERTIFICATE_INVALID"
	CodeInvalidCredentialType     ErrorCode = "INVALID_CREDENTIAL_TYPE"
	CodeConcurrentLimitExceeded   ErrorCode = "CONCURRENT_LIMIT_EXCEEDED"
)
