package authcore

import (
	"errors"
	"strings"
	"time"

	"github.com/IMQS/log"
)

/*
AuthenticationProvider answers the question "does this credential match its
authenticator?" for one class of credential. Providers clear the credential's
secret before returning, on success and on failure alike.
*/
type AuthenticationProvider interface {
	Authenticate(credential Credential) AuthenticationResult
	Supports(atype AuthenticatorType) bool
	Name() string
}

// PasswordProvider authenticates PasswordCredentials against the
// AuthenticatorManager.
type PasswordProvider struct {
	Log     *log.Logger
	manager *AuthenticatorManager
}

func NewPasswordProvider(logger *log.Logger, manager *AuthenticatorManager) *PasswordProvider {
	return &PasswordProvider{Log: logger, manager: manager}
}

func (x *PasswordProvider) Name() string { return "password" }

func (x *PasswordProvider) Supports(atype AuthenticatorType) bool {
	return atype == AuthenticatorTypePassword
}

func (x *PasswordProvider) Authenticate(credential Credential) AuthenticationResult {
	defer credential.Clear()

	pwd, ok := credential.(*PasswordCredential)
	if !ok || !credential.Valid() {
		return FailureResult(CodeInvalidCredentialType, "expected a password credential")
	}

	err := x.manager.ValidatePassword(pwd.Identifier(), pwd.Password())
	if err != nil {
		code := passwordErrorCode(err)
		x.Log.Infof("Password authentication failed (%v) (%v)", pwd.Identifier(), code)
		return FailureResult(code, err.Error())
	}

	return SuccessResult(&Principal{
		Identifier:         pwd.Identifier(),
		Name:               pwd.Identifier(),
		AuthenticationType: "password",
		AuthenticatedAt:    time.Now(),
	})
}

// passwordErrorCode maps a manager error onto the outcome code that crosses
// the boundary. We rely on the unique error prefixes established by NewError.
func passwordErrorCode(err error) ErrorCode {
	switch {
	case hasBase(err, ErrAuthenticatorNotFound):
		return CodeAuthenticatorNotFound
	case hasBase(err, ErrAuthenticatorRevoked):
		return CodeAuthenticatorRevoked
	case hasBase(err, ErrAccountLocked):
		return CodeAuthenticatorLocked
	case hasBase(err, ErrAuthenticatorExpired):
		return CodeAuthenticatorExpired
	case hasBase(err, ErrInvalidPassword):
		return CodeInvalidPassword
	default:
		return CodeInvalidPassword
	}
}

// hasBase reports whether err is 'base' or was built from it with NewError.
func hasBase(err, base error) bool {
	if errors.Is(err, base) {
		return true
	}
	return strings.HasPrefix(err.Error(), base.Error())
}

// PKIProvider authenticates PKICredentials. The presented certificate must
// match the registered authenticator and pass the validator's three phases.
type PKIProvider struct {
	Log     *log.Logger
	manager *AuthenticatorManager
}

func NewPKIProvider(logger *log.Logger, manager *AuthenticatorManager) *PKIProvider {
	return &PKIProvider{Log: logger, manager: manager}
}

func (x *PKIProvider) Name() string { return "pki" }

func (x *PKIProvider) Supports(atype AuthenticatorType) bool {
	return atype == AuthenticatorTypePKICert
}

func (x *PKIProvider) Authenticate(credential Credential) AuthenticationResult {
	defer credential.Clear()

	pki, ok := credential.(*PKICredential)
	if !ok || !credential.Valid() {
		return FailureResult(CodeInvalidCredentialType, "expected a certificate credential")
	}

	err := x.manager.ValidateCertificate(pki.Identifier(), pki.Certificate())
	if err != nil {
		code := certificateErrorCode(err)
		x.Log.Infof("Certificate authentication failed (%v) (%v)", pki.Identifier(), code)
		return FailureResult(code, err.Error())
	}

	return SuccessResult(&Principal{
		Identifier:         pki.Identifier(),
		Name:               pki.Certificate().Subject.CommonName,
		AuthenticationType: "pki",
		AuthenticatedAt:    time.Now(),
	})
}

func certificateErrorCode(err error) ErrorCode {
	switch {
	case hasBase(err, ErrAuthenticatorNotFound):
		return CodeAuthenticatorNotFound
	case hasBase(err, ErrAuthenticatorRevoked):
		return CodeAuthenticatorRevoked
	case hasBase(err, ErrAuthenticatorExpired):
		return CodeAuthenticatorExpired
	default:
		return CodeCertificateInvalid
	}
}
