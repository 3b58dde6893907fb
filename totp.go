package authcore

import (
	"sync"
	"time"

	"github.com/IMQS/log"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

/*
TOTPProvider authenticates time-based one-time codes for the HARDWARE_TOKEN
authenticator type. Each identifier enrolls once, which mints a shared secret;
the provider keeps the secret, the caller provisions the token (or app) from
the enrollment key's URL.
*/
type TOTPProvider struct {
	Log    *log.Logger
	issuer string

	secretsLock sync.RWMutex
	secrets     map[string]string
}

func NewTOTPProvider(logger *log.Logger, issuer string) *TOTPProvider {
	return &TOTPProvider{
		Log:     logger,
		issuer:  issuer,
		secrets: make(map[string]string),
	}
}

func (x *TOTPProvider) Name() string { return "totp" }

func (x *TOTPProvider) Supports(atype AuthenticatorType) bool {
	return atype == AuthenticatorTypeHardwareToken
}

// Enroll mints a TOTP secret for the identifier and returns the key, whose
// URL can be rendered as a QR code for provisioning.
func (x *TOTPProvider) Enroll(identifier string) (*otp.Key, error) {
	if identifier == "" {
		return nil, ErrIdentifierEmpty
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      x.issuer,
		AccountName: identifier,
	})
	if err != nil {
		return nil, err
	}
	x.secretsLock.Lock()
	x.secrets[identifier] = key.Secret()
	x.secretsLock.Unlock()
	x.Log.Infof("TOTP token enrolled (%v)", identifier)
	return key, nil
}

func (x *TOTPProvider) Unenroll(identifier string) {
	x.secretsLock.Lock()
	delete(x.secrets, identifier)
	x.secretsLock.Unlock()
}

func (x *TOTPProvider) IsEnrolled(identifier string) bool {
	x.secretsLock.RLock()
	defer x.secretsLock.RUnlock()
	_, exists := x.secrets[identifier]
	return exists
}

func (x *TOTPProvider) Authenticate(credential Credential) AuthenticationResult {
	defer credential.Clear()

	tc, ok := credential.(*TOTPCredential)
	if !ok || !credential.Valid() {
		return FailureResult(CodeInvalidCredentialType, "expected a one-time-code credential")
	}

	x.secretsLock.RLock()
	secret, enrolled := x.secrets[tc.Identifier()]
	x.secretsLock.RUnlock()
	if !enrolled {
		return FailureResult(CodeAuthenticatorNotFound, "no token enrolled for "+tc.Identifier())
	}

	if !totp.Validate(tc.Code(), secret) {
		x.Log.Infof("TOTP authentication failed (%v)", tc.Identifier())
		return FailureResult(CodeInvalidPassword, "one-time code rejected")
	}

	return SuccessResult(&Principal{
		Identifier:         tc.Identifier(),
		Name:               tc.Identifier(),
		AuthenticationType: "totp",
		AuthenticatedAt:    time.Now(),
	})
}
