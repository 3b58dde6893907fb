package authcore

import (
	"fmt"
	"sync"
	"time"

	"github.com/IMQS/log"
)

/*
MFAPolicy says how many factors a login needs and which authenticator types
may (or must) contribute. RequiredTypes must be a subset of AllowedTypes; an
empty AllowedTypes permits any type.
*/
type MFAPolicy struct {
	MFARequired       bool
	MinimumFactors    int
	RequiredTypes     []AuthenticatorType
	AllowedTypes      []AuthenticatorType
	PrivilegedAccount bool
}

func DefaultMFAPolicy() MFAPolicy {
	return MFAPolicy{
		MFARequired:    false,
		MinimumFactors: 1,
	}
}

// PrivilegedMFAPolicy is the policy applied to privileged accounts: two
// factors, one of which must be a password.
func PrivilegedMFAPolicy() MFAPolicy {
	return MFAPolicy{
		MFARequired:       true,
		MinimumFactors:    2,
		RequiredTypes:     []AuthenticatorType{AuthenticatorTypePassword},
		PrivilegedAccount: true,
	}
}

// Validate checks the policy's own invariants.
func (x *MFAPolicy) Validate() error {
	if x.MinimumFactors < 1 {
		return NewError(ErrInvalidArgument, "minimum factors must be at least 1")
	}
	if x.MFARequired && x.MinimumFactors < 2 {
		return NewError(ErrInvalidArgument, "MFA requires at least 2 factors")
	}
	for _, required := range x.RequiredTypes {
		if !x.typeAllowed(required) {
			return NewError(ErrInvalidArgument, fmt.Sprintf("required type %v is not in the allowed set", required))
		}
	}
	return nil
}

func (x *MFAPolicy) typeAllowed(atype AuthenticatorType) bool {
	if len(x.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range x.AllowedTypes {
		if allowed == atype {
			return true
		}
	}
	return false
}

/*
MultiFactorAuthenticator dispatches each credential in an attempt to the
provider registered for its type, then checks the set of satisfied types
against the policy. The first provider failure aborts the attempt and its
result is surfaced unchanged.
*/
type MultiFactorAuthenticator struct {
	Log    *log.Logger
	policy MFAPolicy

	providersLock sync.RWMutex
	providers     map[AuthenticatorType]AuthenticationProvider
}

func NewMultiFactorAuthenticator(logger *log.Logger, policy MFAPolicy) *MultiFactorAuthenticator {
	m := &MultiFactorAuthenticator{}
	m.Log = logger
	m.policy = policy
	m.providers = make(map[AuthenticatorType]AuthenticationProvider)
	return m
}

// RegisterProvider binds a provider to every authenticator type it supports.
func (x *MultiFactorAuthenticator) RegisterProvider(provider AuthenticationProvider) {
	x.providersLock.Lock()
	defer x.providersLock.Unlock()
	for _, atype := range []AuthenticatorType{AuthenticatorTypePassword, AuthenticatorTypePKICert, AuthenticatorTypeHardwareToken, AuthenticatorTypeAPIKey} {
		if provider.Supports(atype) {
			x.providers[atype] = provider
		}
	}
}

func (x *MultiFactorAuthenticator) provider(atype AuthenticatorType) AuthenticationProvider {
	x.providersLock.RLock()
	defer x.providersLock.RUnlock()
	return x.providers[atype]
}

// Authenticate runs the ordered credential list through the registered
// providers and evaluates the policy over the set of satisfied types.
func (x *MultiFactorAuthenticator) Authenticate(credentials []Credential) AuthenticationResult {
	if len(credentials) == 0 {
		return FailureResult(CodeInsufficientFactors, "no credentials presented")
	}

	identifier := credentials[0].Identifier()
	for _, credential := range credentials {
		if credential.Identifier() != identifier {
			return FailureResult(CodeIdentifierMismatch, "all credentials must belong to one identifier")
		}
	}

	if x.policy.MFARequired && len(credentials) < x.policy.MinimumFactors {
		return FailureResult(CodeInsufficientFactors,
			fmt.Sprintf("%v factors presented, %v required", len(credentials), x.policy.MinimumFactors))
	}

	satisfied := map[AuthenticatorType]bool{}
	var firstSuccess *AuthenticationResult
	for _, credential := range credentials {
		provider := x.provider(credential.Type())
		if provider == nil {
			return FailureResult(CodeUnsupportedCredentialType, fmt.Sprintf("no provider registered for %v", credential.Type()))
		}
		result := provider.Authenticate(credential)
		if !result.Success {
			x.Log.Infof("MFA factor %v failed (%v) (%v)", credential.Type(), identifier, result.ErrorCode)
			return result
		}
		satisfied[credential.Type()] = true
		if firstSuccess == nil {
			r := result
			firstSuccess = &r
		}
	}

	for _, required := range x.policy.RequiredTypes {
		if !satisfied[required] {
			return FailureResult(CodePolicyNotSatisfied, fmt.Sprintf("required factor %v not satisfied", required))
		}
	}
	for atype := range satisfied {
		if !x.policy.typeAllowed(atype) {
			return FailureResult(CodePolicyNotSatisfied, fmt.Sprintf("factor %v is not allowed by policy", atype))
		}
	}
	if len(satisfied) < x.policy.MinimumFactors {
		return FailureResult(CodePolicyNotSatisfied,
			fmt.Sprintf("%v distinct factor types satisfied, %v required", len(satisfied), x.policy.MinimumFactors))
	}

	principal := &Principal{
		Identifier:         identifier,
		AuthenticationType: "mfa",
		AuthenticatedAt:    time.Now(),
	}
	if firstSuccess != nil && firstSuccess.Principal != nil {
		principal.Name = firstSuccess.Principal.Name
		principal.Roles = firstSuccess.Principal.Roles
	}
	x.Log.Infof("MFA authentication successful with %v factors (%v)", len(satisfied), identifier)
	return SuccessResult(principal)
}
