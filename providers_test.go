package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPasswordProvider(t *testing.T) {
	manager, _ := newTestManager(t, fastTestPolicy())
	provider := NewPasswordProvider(testLogger(), manager)

	assert.True(t, provider.Supports(AuthenticatorTypePassword))
	assert.False(t, provider.Supports(AuthenticatorTypePKICert))

	if _, err := manager.CreatePassword(aliceIdentity, alicePwd); err != nil {
		t.Fatalf("CreatePassword failed: %v", err)
	}

	result := provider.Authenticate(NewPasswordCredential(aliceIdentity, alicePwd))
	if !result.Success {
		t.Fatalf("Expected success, got %v: %v", result.ErrorCode, result.Message)
	}
	assert.Equal(t, aliceIdentity, result.Principal.Identifier)
	assert.Equal(t, "password", result.Principal.AuthenticationType)

	result = provider.Authenticate(NewPasswordCredential(aliceIdentity, "WrongPass1!abcd"))
	assert.False(t, result.Success)
	assert.Equal(t, CodeInvalidPassword, result.ErrorCode)
	assert.Nil(t, result.Principal)

	result = provider.Authenticate(NewPasswordCredential(bobIdentity, bobPwd))
	assert.False(t, result.Success)
	assert.Equal(t, CodeAuthenticatorNotFound, result.ErrorCode)
}

func TestPasswordProviderOutcomeCodes(t *testing.T) {
	manager, _ := newTestManager(t, fastTestPolicy())
	provider := NewPasswordProvider(testLogger(), manager)
	if _, err := manager.CreatePassword(aliceIdentity, alicePwd); err != nil {
		t.Fatalf("CreatePassword failed: %v", err)
	}

	// Drive the authenticator into LOCKED, then check the boundary code
	for i := 0; i < 3; i++ {
		provider.Authenticate(NewPasswordCredential(aliceIdentity, "WrongPass1!abcd"))
	}
	result := provider.Authenticate(NewPasswordCredential(aliceIdentity, alicePwd))
	assert.False(t, result.Success)
	assert.Equal(t, CodeAuthenticatorLocked, result.ErrorCode)

	if _, err := manager.CreatePassword(bobIdentity, bobPwd); err != nil {
		t.Fatalf("CreatePassword failed: %v", err)
	}
	if err := manager.Revoke(bobIdentity, AuthenticatorTypePassword); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	result = provider.Authenticate(NewPasswordCredential(bobIdentity, bobPwd))
	assert.Equal(t, CodeAuthenticatorRevoked, result.ErrorCode)

	if _, err := manager.CreatePassword(carolIdentity, carolPwd); err != nil {
		t.Fatalf("CreatePassword failed: %v", err)
	}
	if err := manager.Expire(carolIdentity, AuthenticatorTypePassword); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	result = provider.Authenticate(NewPasswordCredential(carolIdentity, carolPwd))
	assert.Equal(t, CodeAuthenticatorExpired, result.ErrorCode)
}

func TestPasswordProviderClearsCredential(t *testing.T) {
	manager, _ := newTestManager(t, fastTestPolicy())
	provider := NewPasswordProvider(testLogger(), manager)
	if _, err := manager.CreatePassword(aliceIdentity, alicePwd); err != nil {
		t.Fatalf("CreatePassword failed: %v", err)
	}

	credential := NewPasswordCredential(aliceIdentity, alicePwd)
	provider.Authenticate(credential)
	assert.False(t, credential.Valid())
	assert.Equal(t, "", credential.Password())

	// A cleared credential must not authenticate again
	result := provider.Authenticate(credential)
	assert.False(t, result.Success)
	assert.Equal(t, CodeInvalidCredentialType, result.ErrorCode)
}

func TestPasswordProviderWrongCredentialType(t *testing.T) {
	manager, _ := newTestManager(t, fastTestPolicy())
	provider := NewPasswordProvider(testLogger(), manager)

	cert := makeSelfSignedCert(t, aliceIdentity, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	result := provider.Authenticate(NewPKICredential(aliceIdentity, cert))
	assert.False(t, result.Success)
	assert.Equal(t, CodeInvalidCredentialType, result.ErrorCode)
}

func TestPKIProvider(t *testing.T) {
	manager, _ := newTestManager(t, fastTestPolicy())
	provider := NewPKIProvider(testLogger(), manager)

	assert.True(t, provider.Supports(AuthenticatorTypePKICert))
	assert.False(t, provider.Supports(AuthenticatorTypePassword))

	cert := makeSelfSignedCert(t, "Alice Smith", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if _, err := manager.CreateCertificate(aliceIdentity, cert); err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}

	result := provider.Authenticate(NewPKICredential(aliceIdentity, cert))
	if !result.Success {
		t.Fatalf("Expected success, got %v: %v", result.ErrorCode, result.Message)
	}
	assert.Equal(t, aliceIdentity, result.Principal.Identifier)
	assert.Equal(t, "Alice Smith", result.Principal.Name)
	assert.Equal(t, "pki", result.Principal.AuthenticationType)

	other := makeSelfSignedCert(t, "Alice Smith", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	result = provider.Authenticate(NewPKICredential(aliceIdentity, other))
	assert.False(t, result.Success)
	assert.Equal(t, CodeCertificateInvalid, result.ErrorCode)

	result = provider.Authenticate(NewPKICredential(bobIdentity, cert))
	assert.Equal(t, CodeAuthenticatorNotFound, result.ErrorCode)

	if err := manager.Revoke(aliceIdentity, AuthenticatorTypePKICert); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	result = provider.Authenticate(NewPKICredential(aliceIdentity, cert))
	assert.Equal(t, CodeAuthenticatorRevoked, result.ErrorCode)
}
