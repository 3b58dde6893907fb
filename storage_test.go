package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStorageAuthenticators(t *testing.T) {
	storage := newMemAuthenticationStorage()
	defer storage.Close()

	auth := &Authenticator{
		ID:         "id-1",
		Identifier: aliceIdentity,
		Type:       AuthenticatorTypePassword,
		Status:     AuthenticatorActive,
		CreatedAt:  time.Now(),
	}
	if err := storage.StoreAuthenticator(auth); err != nil {
		t.Fatalf("StoreAuthenticator failed: %v", err)
	}
	assert.True(t, storage.AuthenticatorExists(aliceIdentity, AuthenticatorTypePassword))
	assert.False(t, storage.AuthenticatorExists(aliceIdentity, AuthenticatorTypePKICert))

	got, err := storage.GetAuthenticator(aliceIdentity, AuthenticatorTypePassword)
	if err != nil || got == nil {
		t.Fatalf("GetAuthenticator failed: %v", err)
	}
	assert.Equal(t, "id-1", got.ID)

	// The store must hand out copies, not its own record
	got.Status = AuthenticatorRevoked
	again, _ := storage.GetAuthenticator(aliceIdentity, AuthenticatorTypePassword)
	assert.Equal(t, AuthenticatorActive, again.Status)

	missing, err := storage.GetAuthenticator(bobIdentity, AuthenticatorTypePassword)
	if err != nil {
		t.Fatalf("GetAuthenticator for an absent identifier must not error: %v", err)
	}
	assert.Nil(t, missing)

	list, _ := storage.GetAuthenticators(aliceIdentity)
	assert.Equal(t, 1, len(list))

	if err := storage.DeleteAuthenticator(aliceIdentity, AuthenticatorTypePassword); err != nil {
		t.Fatalf("DeleteAuthenticator failed: %v", err)
	}
	if err := storage.DeleteAuthenticator(aliceIdentity, AuthenticatorTypePassword); !hasBase(err, ErrAuthenticatorNotFound) {
		t.Errorf("Expected ErrAuthenticatorNotFound, got %v", err)
	}

	if err := storage.StoreAuthenticator(&Authenticator{}); !hasBase(err, ErrIdentifierEmpty) {
		t.Errorf("Expected ErrIdentifierEmpty, got %v", err)
	}
}

func TestStoragePasswordHistory(t *testing.T) {
	storage := newMemAuthenticationStorage()
	defer storage.Close()

	for _, hash := range []string{"h1", "h2", "h3", "h4"} {
		if err := storage.AppendPasswordHistory(aliceIdentity, hash, 3); err != nil {
			t.Fatalf("AppendPasswordHistory failed: %v", err)
		}
	}
	history, err := storage.GetPasswordHistory(aliceIdentity)
	if err != nil {
		t.Fatalf("GetPasswordHistory failed: %v", err)
	}
	assert.Equal(t, []string{"h2", "h3", "h4"}, history)

	empty, _ := storage.GetPasswordHistory(bobIdentity)
	assert.Equal(t, 0, len(empty))
}

func TestStorageFailedAttempts(t *testing.T) {
	storage := newMemAuthenticationStorage()
	defer storage.Close()

	now := time.Now()
	storage.RecordFailedAttempt(aliceIdentity, now.Add(-20*time.Minute))
	storage.RecordFailedAttempt(aliceIdentity, now.Add(-10*time.Minute))
	storage.RecordFailedAttempt(aliceIdentity, now)

	// Only attempts inside the window count
	count, err := storage.CountFailedAttemptsSince(aliceIdentity, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatalf("CountFailedAttemptsSince failed: %v", err)
	}
	assert.Equal(t, 2, count)

	count, _ = storage.CountFailedAttemptsSince(aliceIdentity, now.Add(-time.Hour))
	assert.Equal(t, 3, count)

	storage.ResetFailedAttempts(aliceIdentity)
	count, _ = storage.CountFailedAttemptsSince(aliceIdentity, now.Add(-time.Hour))
	assert.Equal(t, 0, count)
}

func TestStorageLockout(t *testing.T) {
	storage := newMemAuthenticationStorage()
	defer storage.Close()

	until := time.Now().Add(15 * time.Minute)
	storage.SetLockout(aliceIdentity, until)
	got, err := storage.GetLockout(aliceIdentity)
	if err != nil {
		t.Fatalf("GetLockout failed: %v", err)
	}
	assert.Equal(t, until, got)

	storage.ClearLockout(aliceIdentity)
	got, _ = storage.GetLockout(aliceIdentity)
	assert.True(t, got.IsZero())

	got, _ = storage.GetLockout(bobIdentity)
	assert.True(t, got.IsZero())
}
