package authcore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/IMQS/log"
)

/*
NOTE: Some of these tests stress concurrency, so you must run them with at least -test.cpu 2

Suggested test run:

	go test -race github.com/IMQS/authcore -test.cpu 2
*/

// These are hard-coded identities for unit test predictability
var aliceIdentity = "alice"
var bobIdentity = "bob@email.test"
var carolIdentity = "carol"
var daveIdentity = "dave@email.test"

// These are hard-coded passwords for unit test predictability
var alicePwd = "Hunter2!-abcdef"
var bobPwd = "CorrectHorse9!x"
var carolPwd = "BatteryStaple7$q"
var davePwd = "OldSecret1!mnopq"

// These are hard-coded origins for unit test predictability
var homeIP = "192.168.1.100"
var homeAgent = "Mozilla/5.0"
var awayIP = "10.0.0.1"
var nearbyIP = "192.168.1.77"

var serialCounter int64 = time.Now().UnixNano()

func testLogger() *log.Logger {
	return log.New("", false) // Use empty string to discard logs in tests
}

// fastTestPolicy pins the lockout settings the tests count against (3
// attempts, 15-minute window, 15-minute lockout), so a change to the defaults
// does not move them. Tests that need the lockout to elapse set
// LockoutDurationMinutes themselves.
func fastTestPolicy() PasswordPolicy {
	policy := DefaultPasswordPolicy()
	policy.MaxFailedAttempts = 3
	policy.LockoutWindowMinutes = 15
	policy.LockoutDurationMinutes = 15
	return policy
}

func newTestManager(t *testing.T, policy PasswordPolicy) (*AuthenticatorManager, *dummyAuditor) {
	hasher, err := NewPasswordHasherWithCost(MinHashCost)
	if err != nil {
		t.Fatalf("NewPasswordHasherWithCost failed: %v", err)
	}
	auditor := newDummyAuditor()
	manager := NewAuthenticatorManager(testLogger(), newMemAuthenticationStorage(), hasher, policy, NewCertificateValidator(NewCertificateStore()))
	manager.Auditor = auditor
	return manager, auditor
}

func nextSerial() *big.Int {
	serialCounter++
	return big.NewInt(serialCounter)
}

func makeSelfSignedCert(t *testing.T, commonName string, notBefore, notAfter time.Time) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"authcore test"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	return cert
}

func makeCACert(t *testing.T, commonName string) (*x509.Certificate, *ecdsa.PrivateKey) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"authcore test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	return cert, key
}

func makeLeafCert(t *testing.T, ca *x509.Certificate, caKey *ecdsa.PrivateKey, commonName string) *x509.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          nextSerial(),
		Subject:               pkix.Name{CommonName: commonName, Organization: []string{"authcore test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate failed: %v", err)
	}
	return cert
}
