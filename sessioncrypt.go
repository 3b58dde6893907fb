package authcore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
)

/*
SessionEncryption seals session attribute payloads with AES-256-GCM, for
deployments that push session state through an untrusted channel (a cookie,
a cache outside the process). The key is minted at construction and never
leaves the process; a restart invalidates everything sealed before it, which
is the behaviour you want for session payloads.
*/
type SessionEncryption struct {
	aead cipher.AEAD
}

func NewSessionEncryption() (*SessionEncryption, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return NewSessionEncryptionWithKey(key)
}

// NewSessionEncryptionWithKey builds the sealer over a caller-supplied
// 32-byte key, for processes that share sealed payloads.
func NewSessionEncryptionWithKey(key []byte) (*SessionEncryption, error) {
	if len(key) != 32 {
		return nil, NewError(ErrInvalidArgument, "encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SessionEncryption{aead: aead}, nil
}

// Seal encrypts the payload and returns nonce||ciphertext, base64url encoded.
func (x *SessionEncryption) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, x.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := x.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a payload produced by Seal. Tampering fails authentication.
func (x *SessionEncryption) Open(encoded string) ([]byte, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, NewError(ErrInvalidArgument, "payload is not valid base64url")
	}
	if len(sealed) < x.aead.NonceSize() {
		return nil, NewError(ErrInvalidArgument, "payload is too short")
	}
	nonce, ciphertext := sealed[:x.aead.NonceSize()], sealed[x.aead.NonceSize():]
	plaintext, err := x.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewError(ErrInvalidArgument, "payload failed authentication")
	}
	return plaintext, nil
}

// SealAttributes seals a session attribute map as JSON.
func (x *SessionEncryption) SealAttributes(attributes map[string]interface{}) (string, error) {
	plaintext, err := json.Marshal(attributes)
	if err != nil {
		return "", err
	}
	return x.Seal(plaintext)
}

// OpenAttributes reverses SealAttributes.
func (x *SessionEncryption) OpenAttributes(encoded string) (map[string]interface{}, error) {
	plaintext, err := x.Open(encoded)
	if err != nil {
		return nil, err
	}
	attributes := map[string]interface{}{}
	if err := json.Unmarshal(plaintext, &attributes); err != nil {
		return nil, err
	}
	return attributes, nil
}
