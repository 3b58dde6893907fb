package authcore

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinHashCost and MaxHashCost bound the adaptive work factor. bcrypt
	// embeds the salt and the cost in its output, so a hash carries enough
	// information to be verified and to be re-costed later.
	MinHashCost     = bcrypt.MinCost
	MaxHashCost     = bcrypt.MaxCost
	DefaultHashCost = 12
)

// PasswordHasher computes and verifies adaptive password hashes.
// Verification time is independent of the match outcome for a given input
// length; the tag comparison inside bcrypt is constant-time.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: DefaultHashCost}
}

func NewPasswordHasherWithCost(cost int) (*PasswordHasher, error) {
	if cost < MinHashCost || cost > MaxHashCost {
		return nil, NewError(ErrInvalidArgument, "hash cost must be between 4 and 31")
	}
	return &PasswordHasher{cost: cost}, nil
}

func (x *PasswordHasher) Cost() int {
	return x.cost
}

// Hash computes a salted hash of the password. The returned string is opaque
// to callers; its only guaranteed property is that Verify accepts it.
func (x *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", NewError(ErrInvalidArgument, "password may not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), x.cost)
	if err != nil {
		return "", NewError(ErrInvalidHash, err.Error())
	}
	return string(hash), nil
}

// Verify reports whether the password matches the hash. A malformed hash
// verifies false, never errors.
func (x *PasswordHasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash returns true when the embedded cost differs from the configured
// cost, or when the hash format is unrecognized.
func (x *PasswordHasher) NeedsRehash(hash string) bool {
	if !strings.HasPrefix(hash, "$2") {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != x.cost
}
