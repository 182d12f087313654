package authgate

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

// ErrNoEmptyString is returned when a hash is requested for empty input.
var ErrNoEmptyString = goerrors.New("value cannot be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

const (
	saltBytes      = 16
	hashIterations = 4096
	hashKeyLength  = 32
)

// NewSalt returns a fresh random per-user salt, hex encoded.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}
	return hex.EncodeToString(buf), nil
}

// HashPassword derives a salted password hash. The derivation is
// deterministic for a given (password, salt) pair so stored credentials can
// be re-verified by re-hashing.
func HashPassword(password, salt string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	key := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyLength, sha256.New)
	return hex.EncodeToString(key), nil
}

// VerifyPassword re-hashes the candidate password with the stored salt and
// compares against the expected hash in full. The comparison never
// short-circuits on the first mismatched byte.
func VerifyPassword(password, salt, expectedHash string) bool {
	candidate, err := HashPassword(password, salt)
	if err != nil {
		return false
	}
	return SecureEquals(candidate, expectedHash)
}

// SecureEquals compares two secrets without early exit. Used for password
// hashes and opaque bearer tokens alike.
func SecureEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomSecret returns n random bytes as a hex string from a high-entropy
// source. Collision probability is cryptographically negligible.
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate secret")
	}
	return hex.EncodeToString(buf), nil
}
