package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/jmgilman/go/errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidInput, "failed to hash password")
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches hash. Both bcrypt hashes
// and unsalted SHA-256 hex digests written by older deployments are accepted.
func VerifyPassword(password, hash string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return verifyLegacy(password, hash)
}

// legacyHash is the unsalted SHA-256 hex digest used by the flat-file format.
func legacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func verifyLegacy(password, hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	want := legacyHash(password)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(hash))) == 1
}
