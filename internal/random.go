package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// SecretSize is the random-secret half of a session token, in bytes.
const SecretSize = 32

const tokenRawSize = 16 + SecretSize

// ErrTokenFormat is returned for session tokens that do not decode to a
// uuid + secret pair of the expected size.
var ErrTokenFormat = errors.New("invalid session token format")

// NewSessionSecret generates the random secret half of a session token.
func NewSessionSecret() ([SecretSize]byte, error) {
	var secret [SecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret derives the stored hash for a session secret. Only the hash is
// persisted; the plaintext secret exists solely inside the issued token.
func HashSecret(secret [SecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeSessionToken packs a session ID and its secret into the opaque,
// base64url cookie/bearer value handed to clients.
func EncodeSessionToken(sessionID uuid.UUID, secret [SecretSize]byte) string {
	var raw [tokenRawSize]byte
	copy(raw[:16], sessionID[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeSessionToken splits an opaque token back into session ID and secret.
func DecodeSessionToken(token string) (uuid.UUID, [SecretSize]byte, error) {
	var secret [SecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return uuid.Nil, secret, ErrTokenFormat
	}
	if len(raw) != tokenRawSize {
		return uuid.Nil, secret, ErrTokenFormat
	}

	var id uuid.UUID
	copy(id[:], raw[:16])
	copy(secret[:], raw[16:])
	return id, secret, nil
}
