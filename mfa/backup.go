package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

const (
	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// DefaultBackupCodeCount and DefaultBackupCodeLength match what the
	// enrollment flow hands to users.
	DefaultBackupCodeCount  = 10
	DefaultBackupCodeLength = 10
)

// HashBackupCode canonicalizes and hashes a backup code for storage or
// comparison. Codes are case-insensitive and dashes/spaces are ignored so a
// user can read one off paper.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(canonicalBackupCode(code)))
}

// GenerateBackupCodes returns count plaintext codes of length characters and
// their hashes. The plaintext is for one-time display; only hashes persist.
func GenerateBackupCodes(count, length int) ([]string, [][32]byte, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	if length <= 0 {
		length = DefaultBackupCodeLength
	}

	plain := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	buf := make([]byte, length)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		var b strings.Builder
		b.Grow(length)
		for _, v := range buf {
			b.WriteByte(backupCodeAlphabet[int(v)%len(backupCodeAlphabet)])
		}
		code := b.String()
		plain = append(plain, code)
		hashes = append(hashes, HashBackupCode(code))
	}
	return plain, hashes, nil
}

// BackupResult reports the outcome of a backup-code attempt. On a match,
// RemainingHashes is the stored list with the consumed code removed; the
// caller persists it so the code cannot be replayed.
type BackupResult struct {
	IsValid         bool
	RemainingHashes [][32]byte
}

// VerifyBackupCode matches code against the stored hashes. Every stored hash
// is compared in constant time regardless of where (or whether) a match
// occurs, so attempt timing does not leak prefix information.
func VerifyBackupCode(code string, hashes [][32]byte) BackupResult {
	candidate := HashBackupCode(code)

	matched := -1
	for i := range hashes {
		if subtle.ConstantTimeCompare(candidate[:], hashes[i][:]) == 1 && matched < 0 {
			matched = i
		}
	}
	if matched < 0 {
		return BackupResult{IsValid: false}
	}

	remaining := make([][32]byte, 0, len(hashes)-1)
	remaining = append(remaining, hashes[:matched]...)
	remaining = append(remaining, hashes[matched+1:]...)
	return BackupResult{IsValid: true, RemainingHashes: remaining}
}

func canonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}
