package authcore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMFAPrefix = "mfp:"

// pendingMFAStore holds started-but-unconfirmed MFA enrollments in Redis,
// keyed by user. The secret never reaches the user database until the user
// proves possession by confirming a code.
type pendingMFAStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

type pendingEnrollment struct {
	SecretBase32 string   `json:"secret"`
	BackupHashes []string `json:"backup_hashes"`
}

func newPendingMFAStore(client redis.UniversalClient, ttl time.Duration) *pendingMFAStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &pendingMFAStore{redis: client, ttl: ttl}
}

func (s *pendingMFAStore) put(ctx context.Context, userID, secretBase32 string, backupHashes [][32]byte) error {
	enc := pendingEnrollment{SecretBase32: secretBase32}
	for _, h := range backupHashes {
		enc.BackupHashes = append(enc.BackupHashes, hex.EncodeToString(h[:]))
	}
	payload, err := json.Marshal(enc)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, pendingMFAPrefix+userID, payload, s.ttl).Err()
}

// get returns the pending enrollment, or ErrMFANotPending when none exists
// or it expired.
func (s *pendingMFAStore) get(ctx context.Context, userID string) (string, [][32]byte, error) {
	payload, err := s.redis.Get(ctx, pendingMFAPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrMFANotPending
	}
	if err != nil {
		return "", nil, err
	}

	var enc pendingEnrollment
	if err := json.Unmarshal(payload, &enc); err != nil {
		return "", nil, fmt.Errorf("corrupt pending enrollment: %w", err)
	}

	hashes := make([][32]byte, 0, len(enc.BackupHashes))
	for _, h := range enc.BackupHashes {
		raw, err := hex.DecodeString(h)
		if err != nil || len(raw) != 32 {
			return "", nil, errors.New("corrupt pending enrollment hash")
		}
		var hash [32]byte
		copy(hash[:], raw)
		hashes = append(hashes, hash)
	}
	return enc.SecretBase32, hashes, nil
}

func (s *pendingMFAStore) delete(ctx context.Context, userID string) {
	_ = s.redis.Del(ctx, pendingMFAPrefix+userID).Err()
}
