package authcore

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/authcore/session"
)

// memoryUsers is a map-backed UserProvider.
type memoryUsers struct {
	mu      sync.Mutex
	byEmail map[string]string
	byID    map[string]UserRecord
}

func newMemoryUsers(users ...UserRecord) *memoryUsers {
	m := &memoryUsers{
		byEmail: make(map[string]string),
		byID:    make(map[string]UserRecord),
	}
	for _, u := range users {
		m.byID[u.ID] = u
		m.byEmail[u.Email] = u.ID
	}
	return m
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryUsers) mutate(id string, fn func(*UserRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	m.byID[id] = user
	return nil
}

func (m *memoryUsers) RecordLoginFailure(_ context.Context, userID string, attempts int, lockoutUntil *time.Time, failedAt time.Time) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.FailedLoginAttempts = attempts
		u.LockoutUntil = lockoutUntil
		u.LastFailedLoginAt = &failedAt
	})
}

func (m *memoryUsers) ClearLockout(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.FailedLoginAttempts = 0
		u.LockoutUntil = nil
	})
}

func (m *memoryUsers) UpdateMFAVerification(_ context.Context, userID string, verifiedAt time.Time, hashes [][32]byte) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.MFALastVerifiedAt = &verifiedAt
		u.BackupCodeHashes = hashes
	})
}

func (m *memoryUsers) EnrollMFA(_ context.Context, userID, secretBase32 string, hashes [][32]byte) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.MFAEnabled = true
		u.MFASecret = secretBase32
		u.BackupCodeHashes = hashes
	})
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, userID, newHash string, changedAt time.Time) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.PasswordHash = newHash
		u.PasswordChangedAt = &changedAt
	})
}

func (m *memoryUsers) MarkVerified(_ context.Context, userID string) error {
	return m.mutate(userID, func(u *UserRecord) {
		u.IsVerified = true
	})
}

func (m *memoryUsers) get(t *testing.T, id string) UserRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		t.Fatalf("user %s missing", id)
	}
	return user
}

// memorySessions is a map-backed session.Repository.
type memorySessions struct {
	mu      sync.Mutex
	records map[uuid.UUID]session.Record
}

func newMemorySessions() *memorySessions {
	return &memorySessions{records: make(map[uuid.UUID]session.Record)}
}

func (m *memorySessions) Create(_ context.Context, record session.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *memorySessions) FindByID(_ context.Context, id uuid.UUID) (session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return record, nil
}

func (m *memorySessions) Invalidate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		record.IsActive = false
		m.records[id] = record
	}
	return nil
}

func (m *memorySessions) InvalidateAllForUser(_ context.Context, userID string) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, record := range m.records {
		if record.UserID == userID && record.IsActive {
			record.IsActive = false
			m.records[id] = record
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *memorySessions) LatestActiveForUser(_ context.Context, userID string) (session.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest session.Record
	found := false
	for _, record := range m.records {
		if record.UserID != userID || !record.IsActive {
			continue
		}
		if !found || record.CreatedAt.After(latest.CreatedAt) {
			latest = record
			found = true
		}
	}
	if !found {
		return session.Record{}, session.ErrNotFound
	}
	return latest, nil
}

func (m *memorySessions) activeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, record := range m.records {
		if record.UserID == userID && record.IsActive {
			n++
		}
	}
	return n
}

// recordingMailer captures every send for assertions.
type recordingMailer struct {
	mu           sync.Mutex
	lockouts     []string
	adminAlerts  []string
	resetTokens  map[string]string
	verifyTokens map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		resetTokens:  make(map[string]string),
		verifyTokens: make(map[string]string),
	}
}

func (m *recordingMailer) SendAccountLockout(_ context.Context, email string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockouts = append(m.lockouts, email)
	return nil
}

func (m *recordingMailer) SendAdminLockoutAlert(_ context.Context, adminEmail, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminAlerts = append(m.adminAlerts, adminEmail)
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[email] = token
	return nil
}

func (m *recordingMailer) SendVerification(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyTokens[email] = token
	return nil
}

func (m *recordingMailer) lockoutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lockouts)
}

func (m *recordingMailer) adminAlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.adminAlerts)
}

func (m *recordingMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetTokens[email]
}

func (m *recordingMailer) verifyToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyTokens[email]
}

type testEngine struct {
	engine *Engine
	users  *memoryUsers
	repo   *memorySessions
	mailer *recordingMailer
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	// Cheap argon2 so the suite stays fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, users ...UserRecord) *testEngine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	provider := newMemoryUsers(users...)
	repo := newMemorySessions()
	mailer := newRecordingMailer()

	engine, err := NewBuilder().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		WithSessionRepository(repo).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{engine: engine, users: provider, repo: repo, mailer: mailer, mr: mr}
}

// hashPassword produces a stored hash using the same cheap parameters as
// testConfig.
func hashPassword(t *testing.T, te *testEngine, plain string) string {
	t.Helper()
	hash, err := te.engine.hasher.Hash(plain)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

// totpNow derives the current 6-digit code for a base32 secret, independent
// of the production implementation.
func totpNow(t *testing.T, secretBase32 string, now time.Time) string {
	t.Helper()
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(now.Unix()/30))
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", bin%1000000)
}

// requestCtx mimics what the HTTP layer attaches before calling the engine.
func requestCtx(ip, userAgent string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, userAgent)
}

// waitFor polls cond until it holds or the deadline passes. Used for
// best-effort side effects that run on background goroutines.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
