package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memoryRepository is a map-backed Repository with error injection for the
// degraded-path tests.
type memoryRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	failing bool
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[uuid.UUID]Record)}
}

var errInjected = errors.New("injected outage")

func (m *memoryRepository) setFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *memoryRepository) Create(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errInjected
	}
	m.records[record.ID] = record
	return nil
}

func (m *memoryRepository) FindByID(_ context.Context, id uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return Record{}, errInjected
	}
	record, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (m *memoryRepository) Invalidate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errInjected
	}
	if record, ok := m.records[id]; ok {
		record.IsActive = false
		m.records[id] = record
	}
	return nil
}

func (m *memoryRepository) InvalidateAllForUser(_ context.Context, userID string) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, errInjected
	}
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

func (m *memoryRepository) LatestActiveForUser(_ context.Context, userID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return Record{}, errInjected
	}
	var latest Record
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
		return Record{}, ErrNotFound
	}
	return latest, nil
}

func newTestStore(t *testing.T) (*Store, *memoryRepository) {
	t.Helper()

	repo := newMemoryRepository()
	cache, _ := newTestCache(t, DefaultCacheConfig(time.Hour))
	store, err := NewStore(repo, cache, time.Hour, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, repo
}

func TestIssueAndAuthenticate(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	record, token, err := store.Issue(ctx, "user-1", "203.0.113.7", "curl/8")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned an empty token")
	}

	stored, err := repo.FindByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("persisted row missing: %v", err)
	}
	if stored.TokenHash == ([32]byte{}) {
		t.Fatal("token hash not persisted")
	}

	identity, err := store.Authenticate(ctx, token, time.Now())
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.UserID != "user-1" || identity.SessionID != record.ID {
		t.Fatalf("wrong identity: %+v", identity)
	}
	if identity.Degraded {
		t.Fatal("healthy path must not be degraded")
	}
	if identity.IPAddress != "203.0.113.7" || identity.UserAgent != "curl/8" {
		t.Fatalf("identity missing device context: %+v", identity)
	}
}

func TestAuthenticate_RejectsMalformedAndUnknownTokens(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, token := range []string{"", "not-a-token", "YWJjZGVm"} {
		if _, err := store.Authenticate(ctx, token, now); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: got %v, want ErrInvalidToken", token, err)
		}
	}

	// Well-formed token for a session that was never issued.
	_, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	otherStore, _ := newTestStore(t)
	if _, err := otherStore.Authenticate(ctx, token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: got %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticate_RejectsTamperedSecret(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip the final character of the encoded secret.
	tampered := []byte(token)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}

	if _, err := store.Authenticate(ctx, string(tampered), time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: got %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticate_ExpiryIsDerived(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := store.Authenticate(ctx, token, time.Now().Add(59*time.Minute)); err != nil {
		t.Fatalf("inside lifetime: %v", err)
	}
	if _, err := store.Authenticate(ctx, token, time.Now().Add(61*time.Minute)); !errors.Is(err, ErrExpired) {
		t.Fatalf("past lifetime: got %v, want ErrExpired", err)
	}
}

func TestInvalidate_KillsSessionEverywhere(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	record, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := store.Invalidate(ctx, record.ID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, err := store.Authenticate(ctx, token, time.Now()); !errors.Is(err, ErrRevoked) {
		t.Fatalf("got %v, want ErrRevoked", err)
	}

	// Invalidating again is a no-op, not an error.
	if err := store.Invalidate(ctx, record.ID); err != nil {
		t.Fatalf("repeat Invalidate: %v", err)
	}
}

func TestInvalidate_WritesMarkerEvenWhenRowUpdateFails(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	record, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Authenticate once so the recent-validation cache would otherwise serve
	// the identity during the outage.
	if _, err := store.Authenticate(ctx, token, time.Now()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	repo.setFailing(true)
	if err := store.Invalidate(ctx, record.ID); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}

	// The marker landed regardless, so the token is dead even while the row
	// still says active.
	if _, err := store.Authenticate(ctx, token, time.Now()); !errors.Is(err, ErrRevoked) {
		t.Fatalf("got %v, want ErrRevoked", err)
	}
}

func TestInvalidateAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, tokenA, _ := store.Issue(ctx, "user-1", "", "")
	_, tokenB, _ := store.Issue(ctx, "user-1", "", "")
	_, tokenOther, _ := store.Issue(ctx, "user-2", "", "")

	if err := store.InvalidateAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("InvalidateAllForUser: %v", err)
	}

	now := time.Now()
	for _, token := range []string{tokenA, tokenB} {
		if _, err := store.Authenticate(ctx, token, now); !errors.Is(err, ErrRevoked) {
			t.Errorf("got %v, want ErrRevoked", err)
		}
	}
	if _, err := store.Authenticate(ctx, tokenOther, now); err != nil {
		t.Fatalf("unrelated user's session died: %v", err)
	}
}

func TestAuthenticate_DegradesDuringOutage(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := store.Authenticate(ctx, token, now); err != nil {
		t.Fatalf("warm-up Authenticate: %v", err)
	}

	repo.setFailing(true)

	identity, err := store.Authenticate(ctx, token, now)
	if err != nil {
		t.Fatalf("degraded Authenticate: %v", err)
	}
	if !identity.Degraded {
		t.Fatal("outage identity must be marked degraded")
	}
	if identity.UserID != "user-1" {
		t.Fatalf("wrong degraded identity: %+v", identity)
	}

	// Degraded serving still enforces expiry.
	if _, err := store.Authenticate(ctx, token, now.Add(2*time.Hour)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expired during outage: got %v, want ErrStoreUnavailable", err)
	}
}

func TestAuthenticate_OutageWithoutRecentValidationFails(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()

	_, token, err := store.Issue(ctx, "user-1", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Never authenticated on this node, so there is nothing to degrade to.
	repo.setFailing(true)
	if _, err := store.Authenticate(ctx, token, time.Now()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
}
