// Command authcore-loadtest measures session-store throughput: it seeds N
// sessions against an in-memory repository with a real (or embedded) Redis
// invalidation cache, then drives concurrent validate and invalidate phases
// and reports latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leadforge/authcore/session"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 100000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	lifetime := 24 * time.Hour
	cache, err := session.NewInvalidationCache(client, session.DefaultCacheConfig(lifetime), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache init failed: %v\n", err)
		os.Exit(1)
	}
	cache.Start()
	defer cache.Stop()

	store, err := session.NewStore(newMemRepo(), cache, lifetime, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store init failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	tokens := make([]string, *sessions)
	ids := make([]uuid.UUID, *sessions)
	for i := range tokens {
		record, token, err := store.Issue(ctx, fmt.Sprintf("user-%d", i%1024), "203.0.113.7", "loadtest")
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = token
		ids[i] = record.ID
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := store.Authenticate(ctx, tokens[r.Intn(len(tokens))], time.Now().UTC())
		return err
	})
	invalidateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		return store.Invalidate(ctx, ids[r.Intn(len(ids))])
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("invalidate", invalidateStats)
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil && err != session.ErrRevoked {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// memRepo is a sharded in-memory session repository, so repository overhead
// stays negligible and the run measures token verification plus cache cost.
type memRepo struct {
	shards [64]struct {
		mu   sync.RWMutex
		rows map[uuid.UUID]session.Record
	}
}

func newMemRepo() *memRepo {
	r := &memRepo{}
	for i := range r.shards {
		r.shards[i].rows = make(map[uuid.UUID]session.Record)
	}
	return r
}

func (r *memRepo) shard(id uuid.UUID) *struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]session.Record
} {
	return &r.shards[id[0]&63]
}

func (r *memRepo) Create(_ context.Context, record session.Record) error {
	s := r.shard(record.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[record.ID] = record
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (session.Record, error) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.rows[id]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return record, nil
}

func (r *memRepo) Invalidate(_ context.Context, id uuid.UUID) error {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.rows[id]; ok {
		record.IsActive = false
		s.rows[id] = record
	}
	return nil
}

func (r *memRepo) InvalidateAllForUser(_ context.Context, userID string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, record := range s.rows {
			if record.UserID == userID && record.IsActive {
				record.IsActive = false
				s.rows[id] = record
				ids = append(ids, id)
			}
		}
		s.mu.Unlock()
	}
	return ids, nil
}

func (r *memRepo) LatestActiveForUser(_ context.Context, userID string) (session.Record, error) {
	var latest session.Record
	found := false
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, record := range s.rows {
			if record.UserID == userID && record.IsActive &&
				(!found || record.CreatedAt.After(latest.CreatedAt)) {
				latest = record
				found = true
			}
		}
		s.mu.RUnlock()
	}
	if !found {
		return session.Record{}, session.ErrNotFound
	}
	return latest, nil
}
