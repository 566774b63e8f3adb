package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, cfg, nil), mr
}

func TestCheck_DeniesBeyondBudgetThenResetsAfterWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Login = Limit{MaxAttempts: 3, Window: time.Minute}
	limiter, mr := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		result := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com")
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if result.Remaining != 3-i {
			t.Fatalf("request %d: remaining = %d, want %d", i, result.Remaining, 3-i)
		}
	}

	denied := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com")
	if denied.Allowed {
		t.Fatal("request beyond budget should be denied")
	}
	if denied.RetryAfter <= 0 || denied.RetryAfter > time.Minute {
		t.Fatalf("retry-after out of range: %v", denied.RetryAfter)
	}

	// After the window lapses the counter restarts at 1.
	mr.FastForward(time.Minute + time.Second)
	fresh := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com")
	if !fresh.Allowed || fresh.Remaining != 2 {
		t.Fatalf("post-window request: %+v, want allowed with remaining=2", fresh)
	}
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Login = Limit{MaxAttempts: 1, Window: time.Minute}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	limiter.Check(ctx, EndpointLogin, "1.2.3.4", "a@example.com")
	if r := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "a@example.com"); r.Allowed {
		t.Fatal("same key should be exhausted")
	}

	if r := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "b@example.com"); !r.Allowed {
		t.Fatal("different identifier must have its own window")
	}
	if r := limiter.Check(ctx, EndpointLogin, "5.6.7.8", "a@example.com"); !r.Allowed {
		t.Fatal("different IP must have its own window")
	}
	if r := limiter.Check(ctx, EndpointPasswordReset, "1.2.3.4", "a@example.com"); !r.Allowed {
		t.Fatal("different endpoint must have its own window")
	}
}

func TestCheck_IdentifierIsCaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Login = Limit{MaxAttempts: 1, Window: time.Minute}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	limiter.Check(ctx, EndpointLogin, "1.2.3.4", "User@Example.com")
	if r := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com"); r.Allowed {
		t.Fatal("identifier casing must not split the window")
	}
}

func TestReset_ClearsTheWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Login = Limit{MaxAttempts: 1, Window: time.Minute}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com")
	limiter.Reset(ctx, EndpointLogin, "1.2.3.4", "user@example.com")

	if r := limiter.Check(ctx, EndpointLogin, "1.2.3.4", "user@example.com"); !r.Allowed {
		t.Fatal("reset window should admit the next request")
	}
}

func TestCheck_FailsOpenWhenBackendUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Login = Limit{MaxAttempts: 1, Window: time.Minute}
	cfg.Timeout = 100 * time.Millisecond
	limiter, mr := newTestLimiter(t, cfg)
	mr.Close()

	start := time.Now()
	result := limiter.Check(context.Background(), EndpointLogin, "1.2.3.4", "user@example.com")
	elapsed := time.Since(start)

	if !result.Allowed || !result.FailedOpen {
		t.Fatalf("expected fail-open result, got %+v", result)
	}
	if elapsed > time.Second {
		t.Fatalf("fail-open took %v, should be bounded by the timeout", elapsed)
	}
}
