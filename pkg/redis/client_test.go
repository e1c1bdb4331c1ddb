package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("unexpected first call state allowed=%v count=%d", allowed, count)
	}
	if got := mock.ttls["sf:rate_limit:test-scope"]; got != 1500 {
		t.Fatalf("expected window passed in milliseconds, got %v", got)
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil || !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d err=%v", allowed, count, err)
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetGetDelLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Set(ctx, "sf:cache:policy:1", "value", 10*time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, "sf:cache:policy:1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "value" {
		t.Fatalf("expected stored value, got %q", got)
	}
	if err := client.Del(ctx, "sf:cache:policy:1"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "sf:cache:policy:1"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	first, err := client.SetNX(ctx, "k", "a", time.Minute)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to win, got %v %v", first, err)
	}
	second, err := client.SetNX(ctx, "k", "b", time.Minute)
	if err != nil || second {
		t.Fatalf("expected second SetNX to lose, got %v %v", second, err)
	}
}

func TestDelIfValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["lock"] = "owner-a"

	deleted, err := client.DelIfValue(ctx, "lock", "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not delete, got %v %v", deleted, err)
	}
	deleted, err = client.DelIfValue(ctx, "lock", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner should delete, got %v %v", deleted, err)
	}
}

func TestExpireIfValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	mock.data["lock"] = "owner-a"

	extended, err := client.ExpireIfValue(ctx, "lock", "owner-b", time.Minute)
	if err != nil || extended {
		t.Fatalf("foreign owner must not extend, got %v %v", extended, err)
	}
	extended, err = client.ExpireIfValue(ctx, "lock", "owner-a", time.Minute)
	if err != nil || !extended {
		t.Fatalf("owner should extend, got %v %v", extended, err)
	}
	if mock.ttls["lock"] != time.Minute.Milliseconds() {
		t.Fatalf("unexpected ttl %d", mock.ttls["lock"])
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "scope", 1, time.Second); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "sf:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "sf:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.CacheKey("policy", "variant", "abc"); got != "sf:cache:policy:variant:abc" {
		t.Fatalf("unexpected cache key %s", got)
	}
	if got := client.LockKey("cron"); got != "sf:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "sf:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	staging := &Client{namespace: "sf-staging"}
	if got := staging.LockKey("cron"); got != "sf-staging:lock:cron" {
		t.Fatalf("namespace not applied, got %s", got)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval emulates the three scripts the client sends.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch script {
	case fixedWindowScript:
		var n int64
		fmt.Sscan(m.data[key], &n)
		n++
		m.data[key] = fmt.Sprint(n)
		if n == 1 {
			m.ttls[key] = args[0].(int64)
		}
		return redis.NewCmdResult(n, nil)
	case compareAndDeleteScript:
		if m.data[key] == fmt.Sprint(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
	case compareAndExpireScript:
		if m.data[key] == fmt.Sprint(args[0]) {
			m.ttls[key] = args[1].(int64)
			return redis.NewCmdResult(int64(1), nil)
		}
	}
	return redis.NewCmdResult(int64(0), nil)
}
