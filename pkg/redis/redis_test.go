package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/clv-retention/pkg/config"
)

func newMiniClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

type summary struct {
	Rows        int     `json:"rows"`
	AvgChurn    float64 `json:"avg_churn"`
	CutoffLabel string  `json:"cutoff"`
}

func TestNewClient_Disabled(t *testing.T) {
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
}

func TestClient_PingAndAddr(t *testing.T) {
	client, mr := newMiniClient(t)
	if client.Addr() != mr.Addr() {
		t.Errorf("Addr() = %q, want %q", client.Addr(), mr.Addr())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected Ping to fail once the server is gone")
	}

	disabled := Wrap(nil)
	if disabled.Enabled() || disabled.Addr() != "" {
		t.Errorf("Wrap(nil) should be disabled, got enabled=%v addr=%q", disabled.Enabled(), disabled.Addr())
	}
	if err := disabled.Ping(context.Background()); err != nil {
		t.Errorf("disabled Ping() error = %v", err)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := New(&config.Config{Redis: config.RedisConfig{Enabled: true, Host: host, Port: port}})
	if err == nil {
		t.Fatal("Expected error for unreachable redis")
	}
}

func TestCache_Disabled(t *testing.T) {
	client, _ := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	cache := NewCache(client, "test")

	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Error("Expected cache miss when Redis disabled")
	}
}

func TestCache_SetGet(t *testing.T) {
	client, mr := newMiniClient(t)
	cache := NewCache(client, "clv")
	ctx := context.Background()

	in := summary{Rows: 120, AvgChurn: 0.42, CutoffLabel: "2010-06-30"}
	if err := cache.Set(ctx, SummaryKey("2010-06-30"), in, TTLShort); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !mr.Exists("clv:cache:predictions:2010-06-30:summary") {
		t.Fatal("Expected prefixed key in redis")
	}

	var out summary
	found, err := cache.Get(ctx, SummaryKey("2010-06-30"), &out)
	if err != nil || !found {
		t.Fatalf("Get() found=%v err=%v", found, err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}

	mr.FastForward(2 * time.Minute)
	found, _ = cache.Get(ctx, SummaryKey("2010-06-30"), &out)
	if found {
		t.Error("Expected entry to expire after TTL")
	}
}

func TestCache_GetOrSet(t *testing.T) {
	client, _ := newMiniClient(t)
	cache := NewCache(client, "clv")
	ctx := context.Background()

	calls := 0
	load := func() (interface{}, error) {
		calls++
		return summary{Rows: 7}, nil
	}

	for i := 0; i < 3; i++ {
		var out summary
		if err := cache.GetOrSet(ctx, "k", &out, TTLMedium, load); err != nil {
			t.Fatalf("GetOrSet() error = %v", err)
		}
		if out.Rows != 7 {
			t.Errorf("Expected Rows 7, got %d", out.Rows)
		}
	}
	if calls != 1 {
		t.Errorf("Expected loader to run once, ran %d times", calls)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	client, _ := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	limiter := NewRateLimiter(client, "test")

	cfg := APIRateLimit("127.0.0.1", 5)
	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed || remaining != cfg.Limit {
		t.Errorf("Expected pass-through, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client, _ := newMiniClient(t)
	limiter := NewRateLimiter(client, "clv")
	ctx := context.Background()
	cfg := RateLimitConfig{Key: "api:test", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, cfg)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if remaining != 2-i {
			t.Errorf("request %d: remaining = %d, want %d", i, remaining, 2-i)
		}
	}

	allowed, _, err := limiter.Allow(ctx, cfg)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("Expected fourth request to be rejected")
	}
}

func TestCacheKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"SummaryKey", SummaryKey("2010-06-30"), "predictions:2010-06-30:summary"},
		{"TopKey", TopKey("2010-06-30", "expected_loss", 10), "predictions:2010-06-30:top:expected_loss:10"},
		{"LatestPointerKey", LatestPointerKey(), "predictions:latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}
