//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func newIntegrationRedis(t *testing.T) *RedisCache {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	c, err := NewRedisCache(context.Background(), RedisConfig{URL: url})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCache_GetSet_Integration(t *testing.T) {
	c := newIntegrationRedis(t)
	ctx := context.Background()

	key := Key(NamespaceResult, "90210")
	val := []byte(`{"zipcode":"90210","source":"database"}`)
	if err := c.Set(ctx, key, val, ResultTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() = _, %v, %v; want hit", ok, err)
	}
	if string(got) != string(val) {
		t.Errorf("Get() = %s, want %s", got, val)
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > ResultTTL {
		t.Errorf("server TTL = %v, want (0, %v]", ttl, ResultTTL)
	}
}

func TestRedisCache_Get_Miss_Integration(t *testing.T) {
	c := newIntegrationRedis(t)

	_, ok, err := c.Get(context.Background(), "data:nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

func TestRedisCache_Expiry_Integration(t *testing.T) {
	c := newIntegrationRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "data:expiring", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "data:expiring"); ok {
		t.Error("Get() after expiry ok = true, want false")
	}
}
