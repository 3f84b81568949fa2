package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move InMemoryCache time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache() (*InMemoryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewInMemoryCache()
	c.now = clock.Now
	return c, clock
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves them.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	val := []byte(`{"zipcode":"90210","temperature":72.5}`)
	if err := c.Set(ctx, Key(NamespaceData, "90210"), val, DataTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, Key(NamespaceData, "90210"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != string(val) {
		t.Errorf("Get() = %s, want %s", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false for an absent key.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache()

	_, ok, err := c.Get(context.Background(), "data:00000")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies entries stop being served once their TTL
// elapses and are removed on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()
	key := Key(NamespaceResult, "90210")

	if err := c.Set(ctx, key, []byte("x"), ResultTTL); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(ResultTTL - time.Second)
	if _, ok, _ := c.Get(ctx, key); !ok {
		t.Fatal("Get() before expiry ok = false, want true")
	}

	clock.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, key); ok {
		t.Fatal("Get() at expiry ok = true, want false")
	}
	c.mu.RLock()
	_, present := c.data[key]
	c.mu.RUnlock()
	if present {
		t.Error("expired entry still present after Get")
	}
}

// TestInMemoryCache_NamespacesIndependent verifies that the three stage namespaces
// never shadow each other and keep their own TTLs.
func TestInMemoryCache_NamespacesIndependent(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()

	_ = c.Set(ctx, Key(NamespaceIdentifier, "90210"), []byte(IdentifierValue), IdentifierTTL)
	_ = c.Set(ctx, Key(NamespaceData, "90210"), []byte("data"), DataTTL)
	_ = c.Set(ctx, Key(NamespaceResult, "90210"), []byte("result"), ResultTTL)

	clock.Advance(200 * time.Second)
	if _, ok, _ := c.Get(ctx, Key(NamespaceResult, "90210")); ok {
		t.Error("result entry alive after 200s, want expired")
	}
	if got, ok, _ := c.Get(ctx, Key(NamespaceData, "90210")); !ok || string(got) != "data" {
		t.Errorf("data entry = %q, %v, want \"data\", true", got, ok)
	}

	clock.Advance(200 * time.Second)
	if _, ok, _ := c.Get(ctx, Key(NamespaceData, "90210")); ok {
		t.Error("data entry alive after 400s, want expired")
	}
	if got, ok, _ := c.Get(ctx, Key(NamespaceIdentifier, "90210")); !ok || string(got) != IdentifierValue {
		t.Errorf("identifier entry = %q, %v, want %q, true", got, ok, IdentifierValue)
	}
}

// TestInMemoryCache_ValuesAreCopied verifies callers cannot mutate stored bytes.
func TestInMemoryCache_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	val := []byte("abc")
	_ = c.Set(ctx, "k", val, time.Minute)
	val[0] = 'X'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("Get() after caller mutation = %q, want \"abc\"", got)
	}
	got[1] = 'Y'
	again, _, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Get() after result mutation = %q, want \"abc\"", again)
	}
}

func TestInMemoryCache_Set_NonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	_ = c.Set(ctx, "k", []byte("v"), 0)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() ok = true after Set with zero ttl")
	}
}

func TestInMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache()
	key := Key(NamespaceIdentifier, "90210")

	if got := c.TTL(key); got != 0 {
		t.Errorf("TTL(absent) = %v, want 0", got)
	}
	_ = c.Set(ctx, key, []byte(IdentifierValue), IdentifierTTL)
	clock.Advance(10 * time.Second)
	if got, want := c.TTL(key), IdentifierTTL-10*time.Second; got != want {
		t.Errorf("TTL() = %v, want %v", got, want)
	}
}

func TestInMemoryCache_CanceledContext(t *testing.T) {
	c, _ := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get() with canceled ctx error = nil")
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err == nil {
		t.Error("Set() with canceled ctx error = nil")
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping() with canceled ctx error = nil")
	}
}

// TestInMemoryCache_ConcurrentAccess is meaningful under -race.
func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key(NamespaceData, fmt.Sprintf("%05d", i%5))
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, []byte("v"), time.Minute)
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
}

func TestKey(t *testing.T) {
	tests := []struct {
		ns   Namespace
		want string
	}{
		{NamespaceIdentifier, "identifier:90210"},
		{NamespaceData, "data:90210"},
		{NamespaceResult, "result:90210"},
	}
	for _, tc := range tests {
		if got := Key(tc.ns, "90210"); got != tc.want {
			t.Errorf("Key(%s) = %q, want %q", tc.ns, got, tc.want)
		}
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{IdentifierTTL, 3600},
		{DataTTL, 300},
		{ResultTTL, 180},
		{500 * time.Millisecond, 1},
		{60 * 24 * time.Hour, maxRelativeExp},
	}
	for _, tc := range tests {
		if got := expirationSeconds(tc.ttl); got != tc.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
	if got := parseAddrs(""); len(got) != 0 {
		t.Errorf("parseAddrs(\"\") = %v, want empty", got)
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(RedisConfig{URL: "redis://:secret@cache.internal:6380/2", PoolSize: 7})
	if err != nil {
		t.Fatalf("redisOptions() error = %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Errorf("redisOptions() = addr %q pw %q db %d pool %d", opts.Addr, opts.Password, opts.DB, opts.PoolSize)
	}

	opts, err = redisOptions(RedisConfig{})
	if err != nil {
		t.Fatalf("redisOptions(empty) error = %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Errorf("default addr = %q, want localhost:6379", opts.Addr)
	}

	if _, err := redisOptions(RedisConfig{URL: "http://nope"}); err == nil {
		t.Error("redisOptions(bad scheme) error = nil")
	}
}
