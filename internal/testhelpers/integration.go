//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-pipeline/internal/cache"
	"github.com/kjstillabower/weather-pipeline/internal/client"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisURL      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisURL:      os.Getenv("REDIS_URL"),
	}
}

// SetupIntegrationClient creates a live provider client.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(client.Options{APIKey: cfg.APIKey, BaseURL: cfg.APIURL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationCache returns the configured cache backend, falling back to
// in-memory when the server is unreachable. Closed at test cleanup.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) cache.Cache {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			err = mc.Ping(context.Background())
		}
		if err != nil {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			break
		}
		t.Cleanup(func() { _ = mc.Close() })
		t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		return mc
	case "redis":
		rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{URL: cfg.RedisURL})
		if err != nil {
			t.Logf("Redis not available (%v), using in-memory cache", err)
			break
		}
		t.Cleanup(func() { _ = rc.Close() })
		return rc
	}
	return cache.NewInMemoryCache()
}
