//go:build integration
// +build integration

package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"
)

func isValidAPIKeyFormat(key string) error {
	if len(key) != 32 {
		return fmt.Errorf("API key length is %d, expected 32", len(key))
	}
	hexPattern := regexp.MustCompile(`^[0-9a-fA-F]+$`)
	if !hexPattern.MatchString(key) {
		return fmt.Errorf("API key contains non-hexadecimal characters")
	}
	return nil
}

func integrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}
	if err := isValidAPIKeyFormat(apiKey); err != nil {
		t.Fatalf("API key format validation failed: %v", err)
	}
	c, err := NewOpenWeatherClient(Options{APIKey: apiKey, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_CurrentConditions_Integration(t *testing.T) {
	c := integrationClient(t)

	rec, err := c.CurrentConditions(context.Background(), "90210")
	if err != nil {
		t.Fatalf("CurrentConditions() error = %v (API key may not be activated yet)", err)
	}
	if rec.City == "" {
		t.Error("CurrentConditions() returned empty city")
	}
	if rec.Description == "" {
		t.Error("CurrentConditions() returned empty description")
	}
}

func TestOpenWeatherClient_UnknownZipcode_Integration(t *testing.T) {
	c := integrationClient(t)

	_, err := c.CurrentConditions(context.Background(), "00000")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("CurrentConditions() error = %v, want *UpstreamError", err)
	}
	if upstream.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", upstream.StatusCode)
	}
}
