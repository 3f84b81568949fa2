package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDataFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeDataFetcher) Fetch(ctx context.Context, zipcode string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, zipcode)
	f.mu.Unlock()
	if err := f.fail[zipcode]; err != nil {
		return nil, err
	}
	return json.RawMessage(`{"zipcode":"` + zipcode + `"}`), nil
}

func (f *fakeDataFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &fakeDataFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), []string{"90210", "10001"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestCacheWarmer_Warm_EmptyZipcodes(t *testing.T) {
	warmer := NewCacheWarmer(&fakeDataFetcher{}, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}); err != nil {
		t.Fatalf("Warm([]) error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_PartialFailure(t *testing.T) {
	apiDown := errors.New("api down")
	fetcher := &fakeDataFetcher{fail: map[string]error{"10001": apiDown}}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"90210", "10001"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want wrapping %v", err, apiDown)
	}
	if !strings.Contains(err.Error(), "warm 10001") {
		t.Errorf("Warm() error = %q, want zipcode named", err)
	}
	if got := fetcher.callCount(); got != 2 {
		t.Errorf("fetch calls = %d, want 2 (failure must not stop the others)", got)
	}
}

func TestCacheWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	fetcher := &fakeDataFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"90210"}, 10*time.Millisecond) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not return after cancel")
	}
	if got := fetcher.callCount(); got < 2 {
		t.Errorf("fetch calls = %d, want initial warm plus at least one refresh", got)
	}
}
