package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/parley-ai/parley/llm"
	"github.com/rs/zerolog"
)

func newTestCache(t *testing.T, maxEntries int) (*ResponseCache, *time.Time) {
	t.Helper()
	now := time.Now()
	c := NewResponseCache(CacheConfig{
		Enabled:    true,
		TTL:        time.Minute,
		MaxEntries: maxEntries,
	}, zerolog.Nop())
	t.Cleanup(c.Stop)
	c.now = func() time.Time { return now }
	return c, &now
}

func textResponse(s string) *llm.Response {
	return &llm.Response{Content: llm.String(s), FinishReason: llm.FinishStop}
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 10)

	c.Put("k1", textResponse("hello"))
	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("Expected cache hit")
	}
	if got.Text() != "hello" {
		t.Errorf("Expected cached content 'hello', got %q", got.Text())
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c, now := newTestCache(t, 10)

	c.Put("k1", textResponse("hello"))
	*now = now.Add(61 * time.Second)
	if _, ok := c.Get("k1"); ok {
		t.Error("Expected miss after TTL elapsed")
	}
	// Expired entry was evicted on access.
	if c.Len() != 0 {
		t.Errorf("Expected stale entry removed, %d entries remain", c.Len())
	}
}

func TestCacheBatchEviction(t *testing.T) {
	c, now := newTestCache(t, 5)

	for i := 0; i < 8; i++ {
		// Distinct insertion timestamps give a deterministic eviction order.
		*now = now.Add(time.Millisecond)
		c.Put(fmt.Sprintf("k%d", i), textResponse("v"))
	}
	// Batch FIFO eviction leaves at most maxEntries+1 behind, not a hard cap.
	if c.Len() > 6 {
		t.Errorf("Expected at most 6 entries after batch eviction, got %d", c.Len())
	}
	// The newest entry always survives.
	if _, ok := c.Get("k7"); !ok {
		t.Error("Expected newest entry to survive eviction")
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	c, now := newTestCache(t, 3)

	for i := 0; i < 4; i++ {
		*now = now.Add(time.Millisecond)
		c.Put(fmt.Sprintf("k%d", i), textResponse("v"))
	}
	if _, ok := c.Get("k0"); ok {
		t.Error("Expected oldest entry evicted first")
	}
}

func TestCacheFetchComputesOnceAndCaches(t *testing.T) {
	c, _ := newTestCache(t, 10)

	computes := 0
	compute := func() (*llm.Response, error) {
		computes++
		return textResponse("computed"), nil
	}
	for i := 0; i < 3; i++ {
		resp, err := c.Fetch("k1", compute)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if resp.Text() != "computed" {
			t.Errorf("Unexpected content %q", resp.Text())
		}
	}
	if computes != 1 {
		t.Errorf("Expected a single compute, got %d", computes)
	}
}

func TestCacheFetchDoesNotCacheErrors(t *testing.T) {
	c, _ := newTestCache(t, 10)

	boom := errors.New("boom")
	if _, err := c.Fetch("k1", func() (*llm.Response, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected compute error passed through, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("Expected errors to stay uncached")
	}
}

func TestCacheSweepRemovesExpired(t *testing.T) {
	c, now := newTestCache(t, 10)

	c.Put("old", textResponse("v"))
	*now = now.Add(2 * time.Minute)
	c.Put("fresh", textResponse("v"))
	c.sweep()

	if _, ok := c.Get("fresh"); !ok {
		t.Error("Expected fresh entry to survive sweep")
	}
	if c.Len() != 1 {
		t.Errorf("Expected only the fresh entry after sweep, got %d", c.Len())
	}
}

func TestCacheDisabledIsNoop(t *testing.T) {
	c := NewResponseCache(CacheConfig{Enabled: false}, zerolog.Nop())
	c.Put("k1", textResponse("v"))
	if _, ok := c.Get("k1"); ok {
		t.Error("Expected disabled cache to never hit")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := &llm.Request{
		Model:       "gpt-4o",
		Messages:    []llm.Message{llm.NewUserMessage("hi")},
		Temperature: llm.Float64(0.7),
		Tools:       []llm.ToolSpec{{Name: "lookup"}},
	}
	same := &llm.Request{
		Model:       "gpt-4o",
		Messages:    []llm.Message{llm.NewUserMessage("hi")},
		Temperature: llm.Float64(0.7),
		Tools:       []llm.ToolSpec{{Name: "lookup"}},
	}
	if Fingerprint(base) != Fingerprint(same) {
		t.Error("Expected identical requests to share a fingerprint")
	}

	variants := []*llm.Request{
		{Model: "gpt-4", Messages: base.Messages, Temperature: base.Temperature, Tools: base.Tools},
		{Model: base.Model, Messages: []llm.Message{llm.NewUserMessage("bye")}, Temperature: base.Temperature, Tools: base.Tools},
		{Model: base.Model, Messages: base.Messages, Temperature: llm.Float64(0.2), Tools: base.Tools},
		{Model: base.Model, Messages: base.Messages, Temperature: base.Temperature, Tools: []llm.ToolSpec{{Name: "other"}}},
		{Model: base.Model, Messages: []llm.Message{{Role: llm.RoleUser}}, Temperature: base.Temperature, Tools: base.Tools},
	}
	seen := map[string]bool{Fingerprint(base): true}
	for i, v := range variants {
		fp := Fingerprint(v)
		if seen[fp] {
			t.Errorf("Variant %d: expected a distinct fingerprint", i)
		}
		seen[fp] = true
	}
}
