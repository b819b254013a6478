package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is an adjustable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

const longResponse = "This is a sufficiently long cached response body that easily clears the minimum length bar."

func TestGetPut_RoundTrip(t *testing.T) {
	c := NewResponseCache(Options{}, discardLogger())
	key := Key("anthropic/claude", "how does box breathing work", "sig1")

	if _, ok := c.Get(context.Background(), key); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put(context.Background(), key, longResponse)
	got, ok := c.Get(context.Background(), key)
	if !ok || got != longResponse {
		t.Errorf("expected hit with stored response, got ok=%v", ok)
	}

	m := c.Metrics()
	if m.Hits != 1 || m.Misses != 1 || m.Writes != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestKey_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Key("m", "How does   Box Breathing work?", "s")
	b := Key("m", "how does box breathing work?", "s")
	if a != b {
		t.Error("formatting differences must not change the key")
	}
	c := Key("m", "how does box breathing work?", "other-sig")
	if a == c {
		t.Error("different context signatures must produce different keys")
	}
}

func TestTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewResponseCache(Options{TTL: 5 * time.Minute, Clock: clock.now}, discardLogger())

	c.Put(context.Background(), "k", longResponse)
	if _, ok := c.Get(context.Background(), "k"); !ok {
		t.Fatal("expected hit before expiry")
	}
	clock.advance(5*time.Minute + time.Second)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestEviction_OldestFifthRemoved(t *testing.T) {
	clock := newFakeClock()
	c := NewResponseCache(Options{MaxEntries: 10, Clock: clock.now}, discardLogger())

	for i := 0; i < 10; i++ {
		c.Put(context.Background(), fmt.Sprintf("k%d", i), longResponse)
		clock.advance(time.Second)
	}
	c.Put(context.Background(), "overflow", longResponse)

	// 20% of 10 = 2 oldest entries gone, the rest plus the new one remain.
	if c.Len() != 9 {
		t.Errorf("expected 9 entries after eviction, got %d", c.Len())
	}
	for _, gone := range []string{"k0", "k1"} {
		if _, ok := c.Get(context.Background(), gone); ok {
			t.Errorf("expected oldest entry %s evicted", gone)
		}
	}
	if _, ok := c.Get(context.Background(), "k2"); !ok {
		t.Error("entry k2 should have survived eviction")
	}
	if got := c.Metrics().Evictions; got != 2 {
		t.Errorf("expected 2 evictions, got %d", got)
	}
}

func TestOptionsClamped(t *testing.T) {
	c := NewResponseCache(Options{MaxEntries: 5, TTL: time.Second}, discardLogger())
	if c.maxEntries != minMaxEntries {
		t.Errorf("max entries below floor must clamp to %d, got %d", minMaxEntries, c.maxEntries)
	}
	if c.ttl != minTTL {
		t.Errorf("ttl below floor must clamp to %v, got %v", minTTL, c.ttl)
	}
	c = NewResponseCache(Options{MaxEntries: 100000, TTL: 48 * time.Hour}, discardLogger())
	if c.maxEntries != maxMaxEntries || c.ttl != maxTTL {
		t.Errorf("options above ceiling must clamp, got %d/%v", c.maxEntries, c.ttl)
	}
}

func TestCacheable(t *testing.T) {
	if Cacheable("hi", longResponse, false) {
		t.Error("short messages must not cache")
	}
	if Cacheable("tell me about sleep hygiene", "ok", false) {
		t.Error("short responses must not cache")
	}
	if Cacheable("tell me about sleep hygiene", longResponse, true) {
		t.Error("proposal-bearing responses must never cache")
	}
	if !Cacheable("tell me about sleep hygiene", longResponse, false) {
		t.Error("long informational exchanges should cache")
	}
}

// fakeBackend records Set calls and serves Get from a map.
type fakeBackend struct {
	data map[string]string
	sets int
}

func (b *fakeBackend) Get(_ context.Context, key string) (string, bool) {
	v, ok := b.data[key]
	return v, ok
}

func (b *fakeBackend) Set(_ context.Context, key, value string, _ time.Duration) {
	b.sets++
	b.data[key] = value
}

func TestBackend_MirrorAndFallthrough(t *testing.T) {
	backend := &fakeBackend{data: map[string]string{}}
	c := NewResponseCache(Options{Backend: backend}, discardLogger())

	c.Put(context.Background(), "k", longResponse)
	if backend.sets != 1 {
		t.Errorf("expected one mirrored write, got %d", backend.sets)
	}

	// A second instance sharing the backend hits through it.
	c2 := NewResponseCache(Options{Backend: backend}, discardLogger())
	got, ok := c2.Get(context.Background(), "k")
	if !ok || !strings.Contains(got, "cached response") {
		t.Errorf("expected backend hit, got ok=%v", ok)
	}
	if c2.Metrics().Hits != 1 {
		t.Errorf("backend hit must count as a hit: %+v", c2.Metrics())
	}
}

func TestBackend_RefillRespectsCapacity(t *testing.T) {
	backend := &fakeBackend{data: map[string]string{}}
	for i := 0; i < 30; i++ {
		backend.data[fmt.Sprintf("k%d", i)] = longResponse
	}

	c := NewResponseCache(Options{MaxEntries: 10, Backend: backend}, discardLogger())

	// Every Get misses locally and refills from the backend. The local tier
	// must stay bounded no matter how many distinct keys come through.
	for i := 0; i < 30; i++ {
		if _, ok := c.Get(context.Background(), fmt.Sprintf("k%d", i)); !ok {
			t.Fatalf("key k%d: expected backend hit", i)
		}
	}

	if n := c.Len(); n > 10 {
		t.Errorf("local tier grew to %d entries, capacity is 10", n)
	}
}

func TestHitRate(t *testing.T) {
	var m Metrics
	if m.HitRate() != 0 {
		t.Error("empty metrics must report 0 hit rate")
	}
	m = Metrics{Hits: 3, Misses: 1}
	if m.HitRate() != 0.75 {
		t.Errorf("expected 0.75, got %v", m.HitRate())
	}
}
