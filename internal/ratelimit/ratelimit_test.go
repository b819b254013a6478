package ratelimit

import (
	"testing"
	"time"
)

func testLimiter(cfg Config) (*Limiter, *time.Time) {
	l := NewLimiter(cfg)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheck_ExactlyMaxAllowed(t *testing.T) {
	l, _ := testLimiter(Config{Window: time.Minute, Max: 3})

	for i := 0; i < 3; i++ {
		if d := l.Check("alice"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d := l.Check("alice")
	if d.Allowed {
		t.Error("request beyond max must be rejected")
	}
	if d.Remaining <= 0 || d.Remaining > time.Minute {
		t.Errorf("rejection must carry time until reset, got %v", d.Remaining)
	}
}

func TestCheck_WindowResets(t *testing.T) {
	l, now := testLimiter(Config{Window: time.Minute, Max: 1})

	if !l.Check("alice").Allowed {
		t.Fatal("first request should pass")
	}
	if l.Check("alice").Allowed {
		t.Fatal("second request in window must be rejected")
	}

	*now = now.Add(time.Minute)
	if !l.Check("alice").Allowed {
		t.Error("request after window expiry should pass")
	}
}

func TestCheck_ClientsIndependent(t *testing.T) {
	l, _ := testLimiter(Config{Window: time.Minute, Max: 1})

	l.Check("alice")
	if !l.Check("bob").Allowed {
		t.Error("one client's quota must not affect another's")
	}
}

func TestCheck_RejectionDoesNotExtendWindow(t *testing.T) {
	l, now := testLimiter(Config{Window: time.Minute, Max: 1})

	l.Check("alice")
	*now = now.Add(30 * time.Second)
	l.Check("alice") // rejected
	*now = now.Add(30 * time.Second)
	if !l.Check("alice").Allowed {
		t.Error("window is anchored at the first request, not the last attempt")
	}
}

func TestCheck_UnlimitedWhenMaxZero(t *testing.T) {
	l, _ := testLimiter(Config{Window: time.Minute})
	for i := 0; i < 100; i++ {
		if !l.Check("alice").Allowed {
			t.Fatal("zero max means unlimited")
		}
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      int
	}{
		{1500 * time.Millisecond, 2},
		{time.Second, 1},
		{10 * time.Millisecond, 1},
		{0, 1},
	}
	for _, c := range cases {
		if got := RetryAfterSeconds(c.remaining); got != c.want {
			t.Errorf("RetryAfterSeconds(%v) = %d, want %d", c.remaining, got, c.want)
		}
	}
}
