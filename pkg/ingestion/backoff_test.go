package ingestion

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff_Fixed(t *testing.T) {
	t.Parallel()

	base := 30 * time.Second
	for failures := 1; failures <= 5; failures++ {
		if got := backoff(failures, base, base); got != base {
			t.Fatalf("failures=%d: want %s got %s", failures, base, got)
		}
	}
	if got := backoff(0, base, base); got != 0 {
		t.Fatalf("failures=0: want 0 got %s", got)
	}
}

func TestBackoff_Capped(t *testing.T) {
	t.Parallel()

	base := 10 * time.Second
	maxBackoff := 60 * time.Second
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 1, want: 10 * time.Second},
		{failures: 2, want: 20 * time.Second},
		{failures: 3, want: 40 * time.Second},
		{failures: 4, want: 60 * time.Second}, // cap
		{failures: 90, want: 60 * time.Second},
	}

	for _, tc := range cases {
		if got := backoff(tc.failures, base, maxBackoff); got != tc.want {
			t.Fatalf("failures=%d: want %s got %s", tc.failures, tc.want, got)
		}
	}
}

func TestJitterDeterministic(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(1))
	maxJitter := 200 * time.Millisecond

	got := jitter(r, maxJitter)
	if got < 0 || got > maxJitter {
		t.Fatalf("jitter out of range: %s", got)
	}

	r2 := rand.New(rand.NewSource(1))
	if got2 := jitter(r2, maxJitter); got2 != got {
		t.Fatalf("expected deterministic jitter; got %s and %s", got, got2)
	}
}
