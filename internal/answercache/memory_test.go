package answercache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/guptaanant682/memorybank-backend/internal/platform/logger"
)

func TestFingerprint_NormalizesQuery(t *testing.T) {
	a := Fingerprint("What   is Machine Learning?")
	b := Fingerprint("what is machine learning?")
	if a != b {
		t.Fatalf("normalization should collapse case and whitespace: %s vs %s", a, b)
	}
	if a == Fingerprint("what is deep learning?") {
		t.Fatalf("distinct queries collided")
	}
}

func TestMemoryCache_SetGetFlush(t *testing.T) {
	c := NewMemoryCache(logger.NewNop(), Config{TTL: time.Minute, MaxSize: 8})
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "q"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := Entry{Answer: "42", Confidence: 0.9}
	if err := c.Set(ctx, "q", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := c.Get(ctx, "  Q ")
	if err != nil || !ok {
		t.Fatalf("expected hit on normalized query, got ok=%v err=%v", ok, err)
	}
	if got.Answer != want.Answer || got.Confidence != want.Confidence {
		t.Fatalf("entry = %+v, want %+v", got, want)
	}

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "q"); ok {
		t.Fatalf("entry survived flush")
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(logger.NewNop(), Config{TTL: time.Minute, MaxSize: 8})
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "q", Entry{Answer: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	now = now.Add(30 * time.Second)
	if _, ok, _ := c.Get(ctx, "q"); !ok {
		t.Fatalf("entry expired early")
	}
	now = now.Add(time.Hour)
	if _, ok, _ := c.Get(ctx, "q"); ok {
		t.Fatalf("entry outlived its TTL")
	}
}

func TestMemoryCache_BoundedEvictsLRU(t *testing.T) {
	c := NewMemoryCache(logger.NewNop(), Config{TTL: time.Hour, MaxSize: 3})
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		if err := c.Set(ctx, fmt.Sprintf("q%d", i), Entry{Answer: fmt.Sprintf("a%d", i)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	// Touch q0 so q1 becomes the least recently used.
	now = now.Add(time.Second)
	if _, ok, _ := c.Get(ctx, "q0"); !ok {
		t.Fatalf("q0 missing before eviction")
	}

	now = now.Add(time.Second)
	if err := c.Set(ctx, "q3", Entry{Answer: "a3"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if c.Len() != 3 {
		t.Fatalf("cache grew past its bound: %d", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "q1"); ok {
		t.Fatalf("least recently used entry survived")
	}
	for _, q := range []string{"q0", "q2", "q3"} {
		if _, ok, _ := c.Get(ctx, q); !ok {
			t.Fatalf("%s evicted unexpectedly", q)
		}
	}
}
