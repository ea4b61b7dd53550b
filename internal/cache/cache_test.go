package cache

import (
	"testing"
	"time"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
)

func TestNormalize(t *testing.T) {
	if got := Normalize("  Hello\t  WORLD \n"); got != "hello world" {
		t.Fatalf("unexpected normalization: %q", got)
	}
	if got := Normalize(""); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestFingerprintDeterminismAndSensitivity(t *testing.T) {
	base := Fingerprint("s1", "hi", "model-a", emotion.Neutral)

	if again := Fingerprint("s1", "  HI ", "model-a", emotion.Neutral); again != base {
		t.Fatal("normalized-equivalent text must produce the same fingerprint")
	}
	if diff := Fingerprint("s1", "hi", "model-a", emotion.Happy); diff == base {
		t.Fatal("fingerprint must change with emotion")
	}
	if diff := Fingerprint("s1", "hi", "model-b", emotion.Neutral); diff == base {
		t.Fatal("fingerprint must change with model")
	}
	if diff := Fingerprint("s2", "hi", "model-a", emotion.Neutral); diff == base {
		t.Fatal("fingerprint must change with session")
	}
}

func TestLookupExpiresEntries(t *testing.T) {
	c := New(time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	fp := Fingerprint("s1", "hi", "m", emotion.Neutral)
	c.Store(fp, "s1", "hello there", emotion.Neutral)

	if entry, ok := c.Lookup(fp); !ok || entry.Text != "hello there" {
		t.Fatalf("expected fresh hit, got %v %v", entry, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Lookup(fp); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be purged lazily, Len=%d", c.Len())
	}
}

func TestInvalidateSession(t *testing.T) {
	c := New(time.Minute)

	c.Store(Fingerprint("s1", "a", "m", emotion.Neutral), "s1", "ra", emotion.Neutral)
	c.Store(Fingerprint("s1", "b", "m", emotion.Neutral), "s1", "rb", emotion.Neutral)
	c.Store(Fingerprint("s2", "a", "m", emotion.Neutral), "s2", "rc", emotion.Neutral)

	if removed := c.InvalidateSession("s1"); removed != 2 {
		t.Fatalf("expected 2 entries removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", c.Len())
	}
	if _, ok := c.Lookup(Fingerprint("s2", "a", "m", emotion.Neutral)); !ok {
		t.Fatal("other sessions must be untouched")
	}
}
