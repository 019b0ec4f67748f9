package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("k", 3, 1) {
			t.Fatalf("call %d should be allowed within burst", i)
		}
	}
	if l.Allow("k", 3, 1) {
		t.Fatal("burst exhausted, expected deny")
	}
}

func TestAllowRefills(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	if !l.Allow("k", 1, 2) {
		t.Fatal("first call should pass")
	}
	if l.Allow("k", 1, 2) {
		t.Fatal("expected deny before refill")
	}

	now = now.Add(time.Second)
	if !l.Allow("k", 1, 2) {
		t.Fatal("expected allow after refill")
	}
}

func TestAllowKeysIndependent(t *testing.T) {
	now := time.Now()
	l := New()
	l.now = func() time.Time { return now }

	if !l.Allow("a", 1, 1) {
		t.Fatal("key a should pass")
	}
	if !l.Allow("b", 1, 1) {
		t.Fatal("key b should pass independently")
	}
}
