package keypool

import (
	"errors"
	"testing"
)

func TestNewEmptyPool(t *testing.T) {
	_, err := New(nil)
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestNextRoundRobin(t *testing.T) {
	pool, err := New([]string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var order []string
	for i := 0; i < 6; i++ {
		cred, err := pool.Next()
		if err != nil {
			t.Fatalf("Next failed on call %d: %v", i, err)
		}
		order = append(order, cred.Key)
	}

	expected := []string{
		"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc",
		"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc",
	}
	for i := range expected {
		if order[i] != expected[i] {
			t.Errorf("call %d: got %s, want %s", i, order[i], expected[i])
		}
	}
}

func TestNextSkipsExhausted(t *testing.T) {
	pool, err := New([]string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, _ := pool.Next()
	pool.MarkExhausted(first.ID)

	// No sequence of exhaustion events may yield an exhausted credential
	// while a usable one remains.
	for i := 0; i < 10; i++ {
		cred, err := pool.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if cred.Exhausted {
			t.Fatalf("Next returned exhausted credential %s", cred.ID)
		}
		if cred.ID == first.ID {
			t.Fatalf("Next returned marked credential %s", cred.ID)
		}
	}
}

func TestPoolExhaustion(t *testing.T) {
	pool, err := New([]string{"key-aaaaaaaa", "key-bbbbbbbb"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for pool.Usable() > 0 {
		cred, err := pool.Next()
		if err != nil {
			t.Fatalf("Next failed with usable credentials left: %v", err)
		}
		pool.MarkExhausted(cred.ID)
	}

	if _, err := pool.Next(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	// Exhausted credentials remain visible for audit.
	if pool.Len() != 2 {
		t.Errorf("Len after exhaustion: got %d, want 2", pool.Len())
	}
}

func TestMarkExhaustedIdempotent(t *testing.T) {
	pool, err := New([]string{"key-aaaaaaaa", "key-bbbbbbbb"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pool.MarkExhausted("key-aaaa...")
	pool.MarkExhausted("key-aaaa...")

	if pool.Usable() != 1 {
		t.Errorf("Usable: got %d, want 1", pool.Usable())
	}
}

func TestAddAndSeedCredits(t *testing.T) {
	pool, err := New([]string{"key-aaaaaaaa", "key-bbbbbbbb"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pool.SeedCredits(map[string]int{"key-aaaa...": 100})
	pool.AddCredits("key-aaaa...", 25)

	snap := pool.Snapshot()
	if snap[0].ConsumedCredits != 125 {
		t.Errorf("credits: got %d, want 125", snap[0].ConsumedCredits)
	}
	if snap[1].ConsumedCredits != 0 {
		t.Errorf("untouched credential credits: got %d, want 0", snap[1].ConsumedCredits)
	}
}

func TestKeyID(t *testing.T) {
	if id := keyID("key-aaaaaaaa"); id != "key-aaaa..." {
		t.Errorf("keyID: got %q, want %q", id, "key-aaaa...")
	}
	if id := keyID("short"); id != "short" {
		t.Errorf("keyID short: got %q, want %q", id, "short")
	}
}
