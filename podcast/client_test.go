package podcast_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/scriptcast/scriptcast/internal/cache"
	"github.com/scriptcast/scriptcast/internal/keypool"
	"github.com/scriptcast/scriptcast/internal/ledger"
	"github.com/scriptcast/scriptcast/podcast"
	"github.com/scriptcast/scriptcast/podcast/engines/mock"
)

type clientFixture struct {
	provider *mock.Provider
	pool     *keypool.Pool
	ledger   *ledger.Ledger
	cache    *cache.Store
	client   *podcast.Client
}

func newClientFixture(t *testing.T, keys []string, cfg podcast.ClientConfig) *clientFixture {
	t.Helper()

	pool, err := keypool.New(keys)
	if err != nil {
		t.Fatalf("keypool.New failed: %v", err)
	}

	led, err := ledger.Open(filepath.Join(t.TempDir(), "credits.jsonl"))
	if err != nil {
		t.Fatalf("ledger.Open failed: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	store, err := cache.Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	provider := mock.New()
	return &clientFixture{
		provider: provider,
		pool:     pool,
		ledger:   led,
		cache:    store,
		client:   podcast.NewClient(provider, pool, led, store, cfg),
	}
}

func fastConfig() podcast.ClientConfig {
	return podcast.ClientConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}
}

func TestSpeechSuccessRecordsUsage(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"}, fastConfig())

	text := "Hello from the pipeline"
	artifact, err := f.client.Speech(context.Background(), podcast.SpeechRequest{
		Text: text, VoiceID: "v1",
	})
	if err != nil {
		t.Fatalf("Speech failed: %v", err)
	}
	if artifact.DurationMS() <= 0 {
		t.Error("artifact has no duration")
	}

	events, err := f.ledger.Replay()
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ledger events: got %d, want 1", len(events))
	}
	if events[0].Operation != ledger.OpSpeechSynthesis {
		t.Errorf("operation: got %s", events[0].Operation)
	}
	if events[0].Credits != len(text) {
		t.Errorf("credits: got %d, want %d (one per character)", events[0].Credits, len(text))
	}

	snap := f.pool.Snapshot()
	if snap[0].ConsumedCredits != len(text) {
		t.Errorf("pool credits: got %d, want %d", snap[0].ConsumedCredits, len(text))
	}
}

func TestTransientFailureMakesExactlyKCalls(t *testing.T) {
	const k = 4
	f := newClientFixture(t, []string{"key-aaaaaaaa"},
		podcast.ClientConfig{MaxAttempts: k, BackoffBase: time.Millisecond})

	f.provider.FailWith(podcast.ErrTransient)

	_, err := f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "x", VoiceID: "v"})
	if !errors.Is(err, podcast.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if f.provider.Calls() != k {
		t.Errorf("provider calls: got %d, want exactly %d", f.provider.Calls(), k)
	}

	var exhausted *podcast.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("attempt count not surfaced: %v", err)
	}
	if exhausted.Attempts != k {
		t.Errorf("attempts: got %d, want %d", exhausted.Attempts, k)
	}

	// A failed request is never logged.
	events, _ := f.ledger.Replay()
	if len(events) != 0 {
		t.Errorf("ledger events after failure: got %d, want 0", len(events))
	}
}

func TestTransientThenSuccess(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"}, fastConfig())

	f.provider.FailNTimes(2, podcast.ErrTransient)

	_, err := f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "x", VoiceID: "v"})
	if err != nil {
		t.Fatalf("Speech failed after recoverable errors: %v", err)
	}
	if f.provider.Calls() != 3 {
		t.Errorf("provider calls: got %d, want 3", f.provider.Calls())
	}
}

func TestQuotaFailureRotatesCredential(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, fastConfig())

	f.provider.FailForKey("key-aaaaaaaa", podcast.ErrQuotaExceeded)

	_, err := f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "hi", VoiceID: "v"})
	if err != nil {
		t.Fatalf("Speech failed despite usable second credential: %v", err)
	}

	keys := f.provider.KeysSeen()
	if len(keys) != 2 || keys[0] != "key-aaaaaaaa" || keys[1] != "key-bbbbbbbb" {
		t.Errorf("key order: got %v", keys)
	}

	// The dead credential is flagged but stays in the pool for audit.
	snap := f.pool.Snapshot()
	if !snap[0].Exhausted {
		t.Error("first credential not marked exhausted")
	}
	if f.pool.Len() != 2 {
		t.Errorf("pool length: got %d, want 2", f.pool.Len())
	}

	// Usage is attributed to the credential that served the request.
	events, _ := f.ledger.Replay()
	if len(events) != 1 {
		t.Fatalf("ledger events: got %d, want 1", len(events))
	}
	if events[0].KeyID != snap[1].ID {
		t.Errorf("event key: got %s, want %s", events[0].KeyID, snap[1].ID)
	}
}

func TestPoolExhaustionIsTerminal(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"}, fastConfig())

	f.provider.FailWith(podcast.ErrQuotaExceeded)

	_, err := f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "x", VoiceID: "v"})
	if !errors.Is(err, podcast.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	// One call per credential, no infinite rotation.
	if f.provider.Calls() != 3 {
		t.Errorf("provider calls: got %d, want 3", f.provider.Calls())
	}

	// The very next attempt fails without reaching the provider and
	// leaves no ledger entry.
	f.provider.ClearFailures()
	before := f.provider.Calls()
	_, err = f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "y", VoiceID: "v"})
	if !errors.Is(err, podcast.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted on next attempt, got %v", err)
	}
	if f.provider.Calls() != before {
		t.Error("exhausted pool still reached the provider")
	}

	events, _ := f.ledger.Replay()
	if len(events) != 0 {
		t.Errorf("ledger events: got %d, want 0", len(events))
	}
}

func TestInvalidRequestNotRetried(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"}, fastConfig())

	f.provider.FailWith(podcast.ErrInvalidRequest)

	_, err := f.client.Speech(context.Background(), podcast.SpeechRequest{Text: "x", VoiceID: "v"})
	if !errors.Is(err, podcast.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if f.provider.Calls() != 1 {
		t.Errorf("provider calls: got %d, want 1 (no retries)", f.provider.Calls())
	}
}

func TestEffectCacheHitIsFree(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"}, fastConfig())

	req := podcast.EffectRequest{
		Name:       "thunder",
		Prompt:     "Loud rumbling thunder during a storm",
		DurationMS: 1500,
		ModelID:    "sfx-model",
	}

	first, err := f.client.Effect(context.Background(), req)
	if err != nil {
		t.Fatalf("first Effect failed: %v", err)
	}

	second, err := f.client.Effect(context.Background(), req)
	if err != nil {
		t.Fatalf("second Effect failed: %v", err)
	}

	if f.provider.EffectCalls() != 1 {
		t.Errorf("provider calls: got %d, want 1 (second hit the cache)", f.provider.EffectCalls())
	}
	if len(first.Data) != len(second.Data) {
		t.Error("cached artifact differs from original")
	}

	// Cache hits produce no ledger entries.
	events, _ := f.ledger.Replay()
	if len(events) != 1 {
		t.Errorf("ledger events: got %d, want 1", len(events))
	}
}

func TestEffectFingerprintDeterminism(t *testing.T) {
	base := podcast.EffectRequest{Prompt: "Howling wind", ModelID: "m", DurationMS: 3000}

	same := podcast.EffectRequest{Prompt: "  howling   WIND ", ModelID: "m", DurationMS: 3000}
	if podcast.EffectFingerprint(base) != podcast.EffectFingerprint(same) {
		t.Error("cosmetic prompt differences changed the fingerprint")
	}

	tests := []struct {
		name string
		req  podcast.EffectRequest
	}{
		{"different prompt", podcast.EffectRequest{Prompt: "Gentle wind", ModelID: "m", DurationMS: 3000}},
		{"different model", podcast.EffectRequest{Prompt: "Howling wind", ModelID: "m2", DurationMS: 3000}},
		{"different duration", podcast.EffectRequest{Prompt: "Howling wind", ModelID: "m", DurationMS: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if podcast.EffectFingerprint(base) == podcast.EffectFingerprint(tt.req) {
				t.Error("fingerprint collision for semantically different request")
			}
		})
	}
}

func TestSpeechNeverCached(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"}, fastConfig())

	req := podcast.SpeechRequest{Text: "same line", VoiceID: "v"}
	if _, err := f.client.Speech(context.Background(), req); err != nil {
		t.Fatalf("Speech failed: %v", err)
	}
	if _, err := f.client.Speech(context.Background(), req); err != nil {
		t.Fatalf("Speech failed: %v", err)
	}

	if f.provider.SpeechCalls() != 2 {
		t.Errorf("provider calls: got %d, want 2 (speech is never cached)", f.provider.SpeechCalls())
	}
}

func TestBackoffRespectsCancellation(t *testing.T) {
	f := newClientFixture(t, []string{"key-aaaaaaaa"},
		podcast.ClientConfig{MaxAttempts: 5, BackoffBase: time.Hour})

	f.provider.FailWith(podcast.ErrTransient)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.client.Speech(ctx, podcast.SpeechRequest{Text: "x", VoiceID: "v"})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not abort during backoff wait")
	}

	// The aborted attempt left the ledger consistent.
	events, _ := f.ledger.Replay()
	if len(events) != 0 {
		t.Errorf("ledger events after abort: got %d, want 0", len(events))
	}
}
