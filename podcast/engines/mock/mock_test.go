package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/scriptcast/scriptcast/podcast"
)

func TestFailNTimesThenSucceed(t *testing.T) {
	p := New()
	p.FailNTimes(2, podcast.ErrTransient)

	req := podcast.SpeechRequest{Text: "hello", VoiceID: "v"}
	for i := 0; i < 2; i++ {
		if _, err := p.SynthesizeSpeech(context.Background(), "k", req); !errors.Is(err, podcast.ErrTransient) {
			t.Fatalf("call %d: expected ErrTransient, got %v", i+1, err)
		}
	}

	if _, err := p.SynthesizeSpeech(context.Background(), "k", req); err != nil {
		t.Fatalf("call after budget spent should succeed, got %v", err)
	}
	if p.Calls() != 3 {
		t.Errorf("calls: got %d, want 3", p.Calls())
	}
}

func TestFailForKey(t *testing.T) {
	p := New()
	p.FailForKey("bad-key", podcast.ErrQuotaExceeded)

	req := podcast.SpeechRequest{Text: "hello", VoiceID: "v"}
	if _, err := p.SynthesizeSpeech(context.Background(), "bad-key", req); !errors.Is(err, podcast.ErrQuotaExceeded) {
		t.Errorf("bad key: got %v", err)
	}
	if _, err := p.SynthesizeSpeech(context.Background(), "good-key", req); err != nil {
		t.Errorf("good key: got %v", err)
	}

	keys := p.KeysSeen()
	if len(keys) != 2 || keys[0] != "bad-key" || keys[1] != "good-key" {
		t.Errorf("keys seen: got %v", keys)
	}
}

func TestSpeechDurationTracksTextLength(t *testing.T) {
	p := New()

	short, err := p.SynthesizeSpeech(context.Background(), "k",
		podcast.SpeechRequest{Text: "hi", VoiceID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeSpeech failed: %v", err)
	}
	long, err := p.SynthesizeSpeech(context.Background(), "k",
		podcast.SpeechRequest{Text: "a considerably longer line of dialogue", VoiceID: "v"})
	if err != nil {
		t.Fatalf("SynthesizeSpeech failed: %v", err)
	}

	if short.DurationMS() >= long.DurationMS() {
		t.Errorf("duration should grow with text: short=%dms long=%dms",
			short.DurationMS(), long.DurationMS())
	}
	if short.SampleRate != SampleRate {
		t.Errorf("sample rate: got %d, want %d", short.SampleRate, SampleRate)
	}
}

func TestEffectDuration(t *testing.T) {
	p := New()

	exact, err := p.GenerateEffect(context.Background(), "k",
		podcast.EffectRequest{Name: "x", Prompt: "p", DurationMS: 1500})
	if err != nil {
		t.Fatalf("GenerateEffect failed: %v", err)
	}
	if exact.DurationMS() != 1500 {
		t.Errorf("duration: got %dms, want 1500ms", exact.DurationMS())
	}

	fallback, err := p.GenerateEffect(context.Background(), "k",
		podcast.EffectRequest{Name: "x", Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateEffect failed: %v", err)
	}
	if fallback.DurationMS() != 3000 {
		t.Errorf("default duration: got %dms, want 3000ms", fallback.DurationMS())
	}
}

func TestClearFailures(t *testing.T) {
	p := New()
	p.FailWith(podcast.ErrTransient)
	p.FailForKey("k", podcast.ErrQuotaExceeded)
	p.ClearFailures()

	if _, err := p.GenerateEffect(context.Background(), "k",
		podcast.EffectRequest{Name: "x", Prompt: "p"}); err != nil {
		t.Errorf("expected success after ClearFailures, got %v", err)
	}
}
