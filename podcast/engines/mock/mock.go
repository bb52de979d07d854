// Package mock provides a fake generation provider for testing.
package mock

import (
	"context"
	"sync"

	"github.com/scriptcast/scriptcast/podcast"
)

// SampleRate of all mock artifacts.
const SampleRate = 16000

// Provider implements podcast.Provider without touching the network.
// Failures can be scripted per credential or globally, and every call is
// counted so tests can assert exact provider call budgets.
type Provider struct {
	mu sync.Mutex

	// Scripted behavior
	failWith   error            // Error returned by every call when set
	failPerKey map[string]error // Error returned for specific credentials
	failBudget int              // When > 0, fail only this many calls, then succeed

	// Counters
	speechCalls int
	effectCalls int
	keysSeen    []string
}

// New creates a mock provider that succeeds on every call.
func New() *Provider {
	return &Provider{failPerKey: make(map[string]error)}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "mock" }

// SynthesizeSpeech returns a silent clip sized to the text length.
func (p *Provider) SynthesizeSpeech(_ context.Context, key string, req podcast.SpeechRequest) (*podcast.Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.speechCalls++
	p.keysSeen = append(p.keysSeen, key)
	if err := p.scriptedFailure(key); err != nil {
		return nil, err
	}

	return silentArtifact(estimateMS(req.Text)), nil
}

// GenerateEffect returns a silent clip of the requested duration.
func (p *Provider) GenerateEffect(_ context.Context, key string, req podcast.EffectRequest) (*podcast.Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.effectCalls++
	p.keysSeen = append(p.keysSeen, key)
	if err := p.scriptedFailure(key); err != nil {
		return nil, err
	}

	ms := req.DurationMS
	if ms <= 0 {
		ms = 3000
	}
	return silentArtifact(ms), nil
}

// scriptedFailure consumes one configured failure, if any. Caller holds p.mu.
func (p *Provider) scriptedFailure(key string) error {
	if err, ok := p.failPerKey[key]; ok {
		return err
	}
	if p.failWith == nil {
		return nil
	}
	if p.failBudget == 0 {
		return p.failWith
	}
	p.failBudget--
	err := p.failWith
	if p.failBudget == 0 {
		p.failWith = nil
	}
	return err
}

// Test control methods

// FailWith makes every call fail with err until cleared.
func (p *Provider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
	p.failBudget = 0
}

// FailNTimes makes the next n calls fail with err, then succeed.
func (p *Provider) FailNTimes(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
	p.failBudget = n
}

// FailForKey makes every call using the given credential fail with err.
func (p *Provider) FailForKey(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failPerKey[key] = err
}

// ClearFailures resets the provider to normal operation.
func (p *Provider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = nil
	p.failBudget = 0
	p.failPerKey = make(map[string]error)
}

// SpeechCalls returns the number of SynthesizeSpeech calls made.
func (p *Provider) SpeechCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speechCalls
}

// EffectCalls returns the number of GenerateEffect calls made.
func (p *Provider) EffectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectCalls
}

// Calls returns the total number of provider calls made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speechCalls + p.effectCalls
}

// KeysSeen returns the credentials used for each call, in order.
func (p *Provider) KeysSeen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.keysSeen))
	copy(out, p.keysSeen)
	return out
}

// estimateMS estimates speaking duration for text at ~150 words per minute.
func estimateMS(text string) int {
	words := len(text) / 5
	if words < 1 {
		words = 1
	}
	return words * 60 * 1000 / 150
}

func silentArtifact(ms int) *podcast.Artifact {
	samples := ms * SampleRate / 1000
	return &podcast.Artifact{
		Data:       make([]byte, samples*2),
		SampleRate: SampleRate,
		Channels:   1,
	}
}
