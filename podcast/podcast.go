// Package podcast turns a parsed cue sequence into a finished multi-voice
// audio program by driving a rate-limited generation provider through a
// rotating credential pool and assembling the results into a timed mix.
package podcast

import (
	"context"
	"strings"
	"time"
)

// DefaultVoiceID is the fallback voice for unmapped speakers (Rachel).
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

// Artifact is one generated audio clip: 16-bit signed PCM, little-endian.
type Artifact struct {
	Data       []byte // Raw PCM16 samples
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of audio channels
}

// Duration returns the intrinsic duration of the artifact.
func (a *Artifact) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	samples := len(a.Data) / 2 / a.Channels
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}

// DurationMS returns the intrinsic duration in whole milliseconds.
func (a *Artifact) DurationMS() int {
	return int(a.Duration() / time.Millisecond)
}

// VoiceParams tunes speech synthesis for one request.
type VoiceParams struct {
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// SpeechRequest asks the provider to synthesize one spoken line.
type SpeechRequest struct {
	Text    string
	VoiceID string
	Params  VoiceParams
}

// EffectRequest asks the provider to generate one sound effect.
type EffectRequest struct {
	Name       string // Effect name, used for logging and fingerprinting
	Prompt     string // Descriptive prompt sent to the provider
	DurationMS int    // Target duration; 0 means provider default
	ModelID    string
}

// Provider is the narrow capability interface over the external
// speech-synthesis and effect-generation service. Implementations classify
// every failure as exactly one of ErrTransient, ErrQuotaExceeded, or
// ErrInvalidRequest (wrapped).
type Provider interface {
	// SynthesizeSpeech converts text to audio using the given credential.
	SynthesizeSpeech(ctx context.Context, key string, req SpeechRequest) (*Artifact, error)

	// GenerateEffect produces a sound effect clip using the given credential.
	GenerateEffect(ctx context.Context, key string, req EffectRequest) (*Artifact, error)

	// Name returns the provider identifier.
	Name() string
}

// VoiceMap resolves speaker labels to provider voice identifiers.
// Lookup never fails: unmapped speakers resolve to the default entry.
type VoiceMap map[string]string

// Resolve returns the voice ID for a speaker label.
func (m VoiceMap) Resolve(speaker string) string {
	if id, ok := m[speaker]; ok {
		return id
	}
	if id, ok := m["default"]; ok {
		return id
	}
	return DefaultVoiceID
}

// defaultEffectPrompts seeds the prompt library.
var defaultEffectPrompts = map[string]string{
	"thunder":      "Loud rumbling thunder during a storm",
	"heartbeat":    "Deep rhythmic heartbeat sounds",
	"ghat":         "Ambient sounds from a river bank with distant temple bells",
	"water":        "Flowing water sound with gentle splashes",
	"temple_bells": "Sacred temple bells ringing",
	"whispers":     "Ghostly whispers in a dark room",
	"footsteps":    "Heavy footsteps on wooden floor",
	"wind":         "Howling wind through narrow streets",
	"crowd":        "Busy market crowd noises",
	"door":         "Old wooden door creaking open",
}

// PromptLibrary maps effect names to descriptive prompts. It is seeded with
// built-in defaults; per-effect overrides shadow them.
type PromptLibrary map[string]string

// NewPromptLibrary builds a library from the built-in defaults plus overrides.
// Override names are lowercased to match parsed effect names.
func NewPromptLibrary(overrides map[string]string) PromptLibrary {
	lib := make(PromptLibrary, len(defaultEffectPrompts)+len(overrides))
	for name, prompt := range defaultEffectPrompts {
		lib[name] = prompt
	}
	for name, prompt := range overrides {
		lib[strings.ToLower(name)] = prompt
	}
	return lib
}

// Resolve returns the prompt for an effect name.
func (l PromptLibrary) Resolve(name string) (string, bool) {
	prompt, ok := l[name]
	return prompt, ok
}
