// Package elevenlabs implements the generation provider over the ElevenLabs
// REST API. Speech and sound effects both go through the text-to-speech
// endpoint; effects use an SFX-tuned prompt and voice settings.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scriptcast/scriptcast/podcast"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"

	// sfxVoiceID is the fixed voice used for effect generation.
	sfxVoiceID = "21m00Tcm4TlvDq8ikWAM"

	// sfxPromptPrefix steers the model toward pure sound output.
	sfxPromptPrefix = "[SOUND EFFECT ONLY, NO SPEECH]: "
)

// DefaultSampleRate of returned PCM audio when no rate is configured.
const DefaultSampleRate = 16000

// Provider calls the ElevenLabs text-to-speech API.
type Provider struct {
	baseURL    string
	client     *http.Client
	sampleRate int
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL, used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

// WithSampleRate selects the raw PCM output rate requested from the API
// (pcm_<rate> output format). Must be one of the rates the service offers:
// 8000, 16000, 22050, 24000, 44100, or 48000. Artifacts are tagged with it.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// New creates an ElevenLabs provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: 60 * time.Second},
		sampleRate: DefaultSampleRate,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "elevenlabs" }

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SynthesizeSpeech converts text to PCM audio with the given voice.
func (p *Provider) SynthesizeSpeech(ctx context.Context, key string, req podcast.SpeechRequest) (*podcast.Artifact, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("empty text: %w", podcast.ErrInvalidRequest)
	}
	voice := req.VoiceID
	if voice == "" {
		voice = podcast.DefaultVoiceID
	}

	body := ttsRequest{
		Text:    req.Text,
		ModelID: req.Params.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       req.Params.Stability,
			SimilarityBoost: req.Params.SimilarityBoost,
			Style:           req.Params.Style,
			UseSpeakerBoost: req.Params.UseSpeakerBoost,
		},
	}
	return p.call(ctx, key, voice, body)
}

// GenerateEffect produces a sound effect through the speech endpoint with
// settings tuned for variety over fidelity.
func (p *Provider) GenerateEffect(ctx context.Context, key string, req podcast.EffectRequest) (*podcast.Artifact, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty effect prompt: %w", podcast.ErrInvalidRequest)
	}

	body := ttsRequest{
		Text:    sfxPromptPrefix + req.Prompt,
		ModelID: req.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.1,
			SimilarityBoost: 0.35,
			Style:           1.0,
			UseSpeakerBoost: false,
		},
	}
	return p.call(ctx, key, sfxVoiceID, body)
}

// call performs one API request and classifies its failure.
func (p *Provider) call(ctx context.Context, key, voiceID string, body ttsRequest) (*podcast.Artifact, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", podcast.ErrInvalidRequest)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d", p.baseURL, voiceID, p.sampleRate)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", podcast.ErrInvalidRequest)
	}
	httpReq.Header.Set("xi-api-key", key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("request timeout: %w", podcast.ErrTransient)
		}
		return nil, fmt.Errorf("request failed: %w", podcast.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", podcast.ErrTransient)
	}

	log.Debug("elevenlabs response", "voice", voiceID, "bytes", len(pcm))
	return &podcast.Artifact{
		Data:       pcm,
		SampleRate: p.sampleRate,
		Channels:   1,
	}, nil
}

// classifyStatus maps an HTTP status to the three-member failure taxonomy.
func classifyStatus(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, podcast.ErrQuotaExceeded)
	case resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, podcast.ErrTransient)
	default:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, detail, podcast.ErrInvalidRequest)
	}
}
