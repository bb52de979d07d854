package podcast

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/scriptcast/scriptcast/internal/timeline"
	"github.com/scriptcast/scriptcast/script"
)

// Generator runs one end-to-end production: it walks the cue sequence in
// program order, drives the generation client per cue, and hands the
// resulting artifacts to the timeline assembler. Generation is strictly
// sequential because later cues observe credential, ledger, and cache state
// mutated by earlier ones.
type Generator struct {
	client  *Client
	cfg     Config
	voices  VoiceMap
	prompts PromptLibrary
}

// Output is a finished program.
type Output struct {
	WAV      []byte // Encoded audio stream
	TotalMS  int    // Program duration
	Segments int    // Number of placed segments
}

// NewGenerator creates a generator over a configured client.
func NewGenerator(client *Client, cfg Config) *Generator {
	return &Generator{
		client:  client,
		cfg:     cfg,
		voices:  cfg.VoiceMap(),
		prompts: NewPromptLibrary(cfg.EffectPrompts),
	}
}

// Run generates audio for every cue and assembles the final mix.
// The run can be aborted between cues via ctx; an abort leaves the ledger
// with no entry for the incomplete attempt.
func (g *Generator) Run(ctx context.Context, cues []script.Cue) (*Output, error) {
	if len(cues) == 0 {
		return nil, ErrNoCues
	}

	inputs := make([]timeline.Input, 0, len(cues))
	for i, cue := range cues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input, err := g.produce(ctx, i, cue)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, input)
	}

	assembler := timeline.New(timeline.Options{
		SampleRate:           g.cfg.SampleRate,
		Overlapping:          g.cfg.OverlapMode == Overlapping,
		OverlapMS:            g.cfg.OverlapMS,
		InterLineSilenceMS:   g.cfg.InterLineSilenceMS,
		IntroSilenceMS:       g.cfg.IntroSilenceMS,
		SFXDefaultDurationMS: g.cfg.SFXDefaultDurationMS,
		SFXGainDB:            float64(g.cfg.SFXGainDB),
		Normalize:            g.cfg.Normalize,
	})

	result, err := assembler.Assemble(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	log.Info("program assembled",
		"cues", len(cues), "segments", len(result.Segments), "duration_ms", result.TotalMS)

	return &Output{
		WAV:      timeline.EncodeWAV(result.Samples, g.cfg.SampleRate),
		TotalMS:  result.TotalMS,
		Segments: len(result.Segments),
	}, nil
}

// produce generates the artifact for one cue and converts it to a timeline
// input.
func (g *Generator) produce(ctx context.Context, index int, cue script.Cue) (timeline.Input, error) {
	switch cue.Kind {
	case script.CueSpeech:
		voice := g.voices.Resolve(cue.Speaker)
		log.Debug("synthesizing speech",
			"cue", index, "speaker", cue.Speaker, "voice", voice, "chars", len(cue.Text))

		artifact, err := g.client.Speech(ctx, SpeechRequest{
			Text:    cue.Text,
			VoiceID: voice,
			Params:  g.cfg.VoiceParams(),
		})
		if err != nil {
			return timeline.Input{}, NewGenerationError(err, index)
		}
		if err := g.checkRate(artifact); err != nil {
			return timeline.Input{}, err
		}

		return timeline.Input{
			Kind:    timeline.Speech,
			Samples: timeline.BytesToSamples(artifact.Data),
		}, nil

	case script.CueEffect:
		prompt := cue.PromptOverride
		if prompt == "" {
			var ok bool
			prompt, ok = g.prompts.Resolve(cue.Effect)
			if !ok {
				return timeline.Input{}, NewGenerationError(
					fmt.Errorf("effect %q: %w", cue.Effect, ErrUnknownEffect), index)
			}
		}

		// The configured default is only a hint for the provider request;
		// without an explicit cue duration the artifact's intrinsic length
		// stands on the timeline.
		hint := cue.DurationMS
		if hint == 0 {
			hint = g.cfg.SFXDefaultDurationMS
		}
		log.Debug("generating effect", "cue", index, "effect", cue.Effect, "duration_ms", hint)

		artifact, err := g.client.Effect(ctx, EffectRequest{
			Name:       cue.Effect,
			Prompt:     prompt,
			DurationMS: hint,
			ModelID:    g.cfg.SFXModelID,
		})
		if err != nil {
			return timeline.Input{}, NewGenerationError(err, index)
		}
		if err := g.checkRate(artifact); err != nil {
			return timeline.Input{}, err
		}

		return timeline.Input{
			Kind:       timeline.Effect,
			Samples:    timeline.BytesToSamples(artifact.Data),
			DurationMS: cue.DurationMS,
		}, nil

	default:
		return timeline.Input{}, fmt.Errorf("cue %d: unknown cue kind %d: %w",
			index, cue.Kind, ErrInvalidRequest)
	}
}

// checkRate rejects artifacts whose sample rate does not match the mix.
// Resampling is a provider concern; mixing mismatched rates would corrupt
// the timeline silently.
func (g *Generator) checkRate(artifact *Artifact) error {
	if artifact.SampleRate != g.cfg.SampleRate {
		return fmt.Errorf("%w: artifact sample rate %d does not match configured %d",
			ErrRender, artifact.SampleRate, g.cfg.SampleRate)
	}
	return nil
}
