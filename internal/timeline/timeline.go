// Package timeline places generated audio clips on a shared timeline and
// renders them into a single normalized PCM mix.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoInputs is returned when there is nothing to assemble.
var ErrNoInputs = errors.New("no inputs to assemble")

// Kind distinguishes speech clips from effect clips; placement rules differ.
type Kind int

const (
	// Speech is a spoken line; speech relative order is always preserved.
	Speech Kind = iota
	// Effect is a sound effect; placement depends on the overlap mode.
	Effect
)

// Input is one clip to place, in program order.
type Input struct {
	Kind    Kind
	Samples []int16 // Mono PCM at the assembler's sample rate
	// DurationMS overrides the effect target duration; 0 means use the
	// clip's intrinsic duration, falling back to the configured default.
	DurationMS int
}

// Segment is one placed clip on the timeline.
type Segment struct {
	Kind       Kind
	StartMS    int
	DurationMS int

	samples []int16
}

// Options configures placement and rendering.
type Options struct {
	SampleRate int

	Overlapping        bool // Effects slide back under preceding speech
	OverlapMS          int
	InterLineSilenceMS int
	IntroSilenceMS     int

	SFXDefaultDurationMS int
	SFXGainDB            float64 // Gain applied to effect clips, usually negative

	Normalize     bool
	NormalizePeak float64 // Peak target as a fraction of full scale
}

// Result is an assembled timeline plus its rendered mix.
type Result struct {
	Segments []Segment
	TotalMS  int     // Maximum end offset across all segments
	Samples  []int16 // Rendered mono mix
}

// Assembler composes clips into a timed mix. It owns the timeline for the
// duration of one Assemble call and holds no state between runs.
type Assembler struct {
	opts Options
}

// New creates an assembler. Invalid options are normalized to safe values.
func New(opts Options) *Assembler {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.NormalizePeak <= 0 || opts.NormalizePeak > 1 {
		opts.NormalizePeak = 0.95
	}
	if opts.SFXDefaultDurationMS <= 0 {
		opts.SFXDefaultDurationMS = 3000
	}
	return &Assembler{opts: opts}
}

// Assemble places all inputs and renders the composite mix.
func (a *Assembler) Assemble(inputs []Input) (*Result, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	segments, totalMS := a.place(inputs)
	samples, err := a.render(segments, totalMS)
	if err != nil {
		return nil, err
	}

	return &Result{
		Segments: segments,
		TotalMS:  totalMS,
		Samples:  samples,
	}, nil
}

// Place computes segment offsets without rendering. Exposed for callers that
// only need the layout.
func (a *Assembler) Place(inputs []Input) ([]Segment, int) {
	return a.place(inputs)
}

func (a *Assembler) place(inputs []Input) ([]Segment, int) {
	segments := make([]Segment, 0, len(inputs))
	cursor := a.opts.IntroSilenceMS
	totalMS := cursor

	for _, in := range inputs {
		switch in.Kind {
		case Speech:
			dur := a.samplesToMS(len(in.Samples))
			segments = append(segments, Segment{
				Kind:       Speech,
				StartMS:    cursor,
				DurationMS: dur,
				samples:    in.Samples,
			})
			end := cursor + dur
			if end > totalMS {
				totalMS = end
			}
			cursor = end + a.opts.InterLineSilenceMS

		case Effect:
			dur := a.effectDuration(in)
			start := cursor
			if a.opts.Overlapping {
				start = cursor - a.opts.OverlapMS
				if start < 0 {
					start = 0
				}
			}
			segments = append(segments, Segment{
				Kind:       Effect,
				StartMS:    start,
				DurationMS: dur,
				samples:    fitEffect(in.Samples, a.msToSamples(dur)),
			})
			end := start + dur
			if end > totalMS {
				totalMS = end
			}
			// Overlapping effects never move later speech; only the
			// non-overlapping mode advances the cursor.
			if !a.opts.Overlapping {
				cursor = end + a.opts.InterLineSilenceMS
			}
		}
	}

	return segments, totalMS
}

// effectDuration resolves the target duration for an effect clip:
// explicit cue duration, else the clip's intrinsic duration, else the
// configured default.
func (a *Assembler) effectDuration(in Input) int {
	if in.DurationMS > 0 {
		return in.DurationMS
	}
	if len(in.Samples) > 0 {
		return a.samplesToMS(len(in.Samples))
	}
	return a.opts.SFXDefaultDurationMS
}

// render sums overlapping samples into one mix and applies normalization.
func (a *Assembler) render(segments []Segment, totalMS int) ([]int16, error) {
	total := a.msToSamples(totalMS)
	if total < 0 {
		return nil, fmt.Errorf("invalid timeline length %dms", totalMS)
	}

	// Accumulate in 32-bit so simultaneous segments cannot wrap.
	acc := make([]int32, total)
	effectGain := dbGain(a.opts.SFXGainDB)

	for _, seg := range segments {
		offset := a.msToSamples(seg.StartMS)
		for i, s := range seg.samples {
			pos := offset + i
			if pos >= total {
				break
			}
			v := int32(s)
			if seg.Kind == Effect {
				v = int32(float64(v) * effectGain)
			}
			acc[pos] += v
		}
	}

	if a.opts.Normalize {
		normalize(acc, a.opts.NormalizePeak)
	}

	out := make([]int16, total)
	for i, v := range acc {
		out[i] = clip(v)
	}
	return out, nil
}

// fitEffect adapts a clip to the target sample count: longer clips are
// truncated, shorter ones looped for natural repetition.
func fitEffect(samples []int16, target int) []int16 {
	if target <= 0 || len(samples) == 0 {
		return samples
	}
	if len(samples) == target {
		return samples
	}
	if len(samples) > target {
		return samples[:target]
	}

	out := make([]int16, target)
	for i := range out {
		out[i] = samples[i%len(samples)]
	}
	return out
}

// normalize scales the accumulated mix so its peak hits the target fraction
// of full scale. Quiet mixes are amplified, hot mixes attenuated.
func normalize(acc []int32, peakTarget float64) {
	var peak int32
	for _, v := range acc {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return
	}

	scale := peakTarget * float64(math.MaxInt16) / float64(peak)
	for i, v := range acc {
		acc[i] = int32(float64(v) * scale)
	}
}

func clip(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// dbGain converts a decibel adjustment to a linear factor.
func dbGain(db float64) float64 {
	if db == 0 {
		return 1.0
	}
	return math.Pow(10, db/20)
}

func (a *Assembler) msToSamples(ms int) int {
	return ms * a.opts.SampleRate / 1000
}

func (a *Assembler) samplesToMS(samples int) int {
	return samples * 1000 / a.opts.SampleRate
}
