// Package script parses speaker-annotated scripts into an ordered cue sequence.
package script

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSpeaker is the speaker attributed to text lines that appear
// before any speaker marker.
const DefaultSpeaker = "default"

const (
	speakerMarker = "[SPEAKER:"
	effectMarker  = "[SFX:"
)

// CueKind distinguishes speech lines from effect markers.
type CueKind int

const (
	// CueSpeech is a spoken line attributed to a speaker.
	CueSpeech CueKind = iota
	// CueEffect is a sound effect marker.
	CueEffect
)

// String returns the string representation of the cue kind.
func (k CueKind) String() string {
	switch k {
	case CueSpeech:
		return "speech"
	case CueEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// Cue is one parsed unit of the script: a speech line or an effect marker.
// Cue order is program order.
type Cue struct {
	Kind CueKind

	// Speech fields
	Speaker string // Normalized (lowercase) speaker label
	Text    string // Spoken text, never empty for speech cues

	// Effect fields
	Effect         string // Normalized effect name
	PromptOverride string // Optional per-cue prompt, replaces the library prompt
	DurationMS     int    // Optional explicit duration; 0 means unset
}

// ParseError reports a malformed marker with its line number.
type ParseError struct {
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("script line %d: %s", e.Line, e.Reason)
}

// Parse converts raw script text into an ordered cue sequence.
//
// Two marker forms are recognized:
//
//	[SPEAKER: name]              switches the current speaker
//	[SFX: name]                  emits an effect cue
//	[SFX: name, 2500ms]          effect with an explicit duration
//	[SFX: name | custom prompt]  effect with a per-cue prompt override
//
// Any other non-blank line becomes a speech cue attributed to the current
// speaker; lines before the first speaker marker attribute to DefaultSpeaker.
// Parsing is fail-fast: a malformed marker aborts with a ParseError rather
// than producing a partial cue sequence.
func Parse(text string) ([]Cue, error) {
	var cues []Cue
	speaker := DefaultSpeaker

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, speakerMarker):
			name, err := markerBody(line, speakerMarker, lineNo)
			if err != nil {
				return nil, err
			}
			if name == "" {
				return nil, &ParseError{Line: lineNo, Reason: "empty speaker name"}
			}
			speaker = strings.ToLower(name)

		case strings.HasPrefix(line, effectMarker):
			body, err := markerBody(line, effectMarker, lineNo)
			if err != nil {
				return nil, err
			}
			cue, err := parseEffect(body, lineNo)
			if err != nil {
				return nil, err
			}
			cues = append(cues, cue)

		default:
			cues = append(cues, Cue{
				Kind:    CueSpeech,
				Speaker: speaker,
				Text:    line,
			})
		}
	}

	return cues, nil
}

// markerBody extracts the trimmed content between a marker prefix and its
// closing bracket.
func markerBody(line, prefix string, lineNo int) (string, error) {
	if !strings.HasSuffix(line, "]") {
		return "", &ParseError{Line: lineNo, Reason: "unterminated marker, missing ']'"}
	}
	body := line[len(prefix) : len(line)-1]
	return strings.TrimSpace(body), nil
}

// parseEffect parses the body of an [SFX: ...] marker.
func parseEffect(body string, lineNo int) (Cue, error) {
	cue := Cue{Kind: CueEffect}

	// A prompt override follows a pipe: [SFX: name | prompt text]
	if name, prompt, ok := strings.Cut(body, "|"); ok {
		cue.PromptOverride = strings.TrimSpace(prompt)
		if cue.PromptOverride == "" {
			return Cue{}, &ParseError{Line: lineNo, Reason: "empty effect prompt override"}
		}
		body = strings.TrimSpace(name)
	}

	// An explicit duration follows a comma: [SFX: name, 2500ms]
	if name, dur, ok := strings.Cut(body, ","); ok {
		ms, err := parseDuration(strings.TrimSpace(dur))
		if err != nil {
			return Cue{}, &ParseError{Line: lineNo, Reason: err.Error()}
		}
		cue.DurationMS = ms
		body = strings.TrimSpace(name)
	}

	if body == "" {
		return Cue{}, &ParseError{Line: lineNo, Reason: "empty effect name"}
	}
	cue.Effect = strings.ToLower(body)
	return cue, nil
}

// parseDuration parses an effect duration of the form "2500ms".
func parseDuration(s string) (int, error) {
	digits, ok := strings.CutSuffix(s, "ms")
	if !ok {
		return 0, fmt.Errorf("invalid effect duration %q, expected e.g. 2500ms", s)
	}
	ms, err := strconv.Atoi(strings.TrimSpace(digits))
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid effect duration %q, expected e.g. 2500ms", s)
	}
	return ms, nil
}

// Format renders a cue sequence back to script markers. Parsing the result
// reproduces the same sequence.
func Format(cues []Cue) string {
	var b strings.Builder
	speaker := DefaultSpeaker

	for _, cue := range cues {
		switch cue.Kind {
		case CueSpeech:
			if cue.Speaker != speaker {
				fmt.Fprintf(&b, "[SPEAKER: %s]\n", cue.Speaker)
				speaker = cue.Speaker
			}
			b.WriteString(cue.Text)
			b.WriteByte('\n')
		case CueEffect:
			b.WriteString(effectMarker)
			b.WriteByte(' ')
			b.WriteString(cue.Effect)
			if cue.DurationMS > 0 {
				fmt.Fprintf(&b, ", %dms", cue.DurationMS)
			}
			if cue.PromptOverride != "" {
				b.WriteString(" | ")
				b.WriteString(cue.PromptOverride)
			}
			b.WriteString("]\n")
		}
	}

	return b.String()
}
