package podcast

import (
	"fmt"
	"strconv"
	"strings"
)

// OverlapMode governs whether an effect's placement shares timeline space
// with adjacent speech.
type OverlapMode string

const (
	// OverlapNone places effects sequentially between speech segments.
	OverlapNone OverlapMode = "none"
	// Overlapping slides effects back under the tail of the preceding speech.
	Overlapping OverlapMode = "overlapping"
)

// Config contains all generation and assembly options.
type Config struct {
	// Voice synthesis settings
	ModelID         string  `yaml:"model_id" env:"SCRIPTCAST_MODEL_ID" envDefault:"eleven_monolingual_v1"`
	Stability       float64 `yaml:"stability" env:"SCRIPTCAST_STABILITY" envDefault:"0.5"`
	SimilarityBoost float64 `yaml:"similarity_boost" env:"SCRIPTCAST_SIMILARITY_BOOST" envDefault:"0.75"`
	Style           float64 `yaml:"style" env:"SCRIPTCAST_STYLE" envDefault:"0.0"`
	UseSpeakerBoost bool    `yaml:"use_speaker_boost" env:"SCRIPTCAST_USE_SPEAKER_BOOST" envDefault:"true"`

	// Sound effect settings
	SFXModelID           string `yaml:"sfx_model_id" env:"SCRIPTCAST_SFX_MODEL_ID" envDefault:"eleven_multilingual_v2"`
	SFXDefaultDurationMS int    `yaml:"sfx_default_duration_ms" env:"SCRIPTCAST_SFX_DEFAULT_DURATION_MS" envDefault:"3000"`
	SFXGainDB            int    `yaml:"sfx_gain_db" env:"SCRIPTCAST_SFX_GAIN_DB" envDefault:"-10"`

	// Timeline settings
	OverlapMode        OverlapMode `yaml:"overlap_mode" env:"SCRIPTCAST_OVERLAP_MODE" envDefault:"none"`
	OverlapMS          int         `yaml:"overlap_ms" env:"SCRIPTCAST_OVERLAP_MS" envDefault:"2000"`
	InterLineSilenceMS int         `yaml:"inter_line_silence_ms" env:"SCRIPTCAST_INTER_LINE_SILENCE_MS" envDefault:"200"`
	IntroSilenceMS     int         `yaml:"intro_silence_ms" env:"SCRIPTCAST_INTRO_SILENCE_MS" envDefault:"500"`

	// Output settings
	OutputFormat string `yaml:"output_format" env:"SCRIPTCAST_OUTPUT_FORMAT" envDefault:"wav"`
	// BitRate applies only to compressed output formats; the wav encoder
	// ignores it.
	BitRate    string `yaml:"bit_rate" env:"SCRIPTCAST_BIT_RATE" envDefault:"192k"`
	SampleRate int    `yaml:"sample_rate" env:"SCRIPTCAST_SAMPLE_RATE" envDefault:"16000"`
	Normalize  bool   `yaml:"normalize" env:"SCRIPTCAST_NORMALIZE" envDefault:"true"`

	// Mappings
	SpeakerVoices map[string]string `yaml:"speaker_voices"`
	EffectPrompts map[string]string `yaml:"effect_prompts"`

	// Retry and rotation settings
	MaxRetryAttempts   int `yaml:"max_retry_attempts" env:"SCRIPTCAST_MAX_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBackoffBaseMS int `yaml:"retry_backoff_base_ms" env:"SCRIPTCAST_RETRY_BACKOFF_BASE_MS" envDefault:"2000"`

	// Persistence paths
	CacheDir   string `yaml:"cache_dir" env:"SCRIPTCAST_CACHE_DIR" envDefault:".scriptcast/cache"`
	LedgerPath string `yaml:"ledger_path" env:"SCRIPTCAST_LEDGER_PATH" envDefault:"credits_log.jsonl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ModelID:         "eleven_monolingual_v1",
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.0,
		UseSpeakerBoost: true,

		SFXModelID:           "eleven_multilingual_v2",
		SFXDefaultDurationMS: 3000,
		SFXGainDB:            -10,

		OverlapMode:        OverlapNone,
		OverlapMS:          2000,
		InterLineSilenceMS: 200,
		IntroSilenceMS:     500,

		OutputFormat: "wav",
		BitRate:      "192k",
		SampleRate:   16000,
		Normalize:    true,

		MaxRetryAttempts:   3,
		RetryBackoffBaseMS: 2000,

		CacheDir:   ".scriptcast/cache",
		LedgerPath: "credits_log.jsonl",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}
	if c.SFXModelID == "" {
		return fmt.Errorf("sfx_model_id cannot be empty")
	}

	if c.Stability < 0.0 || c.Stability > 1.0 {
		return fmt.Errorf("stability must be between 0.0 and 1.0, got %f", c.Stability)
	}
	if c.SimilarityBoost < 0.0 || c.SimilarityBoost > 1.0 {
		return fmt.Errorf("similarity_boost must be between 0.0 and 1.0, got %f", c.SimilarityBoost)
	}
	if c.Style < 0.0 || c.Style > 1.0 {
		return fmt.Errorf("style must be between 0.0 and 1.0, got %f", c.Style)
	}

	if c.SFXDefaultDurationMS <= 0 {
		return fmt.Errorf("sfx_default_duration_ms must be positive, got %d", c.SFXDefaultDurationMS)
	}

	switch OverlapMode(strings.ToLower(string(c.OverlapMode))) {
	case OverlapNone, Overlapping:
		c.OverlapMode = OverlapMode(strings.ToLower(string(c.OverlapMode)))
	default:
		return fmt.Errorf("invalid overlap_mode %q: must be %q or %q", c.OverlapMode, OverlapNone, Overlapping)
	}

	if c.OverlapMS < 0 {
		return fmt.Errorf("overlap_ms cannot be negative, got %d", c.OverlapMS)
	}
	if c.InterLineSilenceMS < 0 {
		return fmt.Errorf("inter_line_silence_ms cannot be negative, got %d", c.InterLineSilenceMS)
	}
	if c.IntroSilenceMS < 0 {
		return fmt.Errorf("intro_silence_ms cannot be negative, got %d", c.IntroSilenceMS)
	}

	validFormats := []string{"wav"}
	formatValid := false
	for _, f := range validFormats {
		if strings.EqualFold(c.OutputFormat, f) {
			c.OutputFormat = strings.ToLower(c.OutputFormat)
			formatValid = true
			break
		}
	}
	if !formatValid {
		return fmt.Errorf("invalid output_format %q: must be one of %v", c.OutputFormat, validFormats)
	}

	if c.BitRate != "" {
		digits, ok := strings.CutSuffix(c.BitRate, "k")
		if v, err := strconv.Atoi(digits); !ok || err != nil || v <= 0 {
			return fmt.Errorf("invalid bit_rate %q: expected a value like 192k", c.BitRate)
		}
	}

	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	sampleRateValid := false
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			sampleRateValid = true
			break
		}
	}
	if !sampleRateValid {
		return fmt.Errorf("invalid sample_rate %d: must be one of %v", c.SampleRate, validSampleRates)
	}

	if c.MaxRetryAttempts < 1 || c.MaxRetryAttempts > 10 {
		return fmt.Errorf("max_retry_attempts must be between 1 and 10, got %d", c.MaxRetryAttempts)
	}
	if c.RetryBackoffBaseMS < 0 {
		return fmt.Errorf("retry_backoff_base_ms cannot be negative, got %d", c.RetryBackoffBaseMS)
	}

	return nil
}

// VoiceParams returns the speech synthesis parameters from this config.
func (c *Config) VoiceParams() VoiceParams {
	return VoiceParams{
		ModelID:         c.ModelID,
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		UseSpeakerBoost: c.UseSpeakerBoost,
	}
}

// VoiceMap builds the speaker voice map from configured overrides.
func (c *Config) VoiceMap() VoiceMap {
	m := VoiceMap{"default": DefaultVoiceID}
	for speaker, id := range c.SpeakerVoices {
		m[strings.ToLower(speaker)] = id
	}
	return m
}
