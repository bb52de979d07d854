package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Voice synthesis
model_id: "eleven_monolingual_v1"
stability: 0.5
similarity_boost: 0.75
style: 0.0
use_speaker_boost: true

# Sound effects
sfx_model_id: "eleven_multilingual_v2"
sfx_default_duration_ms: 3000
# Gain applied to effect clips, in dB
sfx_gain_db: -10

# Timeline
# none: effects play between lines; overlapping: effects slide back under
# the preceding line
overlap_mode: "none"
overlap_ms: 2000
inter_line_silence_ms: 200
intro_silence_ms: 500

# Output
output_format: "wav"
# Bit rate for compressed output formats; ignored by the wav encoder
bit_rate: "192k"
sample_rate: 16000
normalize: true

# Retry and credential rotation
max_retry_attempts: 3
retry_backoff_base_ms: 2000

# Persistence
cache_dir: ".scriptcast/cache"
ledger_path: "credits_log.jsonl"

# Map script speakers to provider voice IDs. Unmapped speakers use the
# default voice.
speaker_voices:
  # narrator: "21m00Tcm4TlvDq8ikWAM"
  # guest: "EXAVITQu4vr4xnSDxMaL"

# Add or override effect prompts used for [SFX: name] cues.
effect_prompts:
  # klaxon: "Blaring alarm klaxon in a metal corridor"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the scriptcast config file",
	Long:    "\nEdit the scriptcast config file. We'll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.",
	Example: "scriptcast config\nscriptcast config --config path/to/config.yml",
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Scriptcast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
