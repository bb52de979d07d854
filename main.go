// Package main provides the entry point for the scriptcast CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scriptcast/scriptcast/internal/cache"
	"github.com/scriptcast/scriptcast/internal/keypool"
	"github.com/scriptcast/scriptcast/internal/ledger"
	"github.com/scriptcast/scriptcast/podcast"
	"github.com/scriptcast/scriptcast/podcast/engines/elevenlabs"
	"github.com/scriptcast/scriptcast/podcast/engines/mock"
	"github.com/scriptcast/scriptcast/script"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	outputPath  string
	engineName  string
	apiKeys     string
	overlapMode string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "scriptcast [SCRIPT]",
		Short: "Turn a marked-up script into a multi-voice audio program",
		Long: "\nScriptcast reads a script with [SPEAKER: name] and [SFX: name] markers,\n" +
			"synthesizes each line and effect through a rotating credential pool,\n" +
			"and assembles the clips into a single WAV program.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: execute,
	}
)

func execute(cmd *cobra.Command, args []string) error {
	text, err := readScript(args)
	if err != nil {
		return err
	}

	cues, err := script.Parse(text)
	if err != nil {
		return err
	}
	log.Info("script parsed", "cues", len(cues))

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The engine can also come from the config file; the flag wins.
	if !cmd.Flags().Changed("engine") && viper.IsSet("engine") {
		engineName = viper.GetString("engine")
	}

	pool, err := buildPool()
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open usage ledger: %w", err)
	}
	defer led.Close() //nolint:errcheck

	// Carry per-key usage totals across runs.
	totals, err := led.Totals()
	if err != nil {
		return fmt.Errorf("replay usage ledger: %w", err)
	}
	pool.SeedCredits(totals)

	store, err := cache.Open(cfg.CacheDir, cacheCompressionLevel)
	if err != nil {
		return fmt.Errorf("open effect cache: %w", err)
	}
	defer store.Close() //nolint:errcheck

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	client := podcast.NewClient(provider, pool, led, store, podcast.ClientConfig{
		MaxAttempts: cfg.MaxRetryAttempts,
		BackoffBase: time.Duration(cfg.RetryBackoffBaseMS) * time.Millisecond,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := podcast.NewGenerator(client, cfg).Run(ctx, cues)
	if err != nil {
		reportUsage(pool)
		return err
	}

	path := outputPath
	if path == "" {
		path = defaultOutputPath(args)
	}
	if err := os.WriteFile(path, out.WAV, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("write output: %w", err)
	}

	log.Info("program written",
		"path", path, "duration", time.Duration(out.TotalMS)*time.Millisecond,
		"segments", out.Segments)
	reportUsage(pool)
	return nil
}

// cacheCompressionLevel is the zstd level for cached effect clips.
const cacheCompressionLevel = 3

// defaultOutputPath derives a timestamped output name from the script file,
// or a generic one when the script came from stdin.
func defaultOutputPath(args []string) string {
	stem := "scriptcast"
	if len(args) == 1 && args[0] != "-" {
		base := filepath.Base(args[0])
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return stem + "_" + time.Now().Format("20060102_150405") + ".wav"
}

// readScript reads the script text from a file argument, from "-", or from a
// piped stdin.
func readScript(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		if yes, err := stdinIsPipe(); err != nil {
			return "", err
		} else if !yes && len(args) == 0 {
			return "", errors.New("missing script: pass a file or pipe one on stdin")
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("unable to read script: %w", err)
	}
	return string(b), nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// loadConfig layers configuration sources: flags over the config file over
// the environment over built-in defaults.
func loadConfig(cmd *cobra.Command) (podcast.Config, error) {
	// Environment and defaults.
	cfg, err := env.ParseAs[podcast.Config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}

	// Config file, matched by yaml tag.
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if cmd.Flags().Changed("overlap-mode") {
		cfg.OverlapMode = podcast.OverlapMode(overlapMode)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildPool assembles the credential pool from the --keys flag or the
// SCRIPTCAST_API_KEYS environment variable, comma-separated in priority order.
func buildPool() (*keypool.Pool, error) {
	raw := apiKeys
	if raw == "" {
		raw = os.Getenv("SCRIPTCAST_API_KEYS")
	}

	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 && engineName == "mock" {
		keys = []string{"mock-key"}
	}

	pool, err := keypool.New(keys)
	if err != nil {
		return nil, fmt.Errorf("no API keys: set --keys or SCRIPTCAST_API_KEYS: %w", err)
	}
	return pool, nil
}

func buildProvider(cfg podcast.Config) (podcast.Provider, error) {
	switch engineName {
	case "elevenlabs":
		return elevenlabs.New(elevenlabs.WithSampleRate(cfg.SampleRate)), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q: must be elevenlabs or mock", engineName)
	}
}

// reportUsage logs per-credential credit consumption, exhausted keys
// included, so a partial run still shows what it spent.
func reportUsage(pool *keypool.Pool) {
	for _, cred := range pool.Snapshot() {
		log.Info("credential usage",
			"key", cred.ID, "credits", cred.ConsumedCredits, "exhausted", cred.Exhausted)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output WAV path (default scriptcast_<timestamp>.wav)")
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "elevenlabs", "generation engine (elevenlabs/mock)")
	rootCmd.Flags().StringVarP(&apiKeys, "keys", "k", "", "comma-separated API keys, tried in order")
	rootCmd.Flags().StringVar(&overlapMode, "overlap-mode", "", "effect placement (none/overlapping)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "scriptcast")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "scriptcast")}, dirs...)
	}

	if c := os.Getenv("SCRIPTCAST_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}
	viper.AddConfigPath(".")

	viper.SetConfigName("scriptcast")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("scriptcast")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}
	configFile = filepath.Join(dirs[0], "scriptcast.yml")
}
