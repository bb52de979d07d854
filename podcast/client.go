package podcast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scriptcast/scriptcast/internal/cache"
	"github.com/scriptcast/scriptcast/internal/keypool"
	"github.com/scriptcast/scriptcast/internal/ledger"
)

// ClientConfig bounds the client's retry and backoff behavior.
type ClientConfig struct {
	MaxAttempts int           // Provider calls per credential before ErrTransient
	BackoffBase time.Duration // First retry delay, doubled per attempt
}

// Client wraps a single logical generation request with retry, credential
// rotation on quota failure, and content-addressed caching. It is the only
// writer of the pool, the ledger, and the cache.
type Client struct {
	provider Provider
	pool     *keypool.Pool
	ledger   *ledger.Ledger
	cache    *cache.Store
	cfg      ClientConfig
}

// NewClient creates a generation client. The cache may be nil, in which case
// every effect request reaches the provider.
func NewClient(provider Provider, pool *keypool.Pool, led *ledger.Ledger, store *cache.Store, cfg ClientConfig) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	return &Client{
		provider: provider,
		pool:     pool,
		ledger:   led,
		cache:    store,
		cfg:      cfg,
	}
}

// Speech synthesizes one spoken line. Speech requests are never cached:
// speaker/text pairs are expected to be unique per cue.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) (*Artifact, error) {
	return c.generate(ctx, ledger.OpSpeechSynthesis, len(req.Text),
		func(ctx context.Context, key string) (*Artifact, error) {
			return c.provider.SynthesizeSpeech(ctx, key, req)
		})
}

// Effect generates one sound effect. Cache hits are free: no provider call,
// no ledger entry, no credential rotation.
func (c *Client) Effect(ctx context.Context, req EffectRequest) (*Artifact, error) {
	fp := EffectFingerprint(req)

	if c.cache != nil {
		if entry, ok := c.cache.Get(fp); ok {
			log.Debug("effect cache hit", "effect", req.Name, "fingerprint", fp[:12])
			return &Artifact{
				Data:       entry.Data,
				SampleRate: entry.SampleRate,
				Channels:   entry.Channels,
			}, nil
		}
	}

	artifact, err := c.generate(ctx, ledger.OpEffectGeneration, len(req.Prompt),
		func(ctx context.Context, key string) (*Artifact, error) {
			return c.provider.GenerateEffect(ctx, key, req)
		})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		entry := &cache.Entry{
			Data:       artifact.Data,
			SampleRate: artifact.SampleRate,
			Channels:   artifact.Channels,
		}
		if err := c.cache.Put(fp, entry); err != nil {
			// A failed cache write costs a future re-generation, nothing more.
			log.Warn("effect cache write failed", "effect", req.Name, "error", err)
		}
	}

	return artifact, nil
}

// generate runs the two-level retry state machine: transient failures retry
// the same credential with exponential backoff up to the attempt budget;
// quota failures rotate to the next credential without consuming attempts.
// Total rotations are bounded by the pool size so a run with only bad
// credentials terminates.
func (c *Client) generate(ctx context.Context, op ledger.Operation, length int,
	call func(ctx context.Context, key string) (*Artifact, error),
) (*Artifact, error) {
	rotations := c.pool.Len()

	for rotation := 0; rotation < rotations; rotation++ {
		cred, err := c.pool.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, err)
		}

		artifact, err := c.attempt(ctx, cred, call)
		switch {
		case err == nil:
			if err := c.settle(op, cred, length); err != nil {
				return nil, err
			}
			return artifact, nil

		case isClass(err, ErrQuotaExceeded):
			log.Warn("credential exhausted, rotating", "key", cred.ID, "operation", op)
			c.pool.MarkExhausted(cred.ID)
			continue

		default:
			// Transient budget spent, invalid request, or cancellation.
			return nil, err
		}
	}

	return nil, fmt.Errorf("every credential rejected the request: %w", ErrPoolExhausted)
}

// attempt calls the provider with one credential, retrying transient
// failures with exponential backoff.
func (c *Client) attempt(ctx context.Context, cred *keypool.Credential,
	call func(ctx context.Context, key string) (*Artifact, error),
) (*Artifact, error) {
	delay := c.cfg.BackoffBase

	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		artifact, err := call(ctx, cred.Key)
		if err == nil {
			return artifact, nil
		}

		switch {
		case isClass(err, ErrInvalidRequest):
			return nil, err
		case isClass(err, ErrQuotaExceeded):
			return nil, err
		}

		if n == c.cfg.MaxAttempts {
			return nil, &RetryExhaustedError{Attempts: n, Err: err}
		}

		log.Debug("transient failure, backing off",
			"key", cred.ID, "attempt", n, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, ErrTransient
}

// settle records the usage event and credits for one successful attempt.
// One credit per input character, as the provider bills.
func (c *Client) settle(op ledger.Operation, cred *keypool.Credential, length int) error {
	ev := ledger.Event{
		Timestamp: time.Now(),
		Operation: op,
		KeyID:     cred.ID,
		Length:    length,
		Credits:   length,
	}
	if err := c.ledger.Append(ev); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	c.pool.AddCredits(cred.ID, length)

	log.Debug("usage recorded", "operation", op, "key", cred.ID, "credits", length)
	return nil
}

// EffectFingerprint computes the deterministic cache key for an effect
// request: same kind, normalized prompt, and parameters always produce the
// same fingerprint.
func EffectFingerprint(req EffectRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "effect\x00%s\x00%s\x00%d",
		normalizePrompt(req.Prompt), req.ModelID, req.DurationMS)
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePrompt collapses whitespace and case so cosmetic differences do
// not defeat the cache.
func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// isClass reports whether err belongs to the given provider failure class.
func isClass(err, class error) bool {
	return errors.Is(err, class)
}
