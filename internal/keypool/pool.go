// Package keypool owns the set of provider credentials and their rotation
// state. The pool is the single source of truth for which credential the
// next generation attempt should use.
package keypool

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted is returned when every credential is exhausted.
	// This is terminal for the run: there is no recovery.
	ErrPoolExhausted = errors.New("credential pool exhausted")
	// ErrNoCredentials is returned when the pool is constructed empty.
	ErrNoCredentials = errors.New("no credentials provided")
)

// Credential is one provider key plus its mutable accounting state.
// Exhausted credentials stay in the pool for audit; they are only skipped.
type Credential struct {
	Key             string
	ID              string // Short identifier for logs and the ledger
	ConsumedCredits int
	Exhausted       bool
	LastUsedAt      time.Time
}

// keyID derives a loggable identifier from a raw key without exposing it.
func keyID(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// Pool is an ordered credential sequence with a rotation cursor.
// All methods are safe for concurrent use; selection is atomic so two
// concurrent callers can never both advance onto the same dying credential
// unobserved.
type Pool struct {
	mu     sync.Mutex
	creds  []*Credential
	cursor int
}

// New creates a pool from raw provider keys, preserving order.
func New(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}

	creds := make([]*Credential, len(keys))
	for i, key := range keys {
		creds[i] = &Credential{Key: key, ID: keyID(key)}
	}
	return &Pool{creds: creds}, nil
}

// Next returns the next usable credential round-robin from the cursor,
// skipping exhausted entries, and advances the cursor past it so subsequent
// calls prefer other credentials. Returns ErrPoolExhausted when no usable
// credential remains.
func (p *Pool) Next() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.creds); i++ {
		idx := (p.cursor + i) % len(p.creds)
		cred := p.creds[idx]
		if cred.Exhausted {
			continue
		}
		p.cursor = (idx + 1) % len(p.creds)
		cred.LastUsedAt = time.Now()
		return cred, nil
	}

	return nil, ErrPoolExhausted
}

// MarkExhausted flags the credential with the given ID. Idempotent; the
// credential remains in the pool for audit.
func (p *Pool) MarkExhausted(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if cred.ID == id {
			cred.Exhausted = true
			return
		}
	}
}

// AddCredits increments the consumed-credit counter for a credential.
func (p *Pool) AddCredits(id string, credits int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if cred.ID == id {
			cred.ConsumedCredits += credits
			return
		}
	}
}

// SeedCredits sets starting consumed-credit totals, keyed by credential ID.
// Used to carry per-key accounting across runs from the ledger.
func (p *Pool) SeedCredits(totals map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if total, ok := totals[cred.ID]; ok {
			cred.ConsumedCredits = total
		}
	}
}

// Len returns the number of credentials in the pool, exhausted included.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Usable returns the number of non-exhausted credentials.
func (p *Pool) Usable() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, cred := range p.creds {
		if !cred.Exhausted {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all credential states for reporting.
func (p *Pool) Snapshot() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, len(p.creds))
	for i, cred := range p.creds {
		out[i] = *cred
	}
	return out
}
