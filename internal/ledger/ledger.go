// Package ledger maintains a durable append-only log of provider credit
// consumption. One JSON record per line; the file is appended to forever and
// never rewritten, so partial state after an aborted run is still a valid
// audit trail.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Operation identifies what consumed the credits.
type Operation string

const (
	// OpSpeechSynthesis is a text-to-speech call.
	OpSpeechSynthesis Operation = "speech_synthesis"
	// OpEffectGeneration is a sound effect generation call.
	OpEffectGeneration Operation = "effect_generation"
)

// Event is one immutable consumption record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	KeyID     string    `json:"key_id"`
	Length    int       `json:"length"`  // Characters for speech, prompt length for effects
	Credits   int       `json:"credits"` // Credits consumed by this call
}

// Ledger appends events to a JSONL file. A single writer is assumed; appends
// of one event are atomic with respect to a generation attempt (the event is
// written and synced exactly once, after the attempt succeeds).
type Ledger struct {
	path string
	file *os.File
}

// Open opens (creating if absent) the ledger file for appending.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &Ledger{path: path, file: file}, nil
}

// Append writes one event and syncs it to disk.
func (l *Ledger) Append(ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode ledger event: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}
	return l.file.Sync()
}

// Replay reads all events recorded in the ledger, across all runs.
// Unparseable lines are skipped rather than failing the run; the ledger is
// an audit trail, not a source of truth for correctness.
func (l *Ledger) Replay() ([]Event, error) {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger for replay: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return events, nil
}

// Totals returns cumulative credits consumed per key ID across all runs.
func (l *Ledger) Totals() (map[string]int, error) {
	events, err := l.Replay()
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int)
	for _, ev := range events {
		totals[ev.KeyID] += ev.Credits
	}
	return totals, nil
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	return l.file.Close()
}
