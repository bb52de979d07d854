// Package cache provides a persistent content-addressed store for generated
// audio artifacts. Entries are keyed by a request fingerprint, written once
// on first successful generation, and read-only thereafter; the cache
// survives restarts so repeated effects never re-bill the provider.
package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrCorrupted is returned when an entry's file cannot be read back.
var ErrCorrupted = errors.New("cache entry corrupted")

// Entry holds a cached artifact and the metadata needed to rebuild it.
type Entry struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// indexEntry describes one stored artifact in the on-disk index.
type indexEntry struct {
	Fingerprint string
	FilePath    string
	Size        int64 // Size on disk (possibly compressed)
	RawSize     int64 // Uncompressed artifact size
	SampleRate  int
	Channels    int
	CreatedAt   time.Time
	Compressed  bool
}

// Stats holds cache counters for reporting.
type Stats struct {
	Items  int64
	Size   int64 // Bytes on disk
	Hits   int64
	Misses int64
}

// Store is a disk-backed artifact cache with optional zstd compression.
type Store struct {
	basePath string

	compressionLevel int
	encoder          *zstd.Encoder
	decoder          *zstd.Decoder

	mu    sync.RWMutex
	index map[string]*indexEntry
	size  int64
	stats Stats
}

// Open creates or reopens a cache rooted at basePath. A compressionLevel of
// zero disables compression.
func Open(basePath string, compressionLevel int) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		basePath:         basePath,
		compressionLevel: compressionLevel,
		index:            make(map[string]*indexEntry),
	}

	if compressionLevel > 0 {
		var err error
		s.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		s.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	// A missing or unreadable index just means starting empty.
	if err := s.loadIndex(); err != nil {
		s.index = make(map[string]*indexEntry)
	}
	for _, e := range s.index {
		s.size += e.Size
	}

	return s, nil
}

// Get returns the cached entry for a fingerprint, if present.
func (s *Store) Get(fingerprint string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ie, ok := s.index[fingerprint]
	if !ok {
		s.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(ie.FilePath)
	if err != nil {
		// File missing or unreadable, drop the entry.
		s.drop(fingerprint)
		s.stats.Misses++
		return nil, false
	}

	if ie.Compressed && s.decoder != nil {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			s.drop(fingerprint)
			s.stats.Misses++
			return nil, false
		}
	}

	s.stats.Hits++
	return &Entry{
		Data:       data,
		SampleRate: ie.SampleRate,
		Channels:   ie.Channels,
	}, true
}

// Contains reports whether a fingerprint is cached, without counting a hit.
func (s *Store) Contains(fingerprint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[fingerprint]
	return ok
}

// Put stores an entry under a fingerprint. Existing entries are immutable:
// re-putting the same fingerprint is a no-op.
func (s *Store) Put(fingerprint string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[fingerprint]; ok {
		return nil
	}

	rawSize := int64(len(entry.Data))
	toWrite := entry.Data
	compressed := false
	if s.encoder != nil && rawSize > 1024 {
		packed := s.encoder.EncodeAll(entry.Data, nil)
		if len(packed) < len(entry.Data) {
			toWrite = packed
			compressed = true
		}
	}

	path := s.filePath(fingerprint)
	if err := writeFileAtomic(path, toWrite); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	ie := &indexEntry{
		Fingerprint: fingerprint,
		FilePath:    path,
		Size:        int64(len(toWrite)),
		RawSize:     rawSize,
		SampleRate:  entry.SampleRate,
		Channels:    entry.Channels,
		CreatedAt:   time.Now(),
		Compressed:  compressed,
	}
	s.index[fingerprint] = ie
	s.size += ie.Size

	return s.saveIndex()
}

// Stats returns current cache counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Items = int64(len(s.index))
	stats.Size = s.size
	return stats
}

// Close persists the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndex()
}

// drop removes an entry from the in-memory index. Caller holds s.mu.
func (s *Store) drop(fingerprint string) {
	if ie, ok := s.index[fingerprint]; ok {
		s.size -= ie.Size
		delete(s.index, fingerprint)
	}
}

func (s *Store) filePath(fingerprint string) string {
	// Fingerprints are already hex digests, but hash again so arbitrary keys
	// still map to safe file names.
	sum := sha256.Sum256([]byte(fingerprint))
	return filepath.Join(s.basePath, hex.EncodeToString(sum[:16])+".clip")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.basePath, "cache.index")
}

func (s *Store) loadIndex() error {
	file, err := os.Open(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&s.index)
}

func (s *Store) saveIndex() error {
	tempPath := s.indexPath() + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(s.index)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, s.indexPath())
}

// writeFileAtomic writes via a temp file and rename so a crashed run never
// leaves a truncated cache entry behind.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
