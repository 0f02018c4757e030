package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"musicsync/internal/services"
)

// Fingerprint is the stubbed state of one source file.
type Fingerprint struct {
	ModifiedAt time.Time
	Hash       []byte
	Bitrate    int64
	Err        error
}

// StubFingerprints serves fingerprints and transcode decisions from memory
// and counts content hash calls per path.
type StubFingerprints struct {
	mu         sync.Mutex
	files      map[string]Fingerprint
	hashCalls  map[string]int
	MinBitrate int64
	// Root resolves source keys to files for Path.
	Root string
}

// NewStubFingerprints returns an empty stub with the default 288 kbps threshold.
func NewStubFingerprints() *StubFingerprints {
	return &StubFingerprints{
		files:      make(map[string]Fingerprint),
		hashCalls:  make(map[string]int),
		MinBitrate: 288_000,
	}
}

// Path joins a source key onto Root.
func (s *StubFingerprints) Path(sourcePath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(sourcePath))
}

// Set records the state of a source file.
func (s *StubFingerprints) Set(path string, fp Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = fp
}

// HashCalls reports how often ContentHash ran for path.
func (s *StubFingerprints) HashCalls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashCalls[path]
}

func (s *StubFingerprints) lookup(path string) (Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.files[path]
	if !ok {
		return Fingerprint{}, services.Wrap(services.ErrMedia, "stub", "stat", path, fmt.Errorf("no such file"))
	}
	if fp.Err != nil {
		return Fingerprint{}, fp.Err
	}
	return fp, nil
}

func (s *StubFingerprints) ModifiedAt(_ context.Context, path string) (time.Time, error) {
	fp, err := s.lookup(path)
	if err != nil {
		return time.Time{}, err
	}
	return fp.ModifiedAt.UTC(), nil
}

func (s *StubFingerprints) ContentHash(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	s.hashCalls[path]++
	s.mu.Unlock()
	fp, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), fp.Hash...), nil
}

func (s *StubFingerprints) RequiresTranscode(_ context.Context, path string) (bool, error) {
	fp, err := s.lookup(path)
	if err != nil {
		return false, err
	}
	return fp.Bitrate >= s.MinBitrate, nil
}
