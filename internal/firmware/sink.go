// Package firmware stages update images received over the wireless link.
package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const ImageName = "update.img"

var (
	ErrNotStarted = errors.New("no update in progress")
	ErrEmptyImage = errors.New("update image is empty")
)

// Sink writes an image to a temporary file next to its final location. The
// image only becomes visible under ImageName after Commit.
type Sink struct {
	dir string

	mu      sync.Mutex
	file    *os.File
	written int64
}

func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// Begin discards any unfinished transfer and starts a new one.
func (s *Sink) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.discardLocked()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create update dir: %w", err)
	}
	f, err := os.CreateTemp(s.dir, ImageName+".*.part")
	if err != nil {
		return fmt.Errorf("create update file: %w", err)
	}
	s.file = f
	s.written = 0
	return nil
}

func (s *Sink) Write(chunk []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return 0, ErrNotStarted
	}
	n, err := s.file.Write(chunk)
	s.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("write update chunk: %w", err)
	}
	return n, nil
}

// Commit finishes the transfer and returns the staged image path.
func (s *Sink) Commit() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return "", ErrNotStarted
	}
	if s.written == 0 {
		s.discardLocked()
		return "", ErrEmptyImage
	}

	f := s.file
	s.file = nil
	if err := errors.Join(f.Sync(), f.Close()); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("flush update file: %w", err)
	}

	target := filepath.Join(s.dir, ImageName)
	if err := os.Rename(f.Name(), target); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage update image: %w", err)
	}
	return target, nil
}

func (s *Sink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.discardLocked()
	}
}

func (s *Sink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

func (s *Sink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Sink) discardLocked() {
	name := s.file.Name()
	_ = s.file.Close()
	_ = os.Remove(name)
	s.file = nil
	s.written = 0
}
