// Package audio manages the synthesized audio files a process produces
// during its lifetime.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileManager owns a directory of generated audio files and removes them on
// cleanup. Synthesizers allocate output paths here so nothing leaks into the
// system temp dir across restarts.
type FileManager struct {
	mu      sync.Mutex
	dir     string
	tracked []string
}

// NewFileManager creates a manager rooted at dir, creating it if needed. An
// empty dir allocates a fresh temporary directory.
func NewFileManager(dir string) (*FileManager, error) {
	if dir == "" {
		tempDir, err := os.MkdirTemp("", "voxpet-audio-")
		if err != nil {
			return nil, fmt.Errorf("failed to create audio dir: %w", err)
		}
		dir = tempDir
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}

	return &FileManager{dir: dir}, nil
}

// Dir returns the managed directory.
func (m *FileManager) Dir() string {
	return m.dir
}

// CreateFile allocates a unique file path with the given suffix and tracks
// it for cleanup. The file itself is not created.
func (m *FileManager) CreateFile(suffix string) string {
	path := filepath.Join(m.dir, uuid.NewString()+suffix)
	m.Track(path)
	return path
}

// Track registers an externally created file for cleanup.
func (m *FileManager) Track(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, path)
}

// Remove deletes one tracked file immediately. Missing files are not an
// error.
func (m *FileManager) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove audio file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, tracked := range m.tracked {
		if tracked == path {
			m.tracked = append(m.tracked[:i], m.tracked[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup removes every tracked file. Files already gone are skipped.
func (m *FileManager) Cleanup() {
	m.mu.Lock()
	tracked := m.tracked
	m.tracked = nil
	m.mu.Unlock()

	for _, path := range tracked {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove audio file during cleanup", "path", path, "error", err)
		}
	}
}
