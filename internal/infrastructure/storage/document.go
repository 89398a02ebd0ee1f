// Package storage keeps fetched invoice documents on disk while they are previewed and
// publishes them to S3-compatible object storage for sharing.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ErrReleased is returned when a released document is read.
var ErrReleased = errors.New("document released")

// Document is a handle on a temporary file. Release it when the preview closes.
// Readers that may outlive the preview bracket their use with Acquire and Done; the
// file is removed once the last of them is done.
type Document struct {
	name string
	path string
	size int

	mu       sync.Mutex
	refs     int
	pending  bool
	released bool
}

// Name is the download file name.
func (d *Document) Name() string { return d.name }

// Path is the location of the temporary file.
func (d *Document) Path() string { return d.path }

// Size is the document length in bytes.
func (d *Document) Size() int { return d.size }

// Bytes reads the document back.
func (d *Document) Bytes() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, ErrReleased
	}
	b, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return b, nil
}

// Acquire keeps the file on disk until the matching Done, even if Release is
// called in between. It fails once Release has been called.
func (d *Document) Acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released || d.pending {
		return ErrReleased
	}
	d.refs++
	return nil
}

// Done ends a use started by Acquire.
func (d *Document) Done() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refs == 0 {
		return nil
	}
	d.refs--
	if d.refs == 0 && d.pending {
		return d.removeLocked()
	}
	return nil
}

// Release removes the file, or schedules its removal while it is acquired. Safe to
// call more than once.
func (d *Document) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released || d.pending {
		return nil
	}
	if d.refs > 0 {
		d.pending = true
		return nil
	}
	return d.removeLocked()
}

func (d *Document) removeLocked() error {
	d.pending = false
	d.released = true
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}

// Released reports whether Release was called.
func (d *Document) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released || d.pending
}

// TempStore writes documents into a directory.
type TempStore struct {
	dir    string
	logger *zap.Logger
}

// NewTempStore creates dir if needed. An empty dir means the OS temp directory.
func NewTempStore(dir string, logger *zap.Logger) (*TempStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TempStore{dir: dir, logger: logger}, nil
}

// Put stores data and returns its handle. name is the suggested download name.
func (s *TempStore) Put(name string, data []byte) (*Document, error) {
	f, err := os.CreateTemp(s.dir, "invoice-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create document file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	s.logger.Debug("document stored", zap.String("path", f.Name()), zap.Int("size", len(data)))
	return &Document{name: name, path: f.Name(), size: len(data)}, nil
}
