// Package filestore is the content-addressed disk cache for tile bytes. It
// mirrors the teacher's PersistentTileCache OGC-ZXY layout but keyed by the
// tile.Key/cache-name path convention of spec §6 rather than a hash.
package filestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore is a disk cache of tile bytes addressed by relative tile path
// (spec §6: <cacheName>/<row>/<row>_<col><suffix>).
type FileStore struct {
	baseDir string
	mu      sync.Mutex // serializes reads/writes of the same file (spec §5 fileLock)
	log     *slog.Logger
}

// New creates a FileStore rooted at baseDir, creating it if necessary.
func New(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir, log: slog.Default().With("component", "filestore")}, nil
}

// localPath resolves a tile's relative path against the store root.
func (f *FileStore) localPath(relPath string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(relPath))
}

// DirPath resolves a cache-name directory against the store root, for
// callers that need to walk a cache's directory tree directly (e.g. the
// bulk downloader's average-tile-size sampling, spec §4.7).
func (f *FileStore) DirPath(cacheName string) string {
	return filepath.Join(f.baseDir, filepath.FromSlash(cacheName))
}

// URL returns a local file:// URL for relPath if the file exists and is not
// older than expiry, else ("", false).
func (f *FileStore) URL(relPath string, expiry time.Time) (string, bool) {
	full := f.localPath(relPath)
	info, err := os.Stat(full)
	if err != nil {
		return "", false
	}
	if !expiry.IsZero() && info.ModTime().Before(expiry) {
		return "", false
	}
	return "file://" + full, true
}

// Read returns the bytes at relPath if present and not expired.
func (f *FileStore) Read(relPath string, expiry time.Time) ([]byte, bool) {
	full := f.localPath(relPath)
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(full)
	if err != nil {
		return nil, false
	}
	if !expiry.IsZero() && info.ModTime().Before(expiry) {
		return nil, false
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Write stores data at relPath, creating parent directories as needed.
func (f *FileStore) Write(relPath string, data []byte) error {
	full := f.localPath(relPath)
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("filestore: mkdir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("filestore: write: %w", err)
	}
	return nil
}

// Delete removes relPath, e.g. after a decode failure (spec §4.3.1 step 4,
// CorruptData error kind in §7).
func (f *FileStore) Delete(relPath string) {
	full := f.localPath(relPath)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		f.log.Warn("failed to delete suspect file", "path", full, "err", err)
	}
}

// Contains reports whether relPath exists, irrespective of expiry.
func (f *FileStore) Contains(relPath string) bool {
	full := f.localPath(relPath)
	_, err := os.Stat(full)
	return err == nil
}
