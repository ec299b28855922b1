package staging

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

// maxEntrySize bounds a single decompressed bundle entry.
const maxEntrySize = 1 << 20

// Bundle is an export archive: slash-separated paths to file contents.
// Serialized as a zip file.
type Bundle struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{entries: make(map[string][]byte)}
}

// Put stores data at p, replacing any previous entry.
func (b *Bundle) Put(p string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[path.Clean(p)] = data
}

// Get returns the entry at p.
func (b *Bundle) Get(p string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.entries[path.Clean(p)]
	return data, ok
}

// Paths returns the sorted paths under prefix. An empty prefix lists all.
func (b *Bundle) Paths(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for p := range b.entries {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of entries.
func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// WriteZip writes the bundle as a zip archive with entries in path order.
func (b *Bundle) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, p := range b.Paths("") {
		data, _ := b.Get(p)
		f, err := zw.Create(p)
		if err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", p, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write %s to bundle: %w", p, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return nil
}

// ReadZip loads a bundle from a zip archive. Directory entries are skipped;
// paths escaping the archive root are rejected.
func ReadZip(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	b := NewBundle()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("bundle entry %q escapes archive root", f.Name)
		}
		if f.UncompressedSize64 > maxEntrySize {
			return nil, fmt.Errorf("bundle entry %s exceeds %d bytes", name, maxEntrySize)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open bundle entry %s: %w", name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle entry %s: %w", name, err)
		}
		if len(data) > maxEntrySize {
			return nil, fmt.Errorf("bundle entry %s exceeds %d bytes", name, maxEntrySize)
		}
		b.entries[name] = data
	}
	return b, nil
}
