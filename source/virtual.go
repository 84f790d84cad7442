// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package source

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotExist is returned by Virtual and Disk when a path does not exist.
var ErrNotExist = errors.New("source: path does not exist")

// Virtual is an in-memory Source, standing in for the teacher's
// zip-backed production loader (load/locator.go) without needing a real
// archive. It is the source used by the test suite's round-trip and
// removal-propagation scenarios (spec §8, S1-S6).
type Virtual struct {
	name string

	mu    sync.RWMutex
	files map[string][]byte
}

// NewVirtual returns an empty, named in-memory source.
func NewVirtual(name string) *Virtual {
	return &Virtual{name: name, files: make(map[string][]byte)}
}

// Name implements Source.
func (v *Virtual) Name() string { return v.name }

// Seed writes data directly into the source, bypassing Writer. Tests use
// this to set up fixtures without going through io.WriteCloser ceremony.
func (v *Virtual) Seed(path string, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.files[path] = append([]byte(nil), data...)
}

// Reader implements Source.
func (v *Virtual) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	data, ok := v.files[path]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "virtual source %q path %q", v.name, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// virtualWriter buffers writes and commits them to the source on Close,
// matching the "write fully, then make visible" atomicity the cache
// relies on (spec §4.4).
type virtualWriter struct {
	v    *Virtual
	path string
	buf  bytes.Buffer
}

func (w *virtualWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *virtualWriter) Close() error {
	w.v.mu.Lock()
	defer w.v.mu.Unlock()
	w.v.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

// Writer implements Source.
func (v *Virtual) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &virtualWriter{v: v, path: path}, nil
}

// ReadDir implements Source.
func (v *Virtual) ReadDir(ctx context.Context, dir string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	prefix := dir
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	seen := make(map[string]bool)
	var entries []DirEntry
	for p := range v.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest == "" {
			continue
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name := rest[:idx]
			if !seen[name] {
				seen[name] = true
				entries = append(entries, DirEntry{Name: name, IsDir: true})
			}
			continue
		}
		if !seen[rest] {
			seen[rest] = true
			entries = append(entries, DirEntry{Name: rest, IsDir: false})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// IsDir implements Source.
func (v *Virtual) IsDir(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	entries, err := v.ReadDir(ctx, path)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Exists implements Source.
func (v *Virtual) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.files[path]; ok {
		return true, nil
	}
	prefix := path + "/"
	for p := range v.files {
		if strings.HasPrefix(p, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// Remove implements Source.
func (v *Virtual) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.files, path)
	return nil
}

// RemoveDir implements Source.
func (v *Virtual) RemoveDir(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	prefix := dir + "/"
	for p := range v.files {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(v.files, p)
		}
	}
	return nil
}

// Rename implements Source.
func (v *Virtual) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.files[oldPath]
	if !ok {
		return errors.Wrapf(ErrNotExist, "virtual source %q path %q", v.name, oldPath)
	}
	v.files[newPath] = data
	delete(v.files, oldPath)
	return nil
}

// CreateDirAll implements Source. Virtual has no real directory nodes —
// directories exist implicitly wherever a file path prefix matches —
// so this is a no-op kept only to satisfy the interface.
func (v *Virtual) CreateDirAll(ctx context.Context, path string) error {
	return ctx.Err()
}
