// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package source

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Disk is a real on-disk Source rooted at its root directory. It generalizes the
// teacher's direct os/path use in the old load package (load.go,
// locator.go) into the full read/write/list Source contract.
type Disk struct {
	name string
	root string
}

// NewDisk returns a Source rooted at root, registered under name.
func NewDisk(name, root string) *Disk {
	return &Disk{name: name, root: root}
}

// Name implements Source.
func (d *Disk) Name() string { return d.name }

func (d *Disk) abs(path string) string { return filepath.Join(d.root, filepath.FromSlash(path)) }

// Reader implements Source.
func (d *Disk) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotExist, "disk source %q path %q", d.name, path)
		}
		return nil, errors.Wrapf(err, "disk source %q: open %q", d.name, path)
	}
	return f, nil
}

// Writer implements Source. The parent directory is created as needed,
// matching the teacher's CreateDirAll-before-write convention.
func (d *Disk) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := d.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, errors.Wrapf(err, "disk source %q: mkdir for %q", d.name, path)
	}
	f, err := os.Create(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "disk source %q: create %q", d.name, path)
	}
	return f, nil
}

// ReadDir implements Source.
func (d *Disk) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "disk source %q: read dir %q", d.name, path)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

// IsDir implements Source.
func (d *Disk) IsDir(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "disk source %q: stat %q", d.name, path)
	}
	return info.IsDir(), nil
}

// Exists implements Source.
func (d *Disk) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(d.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "disk source %q: stat %q", d.name, path)
}

// Remove implements Source.
func (d *Disk) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(d.abs(path)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "disk source %q: remove %q", d.name, path)
	}
	return nil
}

// RemoveDir implements Source.
func (d *Disk) RemoveDir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(d.abs(path)); err != nil {
		return errors.Wrapf(err, "disk source %q: remove dir %q", d.name, path)
	}
	return nil
}

// Rename implements Source.
func (d *Disk) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs := d.abs(newPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrapf(err, "disk source %q: mkdir for %q", d.name, newPath)
	}
	if err := os.Rename(d.abs(oldPath), abs); err != nil {
		return errors.Wrapf(err, "disk source %q: rename %q to %q", d.name, oldPath, newPath)
	}
	return nil
}

// CreateDirAll implements Source.
func (d *Disk) CreateDirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.abs(path), 0o755); err != nil {
		return errors.Wrapf(err, "disk source %q: mkdir %q", d.name, path)
	}
	return nil
}
