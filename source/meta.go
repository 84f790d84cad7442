// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package source

import (
	"context"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/gazed/assetdb/id"
)

// meta.go reads and writes the two kinds of sidecar meta file named in
// spec §4.2 and §4.6: a per-file meta carrying an asset's assigned id
// and importer settings, and a per-directory meta recording the child
// listing seen on the previous scan (used to diff for removed paths).

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileMeta is the sidecar carried alongside a source asset at
// "<path>.meta". Absence of a meta file means "first import, mint a new
// id and create meta" (spec §4.2).
type FileMeta struct {
	ID       id.ErasedId    `json:"id"`
	Settings jsoniter.RawMessage `json:"settings"`

	// Checksum and FullChecksum cache the import state this asset last
	// committed with: the values the pipeline's skip check (spec
	// §4.6.1 (d), (e)) compares its recomputed checksums against.
	Checksum     uint32 `json:"checksum"`
	FullChecksum uint64 `json:"full_checksum"`
}

// ReadFileMeta reads and decodes the meta file at path+".meta". A
// missing meta file is reported as the underlying Source's error (for
// Virtual and Disk, one wrapping ErrNotExist; os.IsNotExist does not
// match it) — callers treat any error as "never imported".
func ReadFileMeta(ctx context.Context, src Source, path string) (FileMeta, error) {
	var meta FileMeta
	r, err := src.Reader(ctx, path+".meta")
	if err != nil {
		return meta, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return meta, errors.Wrapf(err, "source: reading meta for %s", path)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, errors.Wrapf(err, "source: decoding meta for %s", path)
	}
	return meta, nil
}

// WriteFileMeta encodes and writes meta to path+".meta".
func WriteFileMeta(ctx context.Context, src Source, path string, meta FileMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrapf(err, "source: encoding meta for %s", path)
	}
	w, err := src.Writer(ctx, path+".meta")
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "source: writing meta for %s", path)
	}
	return nil
}

// DirMeta records the file names a directory held as of the previous
// scan. Diffing DirMeta.Children against the directory's current
// listing produces the removed_paths set for that directory (spec
// §4.6 step 3.b).
type DirMeta struct {
	Children []string `json:"children"`
}

// dirMetaName is the sidecar file name within a scanned directory.
// It is dot-prefixed so directory listings of real asset files can
// filter it out trivially.
const dirMetaName = ".dir.meta"

// ReadDirMeta reads the child listing recorded for dir on the previous
// scan. A missing dir meta is reported as an empty DirMeta, nil error —
// a never-before-scanned directory has no prior children to diff
// against.
func ReadDirMeta(ctx context.Context, src Source, dir string) (DirMeta, error) {
	metaPath := joinMetaPath(dir)
	exists, err := src.Exists(ctx, metaPath)
	if err != nil {
		return DirMeta{}, err
	}
	if !exists {
		return DirMeta{}, nil
	}
	r, err := src.Reader(ctx, metaPath)
	if err != nil {
		return DirMeta{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return DirMeta{}, errors.Wrapf(err, "source: reading dir meta for %s", dir)
	}
	var meta DirMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return DirMeta{}, errors.Wrapf(err, "source: decoding dir meta for %s", dir)
	}
	return meta, nil
}

// WriteDirMeta persists dir's current child listing for the next scan.
func WriteDirMeta(ctx context.Context, src Source, dir string, meta DirMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrapf(err, "source: encoding dir meta for %s", dir)
	}
	w, err := src.Writer(ctx, joinMetaPath(dir))
	if err != nil {
		return err
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "source: writing dir meta for %s", dir)
	}
	return nil
}

func joinMetaPath(dir string) string {
	if dir == "" || dir == "." {
		return dirMetaName
	}
	return dir + "/" + dirMetaName
}
