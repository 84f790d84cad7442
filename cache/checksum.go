// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package cache

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/OneOfOne/xxhash"
)

// checksum.go fixes the two stable hashes: the per-asset Checksum is a
// 32-bit CRC-32C (Castagnoli) from the standard library, and the
// full_checksum combiner is a 64-bit xxHash
// (github.com/OneOfOne/xxhash, as used by the aistore examples for
// their own content-addressed object checksums) over the asset's own
// checksum followed by its dependencies' full_checksums in order.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes a CRC-32C of sourceBytes followed by metaBytes,
// computed as "hash(source) then hash(meta)" over one running CRC
// state rather than hashing the two concatenated slices, matching
// spec §3's "computed as hash(source_bytes) then hash(meta_bytes) with
// a stable hasher".
func Checksum(sourceBytes, metaBytes []byte) uint32 {
	h := crc32.New(castagnoli)
	h.Write(sourceBytes)
	h.Write(metaBytes)
	return h.Sum32()
}

// CombineFullChecksum computes full_checksum(A) = hash(checksum(A) ++
// map(full_checksum, A.dependencies)) (spec invariant 4). Dependency
// order matters: callers must pass depFullChecksums in the same order
// the dependency IDs are recorded in ImportInfo.Dependencies so the
// combiner is reproducible across runs (spec §4.5 "deterministic...
// so import logs are reproducible").
func CombineFullChecksum(checksum uint32, depFullChecksums []uint64) uint64 {
	h := xxhash.New64()
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], checksum)
	h.Write(buf[:4])
	for _, dep := range depFullChecksums {
		binary.LittleEndian.PutUint64(buf[:], dep)
		h.Write(buf[:])
	}
	return h.Sum64()
}
