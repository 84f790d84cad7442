// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package cache

import (
	"context"
	"testing"

	"github.com/gazed/assetdb/id"
	"github.com/gazed/assetdb/source"
)

func TestSaveAndReadArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))
	if err := c.EnsureLayout(ctx); err != nil {
		t.Fatalf("EnsureLayout returned error: %s", err)
	}

	aid := id.NewErasedId()
	want := Artifact{
		Metadata: ArtifactMetadata{
			ID:   aid,
			Type: id.Unknown,
			Import: ImportInfo{
				Checksum:     42,
				FullChecksum: 99,
			},
		},
		Data: []byte("v 0 0 0\n"),
	}
	if err := c.SaveArtifact(ctx, Artifacts, want); err != nil {
		t.Fatalf("SaveArtifact returned error: %s", err)
	}

	got, err := c.ReadArtifact(ctx, Artifacts, aid)
	if err != nil {
		t.Fatalf("ReadArtifact returned error: %s", err)
	}
	if got.Metadata.ID != aid || string(got.Data) != string(want.Data) {
		t.Errorf("round trip mismatch: got %+v", got)
	}

	exists, err := c.Exists(ctx, Artifacts, aid)
	if err != nil || !exists {
		t.Errorf("expected artifact to exist after save, exists=%v err=%v", exists, err)
	}

	if _, err := c.Root().Exists(ctx, "artifacts/"+aid.String()+".tmp"); err == nil {
		if ok, _ := c.Root().Exists(ctx, "artifacts/"+aid.String()+".tmp"); ok {
			t.Errorf("expected temp file to not survive a committed save")
		}
	}
}

func TestReadMetadataDoesNotRequireData(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))
	aid := id.NewErasedId()
	artifact := Artifact{
		Metadata: ArtifactMetadata{ID: aid, Import: ImportInfo{Checksum: 7}},
		Data:     []byte("payload"),
	}
	if err := c.SaveArtifact(ctx, Artifacts, artifact); err != nil {
		t.Fatalf("SaveArtifact returned error: %s", err)
	}

	meta, err := c.ReadMetadata(ctx, Artifacts, aid)
	if err != nil {
		t.Fatalf("ReadMetadata returned error: %s", err)
	}
	if meta.ID != aid || meta.Import.Checksum != 7 {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestRemoveArtifactTolerantOfMissing(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))
	if err := c.RemoveArtifact(ctx, Artifacts, id.NewErasedId()); err != nil {
		t.Errorf("expected removing a missing artifact to be tolerated, got %s", err)
	}
}

func TestRemoveAreaClearsStaging(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))
	a1, a2 := id.NewErasedId(), id.NewErasedId()
	c.SaveArtifact(ctx, Staging, Artifact{Metadata: ArtifactMetadata{ID: a1}})
	c.SaveArtifact(ctx, Staging, Artifact{Metadata: ArtifactMetadata{ID: a2}})

	if err := c.RemoveArea(ctx, Staging); err != nil {
		t.Fatalf("RemoveArea returned error: %s", err)
	}
	if ok, _ := c.Exists(ctx, Staging, a1); ok {
		t.Errorf("expected staging artifact %s to be cleared", a1)
	}
}

func TestFullChecksumReadsOnlyMetadata(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))

	dep1, dep2 := id.NewErasedId(), id.NewErasedId()
	c.SaveArtifact(ctx, Artifacts, Artifact{
		Metadata: ArtifactMetadata{ID: dep1, Import: ImportInfo{FullChecksum: 111}},
	})
	c.SaveArtifact(ctx, Artifacts, Artifact{
		Metadata: ArtifactMetadata{ID: dep2, Import: ImportInfo{FullChecksum: 222}},
	})

	got, err := c.FullChecksum(ctx, 5, []id.ErasedId{dep1, dep2})
	if err != nil {
		t.Fatalf("FullChecksum returned error: %s", err)
	}
	want := CombineFullChecksum(5, []uint64{111, 222})
	if got != want {
		t.Errorf("FullChecksum = %d, want %d", got, want)
	}
}

func TestFullChecksumMissingDependency(t *testing.T) {
	ctx := context.Background()
	c := New(source.NewVirtual(""))
	if _, err := c.FullChecksum(ctx, 1, []id.ErasedId{id.NewErasedId()}); err == nil {
		t.Errorf("expected an error when a dependency's artifact is missing")
	}
}
