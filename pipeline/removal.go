// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package pipeline

import (
	"context"

	"github.com/gazed/assetdb/cache"
	"github.com/gazed/assetdb/event"
	"github.com/gazed/assetdb/id"
)

// removePath implements spec §4.6.2's removal BFS: resolve rp's ID via
// the library, then for each dequeued ID emit AssetRemoved, read its
// cached metadata to discover children, delete its artifact, and drop
// its library entry. A path the library has never heard of is a no-op.
func (p *Pipeline) removePath(ctx context.Context, rp removalCandidate) error {
	assetPath := id.AssetPath{Source: rp.source, Path: rp.path}
	rootID, ok := p.library.GetId(assetPath)
	if !ok {
		return nil
	}

	queue := []id.ErasedId{rootID}
	for len(queue) > 0 {
		aid := queue[0]
		queue = queue[1:]

		p.bus.Publish(event.Event{Kind: event.AssetRemoved, ID: aid})

		if meta, err := p.store.ReadMetadata(ctx, cache.Artifacts, aid); err == nil {
			queue = append(queue, meta.ChildIDs...) // missing artifacts are tolerated, per spec.
		}
		p.store.RemoveArtifact(ctx, cache.Artifacts, aid)
		p.library.Remove(aid)
	}
	return nil
}
