package voxel

import (
	"context"
	"math"

	"github.com/lars-frogner/Impact-sub013/pool"
)

// SplitOffAnyDisconnectedRegion moves one connected piece of a
// disconnected object into a new object and returns it, or nil when the
// object is connected. The piece touching the fewest chunks is chosen. The
// new object covers only the piece's chunk range and records in its origin
// offset where that range sits. Tracked inertial properties are moved voxel
// by voxel. Both objects are left refreshed.
func (o *ChunkedVoxelObject) SplitOffAnyDisconnectedRegion(ctx context.Context, p *pool.Pool) (*ChunkedVoxelObject, error) {
	if err := o.RefreshDerivedState(ctx, p); err != nil {
		return nil, err
	}
	comps := o.components()
	if len(comps) < 2 {
		return nil, nil
	}
	piece := comps[0]
	for _, c := range comps[1:] {
		if c.chunkCount < piece.chunkCount || (c.chunkCount == piece.chunkCount && len(c.nodes) < len(piece.nodes)) {
			piece = c
		}
	}

	lo := [3]int{math.MaxInt, math.MaxInt, math.MaxInt}
	hi := [3]int{-1, -1, -1}
	for _, k := range piece.nodes {
		c := o.chunkCoords(int(k.chunk))
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], c[a])
			hi[a] = max(hi[a], c[a])
		}
	}
	// Keep the piece aligned to whole superchunks of the source grid.
	for a := 0; a < 3; a++ {
		lo[a] -= lo[a] % SuperchunkSize
	}
	dst, err := NewChunkedVoxelObject(o.chunkSize, o.voxelExtent,
		[3]int{hi[0] - lo[0] + 1, hi[1] - lo[1] + 1, hi[2] - lo[2] + 1})
	if err != nil {
		return nil, err
	}
	n := o.chunkSize
	voxelOffset := [3]int{lo[0] * n, lo[1] * n, lo[2] * n}
	for a := 0; a < 3; a++ {
		dst.originOffset[a] = o.originOffset[a] + voxelOffset[a]
	}
	var tr *InertialPropertyTransferrer
	if o.inertia != nil {
		dst.inertia = NewInertialPropertyManager(o.voxelExtent, o.inertia.densities)
		tr = NewInertialPropertyTransferrer(o.inertia, dst.inertia, voxelOffset)
	}

	for start := 0; start < len(piece.nodes); {
		ci := int(piece.nodes[start].chunk)
		end := start
		for end < len(piece.nodes) && int(piece.nodes[end].chunk) == ci {
			end++
		}
		c := o.chunkCoords(ci)
		dci := dst.chunkIndex([3]int{c[0] - lo[0], c[1] - lo[1], c[2] - lo[2]})
		o.moveChunkRegions(dst, ci, dci, c, piece.nodes[start:end], tr)
		start = end
	}

	if err := o.RefreshDerivedState(ctx, p); err != nil {
		return nil, err
	}
	dst.markAllDirty()
	if err := dst.RefreshDerivedState(ctx, p); err != nil {
		return nil, err
	}
	return dst, nil
}

// moveChunkRegions moves the voxels of the given local regions of source
// chunk ci into chunk dci of dst.
func (o *ChunkedVoxelObject) moveChunkRegions(dst *ChunkedVoxelObject, ci, dci int, c [3]int, nodes []regionKey, tr *InertialPropertyTransferrer) {
	n := o.chunkSize
	base := [3]int{c[0] * n, c[1] * n, c[2] * n}
	dc := dst.chunkCoords(dci)
	dbase := [3]int{dc[0] * n, dc[1] * n, dc[2] * n}
	src := o.chunks[ci]
	if src.kind == chunkUniform {
		dst.setChunk(dci, src)
		o.setChunk(ci, chunk{kind: chunkEmpty})
		if tr != nil {
			tr.TransferBlock(base, n, src.uniform)
		}
		if len(o.damage) > 0 {
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					for k := 0; k < n; k++ {
						o.moveDamage(dst, [3]int{base[0] + i, base[1] + j, base[2] + k}, [3]int{dbase[0] + i, dbase[1] + j, dbase[2] + k})
					}
				}
			}
		}
		o.markDirtyWithNeighbors(ci)
		return
	}

	moved := make([]bool, src.data.regionCount+1)
	for _, k := range nodes {
		moved[k.label] = true
	}
	sd := src.data
	dd := dst.materialize(dci)
	li := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				if v := sd.voxels[li]; v != Empty && moved[sd.regions[li]] {
					dd.voxels[li] = v
					sd.voxels[li] = Empty
					if tr != nil {
						tr.TransferVoxel([3]int{base[0] + i, base[1] + j, base[2] + k}, v)
					}
					o.moveDamage(dst, [3]int{base[0] + i, base[1] + j, base[2] + k}, [3]int{dbase[0] + i, dbase[1] + j, dbase[2] + k})
				}
				li++
			}
		}
	}
	sd.computeFaces(n)
	dd.computeFaces(n)
	o.canonicalize(ci)
	dst.canonicalize(dci)
	o.markDirtyWithNeighbors(ci)
}

// moveDamage carries the accumulated damage of a moved voxel over to dst.
func (o *ChunkedVoxelObject) moveDamage(dst *ChunkedVoxelObject, from, to [3]int) {
	if len(o.damage) == 0 {
		return
	}
	key := o.linearVoxelIndex(from)
	if d, ok := o.damage[key]; ok {
		delete(o.damage, key)
		dst.damage[dst.linearVoxelIndex(to)] = d
	}
}
