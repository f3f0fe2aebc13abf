package voxel

import (
	"context"
	"log/slog"
	"time"

	"github.com/lars-frogner/Impact-sub013/pool"
)

// RefreshDerivedState recomputes face masks, internal adjacency and local
// region labels of every dirty chunk on the pool, then rebuilds the region
// forest on the calling goroutine. Dirty chunks and their neighbors are
// queued for remeshing.
func (o *ChunkedVoxelObject) RefreshDerivedState(ctx context.Context, p *pool.Pool) error {
	if len(o.dirty.list) == 0 && !o.regionsStale {
		return nil
	}
	start := time.Now()
	dirty := o.dirty.list
	n := o.chunkSize
	err := pool.ForEachWithState(ctx, p, len(dirty),
		func() *[]int32 { q := make([]int32, 0, n*n); return &q },
		func(queue *[]int32, i int) error {
			if c := &o.chunks[dirty[i]]; c.kind == chunkNonUniform {
				*queue = c.data.refresh(n, *queue)
			}
			return nil
		})
	if err != nil {
		return err
	}
	o.resolveRegions()
	o.regionsStale = false

	// Corner normals depend on voxels across edges and corners too, so the
	// full neighborhood is remeshed.
	for _, ci := range dirty {
		c := o.chunkCoords(ci)
		for di := -1; di <= 1; di++ {
			for dj := -1; dj <= 1; dj++ {
				for dk := -1; dk <= 1; dk++ {
					nb := [3]int{c[0] + di, c[1] + dj, c[2] + dk}
					if o.chunkInBounds(nb) {
						o.meshInvalid.add(o.chunkIndex(nb))
					}
				}
			}
		}
	}
	slog.Debug("refreshed voxel chunks", "dirty", len(dirty), "regions", len(o.regions.keys), "elapsed", time.Since(start))
	o.dirty.clear()
	return nil
}

func (o *ChunkedVoxelObject) refreshSerial() {
	if err := o.RefreshDerivedState(context.Background(), nil); err != nil {
		panic(err)
	}
}

// markAllDirty queues every non-uniform chunk for refresh and every chunk
// for meshing.
func (o *ChunkedVoxelObject) markAllDirty() {
	for ci := range o.chunks {
		if o.chunks[ci].kind == chunkNonUniform {
			o.dirty.add(ci)
		}
		o.meshInvalid.add(ci)
	}
	o.regionsStale = true
}
