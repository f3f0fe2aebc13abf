package voxel

import "github.com/go-gl/mathgl/mgl64"

// VoxelVisitor is called with the grid indices, object space center and a
// writable reference for each voxel inside a modified region.
type VoxelVisitor func(idx [3]int, pos mgl64.Vec3, v *Voxel)

// voxelRegion is an object space volume selecting voxels by their centers.
type voxelRegion interface {
	bounds() (lower, upper mgl64.Vec3)
	contains(p mgl64.Vec3) bool
}

func (s Sphere) bounds() (mgl64.Vec3, mgl64.Vec3) {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return s.Center.Sub(r), s.Center.Add(r)
}

func (s Sphere) sphereBound() Sphere { return s }

// sphereBounded regions lie within a sphere, which allows skipping chunks.
type sphereBounded interface {
	sphereBound() Sphere
}

func (s Sphere) contains(p mgl64.Vec3) bool {
	return p.Sub(s.Center).LenSqr() <= s.Radius*s.Radius
}

// ModifyVoxelsWithinSphere visits every voxel whose center lies within the
// object space sphere. Touched chunks are materialized for the visit and
// brought back to canonical form afterwards; chunks whose contents changed
// are marked dirty along with the neighbors across every changed face.
func (o *ChunkedVoxelObject) ModifyVoxelsWithinSphere(s Sphere, visit VoxelVisitor) {
	o.modifyVoxelsWithin(s, visit)
}

// SetVoxel overwrites a single voxel. Indices outside the grid are ignored.
func (o *ChunkedVoxelObject) SetVoxel(idx [3]int, v Voxel) {
	counts := o.VoxelCounts()
	for a := 0; a < 3; a++ {
		if idx[a] < 0 || idx[a] >= counts[a] {
			return
		}
	}
	n := o.chunkSize
	c := [3]int{idx[0] / n, idx[1] / n, idx[2] / n}
	l := [3]int{idx[0] % n, idx[1] % n, idx[2] % n}
	o.modifyChunk(o.chunkIndex(c), c, l, l, nil, func(_ [3]int, _ mgl64.Vec3, dst *Voxel) {
		*dst = v
	})
}

func (o *ChunkedVoxelObject) modifyVoxelsWithin(region voxelRegion, visit VoxelVisitor) {
	lo, hi, ok := o.voxelRangeWithin(region.bounds())
	if !ok {
		return
	}
	n := o.chunkSize
	s := o.shift
	for ci := lo[0] >> s; ci <= hi[0]>>s; ci++ {
		for cj := lo[1] >> s; cj <= hi[1]>>s; cj++ {
			for ck := lo[2] >> s; ck <= hi[2]>>s; ck++ {
				c := [3]int{ci, cj, ck}
				var llo, lhi [3]int
				for a := 0; a < 3; a++ {
					llo[a] = max(lo[a]-c[a]*n, 0)
					lhi[a] = min(hi[a]-c[a]*n, n-1)
				}
				o.modifyChunk(o.chunkIndex(c), c, llo, lhi, region, visit)
			}
		}
	}
}

// modifyChunk visits the local voxels in [llo, lhi] of one chunk that lie
// inside region (all of them for a nil region).
func (o *ChunkedVoxelObject) modifyChunk(ci int, c [3]int, llo, lhi [3]int, region voxelRegion, visit VoxelVisitor) {
	n := o.chunkSize
	before := o.chunks[ci]
	if region != nil && !o.chunkTouchesRegion(c, llo, lhi, region) {
		return
	}
	facesBefore := o.faceSnapshot(ci)
	d := o.materialize(ci)

	base := [3]int{c[0] * n, c[1] * n, c[2] * n}
	changed := false
	for i := llo[0]; i <= lhi[0]; i++ {
		for j := llo[1]; j <= lhi[1]; j++ {
			for k := llo[2]; k <= lhi[2]; k++ {
				g := [3]int{base[0] + i, base[1] + j, base[2] + k}
				pos := o.voxelCenter(g)
				if region != nil && !region.contains(pos) {
					continue
				}
				li := (i*n+j)*n + k
				old := d.voxels[li]
				visit(g, pos, &d.voxels[li])
				if d.voxels[li] == Sentinel {
					panic("voxel: sentinel written to object storage")
				}
				if d.voxels[li] != old {
					changed = true
				}
			}
		}
	}
	if !changed {
		if before.kind != chunkNonUniform {
			o.setChunk(ci, before)
		}
		return
	}

	d.computeFaces(n)
	o.canonicalize(ci)
	o.dirty.add(ci)
	facesAfter := o.faceSnapshot(ci)
	for f := 0; f < 6; f++ {
		if facesBefore[f].equal(facesAfter[f]) {
			continue
		}
		if nb := o.neighborChunk(c, f); nb >= 0 {
			o.dirty.add(nb)
		}
	}
}

// chunkTouchesRegion reports whether any voxel center of the local range
// could lie inside region, testing the closest point of the range's center box.
func (o *ChunkedVoxelObject) chunkTouchesRegion(c [3]int, llo, lhi [3]int, region voxelRegion) bool {
	sb, ok := region.(sphereBounded)
	if !ok {
		return true
	}
	s := sb.sphereBound()
	n := o.chunkSize
	lower := o.voxelCenter([3]int{c[0]*n + llo[0], c[1]*n + llo[1], c[2]*n + llo[2]})
	upper := o.voxelCenter([3]int{c[0]*n + lhi[0], c[1]*n + lhi[1], c[2]*n + lhi[2]})
	var closest mgl64.Vec3
	for a := 0; a < 3; a++ {
		closest[a] = min(max(s.Center[a], lower[a]), upper[a])
	}
	return s.contains(closest)
}

// materialize promotes a chunk to non-uniform storage, filling the dense
// buffer with the previous contents.
func (o *ChunkedVoxelObject) materialize(ci int) *chunkData {
	c := o.chunks[ci]
	switch c.kind {
	case chunkNonUniform:
		return c.data
	case chunkUniform:
		d := newChunkData(o.chunkSize, c.uniform)
		o.setChunk(ci, chunk{kind: chunkNonUniform, data: d})
		return d
	default:
		d := newChunkData(o.chunkSize, Empty)
		o.setChunk(ci, chunk{kind: chunkNonUniform, data: d})
		return d
	}
}

// canonicalize demotes a non-uniform chunk whose voxels are all empty or
// all of one type, dropping its derived state.
func (o *ChunkedVoxelObject) canonicalize(ci int) {
	c := o.chunks[ci]
	if c.kind != chunkNonUniform {
		return
	}
	voxels := c.data.voxels
	first := voxels[0]
	uniform := true
	nonEmpty := 0
	for _, v := range voxels {
		if v != Empty {
			nonEmpty++
		}
		if v != first {
			uniform = false
		}
	}
	switch {
	case nonEmpty == 0:
		o.setChunk(ci, chunk{kind: chunkEmpty})
	case uniform:
		o.setChunk(ci, chunk{kind: chunkUniform, uniform: first})
	default:
		c.data.nonEmpty = nonEmpty
	}
}

// markDirtyWithNeighbors marks a chunk and its six face neighbors dirty.
func (o *ChunkedVoxelObject) markDirtyWithNeighbors(ci int) {
	o.dirty.add(ci)
	c := o.chunkCoords(ci)
	for f := 0; f < 6; f++ {
		if nb := o.neighborChunk(c, f); nb >= 0 {
			o.dirty.add(nb)
		}
	}
}
