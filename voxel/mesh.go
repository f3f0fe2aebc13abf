package voxel

import (
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
)

// VoxelMeshVertex is laid out as six consecutive float32s.
type VoxelMeshVertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
}

// ChunkSubmesh describes the slice of the mesh buffers belonging to one
// chunk. Indices are relative to BaseVertex.
type ChunkSubmesh struct {
	BaseVertex  uint32
	VertexCount uint32
	FirstIndex  uint32
	IndexCount  uint32
	LowerBounds [3]float32
	UpperBounds [3]float32
}

// DrawIndexedIndirectArgs mirrors the GPU indirect indexed draw layout.
type DrawIndexedIndirectArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

// ChunkedVoxelObjectMesh holds the surface of an object with one submesh
// per chunk, patched as chunks are invalidated.
type ChunkedVoxelObjectMesh struct {
	Vertices     []VoxelMeshVertex
	Indices      []uint16
	Submeshes    []ChunkSubmesh
	IndirectArgs []DrawIndexedIndirectArgs

	vertexAlloc rangeAllocator
	indexAlloc  rangeAllocator
	vertexSpans []span
	indexSpans  []span
	dirty       []uint64
	scratch     meshScratch
}

type meshScratch struct {
	corner   []int32
	touched  []int32
	vertices []VoxelMeshVertex
	indices  []uint16
}

// NewChunkedVoxelObjectMesh meshes every chunk of a refreshed object.
func NewChunkedVoxelObjectMesh(o *ChunkedVoxelObject) *ChunkedVoxelObjectMesh {
	o.requireFresh()
	n := len(o.chunks)
	m := &ChunkedVoxelObjectMesh{
		Submeshes:    make([]ChunkSubmesh, n),
		IndirectArgs: make([]DrawIndexedIndirectArgs, n),
		vertexSpans:  make([]span, n),
		indexSpans:   make([]span, n),
		dirty:        make([]uint64, (n+63)/64),
	}
	side := o.chunkSize + 1
	m.scratch.corner = make([]int32, side*side*side)
	for i := range m.scratch.corner {
		m.scratch.corner[i] = -1
	}
	for ci := range o.chunks {
		m.remeshChunk(o, ci)
	}
	o.MarkChunkMeshesSynchronized()
	return m
}

// Sync rebuilds the submeshes of every invalidated chunk. Requires
// refreshed derived state.
func (m *ChunkedVoxelObjectMesh) Sync(o *ChunkedVoxelObject) {
	o.requireFresh()
	for _, ci := range o.InvalidatedMeshChunkIndices() {
		m.remeshChunk(o, ci)
	}
	o.MarkChunkMeshesSynchronized()
}

// DirtySubmeshes lists submeshes changed since ClearDirty.
func (m *ChunkedVoxelObjectMesh) DirtySubmeshes() []int {
	var out []int
	for w, word := range m.dirty {
		for word != 0 {
			t := bits.TrailingZeros64(word)
			out = append(out, w<<6+t)
			word &= word - 1
		}
	}
	return out
}

func (m *ChunkedVoxelObjectMesh) ClearDirty() {
	clear(m.dirty)
}

// TriangleCount counts the triangles drawn by all submeshes.
func (m *ChunkedVoxelObjectMesh) TriangleCount() int {
	count := 0
	for _, s := range m.Submeshes {
		count += int(s.IndexCount) / 3
	}
	return count
}

// ForEachTriangle visits every drawn triangle with absolute vertex indices.
func (m *ChunkedVoxelObjectMesh) ForEachTriangle(visit func(a, b, c uint32)) {
	for _, s := range m.Submeshes {
		idx := m.Indices[s.FirstIndex : s.FirstIndex+s.IndexCount]
		for t := 0; t+2 < len(idx); t += 3 {
			visit(s.BaseVertex+uint32(idx[t]), s.BaseVertex+uint32(idx[t+1]), s.BaseVertex+uint32(idx[t+2]))
		}
	}
}

func (m *ChunkedVoxelObjectMesh) remeshChunk(o *ChunkedVoxelObject, ci int) {
	vertices, indices := m.buildChunk(o, ci)

	vs, is := m.vertexSpans[ci], m.indexSpans[ci]
	if len(vertices) > vs.length || len(indices) > is.length || len(vertices) == 0 {
		m.vertexAlloc.release(vs)
		m.indexAlloc.release(is)
		vs = m.vertexAlloc.alloc(len(vertices))
		is = m.indexAlloc.alloc(len(indices))
		m.vertexSpans[ci], m.indexSpans[ci] = vs, is
		m.resizeBuffers()
	}
	copy(m.Vertices[vs.start:], vertices)
	copy(m.Indices[is.start:], indices)

	n := o.chunkSize
	c := o.chunkCoords(ci)
	e := o.voxelExtent
	sub := ChunkSubmesh{
		BaseVertex:  uint32(vs.start),
		VertexCount: uint32(len(vertices)),
		FirstIndex:  uint32(is.start),
		IndexCount:  uint32(len(indices)),
	}
	for a := 0; a < 3; a++ {
		sub.LowerBounds[a] = float32(float64(c[a]*n) * e)
		sub.UpperBounds[a] = float32(float64((c[a]+1)*n) * e)
	}
	m.Submeshes[ci] = sub
	m.IndirectArgs[ci] = DrawIndexedIndirectArgs{
		IndexCount:    sub.IndexCount,
		InstanceCount: 1,
		FirstIndex:    sub.FirstIndex,
		BaseVertex:    int32(sub.BaseVertex),
	}
	m.dirty[ci>>6] |= 1 << (ci & 63)
}

func (m *ChunkedVoxelObjectMesh) resizeBuffers() {
	if nv := m.vertexAlloc.size; nv <= cap(m.Vertices) {
		m.Vertices = m.Vertices[:nv]
	} else {
		m.Vertices = append(m.Vertices[:cap(m.Vertices)], make([]VoxelMeshVertex, nv-cap(m.Vertices))...)
	}
	if ni := m.indexAlloc.size; ni <= cap(m.Indices) {
		m.Indices = m.Indices[:ni]
	} else {
		m.Indices = append(m.Indices[:cap(m.Indices)], make([]uint16, ni-cap(m.Indices))...)
	}
}

// faceSpec gives, per face, the two in-plane axes (u, v) with u × v along
// the outward normal of an upper face.
type faceSpec struct {
	u, v int
}

var faceSpecs = [6]faceSpec{
	{1, 2}, {1, 2},
	{2, 0}, {2, 0},
	{0, 1}, {0, 1},
}

// ambiguousNormal is used at corners where the surrounding normals cancel.
var ambiguousNormal = mgl32.Vec3{0, 1, 0}

// buildChunk emits one quad per exposed voxel face of the chunk, sharing
// vertices between quads at the same lattice corner.
func (m *ChunkedVoxelObjectMesh) buildChunk(o *ChunkedVoxelObject, ci int) ([]VoxelMeshVertex, []uint16) {
	s := &m.scratch
	s.vertices = s.vertices[:0]
	s.indices = s.indices[:0]
	ch := &o.chunks[ci]
	if ch.kind == chunkEmpty {
		return nil, nil
	}
	c := o.chunkCoords(ci)
	o.forEachSurfaceVoxelInChunk(ci, c, func(idx [3]int, _ Voxel, exposed uint8) {
		for f := 0; f < 6; f++ {
			if exposed&(1<<f) != 0 {
				m.addQuad(o, c, idx, f)
			}
		}
	})
	for _, k := range s.touched {
		s.corner[k] = -1
	}
	s.touched = s.touched[:0]
	return s.vertices, s.indices
}

func (m *ChunkedVoxelObjectMesh) addQuad(o *ChunkedVoxelObject, c [3]int, idx [3]int, f int) {
	spec := faceSpecs[f]
	axis := faceAxis(f)
	base := idx
	if faceIsUpper(f) {
		base[axis]++
	}
	var corners [4][3]int
	corners[0] = base
	corners[1] = base
	corners[1][spec.u]++
	corners[2] = corners[1]
	corners[2][spec.v]++
	corners[3] = base
	corners[3][spec.v]++
	if !faceIsUpper(f) {
		corners[1], corners[3] = corners[3], corners[1]
	}
	var ids [4]uint16
	for q, g := range corners {
		ids[q] = m.cornerVertex(o, c, g)
	}
	m.scratch.indices = append(m.scratch.indices, ids[0], ids[1], ids[2], ids[0], ids[2], ids[3])
}

// cornerVertex returns the chunk-relative index of the vertex at global
// lattice corner g, creating it on first use.
func (m *ChunkedVoxelObjectMesh) cornerVertex(o *ChunkedVoxelObject, c [3]int, g [3]int) uint16 {
	n := o.chunkSize
	side := n + 1
	s := &m.scratch
	key := int32(((g[0]-c[0]*n)*side+(g[1]-c[1]*n))*side + (g[2] - c[2]*n))
	if id := s.corner[key]; id >= 0 {
		return uint16(id)
	}
	e := o.voxelExtent
	v := VoxelMeshVertex{
		Position: mgl32.Vec3{float32(float64(g[0]) * e), float32(float64(g[1]) * e), float32(float64(g[2]) * e)},
		Normal:   o.cornerNormal(g),
	}
	id := int32(len(s.vertices))
	s.vertices = append(s.vertices, v)
	s.corner[key] = id
	s.touched = append(s.touched, key)
	return uint16(id)
}

// cornerNormal sums the outward normals of every filled/empty voxel pair
// meeting at lattice corner g. It depends only on the eight voxels around
// the corner, so chunks sharing the corner agree on it exactly.
func (o *ChunkedVoxelObject) cornerNormal(g [3]int) mgl32.Vec3 {
	var filled [2][2][2]bool
	for di := 0; di < 2; di++ {
		for dj := 0; dj < 2; dj++ {
			for dk := 0; dk < 2; dk++ {
				filled[di][dj][dk] = o.Get(g[0]-1+di, g[1]-1+dj, g[2]-1+dk) != Empty
			}
		}
	}
	var sum [3]float64
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			// Pairs along x, y and z.
			sum[0] += pairNormal(filled[0][a][b], filled[1][a][b])
			sum[1] += pairNormal(filled[a][0][b], filled[a][1][b])
			sum[2] += pairNormal(filled[a][b][0], filled[a][b][1])
		}
	}
	l := math.Sqrt(sum[0]*sum[0] + sum[1]*sum[1] + sum[2]*sum[2])
	if l == 0 {
		return ambiguousNormal
	}
	return mgl32.Vec3{float32(sum[0] / l), float32(sum[1] / l), float32(sum[2] / l)}
}

// pairNormal is +1 when the lower voxel is filled and the upper empty, -1
// for the reverse and 0 otherwise.
func pairNormal(lower, upper bool) float64 {
	switch {
	case lower && !upper:
		return 1
	case upper && !lower:
		return -1
	}
	return 0
}
