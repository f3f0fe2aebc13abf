package voxel

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/config"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// SuperchunkSize is the side, in chunks, of the tiles used to skip
// unoccupied address space. Chunk grid dimensions are multiples of it.
const SuperchunkSize = 2

// NonEmptyVoxelThreshold is the voxel count below which an object is
// treated as empty.
const NonEmptyVoxelThreshold = 8

// IndexRange is the half-open range [Start, End).
type IndexRange struct {
	Start, End int
}

func (r IndexRange) Len() int {
	return max(r.End-r.Start, 0)
}

// AABB is an axis-aligned box in object space.
type AABB struct {
	Min, Max mgl64.Vec3
}

type Sphere struct {
	Center mgl64.Vec3
	Radius float64
}

// ChunkedVoxelObject is a 3D grid of chunks. A voxel with grid indices
// (i, j, k) occupies [i, i+1]·extent along x, and so on.
type ChunkedVoxelObject struct {
	chunkSize   int
	shift       uint
	voxelExtent float64
	chunkCounts [3]int
	chunks      []chunk

	superCounts   [3]int
	superOccupied []int32

	dirty       chunkSet
	meshInvalid chunkSet
	regions     regionGraph
	// regionsStale forces a forest rebuild even without dirty chunks.
	regionsStale bool

	// originOffset is the voxel index, in the frame of the object this one
	// was generated as, of this object's voxel (0, 0, 0).
	originOffset [3]int
	inertia      *InertialPropertyManager
	damage       map[int]float64
}

type chunkSet struct {
	member []bool
	list   []int
}

func newChunkSet(n int) chunkSet {
	return chunkSet{member: make([]bool, n)}
}

func (s *chunkSet) add(i int) {
	if !s.member[i] {
		s.member[i] = true
		s.list = append(s.list, i)
	}
}

func (s *chunkSet) clear() {
	for _, i := range s.list {
		s.member[i] = false
	}
	s.list = s.list[:0]
}

func validateChunkSize(n int) error {
	if n < config.MinChunkSize || n > config.MaxChunkSize || n&(n-1) != 0 {
		return fmt.Errorf("%w: chunk size must be a power of two in [%d, %d] (got %d)",
			voxerr.ErrConfigurationInvalid, config.MinChunkSize, config.MaxChunkSize, n)
	}
	return nil
}

// NewChunkedVoxelObject returns an object whose chunks are all empty. Chunk
// counts are rounded up to whole superchunks.
func NewChunkedVoxelObject(chunkSize int, voxelExtent float64, chunkCounts [3]int) (*ChunkedVoxelObject, error) {
	if err := validateChunkSize(chunkSize); err != nil {
		return nil, err
	}
	if !(voxelExtent > 0) {
		return nil, fmt.Errorf("%w: voxel extent must be positive (got %g)", voxerr.ErrConfigurationInvalid, voxelExtent)
	}
	o := &ChunkedVoxelObject{
		chunkSize:   chunkSize,
		shift:       uint(bits.TrailingZeros(uint(chunkSize))),
		voxelExtent: voxelExtent,
		damage:      make(map[int]float64),
	}
	total, superTotal := 1, 1
	for a := 0; a < 3; a++ {
		supers := max(1, (chunkCounts[a]+SuperchunkSize-1)/SuperchunkSize)
		o.superCounts[a] = supers
		o.chunkCounts[a] = supers * SuperchunkSize
		total *= o.chunkCounts[a]
		superTotal *= supers
	}
	o.chunks = make([]chunk, total)
	o.superOccupied = make([]int32, superTotal)
	o.dirty = newChunkSet(total)
	o.meshInvalid = newChunkSet(total)
	o.regions.reset()
	return o, nil
}

func (o *ChunkedVoxelObject) ChunkSize() int {
	return o.chunkSize
}

func (o *ChunkedVoxelObject) VoxelExtent() float64 {
	return o.voxelExtent
}

func (o *ChunkedVoxelObject) ChunkCounts() [3]int {
	return o.chunkCounts
}

func (o *ChunkedVoxelObject) ChunkCount() int {
	return len(o.chunks)
}

// VoxelCounts is the size of the full voxel grid addressed by the chunks.
func (o *ChunkedVoxelObject) VoxelCounts() [3]int {
	n := o.chunkSize
	return [3]int{o.chunkCounts[0] * n, o.chunkCounts[1] * n, o.chunkCounts[2] * n}
}

// OriginOffset is the grid index, in the frame of the object this one was
// split from, of this object's voxel (0, 0, 0).
func (o *ChunkedVoxelObject) OriginOffset() [3]int {
	return o.originOffset
}

func (o *ChunkedVoxelObject) chunkIndex(c [3]int) int {
	return (c[0]*o.chunkCounts[1]+c[1])*o.chunkCounts[2] + c[2]
}

func (o *ChunkedVoxelObject) chunkCoords(idx int) [3]int {
	cz := idx % o.chunkCounts[2]
	idx /= o.chunkCounts[2]
	return [3]int{idx / o.chunkCounts[1], idx % o.chunkCounts[1], cz}
}

func (o *ChunkedVoxelObject) chunkInBounds(c [3]int) bool {
	return c[0] >= 0 && c[1] >= 0 && c[2] >= 0 &&
		c[0] < o.chunkCounts[0] && c[1] < o.chunkCounts[1] && c[2] < o.chunkCounts[2]
}

// neighborChunk returns the index of the chunk across face f, or -1.
func (o *ChunkedVoxelObject) neighborChunk(c [3]int, f int) int {
	s := faceSteps[f]
	nb := [3]int{c[0] + s[0], c[1] + s[1], c[2] + s[2]}
	if !o.chunkInBounds(nb) {
		return -1
	}
	return o.chunkIndex(nb)
}

func (o *ChunkedVoxelObject) localIndex(l [3]int) int {
	n := o.chunkSize
	return (l[0]*n+l[1])*n + l[2]
}

func (o *ChunkedVoxelObject) superIndex(c [3]int) int {
	return ((c[0]/SuperchunkSize)*o.superCounts[1]+c[1]/SuperchunkSize)*o.superCounts[2] + c[2]/SuperchunkSize
}

// setChunk replaces a chunk and keeps the superchunk occupancy current.
func (o *ChunkedVoxelObject) setChunk(idx int, c chunk) {
	wasEmpty := o.chunks[idx].kind == chunkEmpty
	o.chunks[idx] = c
	isEmpty := c.kind == chunkEmpty
	if wasEmpty != isEmpty {
		s := o.superIndex(o.chunkCoords(idx))
		if isEmpty {
			o.superOccupied[s]--
		} else {
			o.superOccupied[s]++
		}
	}
}

func (o *ChunkedVoxelObject) recountOccupancy() {
	for i := range o.superOccupied {
		o.superOccupied[i] = 0
	}
	for idx := range o.chunks {
		if o.chunks[idx].kind != chunkEmpty {
			o.superOccupied[o.superIndex(o.chunkCoords(idx))]++
		}
	}
}

// forEachOccupiedChunk visits the non-empty chunks superchunk by
// superchunk, skipping superchunks without any.
func (o *ChunkedVoxelObject) forEachOccupiedChunk(f func(idx int, c [3]int)) {
	for si := 0; si < o.superCounts[0]; si++ {
		for sj := 0; sj < o.superCounts[1]; sj++ {
			for sk := 0; sk < o.superCounts[2]; sk++ {
				if o.superOccupied[(si*o.superCounts[1]+sj)*o.superCounts[2]+sk] == 0 {
					continue
				}
				for di := 0; di < SuperchunkSize; di++ {
					for dj := 0; dj < SuperchunkSize; dj++ {
						for dk := 0; dk < SuperchunkSize; dk++ {
							c := [3]int{si*SuperchunkSize + di, sj*SuperchunkSize + dj, sk*SuperchunkSize + dk}
							idx := o.chunkIndex(c)
							if o.chunks[idx].kind != chunkEmpty {
								f(idx, c)
							}
						}
					}
				}
			}
		}
	}
}

// Get returns the voxel at grid indices (i, j, k), or Empty outside the grid.
func (o *ChunkedVoxelObject) Get(i, j, k int) Voxel {
	if i < 0 || j < 0 || k < 0 {
		return Empty
	}
	s := o.shift
	c := [3]int{i >> s, j >> s, k >> s}
	if c[0] >= o.chunkCounts[0] || c[1] >= o.chunkCounts[1] || c[2] >= o.chunkCounts[2] {
		return Empty
	}
	ch := &o.chunks[o.chunkIndex(c)]
	switch ch.kind {
	case chunkEmpty:
		return Empty
	case chunkUniform:
		return ch.uniform
	}
	m := o.chunkSize - 1
	return ch.data.voxels[o.localIndex([3]int{i & m, j & m, k & m})]
}

// VoxelAtCoords returns the voxel containing the object space point.
func (o *ChunkedVoxelObject) VoxelAtCoords(x, y, z float64) Voxel {
	e := o.voxelExtent
	return o.Get(int(math.Floor(x/e)), int(math.Floor(y/e)), int(math.Floor(z/e)))
}

func (o *ChunkedVoxelObject) voxelCenter(idx [3]int) mgl64.Vec3 {
	e := o.voxelExtent
	return mgl64.Vec3{(float64(idx[0]) + 0.5) * e, (float64(idx[1]) + 0.5) * e, (float64(idx[2]) + 0.5) * e}
}

func (o *ChunkedVoxelObject) linearVoxelIndex(idx [3]int) int {
	counts := o.VoxelCounts()
	return (idx[0]*counts[1]+idx[1])*counts[2] + idx[2]
}

// ChunkKindCounts returns the number of empty, uniform and non-uniform chunks.
func (o *ChunkedVoxelObject) ChunkKindCounts() (empty, uniform, nonUniform int) {
	for i := range o.chunks {
		switch o.chunks[i].kind {
		case chunkEmpty:
			empty++
		case chunkUniform:
			uniform++
		default:
			nonUniform++
		}
	}
	return empty, uniform, nonUniform
}

// NonEmptyVoxelCount counts the stored non-empty voxels.
func (o *ChunkedVoxelObject) NonEmptyVoxelCount() int {
	return o.countNonEmpty(math.MaxInt)
}

func (o *ChunkedVoxelObject) countNonEmpty(limit int) int {
	full := o.chunkSize * o.chunkSize * o.chunkSize
	count := 0
	o.forEachOccupiedChunk(func(idx int, _ [3]int) {
		if count >= limit {
			return
		}
		c := &o.chunks[idx]
		if c.kind == chunkUniform {
			count += full
			return
		}
		for _, v := range c.data.voxels {
			if v != Empty {
				count++
			}
		}
	})
	return count
}

func (o *ChunkedVoxelObject) ContainsOnlyEmptyVoxels() bool {
	for _, n := range o.superOccupied {
		if n != 0 {
			return false
		}
	}
	return true
}

// IsEffectivelyEmpty reports whether fewer than NonEmptyVoxelThreshold
// voxels remain.
func (o *ChunkedVoxelObject) IsEffectivelyEmpty() bool {
	return o.countNonEmpty(NonEmptyVoxelThreshold) < NonEmptyVoxelThreshold
}

// OccupiedChunkRanges is the tight chunk index range around non-empty chunks.
// ok is false for an empty object.
func (o *ChunkedVoxelObject) OccupiedChunkRanges() (r [3]IndexRange, ok bool) {
	lo := [3]int{math.MaxInt, math.MaxInt, math.MaxInt}
	hi := [3]int{-1, -1, -1}
	o.forEachOccupiedChunk(func(_ int, c [3]int) {
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], c[a])
			hi[a] = max(hi[a], c[a])
		}
	})
	if hi[0] < 0 {
		return r, false
	}
	for a := 0; a < 3; a++ {
		r[a] = IndexRange{Start: lo[a], End: hi[a] + 1}
	}
	return r, true
}

// OccupiedVoxelRanges is the tight voxel index range around non-empty voxels.
func (o *ChunkedVoxelObject) OccupiedVoxelRanges() (r [3]IndexRange, ok bool) {
	n := o.chunkSize
	lo := [3]int{math.MaxInt, math.MaxInt, math.MaxInt}
	hi := [3]int{-1, -1, -1}
	include := func(g [3]int) {
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], g[a])
			hi[a] = max(hi[a], g[a])
		}
	}
	o.forEachOccupiedChunk(func(idx int, c [3]int) {
		base := [3]int{c[0] * n, c[1] * n, c[2] * n}
		ch := &o.chunks[idx]
		if ch.kind == chunkUniform {
			include(base)
			include([3]int{base[0] + n - 1, base[1] + n - 1, base[2] + n - 1})
			return
		}
		li := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					if ch.data.voxels[li] != Empty {
						include([3]int{base[0] + i, base[1] + j, base[2] + k})
					}
					li++
				}
			}
		}
	})
	if hi[0] < 0 {
		return r, false
	}
	for a := 0; a < 3; a++ {
		r[a] = IndexRange{Start: lo[a], End: hi[a] + 1}
	}
	return r, true
}

// AABB bounds the non-empty voxels in object space.
func (o *ChunkedVoxelObject) AABB() (AABB, bool) {
	r, ok := o.OccupiedVoxelRanges()
	if !ok {
		return AABB{}, false
	}
	e := o.voxelExtent
	return AABB{
		Min: mgl64.Vec3{float64(r[0].Start) * e, float64(r[1].Start) * e, float64(r[2].Start) * e},
		Max: mgl64.Vec3{float64(r[0].End) * e, float64(r[1].End) * e, float64(r[2].End) * e},
	}, true
}

// BoundingSphere encloses the AABB of the non-empty voxels.
func (o *ChunkedVoxelObject) BoundingSphere() (Sphere, bool) {
	box, ok := o.AABB()
	if !ok {
		return Sphere{}, false
	}
	return Sphere{Center: box.Min.Add(box.Max).Mul(0.5), Radius: 0.5 * box.Max.Sub(box.Min).Len()}, true
}

// IntersectsSphere reports whether any non-empty voxel center lies within s.
func (o *ChunkedVoxelObject) IntersectsSphere(s Sphere) bool {
	lo, hi, ok := o.voxelRangeWithin(s.bounds())
	if !ok {
		return false
	}
	r2 := s.Radius * s.Radius
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				if o.Get(i, j, k) == Empty {
					continue
				}
				if o.voxelCenter([3]int{i, j, k}).Sub(s.Center).LenSqr() <= r2 {
					return true
				}
			}
		}
	}
	return false
}

// voxelRangeWithin returns the inclusive grid index range of voxels whose
// centers lie in the box [lower, upper].
func (o *ChunkedVoxelObject) voxelRangeWithin(lower, upper mgl64.Vec3) (lo, hi [3]int, ok bool) {
	e := o.voxelExtent
	counts := o.VoxelCounts()
	for a := 0; a < 3; a++ {
		l := math.Ceil(lower[a]/e - 0.5)
		h := math.Floor(upper[a]/e - 0.5)
		if h < 0 || l > float64(counts[a]-1) || l > h {
			return lo, hi, false
		}
		lo[a] = max(0, int(l))
		hi[a] = min(counts[a]-1, int(h))
	}
	return lo, hi, true
}

// ForEachExposedChunk visits the non-empty chunks with at least one face
// not fully covered by the neighboring chunk.
func (o *ChunkedVoxelObject) ForEachExposedChunk(visit func(c [3]int)) {
	o.forEachOccupiedChunk(func(idx int, c [3]int) {
		if o.chunks[idx].kind == chunkNonUniform {
			visit(c)
			return
		}
		for f := 0; f < 6; f++ {
			nb := o.neighborChunk(c, f)
			if nb < 0 || o.chunks[nb].kind != chunkUniform {
				visit(c)
				return
			}
		}
	})
}

// faceSnapshot copies the current face masks of a chunk.
func (o *ChunkedVoxelObject) faceSnapshot(idx int) [6]faceMask {
	var s [6]faceMask
	c := &o.chunks[idx]
	for f := range s {
		s[f] = newFaceMask(o.chunkSize)
		switch c.kind {
		case chunkUniform:
			s[f].fill(o.chunkSize)
		case chunkNonUniform:
			copy(s[f], c.data.faces[f])
		}
	}
	return s
}

// neighborCovers reports whether the voxel across face f of local voxel l
// in chunk c, which lies on that face, is non-empty.
func (o *ChunkedVoxelObject) neighborCovers(c [3]int, f int, l [3]int) bool {
	nb := o.neighborChunk(c, f)
	if nb < 0 {
		return false
	}
	switch ch := &o.chunks[nb]; ch.kind {
	case chunkEmpty:
		return false
	case chunkUniform:
		return true
	default:
		return ch.data.faces[oppositeFace(f)].has(planeBit(faceAxis(f), l, o.chunkSize))
	}
}

// exposedFaces returns a bit per face of the non-empty local voxel l whose
// neighbor is empty. Requires up to date derived state.
func (o *ChunkedVoxelObject) exposedFaces(c [3]int, ch *chunk, l [3]int, li int) uint8 {
	n := o.chunkSize
	var exposed uint8
	for f := 0; f < 6; f++ {
		axis := faceAxis(f)
		onFace := l[axis] == faceLayer(f, n)
		if !onFace {
			if ch.kind == chunkNonUniform && ch.data.adjacency[li]&(1<<f) == 0 {
				exposed |= 1 << f
			}
			continue
		}
		if !o.neighborCovers(c, f, l) {
			exposed |= 1 << f
		}
	}
	return exposed
}

// ForEachSurfaceVoxel visits every non-empty voxel with at least one empty
// 6-neighbor, with a bit per exposed face. Interior voxels of uniform
// chunks are never touched.
func (o *ChunkedVoxelObject) ForEachSurfaceVoxel(visit func(idx [3]int, v Voxel, exposed uint8)) {
	o.requireFresh()
	o.forEachOccupiedChunk(func(ci int, c [3]int) {
		o.forEachSurfaceVoxelInChunk(ci, c, visit)
	})
}

func (o *ChunkedVoxelObject) forEachSurfaceVoxelInChunk(ci int, c [3]int, visit func(idx [3]int, v Voxel, exposed uint8)) {
	n := o.chunkSize
	ch := &o.chunks[ci]
	base := [3]int{c[0] * n, c[1] * n, c[2] * n}
	switch ch.kind {
	case chunkEmpty:
		return
	case chunkUniform:
		// Only voxels on an uncovered boundary face can be exposed. Voxels on
		// several faces are reported once, from the first face that finds them.
		for f := 0; f < 6; f++ {
			nb := o.neighborChunk(c, f)
			if nb >= 0 && o.chunks[nb].kind == chunkUniform {
				continue
			}
			axis, layer := faceAxis(f), faceLayer(f, n)
			for bit := 0; bit < n*n; bit++ {
				l := planeVoxel(axis, layer, bit, n)
				exposed := o.exposedFaces(c, ch, l, 0)
				if exposed&(1<<f) == 0 || exposed&(1<<f-1) != 0 {
					continue
				}
				visit([3]int{base[0] + l[0], base[1] + l[1], base[2] + l[2]}, ch.uniform, exposed)
			}
		}
	default:
		li := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					if v := ch.data.voxels[li]; v != Empty {
						l := [3]int{i, j, k}
						if exposed := o.exposedFaces(c, ch, l, li); exposed != 0 {
							visit([3]int{base[0] + i, base[1] + j, base[2] + k}, v, exposed)
						}
					}
					li++
				}
			}
		}
	}
}

func (o *ChunkedVoxelObject) requireFresh() {
	if len(o.dirty.list) != 0 || o.regionsStale {
		panic("voxel: derived chunk state is stale; refresh before querying surfaces")
	}
}

// InvalidatedMeshChunkIndices lists chunks whose mesh must be rebuilt.
func (o *ChunkedVoxelObject) InvalidatedMeshChunkIndices() []int {
	return o.meshInvalid.list
}

func (o *ChunkedVoxelObject) MarkChunkMeshesSynchronized() {
	o.meshInvalid.clear()
}

func (o *ChunkedVoxelObject) HasDirtyChunks() bool {
	return len(o.dirty.list) != 0
}
