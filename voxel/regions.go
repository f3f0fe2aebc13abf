package voxel

// regionKey identifies a local region: label 1 stands for the whole of a
// uniform chunk.
type regionKey struct {
	chunk int32
	label uint16
}

// regionGraph is a disjoint-set forest over local regions, kept in flat
// slices with keys interned through a map.
type regionGraph struct {
	index  map[regionKey]int32
	keys   []regionKey
	parent []int32
	rank   []uint8
}

func (g *regionGraph) reset() {
	if g.index == nil {
		g.index = make(map[regionKey]int32)
	} else {
		clear(g.index)
	}
	g.keys = g.keys[:0]
	g.parent = g.parent[:0]
	g.rank = g.rank[:0]
}

func (g *regionGraph) add(k regionKey) int32 {
	if id, ok := g.index[k]; ok {
		return id
	}
	id := int32(len(g.keys))
	g.index[k] = id
	g.keys = append(g.keys, k)
	g.parent = append(g.parent, id)
	g.rank = append(g.rank, 0)
	return id
}

func (g *regionGraph) find(x int32) int32 {
	root := x
	for g.parent[root] != root {
		root = g.parent[root]
	}
	for g.parent[x] != root {
		next := g.parent[x]
		g.parent[x] = root
		x = next
	}
	return root
}

func (g *regionGraph) union(a, b int32) {
	ra, rb := g.find(a), g.find(b)
	if ra == rb {
		return
	}
	switch {
	case g.rank[ra] < g.rank[rb]:
		g.parent[ra] = rb
	case g.rank[ra] > g.rank[rb]:
		g.parent[rb] = ra
	default:
		g.parent[rb] = ra
		g.rank[ra]++
	}
}

// resolveRegions rebuilds the region forest from the local labels of every
// chunk and unions regions across every shared face. Each face is visited
// once, from its lower chunk.
func (o *ChunkedVoxelObject) resolveRegions() {
	g := &o.regions
	g.reset()
	o.forEachOccupiedChunk(func(ci int, _ [3]int) {
		c := &o.chunks[ci]
		if c.kind == chunkUniform {
			g.add(regionKey{chunk: int32(ci), label: 1})
			return
		}
		for l := 1; l <= c.data.regionCount; l++ {
			g.add(regionKey{chunk: int32(ci), label: uint16(l)})
		}
	})

	full := newFaceMask(o.chunkSize)
	full.fill(o.chunkSize)
	o.forEachOccupiedChunk(func(ci int, c [3]int) {
		for _, f := range [3]int{faceXUp, faceYUp, faceZUp} {
			nb := o.neighborChunk(c, f)
			if nb < 0 || o.chunks[nb].kind == chunkEmpty {
				continue
			}
			o.stitchFace(ci, nb, f, full)
		}
	})
}

func (o *ChunkedVoxelObject) stitchFace(a, b, f int, full faceMask) {
	n := o.chunkSize
	ca, cb := &o.chunks[a], &o.chunks[b]
	maskA, maskB := full, full
	if ca.kind == chunkNonUniform {
		maskA = ca.data.faces[f]
	}
	if cb.kind == chunkNonUniform {
		maskB = cb.data.faces[oppositeFace(f)]
	}
	if maskA.isZero() || maskB.isZero() {
		return
	}
	g := &o.regions
	axis := faceAxis(f)
	layerA, layerB := faceLayer(f, n), faceLayer(oppositeFace(f), n)
	lastA, lastB := uint16(0), uint16(0)
	forEachCommon(maskA, maskB, func(bit int) {
		la, lb := uint16(1), uint16(1)
		if ca.kind == chunkNonUniform {
			la = ca.data.regions[o.localIndex(planeVoxel(axis, layerA, bit, n))]
		}
		if cb.kind == chunkNonUniform {
			lb = cb.data.regions[o.localIndex(planeVoxel(axis, layerB, bit, n))]
		}
		if la == lastA && lb == lastB {
			return
		}
		lastA, lastB = la, lb
		g.union(g.index[regionKey{chunk: int32(a), label: la}], g.index[regionKey{chunk: int32(b), label: lb}])
	})
}

// regionNode returns the forest node of the non-empty voxel at idx.
func (o *ChunkedVoxelObject) regionNode(idx [3]int) (int32, bool) {
	v := o.Get(idx[0], idx[1], idx[2])
	if v == Empty {
		return 0, false
	}
	n := o.chunkSize
	ci := o.chunkIndex([3]int{idx[0] / n, idx[1] / n, idx[2] / n})
	label := uint16(1)
	if c := &o.chunks[ci]; c.kind == chunkNonUniform {
		label = c.data.regions[o.localIndex([3]int{idx[0] % n, idx[1] % n, idx[2] % n})]
	}
	id, ok := o.regions.index[regionKey{chunk: int32(ci), label: label}]
	return id, ok
}

// SameRegion reports whether two non-empty voxels are connected through a
// 6-connected path of non-empty voxels. Requires refreshed derived state.
func (o *ChunkedVoxelObject) SameRegion(a, b [3]int) bool {
	o.requireFresh()
	na, okA := o.regionNode(a)
	nb, okB := o.regionNode(b)
	return okA && okB && o.regions.find(na) == o.regions.find(nb)
}

// CountRegions returns the number of connected pieces of the object.
func (o *ChunkedVoxelObject) CountRegions() int {
	o.requireFresh()
	count := 0
	for i := range o.regions.keys {
		if o.regions.find(int32(i)) == int32(i) {
			count++
		}
	}
	return count
}

// component is one connected piece: its forest nodes ordered by chunk.
type component struct {
	root       int32
	nodes      []regionKey
	chunkCount int
}

// components groups the forest nodes by root, in order of first appearance.
func (o *ChunkedVoxelObject) components() []*component {
	g := &o.regions
	byRoot := make(map[int32]*component)
	var out []*component
	for i, k := range g.keys {
		root := g.find(int32(i))
		comp, ok := byRoot[root]
		if !ok {
			comp = &component{root: root}
			byRoot[root] = comp
			out = append(out, comp)
		}
		if len(comp.nodes) == 0 || comp.nodes[len(comp.nodes)-1].chunk != k.chunk {
			comp.chunkCount++
		}
		comp.nodes = append(comp.nodes, k)
	}
	return out
}
