package voxel

import "math/bits"

type chunkKind uint8

const (
	chunkEmpty chunkKind = iota
	chunkUniform
	chunkNonUniform
)

func (k chunkKind) String() string {
	switch k {
	case chunkEmpty:
		return "empty"
	case chunkUniform:
		return "uniform"
	default:
		return "non-uniform"
	}
}

// chunk is one N³ block of an object. Only non-uniform chunks carry data.
type chunk struct {
	kind    chunkKind
	uniform Voxel
	data    *chunkData
}

// chunkData holds the dense voxels of a non-uniform chunk together with the
// state derived from them. Voxels are stored at (i*N+j)*N+k.
type chunkData struct {
	voxels []Voxel
	faces  [6]faceMask
	// adjacency has bit f set when the in-chunk neighbor across face f is non-empty.
	adjacency   []uint8
	regions     []uint16
	regionCount int
	nonEmpty    int
}

func newChunkData(n int, fill Voxel) *chunkData {
	d := &chunkData{voxels: make([]Voxel, n*n*n)}
	for f := range d.faces {
		d.faces[f] = newFaceMask(n)
	}
	if fill != Empty {
		for i := range d.voxels {
			d.voxels[i] = fill
		}
		for f := range d.faces {
			d.faces[f].fill(n)
		}
		d.nonEmpty = len(d.voxels)
	}
	return d
}

// Faces are ordered -x, +x, -y, +y, -z, +z.
const (
	faceXDn = iota
	faceXUp
	faceYDn
	faceYUp
	faceZDn
	faceZUp
)

var faceSteps = [6][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}}

func faceAxis(f int) int     { return f >> 1 }
func faceIsUpper(f int) bool { return f&1 == 1 }
func oppositeFace(f int) int { return f ^ 1 }

// faceLayer is the local coordinate along the face axis of the voxels on face f.
func faceLayer(f, n int) int {
	if faceIsUpper(f) {
		return n - 1
	}
	return 0
}

// planeBit is the face mask bit of local voxel l on a face normal to axis.
func planeBit(axis int, l [3]int, n int) int {
	switch axis {
	case 0:
		return l[1]*n + l[2]
	case 1:
		return l[0]*n + l[2]
	default:
		return l[0]*n + l[1]
	}
}

// planeVoxel is the inverse of planeBit for the given layer.
func planeVoxel(axis, layer, bit, n int) [3]int {
	u, v := bit/n, bit%n
	switch axis {
	case 0:
		return [3]int{layer, u, v}
	case 1:
		return [3]int{u, layer, v}
	default:
		return [3]int{u, v, layer}
	}
}

// faceMask has one bit per voxel of an N×N chunk face.
type faceMask []uint64

func newFaceMask(n int) faceMask {
	return make(faceMask, (n*n+63)/64)
}

func (m faceMask) set(bit int)      { m[bit>>6] |= 1 << (bit & 63) }
func (m faceMask) has(bit int) bool { return m[bit>>6]&(1<<(bit&63)) != 0 }

func (m faceMask) clear() {
	for i := range m {
		m[i] = 0
	}
}

func (m faceMask) fill(n int) {
	total := n * n
	for i := range m {
		m[i] = ^uint64(0)
	}
	if rem := total & 63; rem != 0 {
		m[len(m)-1] = 1<<rem - 1
	}
}

func (m faceMask) isZero() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

func (m faceMask) count() int {
	c := 0
	for _, w := range m {
		c += bits.OnesCount64(w)
	}
	return c
}

func (m faceMask) equal(o faceMask) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if m[i] != o[i] {
			return false
		}
	}
	return true
}

// forEachCommon calls f for every bit set in both masks.
func forEachCommon(a, b faceMask, f func(bit int)) {
	for w := range a {
		word := a[w] & b[w]
		for word != 0 {
			t := bits.TrailingZeros64(word)
			f(w<<6 + t)
			word &= word - 1
		}
	}
}

// computeFaces rebuilds the six face masks from the voxel buffer.
func (d *chunkData) computeFaces(n int) {
	for f := range d.faces {
		mask := d.faces[f]
		mask.clear()
		axis, layer := faceAxis(f), faceLayer(f, n)
		for bit := 0; bit < n*n; bit++ {
			l := planeVoxel(axis, layer, bit, n)
			if d.voxels[(l[0]*n+l[1])*n+l[2]] != Empty {
				mask.set(bit)
			}
		}
	}
}

// computeAdjacency rebuilds the in-chunk neighbor bits of every voxel.
func (d *chunkData) computeAdjacency(n int) {
	if len(d.adjacency) != len(d.voxels) {
		d.adjacency = make([]uint8, len(d.voxels))
	}
	strides := [3]int{n * n, n, 1}
	idx := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				var adj uint8
				if d.voxels[idx] != Empty {
					l := [3]int{i, j, k}
					for f := 0; f < 6; f++ {
						axis := faceAxis(f)
						if faceIsUpper(f) {
							if l[axis] < n-1 && d.voxels[idx+strides[axis]] != Empty {
								adj |= 1 << f
							}
						} else if l[axis] > 0 && d.voxels[idx-strides[axis]] != Empty {
							adj |= 1 << f
						}
					}
				}
				d.adjacency[idx] = adj
				idx++
			}
		}
	}
}

// labelRegions assigns every non-empty voxel the label of its 6-connected
// component within the chunk, numbering components from 1 in scan order.
// Requires up to date adjacency.
func (d *chunkData) labelRegions(n int, queue []int32) []int32 {
	if len(d.regions) != len(d.voxels) {
		d.regions = make([]uint16, len(d.voxels))
	} else {
		for i := range d.regions {
			d.regions[i] = 0
		}
	}
	strides := [6]int{-n * n, n * n, -n, n, -1, 1}
	label := uint16(0)
	nonEmpty := 0
	for seed, v := range d.voxels {
		if v == Empty {
			continue
		}
		nonEmpty++
		if d.regions[seed] != 0 {
			continue
		}
		label++
		d.regions[seed] = label
		queue = append(queue[:0], int32(seed))
		for len(queue) > 0 {
			idx := int(queue[len(queue)-1])
			queue = queue[:len(queue)-1]
			adj := d.adjacency[idx]
			for f := 0; f < 6; f++ {
				if adj&(1<<f) == 0 {
					continue
				}
				nb := idx + strides[f]
				if d.regions[nb] == 0 {
					d.regions[nb] = label
					queue = append(queue, int32(nb))
				}
			}
		}
	}
	d.regionCount = int(label)
	d.nonEmpty = nonEmpty
	return queue
}

// refresh recomputes all derived state in dependency order.
func (d *chunkData) refresh(n int, queue []int32) []int32 {
	d.computeFaces(n)
	d.computeAdjacency(n)
	return d.labelRegions(n, queue)
}
