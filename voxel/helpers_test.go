package voxel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// funcGenerator fills a grid from a per-voxel function.
type funcGenerator struct {
	extent float64
	shape  [3]int
	fill   func(i, j, k int) Voxel
}

func (g funcGenerator) VoxelExtent() float64 { return g.extent }
func (g funcGenerator) GridShape() [3]int    { return g.shape }

func (g funcGenerator) GenerateChunk(origin [3]int, size int, voxels []Voxel) {
	idx := 0
	for i := origin[0]; i < origin[0]+size; i++ {
		for j := origin[1]; j < origin[1]+size; j++ {
			for k := origin[2]; k < origin[2]+size; k++ {
				v := Empty
				if i < g.shape[0] && j < g.shape[1] && k < g.shape[2] {
					v = g.fill(i, j, k)
				}
				voxels[idx] = v
				idx++
			}
		}
	}
}

func generateFunc(t *testing.T, chunkSize int, shape [3]int, fill func(i, j, k int) Voxel) *ChunkedVoxelObject {
	t.Helper()
	o, err := Generate(funcGenerator{extent: 1, shape: shape, fill: fill}, chunkSize)
	require.NoError(t, err)
	return o
}

func solid(v Voxel) func(i, j, k int) Voxel {
	return func(int, int, int) Voxel { return v }
}

// bruteComponents labels the 6-connected components of the non-empty voxels
// by breadth-first search over Get.
func bruteComponents(o *ChunkedVoxelObject) (map[[3]int]int, int) {
	counts := o.VoxelCounts()
	labels := make(map[[3]int]int)
	next := 0
	for i := 0; i < counts[0]; i++ {
		for j := 0; j < counts[1]; j++ {
			for k := 0; k < counts[2]; k++ {
				seed := [3]int{i, j, k}
				if o.Get(i, j, k) == Empty {
					continue
				}
				if _, ok := labels[seed]; ok {
					continue
				}
				next++
				labels[seed] = next
				queue := [][3]int{seed}
				for len(queue) > 0 {
					p := queue[0]
					queue = queue[1:]
					for _, s := range faceSteps {
						q := [3]int{p[0] + s[0], p[1] + s[1], p[2] + s[2]}
						if o.Get(q[0], q[1], q[2]) == Empty {
							continue
						}
						if _, ok := labels[q]; !ok {
							labels[q] = next
							queue = append(queue, q)
						}
					}
				}
			}
		}
	}
	return labels, next
}

// exposedFaceCount counts non-empty voxel faces with an empty neighbor.
func exposedFaceCount(o *ChunkedVoxelObject) int {
	counts := o.VoxelCounts()
	total := 0
	for i := 0; i < counts[0]; i++ {
		for j := 0; j < counts[1]; j++ {
			for k := 0; k < counts[2]; k++ {
				if o.Get(i, j, k) == Empty {
					continue
				}
				for _, s := range faceSteps {
					if o.Get(i+s[0], j+s[1], k+s[2]) == Empty {
						total++
					}
				}
			}
		}
	}
	return total
}

// checkCanonical asserts storage canonicality and face mask consistency.
func checkCanonical(t *testing.T, o *ChunkedVoxelObject) {
	t.Helper()
	n := o.chunkSize
	for ci := range o.chunks {
		c := o.chunkCoords(ci)
		ch := &o.chunks[ci]
		nonEmpty := 0
		first := o.Get(c[0]*n, c[1]*n, c[2]*n)
		uniform := true
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					v := o.Get(c[0]*n+i, c[1]*n+j, c[2]*n+k)
					if v != Empty {
						nonEmpty++
					}
					if v != first {
						uniform = false
					}
				}
			}
		}
		require.Equal(t, nonEmpty == 0, ch.kind == chunkEmpty, "chunk %v", c)
		require.Equal(t, uniform && nonEmpty > 0, ch.kind == chunkUniform, "chunk %v", c)
		if ch.kind != chunkNonUniform {
			continue
		}
		for f := 0; f < 6; f++ {
			axis, layer := faceAxis(f), faceLayer(f, n)
			for bit := 0; bit < n*n; bit++ {
				l := planeVoxel(axis, layer, bit, n)
				filled := o.Get(c[0]*n+l[0], c[1]*n+l[1], c[2]*n+l[2]) != Empty
				require.Equal(t, filled, ch.data.faces[f].has(bit), "chunk %v face %d bit %d", c, f, bit)
			}
		}
	}
}
