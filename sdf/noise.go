package sdf

import (
	"encoding/binary"
	"math"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

// NewNoise returns the gradient noise source used by every noise node.
func NewNoise(seed uint32) opensimplex.Noise32 {
	return opensimplex.New32(int64(seed))
}

// octaveOffset decorrelates successive fBm octaves sampled from one source.
var octaveOffset = mgl32.Vec3{19.19, 47.51, 31.73}

// FBM sums octaves of gradient noise with the given lacunarity and gain.
func FBM(noise opensimplex.Noise32, p mgl32.Vec3, octaves uint32, frequency, lacunarity, persistence float32) float32 {
	var sum float32
	amplitude := float32(1)
	f := frequency
	for o := uint32(0); o < octaves; o++ {
		q := p.Mul(f).Add(octaveOffset.Mul(float32(o)))
		sum += amplitude * noise.Eval3(q[0], q[1], q[2])
		f *= lacunarity
		amplitude *= persistence
	}
	return sum
}

// maxFBMAmplitude is the largest magnitude FBM can reach for unit-amplitude noise.
func maxFBMAmplitude(octaves uint32, persistence float32) float32 {
	if math.Abs(float64(persistence-1)) > 1e-6 {
		return (1 - float32(math.Pow(float64(persistence), float64(octaves)))) / (1 - persistence)
	}
	return float32(octaves)
}

// multiscaleRotation turns by 2π/φ around [1, 1, 1] between octaves to break
// up the regular sphere grid.
var multiscaleRotation = mgl32.Quat{W: -0.3623749, V: mgl32.Vec3{0.5381091, 0.5381091, 0.5381091}}

var cornerOffsets = [8][3]int32{
	{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {0, 1, 1},
	{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1},
}

type multiscaleParams struct {
	octaves                      uint32
	frequency                    float32
	persistence                  float32
	scaledInflation              float32
	scaledIntersectionSmoothness float32
	unionSmoothness              float32
	seed                         uint32
}

func newMultiscaleParams(n MultiscaleSphere) multiscaleParams {
	return multiscaleParams{
		octaves:                      n.Octaves,
		frequency:                    0.5 / n.MaxScale,
		persistence:                  n.Persistence,
		scaledInflation:              n.MaxScale * n.Inflation,
		scaledIntersectionSmoothness: n.MaxScale * n.IntersectionSmoothness,
		unionSmoothness:              n.UnionSmoothness,
		seed:                         n.Seed,
	}
}

func (m *multiscaleParams) domainExpansion() float32 {
	return m.scaledInflation + displacementDueToSmoothness(m.unionSmoothness)
}

func (m *multiscaleParams) modify(p mgl32.Vec3, d float32) float32 {
	parent := d
	position := p.Mul(m.frequency)
	scale := float32(1)
	for o := uint32(0); o < m.octaves; o++ {
		grid := scale * m.sphereGridDistance(position)
		intersected := SmoothIntersection(grid, parent-m.scaledInflation*scale, m.scaledIntersectionSmoothness*scale)
		parent = SmoothUnion(intersected, parent, m.unionSmoothness*scale)
		position = multiscaleRotation.Rotate(position.Mul(1 / m.persistence))
		scale *= m.persistence
	}
	return parent
}

func (m *multiscaleParams) sphereGridDistance(p mgl32.Vec3) float32 {
	cell := [3]int32{
		int32(math.Floor(float64(p[0]))),
		int32(math.Floor(float64(p[1]))),
		int32(math.Floor(float64(p[2]))),
	}
	offset := mgl32.Vec3{p[0] - float32(cell[0]), p[1] - float32(cell[1]), p[2] - float32(cell[2])}

	best := float32(math.Inf(1))
	for _, c := range cornerOffsets {
		corner := [3]int32{cell[0] + c[0], cell[1] + c[1], cell[2] + c[2]}
		d := offset.Sub(mgl32.Vec3{float32(c[0]), float32(c[1]), float32(c[2])}).Len() - m.cornerRadius(corner)
		best = min(best, d)
	}
	return best
}

// cornerRadius gives every grid corner a stable radius in [0, 0.5].
func (m *multiscaleParams) cornerRadius(corner [3]int32) float32 {
	const hashToRadius = 0.5 / float32(math.MaxUint32)
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[0:], m.seed)
	binary.LittleEndian.PutUint32(buf[4:], uint32(corner[0]))
	binary.LittleEndian.PutUint32(buf[8:], uint32(corner[1]))
	binary.LittleEndian.PutUint32(buf[12:], uint32(corner[2]))
	return hashToRadius * float32(uint32(xxhash.Sum64(buf[:])))
}

func displacementDueToSmoothness(smoothness float32) float32 {
	return 0.25 * smoothness
}

// softCombinePadding grows with both smoothness and the number of leaves
// blended beneath a combination node.
func softCombinePadding(smoothness float32, leafCount uint32) float32 {
	if leafCount < 2 {
		return 0
	}
	return displacementDueToSmoothness(smoothness) * float32(math.Log2(float64(leafCount)))
}
