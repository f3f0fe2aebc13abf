package voxel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/ojrac/opensimplex-go"

	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/sdf"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// Generator produces the voxels of an object chunk by chunk. Chunks are
// independent, so GenerateChunk must be safe for concurrent use.
type Generator interface {
	VoxelExtent() float64
	// GridShape is the number of voxels along each axis.
	GridShape() [3]int
	// GenerateChunk overwrites voxels, of length size³ and indexed by
	// (i*size+j)*size+k, with the voxels whose grid indices start at origin.
	GenerateChunk(origin [3]int, size int, voxels []Voxel)
}

// TypeGenerator picks the type of a non-empty voxel from its position.
type TypeGenerator interface {
	VoxelTypeAt(p mgl32.Vec3) VoxelType
}

// SameVoxelType gives every voxel one type.
type SameVoxelType struct {
	Type VoxelType
}

func (g SameVoxelType) VoxelTypeAt(mgl32.Vec3) VoxelType {
	return g.Type
}

func (g SameVoxelType) CandidateTypes() []VoxelType {
	return []VoxelType{g.Type}
}

// validateTypes checks every type a generator can return, when it lists
// them.
func validateTypes(types TypeGenerator) error {
	if types == nil {
		return fmt.Errorf("%w: missing voxel type generator", voxerr.ErrConfigurationInvalid)
	}
	lister, ok := types.(interface{ CandidateTypes() []VoxelType })
	if !ok {
		return nil
	}
	for _, t := range lister.CandidateTypes() {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GradientNoiseVoxelTypes samples 4D noise for every candidate type, with
// the type index as fourth coordinate, and picks the largest response.
type GradientNoiseVoxelTypes struct {
	types          []VoxelType
	noiseFrequency float32
	typeFrequency  float32
	noise          opensimplex.Noise32
}

func NewGradientNoiseVoxelTypes(types []VoxelType, noiseFrequency, typeFrequency float32, seed uint32) (*GradientNoiseVoxelTypes, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: gradient noise voxel types need at least one type", voxerr.ErrConfigurationInvalid)
	}
	for _, t := range types {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return &GradientNoiseVoxelTypes{
		types:          append([]VoxelType(nil), types...),
		noiseFrequency: noiseFrequency,
		typeFrequency:  typeFrequency,
		noise:          sdf.NewNoise(seed),
	}, nil
}

func (g *GradientNoiseVoxelTypes) CandidateTypes() []VoxelType {
	return g.types
}

func (g *GradientNoiseVoxelTypes) VoxelTypeAt(p mgl32.Vec3) VoxelType {
	q := p.Mul(g.noiseFrequency)
	best, bestValue := g.types[0], float32(math.Inf(-1))
	for i, t := range g.types {
		if v := g.noise.Eval4(q[0], q[1], q[2], float32(i)*g.typeFrequency); v > bestValue {
			best, bestValue = t, v
		}
	}
	return best
}

// SDFVoxelGenerator fills voxels whose centers have non-positive signed
// distance. Distances are in voxel units.
type SDFVoxelGenerator struct {
	voxelExtent float64
	sdf         *sdf.Generator
	types       TypeGenerator
	gridShape   [3]int
	// gridShift maps grid indices to root space: p = (i, j, k) - gridShift.
	gridShift   mgl32.Vec3
	modelToRoot mgl32.Mat4

	mu       sync.Mutex
	scratchs map[int]*sdf.ScratchPool
}

// NewSDFVoxelGenerator sizes the grid to the generator domain plus one empty
// voxel on every side, centered on the domain.
func NewSDFVoxelGenerator(voxelExtent float64, gen *sdf.Generator, types TypeGenerator) (*SDFVoxelGenerator, error) {
	if !(voxelExtent > 0) {
		return nil, fmt.Errorf("%w: voxel extent must be positive (got %g)", voxerr.ErrConfigurationInvalid, voxelExtent)
	}
	if err := validateTypes(types); err != nil {
		return nil, err
	}
	g := &SDFVoxelGenerator{
		voxelExtent: voxelExtent,
		sdf:         gen,
		types:       types,
		modelToRoot: mgl32.Ident4(),
		scratchs:    make(map[int]*sdf.ScratchPool),
	}
	if gen.IsEmpty() {
		return g, nil
	}
	domain := gen.Domain()
	ext, center := domain.Extents(), domain.Center()
	for a := 0; a < 3; a++ {
		g.gridShape[a] = int(math.Ceil(float64(ext[a]))) + 2
		g.gridShift[a] = 0.5*float32(g.gridShape[a]) - center[a] - 0.5
	}
	return g, nil
}

// WithModelToRoot applies an extra transform to grid positions before
// evaluation, as for an instanced object.
func (g *SDFVoxelGenerator) WithModelToRoot(m mgl32.Mat4) *SDFVoxelGenerator {
	g.modelToRoot = m
	return g
}

func (g *SDFVoxelGenerator) VoxelExtent() float64 { return g.voxelExtent }
func (g *SDFVoxelGenerator) GridShape() [3]int    { return g.gridShape }

// RootPosition returns the root space position of the center of voxel idx.
func (g *SDFVoxelGenerator) RootPosition(idx [3]int) mgl32.Vec3 {
	p := mgl32.Vec3{float32(idx[0]), float32(idx[1]), float32(idx[2])}.Sub(g.gridShift)
	return mgl32.TransformCoordinate(p, g.modelToRoot)
}

// RootOrigin is the object space position of the root space origin.
func (g *SDFVoxelGenerator) RootOrigin() mgl64.Vec3 {
	e := g.voxelExtent
	return mgl64.Vec3{
		(float64(g.gridShift[0]) + 0.5) * e,
		(float64(g.gridShift[1]) + 0.5) * e,
		(float64(g.gridShift[2]) + 0.5) * e,
	}
}

func (g *SDFVoxelGenerator) scratchPool(size int) *sdf.ScratchPool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.scratchs[size]
	if !ok {
		p = sdf.NewScratchPool(size, g.sdf.StackDepth())
		g.scratchs[size] = p
	}
	return p
}

func (g *SDFVoxelGenerator) GenerateChunk(origin [3]int, size int, voxels []Voxel) {
	clear(voxels)
	if g.sdf.IsEmpty() {
		return
	}
	sp := g.scratchPool(size)
	s := sp.Get()
	defer sp.Put(s)

	start := mgl32.Vec3{float32(origin[0]), float32(origin[1]), float32(origin[2])}.Sub(g.gridShift)
	dist, evaluated := g.sdf.EvaluateBlock(s, start, g.modelToRoot)
	if !evaluated {
		return
	}
	idx := 0
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			for k := 0; k < size; k++ {
				if dist[idx] <= 0 {
					p := mgl32.TransformCoordinate(start.Add(mgl32.Vec3{float32(i), float32(j), float32(k)}), g.modelToRoot)
					voxels[idx] = g.types.VoxelTypeAt(p).Voxel()
				}
				idx++
			}
		}
	}
}

// gridVoxelGenerator evaluates a per-voxel predicate over a fixed grid.
type gridVoxelGenerator struct {
	voxelExtent float64
	shape       [3]int
	types       TypeGenerator
	inside      func(i, j, k int) bool
}

func (g *gridVoxelGenerator) validate() error { return validateTypes(g.types) }

func (g *gridVoxelGenerator) VoxelExtent() float64 { return g.voxelExtent }
func (g *gridVoxelGenerator) GridShape() [3]int    { return g.shape }

func (g *gridVoxelGenerator) GenerateChunk(origin [3]int, size int, voxels []Voxel) {
	idx := 0
	for i := origin[0]; i < origin[0]+size; i++ {
		for j := origin[1]; j < origin[1]+size; j++ {
			for k := origin[2]; k < origin[2]+size; k++ {
				v := Empty
				if i < g.shape[0] && j < g.shape[1] && k < g.shape[2] && g.inside(i, j, k) {
					v = g.types.VoxelTypeAt(mgl32.Vec3{float32(i), float32(j), float32(k)}).Voxel()
				}
				voxels[idx] = v
				idx++
			}
		}
	}
}

// NewBoxVoxelGenerator fills a box of the given voxel counts.
func NewBoxVoxelGenerator(voxelExtent float64, size [3]int, types TypeGenerator) Generator {
	return &gridVoxelGenerator{
		voxelExtent: voxelExtent,
		shape:       size,
		types:       types,
		inside:      func(int, int, int) bool { return true },
	}
}

// NewSphereVoxelGenerator fills the voxels whose centers lie within a
// sphere spanning voxelsAcross voxels.
func NewSphereVoxelGenerator(voxelExtent float64, voxelsAcross int, types TypeGenerator) Generator {
	r := 0.5 * float64(voxelsAcross)
	return &gridVoxelGenerator{
		voxelExtent: voxelExtent,
		shape:       [3]int{voxelsAcross, voxelsAcross, voxelsAcross},
		types:       types,
		inside: func(i, j, k int) bool {
			x, y, z := float64(i)+0.5-r, float64(j)+0.5-r, float64(k)+0.5-r
			return x*x+y*y+z*z <= r*r
		},
	}
}

// NewGradientNoiseVoxelGenerator fills the voxels of a box where gradient
// noise reaches the threshold.
func NewGradientNoiseVoxelGenerator(voxelExtent float64, size [3]int, frequency, threshold float32, seed uint32, types TypeGenerator) Generator {
	noise := sdf.NewNoise(seed)
	var scale [3]float32
	for a := 0; a < 3; a++ {
		scale[a] = frequency / float32(max(1, size[a]))
	}
	return &gridVoxelGenerator{
		voxelExtent: voxelExtent,
		shape:       size,
		types:       types,
		inside: func(i, j, k int) bool {
			return noise.Eval3(float32(i)*scale[0], float32(j)*scale[1], float32(k)*scale[2]) >= threshold
		},
	}
}

// Generate builds an object from a generator on the calling goroutine.
func Generate(g Generator, chunkSize int) (*ChunkedVoxelObject, error) {
	return GenerateInParallel(context.Background(), nil, g, chunkSize)
}

// GenerateInParallel builds an object with one pool task per chunk. Every
// task writes only its own chunk slot, so the result does not depend on
// scheduling. Generation stops at chunk boundaries when ctx is cancelled.
func GenerateInParallel(ctx context.Context, p *pool.Pool, g Generator, chunkSize int) (*ChunkedVoxelObject, error) {
	if err := validateChunkSize(chunkSize); err != nil {
		return nil, err
	}
	if v, ok := g.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	shape := g.GridShape()
	var counts [3]int
	for a := 0; a < 3; a++ {
		counts[a] = (shape[a] + chunkSize - 1) / chunkSize
	}
	o, err := NewChunkedVoxelObject(chunkSize, g.VoxelExtent(), counts)
	if err != nil {
		return nil, err
	}
	n := chunkSize
	err = pool.ForEachWithState(ctx, p, len(o.chunks),
		func() []Voxel { return make([]Voxel, n*n*n) },
		func(buf []Voxel, ci int) error {
			c := o.chunkCoords(ci)
			origin := [3]int{c[0] * n, c[1] * n, c[2] * n}
			if origin[0] >= shape[0] || origin[1] >= shape[1] || origin[2] >= shape[2] {
				return nil
			}
			g.GenerateChunk(origin, n, buf)
			ch, ok := classifyChunk(buf, n)
			if !ok {
				return fmt.Errorf("%w: generator produced the sentinel voxel in chunk %v", voxerr.ErrConfigurationInvalid, c)
			}
			o.chunks[ci] = ch
			return nil
		})
	if err != nil {
		return nil, err
	}
	o.recountOccupancy()
	o.markAllDirty()
	if err := o.RefreshDerivedState(ctx, p); err != nil {
		return nil, err
	}
	empty, uniform, nonUniform := o.ChunkKindCounts()
	slog.Debug("generated voxel object",
		"chunks", len(o.chunks), "empty", empty, "uniform", uniform, "non_uniform", nonUniform,
		"workers", p.Workers(), "elapsed", time.Since(start))
	return o, nil
}

// classifyChunk stores a generated buffer in its canonical variant. It
// fails when the buffer holds the sentinel.
func classifyChunk(voxels []Voxel, n int) (chunk, bool) {
	first := voxels[0]
	uniform := true
	for _, v := range voxels {
		if v == Sentinel {
			return chunk{}, false
		}
		uniform = uniform && v == first
	}
	switch {
	case uniform && first == Empty:
		return chunk{kind: chunkEmpty}, true
	case uniform:
		return chunk{kind: chunkUniform, uniform: first}, true
	}
	d := newChunkData(n, Empty)
	copy(d.voxels, voxels)
	return chunk{kind: chunkNonUniform, data: d}, true
}
