package voxel

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/sdf"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func sphereGenerator(t *testing.T, radius float32) *SDFVoxelGenerator {
	t.Helper()
	g := sdf.NewGraph()
	s := g.AddNode(sdf.Sphere{Radius: radius})
	g.AddNode(sdf.Output{Child: s})
	gen, err := g.Build()
	require.NoError(t, err)
	vg, err := NewSDFVoxelGenerator(1, gen, SameVoxelType{})
	require.NoError(t, err)
	return vg
}

func requireSameObject(t *testing.T, a, b *ChunkedVoxelObject) {
	t.Helper()
	require.Equal(t, a.ChunkCounts(), b.ChunkCounts())
	for ci := range a.chunks {
		ca, cb := a.chunks[ci], b.chunks[ci]
		require.Equal(t, ca.kind, cb.kind, "chunk %d", ci)
		require.Equal(t, ca.uniform, cb.uniform, "chunk %d", ci)
		if ca.kind == chunkNonUniform {
			require.Equal(t, ca.data.voxels, cb.data.voxels, "chunk %d", ci)
		}
	}
}

func TestSDFSphereVoxelCount(t *testing.T) {
	gen := sphereGenerator(t, 20)
	assert.Equal(t, [3]int{42, 42, 42}, gen.GridShape())
	o, err := Generate(gen, 8)
	require.NoError(t, err)
	want := 4.0 / 3 * math.Pi * 20 * 20 * 20
	assert.InEpsilon(t, want, float64(o.NonEmptyVoxelCount()), 0.02)
	assert.Equal(t, 1, o.CountRegions())

	// The padding voxel on every side stays empty.
	counts := gen.GridShape()
	for i := 0; i < counts[0]; i++ {
		assert.Equal(t, Empty, o.Get(i, 0, 0))
		assert.Equal(t, Empty, o.Get(i, counts[1]-1, counts[2]-1))
	}
	assert.NotEqual(t, Empty, o.Get(21, 21, 21))
	assert.Equal(t, mgl64.Vec3{21, 21, 21}, gen.RootOrigin())
	assert.Equal(t, mgl32.Vec3{-0.5, -0.5, -0.5}, gen.RootPosition([3]int{20, 20, 20}))
}

func TestGenerationIsIndependentOfWorkerCount(t *testing.T) {
	g := sdf.NewGraph()
	s := g.AddNode(sdf.Sphere{Radius: 14})
	n := g.AddNode(sdf.MultifractalNoise{Child: s, Octaves: 3, Frequency: 0.1, Lacunarity: 2, Persistence: 0.5, Amplitude: 4, Seed: 3})
	b := g.AddNode(sdf.Box{Extents: mgl32.Vec3{10, 40, 10}})
	u := g.AddNode(sdf.Subtraction{Child1: n, Child2: b, Smoothness: 1})
	g.AddNode(sdf.Output{Child: u})
	gen, err := g.Build()
	require.NoError(t, err)
	types, err := NewGradientNoiseVoxelTypes([]VoxelType{0, 1, 2}, 0.05, 1, 9)
	require.NoError(t, err)
	vg, err := NewSDFVoxelGenerator(1, gen, types)
	require.NoError(t, err)

	serial, err := Generate(vg, 8)
	require.NoError(t, err)
	for _, p := range []*pool.Pool{pool.New(1, 1), pool.New(3, 2), pool.New(8, 64)} {
		parallel, err := GenerateInParallel(t.Context(), p, vg, 8)
		require.NoError(t, err)
		requireSameObject(t, serial, parallel)
		assert.Equal(t, serial.CountRegions(), parallel.CountRegions())
	}

	noise := NewGradientNoiseVoxelGenerator(1, [3]int{30, 20, 25}, 3, 0.1, 4, SameVoxelType{Type: 1})
	a, err := Generate(noise, 4)
	require.NoError(t, err)
	b2, err := GenerateInParallel(t.Context(), pool.New(4, 4), noise, 4)
	require.NoError(t, err)
	requireSameObject(t, a, b2)
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	_, err := Generate(NewBoxVoxelGenerator(1, [3]int{4, 4, 4}, SameVoxelType{}), 12)
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
	_, err = NewSDFVoxelGenerator(-1, &sdf.Generator{}, SameVoxelType{})
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
	_, err = NewGradientNoiseVoxelTypes(nil, 1, 1, 0)
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
}

// sentinelGenerator writes the sentinel into one voxel.
type sentinelGenerator struct{}

func (sentinelGenerator) VoxelExtent() float64 { return 1 }
func (sentinelGenerator) GridShape() [3]int    { return [3]int{4, 4, 4} }
func (sentinelGenerator) GenerateChunk(_ [3]int, _ int, voxels []Voxel) {
	clear(voxels)
	voxels[3] = Sentinel
}

func TestGenerateRejectsTypesWithoutATag(t *testing.T) {
	for _, vt := range []VoxelType{MaxVoxelTypes, 255} {
		_, err := Generate(NewBoxVoxelGenerator(1, [3]int{8, 8, 8}, SameVoxelType{Type: vt}), 8)
		assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid, "type %d", vt)
		_, err = NewGradientNoiseVoxelTypes([]VoxelType{0, vt}, 1, 1, 0)
		assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid, "type %d", vt)
		gen, err := sdf.NewGraph().Build()
		require.NoError(t, err)
		_, err = NewSDFVoxelGenerator(1, gen, SameVoxelType{Type: vt})
		assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid, "type %d", vt)
	}
	_, err := GenerateInParallel(t.Context(), pool.New(2, 2), sentinelGenerator{}, 4)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	last := VoxelType(MaxVoxelTypes - 1)
	o, err := Generate(NewBoxVoxelGenerator(1, [3]int{8, 8, 8}, SameVoxelType{Type: last}), 8)
	require.NoError(t, err)
	assert.Equal(t, last.Voxel(), o.Get(0, 0, 0))
	densities := make([]float64, MaxVoxelTypes)
	densities[last] = 2
	m := o.TrackInertialProperties(densities)
	assert.Equal(t, int64(512), m.VoxelCount(last))
	assert.InDelta(t, 1024.0, m.Mass(), 1e-9)
	assert.Zero(t, m.VoxelCount(255))
}

func TestEmptyGraphGeneratesEmptyObject(t *testing.T) {
	gen, err := sdf.NewGraph().Build()
	require.NoError(t, err)
	vg, err := NewSDFVoxelGenerator(1, gen, SameVoxelType{})
	require.NoError(t, err)
	o, err := Generate(vg, 4)
	require.NoError(t, err)
	assert.True(t, o.ContainsOnlyEmptyVoxels())
}

func TestGenerationStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := GenerateInParallel(ctx, pool.New(2, 2), NewBoxVoxelGenerator(1, [3]int{64, 64, 64}, SameVoxelType{}), 8)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLargeSphereCarveAndInertia(t *testing.T) {
	if testing.Short() {
		t.Skip("generates a sphere of radius 100")
	}
	gen := sphereGenerator(t, 100)
	o, err := GenerateInParallel(t.Context(), pool.New(0, 0), gen, 16)
	require.NoError(t, err)
	count := o.NonEmptyVoxelCount()
	assert.InEpsilon(t, 4.0/3*math.Pi*1e6, float64(count), 0.01)

	m := o.TrackInertialProperties([]float64{1})
	assert.InDelta(t, float64(count), m.Mass(), 1e-6)
	com, origin := m.CenterOfMass(), gen.RootOrigin()
	assert.InDelta(t, origin[0], com.X, 1e-3)
	assert.InDelta(t, origin[1], com.Y, 1e-3)
	assert.InDelta(t, origin[2], com.Z, 1e-3)

	// Carve a sphere of radius 15 touching the surface from inside.
	mgr := NewManager(pool.New(0, 0))
	e, err := mgr.AddObject(t.Context(), o, mgl64.Ident4())
	require.NoError(t, err)
	id, err := mgr.AddAbsorbingSphere(VoxelAbsorbingSphere{Radius: 15, Rate: 10},
		mgl64.Translate3D(origin[0]+85, origin[1], origin[2]))
	require.NoError(t, err)
	require.NoError(t, mgr.Step(t.Context(), 1))

	removed := tracked(t, mgr, id).Count
	assert.InEpsilon(t, 4.0/3*math.Pi*15*15*15, float64(removed), 0.05)
	assert.Equal(t, count-int(removed), e.Object.NonEmptyVoxelCount())
	assert.InDelta(t, float64(count)-float64(removed), m.Mass(), 1e-6)
	assert.Equal(t, 1, e.Object.CountRegions())
	assert.Len(t, mgr.ObjectIDs(), 1)
}

func TestTwoSpheresSplitIntoHalves(t *testing.T) {
	if testing.Short() {
		t.Skip("generates two spheres of radius 50")
	}
	g := sdf.NewGraph()
	s := g.AddNode(sdf.Sphere{Radius: 50})
	l := g.AddNode(sdf.Translation{Child: s, Offset: mgl32.Vec3{-60, 0, 0}})
	r := g.AddNode(sdf.Translation{Child: s, Offset: mgl32.Vec3{60, 0, 0}})
	u := g.AddNode(sdf.Union{Child1: l, Child2: r, Smoothness: 1})
	g.AddNode(sdf.Output{Child: u})
	gen, err := g.Build()
	require.NoError(t, err)
	vg, err := NewSDFVoxelGenerator(1, gen, SameVoxelType{})
	require.NoError(t, err)
	o, err := GenerateInParallel(t.Context(), pool.New(0, 0), vg, 16)
	require.NoError(t, err)
	require.Equal(t, 2, o.CountRegions())

	m := o.TrackInertialProperties([]float64{1})
	total := m.Mass()
	piece, err := o.SplitOffAnyDisconnectedRegion(t.Context(), pool.New(0, 0))
	require.NoError(t, err)
	require.NotNil(t, piece)
	assert.InEpsilon(t, total/2, piece.InertialProperties().Mass(), 0.01)
	assert.InEpsilon(t, total/2, m.Mass(), 0.01)
	assert.InDelta(t, total, m.Mass()+piece.InertialProperties().Mass(), 1e-6)
	assert.Equal(t, 1, o.CountRegions())
	assert.Equal(t, 1, piece.CountRegions())
}

func tracked(t *testing.T, m *Manager, id AbsorberID) AbsorbedVoxels {
	t.Helper()
	tr, err := m.AbsorptionTracker(id)
	require.NoError(t, err)
	return tr.Total()
}
