package sdf

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, g *Graph) *Generator {
	t.Helper()
	gen, err := g.Build()
	require.NoError(t, err)
	return gen
}

func TestSmoothOperatorsDegenerateWithoutSmoothness(t *testing.T) {
	assert.Equal(t, float32(-1), SmoothUnion(-1, 2, 0))
	assert.Equal(t, float32(2), SmoothIntersection(-1, 2, 0))
	assert.Equal(t, float32(3), SmoothSubtraction(1, -3, 0))
	assert.Equal(t, float32(1), SmoothSubtraction(1, 3, 0))
}

func TestSmoothUnionIsBelowMinimum(t *testing.T) {
	for _, k := range []float32{0.5, 1, 4} {
		assert.LessOrEqual(t, SmoothUnion(0.2, 0.3, k), float32(0.2))
		assert.GreaterOrEqual(t, SmoothIntersection(0.2, 0.3, k), float32(0.3))
	}
	// Far apart inputs are unaffected by smoothing.
	assert.InDelta(t, 1.0, SmoothUnion(1, 10, 1), 1e-6)
}

func TestPrimitiveDistances(t *testing.T) {
	g := NewGraph()
	s := g.AddNode(Sphere{Radius: 10})
	g.AddNode(Output{Child: s})
	gen := build(t, g)
	assert.InDelta(t, -10, gen.Evaluate(mgl32.Vec3{}), 1e-6)
	assert.InDelta(t, 5, gen.Evaluate(mgl32.Vec3{15, 0, 0}), 1e-5)

	g = NewGraph()
	b := g.AddNode(Box{Extents: mgl32.Vec3{4, 6, 8}})
	g.AddNode(Output{Child: b})
	gen = build(t, g)
	assert.InDelta(t, -2, gen.Evaluate(mgl32.Vec3{}), 1e-6)
	assert.InDelta(t, 1, gen.Evaluate(mgl32.Vec3{3, 0, 0}), 1e-6)
	assert.InDelta(t, math.Sqrt(2), gen.Evaluate(mgl32.Vec3{3, 4, 0}), 1e-5)
}

func TestTransformsComposeOnTheEvaluationPoint(t *testing.T) {
	g := NewGraph()
	s := g.AddNode(Sphere{Radius: 2})
	sc := g.AddNode(Scaling{Child: s, Factor: 3})
	tr := g.AddNode(Translation{Child: sc, Offset: mgl32.Vec3{10, 0, 0}})
	g.AddNode(Output{Child: tr})
	gen := build(t, g)

	// Scaled sphere has radius 6 centered at x = 10.
	assert.InDelta(t, -6, gen.Evaluate(mgl32.Vec3{10, 0, 0}), 1e-5)
	assert.InDelta(t, 0, gen.Evaluate(mgl32.Vec3{16, 0, 0}), 1e-5)
	assert.InDelta(t, 4, gen.Evaluate(mgl32.Vec3{20, 0, 0}), 1e-5)

	g = NewGraph()
	b := g.AddNode(Box{Extents: mgl32.Vec3{10, 2, 2}})
	r := g.AddNode(Rotation{Child: b, Rotation: mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 0, 1})})
	g.AddNode(Output{Child: r})
	gen = build(t, g)
	// The long axis now points along y.
	assert.Less(t, gen.Evaluate(mgl32.Vec3{0, 4, 0}), float32(0))
	assert.Greater(t, gen.Evaluate(mgl32.Vec3{4, 0, 0}), float32(0))
}

func TestBlockEvaluationMatchesPointEvaluation(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Sphere{Radius: 5})
	b := g.AddNode(Box{Extents: mgl32.Vec3{6, 6, 6}})
	bt := g.AddNode(Translation{Child: b, Offset: mgl32.Vec3{4, 1, 0}})
	u := g.AddNode(Union{Child1: a, Child2: bt, Smoothness: 1})
	n := g.AddNode(MultifractalNoise{Child: u, Octaves: 3, Frequency: 0.1, Lacunarity: 2, Persistence: 0.5, Amplitude: 1, Seed: 7})
	g.AddNode(Output{Child: n})
	gen := build(t, g)

	s := NewScratch(8, gen.StackDepth())
	origin := mgl32.Vec3{-4, -4, -4}
	dist, evaluated := gen.EvaluateBlock(s, origin, mgl32.Ident4())
	require.True(t, evaluated)
	idx := 0
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			for k := 0; k < 8; k++ {
				p := origin.Add(mgl32.Vec3{float32(i), float32(j), float32(k)})
				assert.InDelta(t, gen.Evaluate(p), dist[idx], 1e-4)
				idx++
			}
		}
	}
}

func TestBlockOutsideDomainIsSkipped(t *testing.T) {
	g := NewGraph()
	s := g.AddNode(Sphere{Radius: 3})
	g.AddNode(Output{Child: s})
	gen := build(t, g)

	scratch := NewScratch(4, gen.StackDepth())
	dist, evaluated := gen.EvaluateBlock(scratch, mgl32.Vec3{100, 100, 100}, mgl32.Ident4())
	assert.False(t, evaluated)
	for _, d := range dist {
		assert.Equal(t, OutsideDistance, d)
	}
}

func TestDomains(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Sphere{Radius: 2})
	at := g.AddNode(Translation{Child: a, Offset: mgl32.Vec3{5, 0, 0}})
	b := g.AddNode(Box{Extents: mgl32.Vec3{2, 2, 2}})
	u := g.AddNode(Union{Child1: at, Child2: b})
	g.AddNode(Output{Child: u})
	gen := build(t, g)
	d := gen.Domain()
	assert.InDelta(t, -1, d.Min.X(), 1e-6)
	assert.InDelta(t, 7, d.Max.X(), 1e-6)
	assert.InDelta(t, 2, d.Max.Y(), 1e-6)

	g = NewGraph()
	a = g.AddNode(Sphere{Radius: 2})
	b = g.AddNode(Box{Extents: mgl32.Vec3{20, 20, 20}})
	g.AddNode(Output{Child: g.AddNode(Intersection{Child1: a, Child2: b})})
	d = build(t, g).Domain()
	assert.InDelta(t, 4, d.Extents().X(), 1e-6)
}

func TestMultiscaleSphereIsDeterministic(t *testing.T) {
	newGen := func() *Generator {
		g := NewGraph()
		s := g.AddNode(Sphere{Radius: 20})
		m := g.AddNode(MultiscaleSphere{Child: s, Octaves: 3, MaxScale: 10, Persistence: 0.5, Inflation: 1, IntersectionSmoothness: 1, UnionSmoothness: 0.3, Seed: 4})
		g.AddNode(Output{Child: m})
		return build(t, g)
	}
	a, b := newGen(), newGen()
	for _, p := range []mgl32.Vec3{{0, 0, 0}, {19, 1, 2}, {-7, 15, 3}, {30, 0, 0}} {
		assert.Equal(t, a.Evaluate(p), b.Evaluate(p))
	}
	p := newMultiscaleParams(MultiscaleSphere{MaxScale: 10, Persistence: 0.5, Inflation: 1, Seed: 1})
	for x := int32(-5); x < 5; x++ {
		r := p.cornerRadius([3]int32{x, 2 * x, -x})
		assert.GreaterOrEqual(t, r, float32(0))
		assert.LessOrEqual(t, r, float32(0.5))
	}
}

func TestGradientPointsOutward(t *testing.T) {
	g := NewGraph()
	g.AddNode(Output{Child: g.AddNode(Sphere{Radius: 5})})
	grad := build(t, g).Gradient(mgl32.Vec3{3, 4, 0}, 0.01)
	assert.InDelta(t, 0.6, grad.X(), 1e-2)
	assert.InDelta(t, 0.8, grad.Y(), 1e-2)
}

func TestBuildErrors(t *testing.T) {
	g := NewGraph()
	g.AddNode(Output{Child: 1})
	g.AddNode(Sphere{Radius: 1})
	_, err := g.Build()
	assert.Error(t, err)

	g = NewGraph()
	g.AddNode(Sphere{Radius: 1})
	_, err = g.Build()
	assert.Error(t, err)

	g = NewGraph()
	s := g.AddNode(Sphere{Radius: 1})
	g.AddNode(Output{Child: s})
	g.AddNode(Output{Child: s})
	_, err = g.Build()
	assert.Error(t, err)

	g = NewGraph()
	s = g.AddNode(Sphere{Radius: 1})
	g.AddNode(Output{Child: g.AddNode(Scaling{Child: s, Factor: 0})})
	_, err = g.Build()
	assert.Error(t, err)

	gen, err := NewGraph().Build()
	require.NoError(t, err)
	assert.True(t, gen.IsEmpty())
}

func TestScratchPoolReusesStacks(t *testing.T) {
	p := NewScratchPool(4, 2)
	a := p.Get()
	p.Put(a)
	assert.Same(t, a, p.Get())
	p.Put(NewScratch(8, 1))
	assert.NotNil(t, p.Get())
}

func TestBuildNodeCompilesSubgraphWithoutOutput(t *testing.T) {
	g := NewGraph()
	s := g.AddNode(Sphere{Radius: 3})
	tr := g.AddNode(Translation{Child: s, Offset: mgl32.Vec3{5, 0, 0}})

	gen, err := g.BuildNode(tr)
	require.NoError(t, err)
	assert.InDelta(t, -3, gen.Evaluate(mgl32.Vec3{5, 0, 0}), 1e-5)

	box := g.Domain(tr)
	assert.InDelta(t, 5, box.Center().X(), 1e-4)
	assert.False(t, box.IsEmpty())

	_, err = g.BuildNode(NodeID(10))
	assert.Error(t, err)
}
