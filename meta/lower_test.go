package meta

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/sdf"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func compile(t *testing.T, g *Graph) *Compiled {
	t.Helper()
	c, err := g.Compile()
	require.NoError(t, err)
	return c
}

// outputChild returns the atomic node feeding the Output node.
func outputChild(t *testing.T, c *Compiled) sdf.Node {
	t.Helper()
	root, err := c.Graph.Root()
	require.NoError(t, err)
	return c.Graph.Node(c.Graph.Node(root).(sdf.Output).Child)
}

// scatteredSpheres builds sphere scattered over a row of n grid points with
// unit spacing along x.
func scatteredSpheres(t *testing.T, g *Graph, n uint32) NodeID {
	t.Helper()
	s := g.Add(KindSphere, "")
	require.NoError(t, g.SetParam(s, 0, FloatParam(0.25)))
	sp := g.Add(KindStratifiedPlacement, "")
	require.NoError(t, g.SetParam(sp, 0, UIntParam(n)))
	sc := g.Add(KindScattering, "")
	require.NoError(t, g.Connect(sc, 0, s))
	require.NoError(t, g.Connect(sc, 1, sp))
	return sc
}

func TestCompileSphereWithNoise(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	s := g.Add(KindSphere, "")
	m := g.Add(KindMultifractalNoise, "")
	require.NoError(t, g.Connect(m, 0, s))
	require.NoError(t, g.Connect(o, 0, m))
	assert.Equal(t, SingleSDF, mustNode(t, g, m).OutputType)

	c := compile(t, g)
	require.Equal(t, 3, c.Graph.Len())
	assert.IsType(t, sdf.Sphere{}, c.Graph.Node(0))
	assert.IsType(t, sdf.MultifractalNoise{}, c.Graph.Node(1))
	assert.IsType(t, sdf.Output{}, c.Graph.Node(2))
	assert.Equal(t, float32(DefaultVoxelExtent), c.VoxelExtent)

	gen, err := c.Generator()
	require.NoError(t, err)
	assert.Less(t, gen.Evaluate(mgl32.Vec3{}), float32(0))
}

func TestZeroOctaveNoisePassesThrough(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	s := g.Add(KindSphere, "")
	m := g.Add(KindMultifractalNoise, "")
	require.NoError(t, g.SetParam(m, 0, UIntParam(0)))
	require.NoError(t, g.Connect(m, 0, s))
	require.NoError(t, g.Connect(o, 0, m))

	c := compile(t, g)
	assert.Equal(t, 2, c.Graph.Len())
	assert.IsType(t, sdf.Sphere{}, outputChild(t, c))
}

func TestGroupUnionBuildsBalancedTree(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	sc := scatteredSpheres(t, g, 4)
	gu := g.Add(KindGroupUnion, "")
	require.NoError(t, g.SetParam(gu, 0, FloatParam(0)))
	require.NoError(t, g.Connect(gu, 0, sc))
	require.NoError(t, g.Connect(o, 0, gu))

	c := compile(t, g)
	// sphere, four translations, three unions and the output
	assert.Equal(t, 9, c.Graph.Len())
	top, ok := outputChild(t, c).(sdf.Union)
	require.True(t, ok)
	assert.IsType(t, sdf.Union{}, c.Graph.Node(top.Child1))
	assert.IsType(t, sdf.Union{}, c.Graph.Node(top.Child2))

	gen, err := c.Generator()
	require.NoError(t, err)
	for _, x := range []float32{-1.5, -0.5, 0.5, 1.5} {
		assert.Less(t, gen.Evaluate(mgl32.Vec3{x, 0, 0}), float32(0), "x = %g", x)
	}
	assert.Greater(t, gen.Evaluate(mgl32.Vec3{0, 0, 0}), float32(0))
}

func TestBinaryFansOutOverGroup(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	sc := scatteredSpheres(t, g, 2)
	b := g.Add(KindBox, "")
	u := g.Add(KindUnion, "")
	gu := g.Add(KindGroupUnion, "")
	require.NoError(t, g.Connect(u, 0, sc))
	require.NoError(t, g.Connect(u, 1, b))
	assert.Equal(t, SDFGroup, mustNode(t, g, u).OutputType)
	require.NoError(t, g.Connect(gu, 0, u))
	require.NoError(t, g.Connect(o, 0, gu))

	c := compile(t, g)
	// sphere, two translations, box, one union per member, the group union
	// and the output
	assert.Equal(t, 8, c.Graph.Len())
	unions := 0
	for _, n := range c.Graph.Nodes() {
		if _, ok := n.(sdf.Union); ok {
			unions++
		}
	}
	assert.Equal(t, 3, unions)
}

func TestEmptyOperands(t *testing.T) {
	for _, c := range []struct {
		kind  Kind
		empty int
		kept  bool
	}{
		{KindUnion, 0, true},
		{KindUnion, 1, true},
		{KindSubtraction, 1, true},
		{KindSubtraction, 0, false},
		{KindIntersection, 0, false},
		{KindIntersection, 1, false},
	} {
		g := NewGraph()
		o := g.Add(KindOutput, "")
		s := g.Add(KindSphere, "")
		require.NoError(t, g.SetParam(s, 0, FloatParam(3)))
		// A selection that drops everything lowers to an empty SDF.
		dropped := g.Add(KindSphere, "")
		sel := g.Add(KindStochasticSelection, "")
		require.NoError(t, g.SetParam(sel, 0, FloatParam(0)))
		require.NoError(t, g.Connect(sel, 0, dropped))

		bin := g.Add(c.kind, "")
		require.NoError(t, g.Connect(bin, c.empty, sel))
		require.NoError(t, g.Connect(bin, 1-c.empty, s))
		require.NoError(t, g.Connect(o, 0, bin))
		compiled := compile(t, g)

		gen, err := compiled.Generator()
		require.NoError(t, err)
		assert.Equal(t, !c.kept, gen.IsEmpty(), "%s with empty slot %d", c.kind, c.empty)
		if c.kept {
			kept, ok := outputChild(t, compiled).(sdf.Sphere)
			require.True(t, ok)
			assert.Equal(t, float32(3), kept.Radius)
		}
	}
}

func TestUnlinkedOutputCompilesToEmptyGraph(t *testing.T) {
	g := NewGraph()
	g.Add(KindOutput, "")
	g.Add(KindSphere, "")
	c := compile(t, g)
	assert.Zero(t, c.Graph.Len())
}

func TestCompileRejectsUndefinedOutput(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	tr := g.Add(KindTranslation, "")
	require.NoError(t, g.Connect(o, 0, tr))
	_, err := g.Compile()
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestCompileRejectsCycle(t *testing.T) {
	nodes := []IONode{
		{ID: 0, Kind: "output", Params: KindOutput.DefaultParams(), ChildLinks: []*Link{{ToNode: 1}}},
		{
			ID: 1, Kind: "translation", Params: KindTranslation.DefaultParams(),
			ParentLinks: []*Link{{ToNode: 0}, {ToNode: 2}},
			ChildLinks:  []*Link{{ToNode: 2}},
		},
		{
			ID: 2, Kind: "translation", Params: KindTranslation.DefaultParams(),
			ParentLinks: []*Link{{ToNode: 1}},
			ChildLinks:  []*Link{{ToNode: 1, ToSlot: 1}},
		},
	}
	g, err := FromIO(nodes)
	require.NoError(t, err)
	_, err = g.Compile()
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestCompileRejectsMistypedLink(t *testing.T) {
	nodes := []IONode{
		{ID: 0, Kind: "output", Params: KindOutput.DefaultParams(), ChildLinks: []*Link{{ToNode: 1}}},
		{ID: 1, Kind: "stratified_placement", Params: KindStratifiedPlacement.DefaultParams(), ParentLinks: []*Link{{ToNode: 0}}},
	}
	g, err := FromIO(nodes)
	require.NoError(t, err)
	_, err = g.Compile()
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestInstanceTransformsCompose(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	s := g.Add(KindSphere, "")
	require.NoError(t, g.SetParam(s, 0, FloatParam(1)))
	sp := g.Add(KindStratifiedPlacement, "")
	sc := g.Add(KindScaling, "")
	require.NoError(t, g.SetParam(sc, 0, FloatParam(2)))
	tr := g.Add(KindTranslation, "")
	require.NoError(t, g.SetParam(tr, 0, FloatParam(10)))
	scatter := g.Add(KindScattering, "")
	gu := g.Add(KindGroupUnion, "")

	require.NoError(t, g.Connect(sc, 0, sp))
	require.NoError(t, g.Connect(tr, 0, sc))
	require.NoError(t, g.Connect(scatter, 0, s))
	require.NoError(t, g.Connect(scatter, 1, tr))
	require.NoError(t, g.Connect(gu, 0, scatter))
	require.NoError(t, g.Connect(o, 0, gu))
	assert.Equal(t, Instances, mustNode(t, g, tr).OutputType)

	gen, err := compile(t, g).Generator()
	require.NoError(t, err)
	// A sphere of radius 2 centered at x = 10.
	assert.InDelta(t, -2, gen.Evaluate(mgl32.Vec3{10, 0, 0}), 1e-4)
	assert.InDelta(t, 0, gen.Evaluate(mgl32.Vec3{12, 0, 0}), 1e-4)

	// Applied in the instance's own space the offset is scaled too.
	require.NoError(t, g.SetParam(tr, 3, EnumParam(composePre)))
	require.NoError(t, g.SetParam(sc, 1, EnumParam(composePre)))
	gen, err = compile(t, g).Generator()
	require.NoError(t, err)
	assert.InDelta(t, -2, gen.Evaluate(mgl32.Vec3{20, 0, 0}), 1e-4)
}

func TestInstanceCompose(t *testing.T) {
	a := Instance{Translation: mgl32.Vec3{1, 0, 0}, Rotation: mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}), Scale: 2}
	b := Instance{Translation: mgl32.Vec3{0, 3, 0}, Rotation: mgl32.QuatIdent(), Scale: 0.5}
	p := mgl32.Vec3{1, 1, 1}
	want := a.TransformPoint(b.TransformPoint(p))
	got := a.Compose(b).TransformPoint(p)
	assert.True(t, want.ApproxEqualThreshold(got, 1e-5), "%v != %v", want, got)
}

func TestTranslationToSurface(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	ground := g.Add(KindBox, "")
	require.NoError(t, g.SetParam(ground, 1, FloatParam(4)))
	subject := g.Add(KindSphere, "")
	require.NoError(t, g.SetParam(subject, 0, FloatParam(1)))
	lift := g.Add(KindTranslation, "")
	require.NoError(t, g.SetParam(lift, 1, FloatParam(20)))
	snap := g.Add(KindTranslationToSurface, "")

	require.NoError(t, g.Connect(lift, 0, subject))
	require.NoError(t, g.Connect(snap, 0, ground))
	require.NoError(t, g.Connect(snap, 1, lift))
	require.NoError(t, g.Connect(o, 0, snap))
	assert.Equal(t, SingleSDF, mustNode(t, g, snap).OutputType)

	gen, err := compile(t, g).Generator()
	require.NoError(t, err)
	// The box top is at y = 2, so the sphere center moves there.
	assert.InDelta(t, -1, gen.Evaluate(mgl32.Vec3{0, 2, 0}), surfaceTolerance+1e-3)
	assert.Greater(t, gen.Evaluate(mgl32.Vec3{0, 20, 0}), float32(0))
}

func TestRotationToGradient(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	field := g.Add(KindSphere, "")
	sp := g.Add(KindStratifiedPlacement, "")
	// The single grid point lands on the x-axis.
	lift := g.Add(KindTranslation, "")
	require.NoError(t, g.SetParam(lift, 0, FloatParam(40)))
	align := g.Add(KindRotationToGradient, "")
	rod := g.Add(KindBox, "")
	require.NoError(t, g.SetParam(rod, 0, FloatParam(1)))
	require.NoError(t, g.SetParam(rod, 1, FloatParam(10)))
	require.NoError(t, g.SetParam(rod, 2, FloatParam(1)))
	scatter := g.Add(KindScattering, "")
	gu := g.Add(KindGroupUnion, "")

	require.NoError(t, g.Connect(lift, 0, sp))
	require.NoError(t, g.Connect(align, 0, field))
	require.NoError(t, g.Connect(align, 1, lift))
	require.NoError(t, g.Connect(scatter, 0, rod))
	require.NoError(t, g.Connect(scatter, 1, align))
	require.NoError(t, g.Connect(gu, 0, scatter))
	require.NoError(t, g.Connect(o, 0, gu))
	assert.Equal(t, Instances, mustNode(t, g, align).OutputType)

	gen, err := compile(t, g).Generator()
	require.NoError(t, err)
	// The rod's long axis now points radially, along x.
	assert.Less(t, gen.Evaluate(mgl32.Vec3{44, 0, 0}), float32(0))
	assert.Greater(t, gen.Evaluate(mgl32.Vec3{40, 4, 0}), float32(0))
}

func TestStochasticSelectionIsDeterministic(t *testing.T) {
	build := func() (*Graph, NodeID) {
		g := NewGraph()
		o := g.Add(KindOutput, "")
		sc := scatteredSpheres(t, g, 16)
		sel := g.Add(KindStochasticSelection, "")
		require.NoError(t, g.SetParam(sel, 0, FloatParam(0.5)))
		require.NoError(t, g.SetParam(sel, 1, UIntParam(7)))
		gu := g.Add(KindGroupUnion, "")
		require.NoError(t, g.Connect(sel, 0, sc))
		require.NoError(t, g.Connect(gu, 0, sel))
		require.NoError(t, g.Connect(o, 0, gu))
		return g, sel
	}
	ga, _ := build()
	gb, _ := build()
	a, b := compile(t, ga), compile(t, gb)
	assert.Equal(t, a.Graph.Nodes(), b.Graph.Nodes())
	// Some but not all of the sixteen spheres survive.
	assert.Greater(t, a.Graph.Len(), 3)
	assert.Less(t, a.Graph.Len(), 1+16+15+1)

	g, sel := build()
	require.NoError(t, g.SetParam(sel, 0, FloatParam(0)))
	assert.Zero(t, compile(t, g).Graph.Len())
}
