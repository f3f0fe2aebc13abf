package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func mustNode(t *testing.T, g *Graph, id NodeID) *Node {
	t.Helper()
	n, err := g.Node(id)
	require.NoError(t, err)
	return n
}

func TestConnectionAllowed(t *testing.T) {
	cases := []struct {
		input, output DataType
		want          bool
	}{
		{Undefined, Instances, true},
		{SingleSDF, Undefined, true},
		{SingleSDF, SingleSDF, true},
		{SingleSDF, SDFGroup, false},
		{SDFGroup, SingleSDF, true},
		{SDFGroup, SDFGroup, true},
		{SDFGroup, Instances, false},
		{Instances, Instances, true},
		{Instances, SingleSDF, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ConnectionAllowed(c.input, c.output), "%s <- %s", c.input, c.output)
	}
}

func TestKindTableIsConsistent(t *testing.T) {
	for _, k := range append(Kinds(), KindOutput) {
		got, err := KindByName(k.Name())
		require.NoError(t, err)
		assert.Equal(t, k, got)
		for i, s := range k.ParamSpecs() {
			_, err := s.conform(s.Default)
			assert.NoError(t, err, "%s param %d", k, i)
		}
		if p := k.ParentPort(); p.SameAsInput {
			assert.Less(t, p.Slot, len(k.ChildPorts()), "%s", k)
		}
	}
	_, err := KindByName("teapot")
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestInferenceFollowsLinkedInput(t *testing.T) {
	g := NewGraph()
	tr := g.Add(KindTranslation, "")
	assert.Equal(t, Undefined, mustNode(t, g, tr).OutputType)

	sp := g.Add(KindStratifiedPlacement, "")
	require.NoError(t, g.Connect(tr, 0, sp))
	assert.Equal(t, Instances, mustNode(t, g, tr).OutputType)
	assert.Equal(t, []DataType{Instances}, mustNode(t, g, tr).InputTypes)

	// A translated instance set cannot feed an SDF port.
	u := g.Add(KindUnion, "")
	err := g.Connect(u, 0, tr)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	sel := g.Add(KindStochasticSelection, "")
	s := g.Add(KindSphere, "")
	require.NoError(t, g.Connect(sel, 0, s))
	require.NoError(t, g.Connect(u, 0, sel))
	assert.Equal(t, SingleSDF, mustNode(t, g, u).OutputType)
	assert.Equal(t, []DataType{SDFGroup, SDFGroup}, mustNode(t, g, u).InputTypes)

	sc := g.Add(KindScattering, "")
	assert.Equal(t, SDFGroup, mustNode(t, g, sc).OutputType)
	o := g.Add(KindOutput, "")
	assert.ErrorIs(t, g.Connect(o, 0, sc), voxerr.ErrConfigurationInvalid)
	assert.Equal(t, Undefined, mustNode(t, g, o).OutputType)
}

func TestInferenceAcrossSharedChild(t *testing.T) {
	g := NewGraph()
	s := g.Add(KindSphere, "")
	a := g.Add(KindTranslation, "")
	b := g.Add(KindScaling, "")
	require.NoError(t, g.Connect(a, 0, s))
	require.NoError(t, g.Connect(b, 0, s))
	assert.Equal(t, SingleSDF, mustNode(t, g, a).OutputType)
	assert.Equal(t, SingleSDF, mustNode(t, g, b).OutputType)

	sn := mustNode(t, g, s)
	require.Len(t, sn.ParentLinks, 2)
	assert.Equal(t, Link{ToNode: a, ToSlot: 0}, *sn.ParentLinks[0])
	assert.Equal(t, Link{ToNode: b, ToSlot: 0}, *sn.ParentLinks[1])
	assert.Equal(t, 1, mustNode(t, g, b).ChildLinks[0].ToSlot)
}

func TestConnectRejectsInvalidLinks(t *testing.T) {
	g := NewGraph()
	o := g.Add(KindOutput, "")
	a := g.Add(KindTranslation, "")
	b := g.Add(KindTranslation, "")
	require.NoError(t, g.Connect(a, 0, b))

	cases := map[string]struct {
		parent, child NodeID
		slot          int
	}{
		"cycle":           {b, a, 0},
		"self":            {a, a, 0},
		"occupied slot":   {a, o, 0},
		"missing slot":    {b, a, 1},
		"output as child": {b, o, 0},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, g.Connect(c.parent, c.slot, c.child), voxerr.ErrConfigurationInvalid)
		})
	}
	_, err := g.Node(99)
	assert.ErrorIs(t, err, voxerr.ErrNotFound)
}

func TestSetParamConformsToDeclaration(t *testing.T) {
	g := NewGraph()
	n := g.Add(KindGradientNoise, "")
	require.NoError(t, g.SetParam(n, 3, FloatParam(7)))
	assert.Equal(t, float32(1), mustNode(t, g, n).Params[3].Float())

	assert.ErrorIs(t, g.SetParam(n, 3, UIntParam(1)), voxerr.ErrConfigurationInvalid)
	assert.ErrorIs(t, g.SetParam(n, 6, UIntParam(1)), voxerr.ErrConfigurationInvalid)

	p := g.Add(KindStratifiedPlacement, "")
	require.NoError(t, g.SetParam(p, 6, UIntRangeParam(4, 2)))
	lo, hi := mustNode(t, g, p).Params[6].UIntRange()
	assert.Equal(t, [2]uint32{2, 4}, [2]uint32{lo, hi})

	tr := g.Add(KindTranslation, "")
	assert.ErrorIs(t, g.SetParam(tr, 3, EnumParam("Sideways")), voxerr.ErrConfigurationInvalid)
	require.NoError(t, g.SetParam(tr, 3, EnumParam(composePre)))
}

func TestOutputMustBeUnique(t *testing.T) {
	g := NewGraph()
	_, err := g.Output()
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)

	g.Add(KindOutput, "")
	ext, err := g.VoxelExtent()
	require.NoError(t, err)
	assert.Equal(t, float32(DefaultVoxelExtent), ext)

	g.Add(KindOutput, "")
	_, err = g.Output()
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}
