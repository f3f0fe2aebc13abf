package texture

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func TestAxisAlignedProjectionDropsNormalComponent(t *testing.T) {
	p, err := NewPlanarProjection(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	require.NoError(t, err)
	uv := p.Project(mgl32.Vec3{2.5, -1.2, 99})
	assert.InDelta(t, 2.5, uv[0], 1e-6)
	assert.InDelta(t, -1.2, uv[1], 1e-6)
}

func TestSkewedProjectionHitsVectorTips(t *testing.T) {
	origin := mgl32.Vec3{1, 2, 3}
	u := mgl32.Vec3{2, 0, 0}
	v := mgl32.Vec3{1, 1, 0}
	p, err := NewPlanarProjection(origin, u, v)
	require.NoError(t, err)

	cases := []struct {
		pos  mgl32.Vec3
		want mgl32.Vec2
	}{
		{origin, mgl32.Vec2{0, 0}},
		{origin.Add(u), mgl32.Vec2{1, 0}},
		{origin.Add(v), mgl32.Vec2{0, 1}},
		{origin.Add(u.Mul(0.5)).Add(v.Mul(3)).Add(mgl32.Vec3{0, 0, 7}), mgl32.Vec2{0.5, 3}},
	}
	for _, c := range cases {
		got := p.Project(c.pos)
		assert.True(t, got.ApproxEqualThreshold(c.want, 1e-5), "%v: got %v, want %v", c.pos, got, c.want)
	}
}

func TestDegenerateVectorsAreRejected(t *testing.T) {
	_, err := NewPlanarProjection(mgl32.Vec3{}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
	_, err = NewPlanarProjection(mgl32.Vec3{}, mgl32.Vec3{1, 2, 3}, mgl32.Vec3{-2, -4, -6})
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
	_, err = ForRectangle(1, 1, 0, 1)
	assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid)
}

func TestRectangleCorners(t *testing.T) {
	p, err := ForRectangle(4, 2, 2, 1)
	require.NoError(t, err)
	uv := p.ProjectAll(nil, []mgl32.Vec3{{-2, 0, -1}, {2, 5, 1}})
	require.Len(t, uv, 2)
	assert.True(t, uv[0].ApproxEqualThreshold(mgl32.Vec2{0, 0}, 1e-6))
	assert.True(t, uv[1].ApproxEqualThreshold(mgl32.Vec2{2, 1}, 1e-6))
}
