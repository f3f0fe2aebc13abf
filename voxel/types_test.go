package voxel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

func TestVoxelTagsMapToTypes(t *testing.T) {
	assert.True(t, Empty.IsEmpty())
	assert.Equal(t, Voxel(1), VoxelType(0).Voxel())
	assert.Equal(t, VoxelType(5), Voxel(6).Type())
	assert.Equal(t, VoxelTypeIDFromName("Stone"), VoxelTypeIDFromName("Stone"))
	assert.NotEqual(t, VoxelTypeIDFromName("Stone"), VoxelTypeIDFromName("Ground"))
}

func TestVoxelTypeRange(t *testing.T) {
	cases := []struct {
		t  VoxelType
		ok bool
	}{
		{0, true},
		{MaxVoxelTypes - 1, true},
		{MaxVoxelTypes, false},
		{255, false},
	}
	for _, c := range cases {
		err := c.t.Validate()
		if c.ok {
			assert.NoError(t, err, "type %d", c.t)
			assert.NotEqual(t, Sentinel, c.t.Voxel())
			assert.False(t, c.t.Voxel().IsEmpty())
		} else {
			assert.ErrorIs(t, err, voxerr.ErrConfigurationInvalid, "type %d", c.t)
		}
	}
}

func TestRegistryRejectsTooManyTypes(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxVoxelTypes; i++ {
		_, err := r.Register(VoxelTypeSpecification{Name: fmt.Sprintf("t%d", i), MassDensity: 1})
		require.NoError(t, err)
	}
	_, err := r.Register(VoxelTypeSpecification{Name: "overflow", MassDensity: 1})
	assert.True(t, errors.Is(err, voxerr.ErrCapacityExceeded))
	assert.Equal(t, MaxVoxelTypes, r.Len())
	_, err = r.Lookup("overflow")
	assert.True(t, errors.Is(err, voxerr.ErrNotFound))
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(VoxelTypeSpecification{})
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
	_, err = r.Register(VoxelTypeSpecification{Name: "a", MassDensity: -1})
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
	_, err = r.Register(VoxelTypeSpecification{Name: "a"})
	require.NoError(t, err)
	_, err = r.Register(VoxelTypeSpecification{Name: "a"})
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
	_, err = r.Spec(3)
	assert.True(t, errors.Is(err, voxerr.ErrNotFound))
}

func TestParseRegistry(t *testing.T) {
	r, err := ParseRegistry([]byte(`
[[voxel_type]]
name = "Ground"
mass_density = 1500.0
roughness_scale = 0.9
color_texture_path = "ground_color.png"

[[voxel_type]]
name = "Metal"
mass_density = 7800.0
metalness = 1.0
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ground", "Metal"}, r.Names())
	metal, err := r.Lookup("Metal")
	require.NoError(t, err)
	assert.Equal(t, VoxelType(1), metal)
	spec, err := r.Spec(0)
	require.NoError(t, err)
	assert.Equal(t, "ground_color.png", spec.ColorTexturePath)
	assert.Equal(t, []float64{1500, 7800}, r.MassDensities())

	_, err = ParseRegistry([]byte(`[[voxel_type]]
name = 3`))
	assert.True(t, errors.Is(err, voxerr.ErrConfigurationInvalid))
}
