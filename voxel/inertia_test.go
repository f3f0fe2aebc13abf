package voxel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxInertiaMatchesAnalytic(t *testing.T) {
	o, err := Generate(NewBoxVoxelGenerator(0.5, [3]int{4, 4, 4}, SameVoxelType{}), 4)
	require.NoError(t, err)
	m := o.TrackInertialProperties([]float64{2})

	// A 2×2×2 cube of density 2.
	assert.InDelta(t, 16, m.Mass(), 1e-12)
	com := m.CenterOfMass()
	assert.InDelta(t, 1, com.X, 1e-12)
	assert.InDelta(t, 1, com.Y, 1e-12)
	assert.InDelta(t, 1, com.Z, 1e-12)
	tensor := m.InertiaTensor()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 16 * 8 / 12.0
			}
			assert.InDelta(t, want, tensor.At(i, j), 1e-9, "(%d, %d)", i, j)
		}
	}
}

func TestUniformChunkSumsMatchVoxelSums(t *testing.T) {
	o := generateFunc(t, 4, [3]int{8, 4, 4}, solid(1))
	bulk := o.TrackInertialProperties([]float64{5})

	single := NewInertialPropertyManager(1, []float64{5})
	for i := 0; i < 8; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				single.AddVoxel([3]int{i, j, k}, 1)
			}
		}
	}
	assert.InDelta(t, single.Mass(), bulk.Mass(), 1e-9)
	a, b := single.InertiaTensor(), bulk.InertiaTensor()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, a.At(i, j), b.At(i, j), 1e-9)
		}
	}
}

func TestPrincipalMomentsOfRod(t *testing.T) {
	o := generateFunc(t, 4, [3]int{8, 2, 2}, solid(1))
	m := o.TrackInertialProperties([]float64{1})
	moments, axes, ok := m.PrincipalMoments()
	require.True(t, ok)
	require.Len(t, moments, 3)
	// Rod of mass 32 with sides 8, 2, 2.
	assert.InDelta(t, 32*(4+4)/12.0, moments[0], 1e-9)
	assert.InDelta(t, 32*(64+4)/12.0, moments[1], 1e-9)
	assert.InDelta(t, 32*(64+4)/12.0, moments[2], 1e-9)
	assert.InDelta(t, 1, math.Abs(axes.At(0, 0)), 1e-9)
}

func TestTransferConservesSums(t *testing.T) {
	src := NewInertialPropertyManager(0.5, []float64{1, 4})
	for i := 0; i < 6; i++ {
		src.AddVoxel([3]int{i, i % 2, 3}, Voxel(1+i%2))
	}
	mass, first := src.Mass(), src.FirstMoment()
	before := src.InertiaTensor()

	dst := NewInertialPropertyManager(0.5, []float64{1, 4})
	offset := [3]int{2, 0, 2}
	tr := NewInertialPropertyTransferrer(src, dst, offset)
	tr.TransferVoxel([3]int{3, 1, 3}, 2)
	tr.TransferVoxel([3]int{4, 0, 3}, 1)
	assert.Equal(t, int64(1), dst.VoxelCount(0))
	assert.Equal(t, int64(1), dst.VoxelCount(1))
	assert.InDelta(t, mass, src.Mass()+dst.Mass(), 1e-12)

	// Expressed in the source frame again, the two parts add up.
	dst.OffsetReferencePoint(r3.Vec{X: -1, Y: 0, Z: -1})
	sum := r3.Add(src.FirstMoment(), dst.FirstMoment())
	assert.InDelta(t, first.X, sum.X, 1e-12)
	assert.InDelta(t, first.Z, sum.Z, 1e-12)

	merged := NewInertialPropertyManager(0.5, []float64{1, 4})
	merged.sums = src.sums
	merged.sums.add(dst.sums)
	after := merged.InertiaTensor()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, before.At(i, j), after.At(i, j), 1e-9)
		}
	}
}

func TestUpdaterAppliesInOneStep(t *testing.T) {
	m := NewInertialPropertyManager(1, []float64{2})
	m.AddVoxel([3]int{0, 0, 0}, 1)
	m.AddVoxel([3]int{1, 0, 0}, 1)
	u := m.Updater()
	u.RemoveVoxel([3]int{1, 0, 0}, 1)
	u.AddVoxel([3]int{0, 1, 0}, 1)
	u.RemoveVoxel([3]int{0, 1, 0}, 1)
	assert.InDelta(t, 4, m.Mass(), 1e-12)
	u.Apply()
	assert.InDelta(t, 2, m.Mass(), 1e-12)
	com := m.CenterOfMass()
	assert.InDelta(t, 0.5, com.X, 1e-12)
	u.Apply()
	assert.InDelta(t, 2, m.Mass(), 1e-12)
}
