package utils

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// ObjectStats summarizes one stored object.
type ObjectStats struct {
	Name                       string
	ChunkSize                  int
	ChunkCounts                [3]int
	Empty, Uniform, NonUniform int
	Voxels                     int
	Regions                    int
	Bounds                     voxel.AABB
	Mass                       float64
	CenterOfMass               r3.Vec
	PrincipalMoments           []float64
	VoxelsByType               map[string]int64
}

func (s ObjectStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q: chunk size %d, chunks %v (%d empty, %d uniform, %d non-uniform)\n",
		s.Name, s.ChunkSize, s.ChunkCounts, s.Empty, s.Uniform, s.NonUniform)
	fmt.Fprintf(&b, "  %d voxels in %d regions, bounds %v to %v\n", s.Voxels, s.Regions, s.Bounds.Min, s.Bounds.Max)
	fmt.Fprintf(&b, "  mass %.4g, center of mass (%.4g, %.4g, %.4g), principal moments %.4g\n",
		s.Mass, s.CenterOfMass.X, s.CenterOfMass.Y, s.CenterOfMass.Z, s.PrincipalMoments)
	for _, name := range sortedNames(s.VoxelsByType) {
		fmt.Fprintf(&b, "  %-10s %d\n", name, s.VoxelsByType[name])
	}
	return b.String()
}

// RunInspect loads a voxel object file and computes statistics for every
// object in it.
func RunInspect(ctx context.Context, env *Env, path string) ([]ObjectStats, error) {
	entries, err := voxfile.Load(ctx, env.Pool, path)
	if err != nil {
		return nil, err
	}
	stats := make([]ObjectStats, 0, len(entries))
	for _, e := range entries {
		o := e.Object
		s := ObjectStats{
			Name:         e.Name,
			ChunkSize:    o.ChunkSize(),
			ChunkCounts:  o.ChunkCounts(),
			Voxels:       o.NonEmptyVoxelCount(),
			Regions:      o.CountRegions(),
			VoxelsByType: make(map[string]int64),
		}
		s.Empty, s.Uniform, s.NonUniform = o.ChunkKindCounts()
		s.Bounds, _ = o.AABB()

		inertia := o.TrackInertialProperties(env.Registry.MassDensities())
		s.Mass = inertia.Mass()
		if s.Mass > 0 {
			s.CenterOfMass = inertia.CenterOfMass()
			s.PrincipalMoments, _, _ = inertia.PrincipalMoments()
		}
		for t := 0; t < voxel.MaxVoxelTypes; t++ {
			n := inertia.VoxelCount(voxel.VoxelType(t))
			if n == 0 {
				continue
			}
			name := fmt.Sprintf("type %d", t)
			if spec, err := env.Registry.Spec(voxel.VoxelType(t)); err == nil {
				name = spec.Name
			}
			s.VoxelsByType[name] = n
		}
		stats = append(stats, s)
	}
	return stats, nil
}
