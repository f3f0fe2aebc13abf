package utils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// CarveParams places a spherical absorber in world space and runs the
// absorption for Steps steps of DT seconds.
type CarveParams struct {
	Center mgl64.Vec3
	Radius float64
	Rate   float64
	Steps  int
	DT     float64
	// Capsule, when non-zero, turns the absorber into a capsule from Center
	// to Center+Capsule.
	Capsule mgl64.Vec3
}

// CarveReport sums what one carve run did.
type CarveReport struct {
	Absorbed map[string]voxel.AbsorbedVoxels
	Split    int
	Emptied  int
}

func (r CarveReport) String() string {
	s := fmt.Sprintf("%d pieces split off, %d objects emptied\n", r.Split, r.Emptied)
	for _, name := range sortedNames(r.Absorbed) {
		a := r.Absorbed[name]
		s += fmt.Sprintf("  %-10s %6d voxels %10.3f volume\n", name, a.Count, a.Volume)
	}
	return s
}

// RunCarve loads a voxel object file, applies one absorber to all of its
// objects and writes every object left, split-off pieces included.
func RunCarve(ctx context.Context, env *Env, inPath, outPath string, params CarveParams) (CarveReport, error) {
	entries, err := voxfile.Load(ctx, env.Pool, inPath)
	if err != nil {
		return CarveReport{}, err
	}
	m := voxel.NewManager(env.Pool)
	report := CarveReport{Absorbed: make(map[string]voxel.AbsorbedVoxels)}
	names := make(map[voxel.ObjectID]string)
	m.OnNewVoxelObjectEntity = func(e voxel.NewVoxelObjectEntity) {
		report.Split++
		names[e.Entity.ID] = fmt.Sprintf("%s.%d", names[e.Parent], e.Entity.ID)
	}
	m.OnEmptyVoxelObjectEntity = func(voxel.ObjectID) { report.Emptied++ }

	densities := env.Registry.MassDensities()
	for _, e := range entries {
		e.Object.TrackInertialProperties(densities)
		ent, err := m.AddObject(ctx, e.Object, e.ModelToWorld)
		if err != nil {
			return CarveReport{}, err
		}
		names[ent.ID] = e.Name
	}

	var id voxel.AbsorberID
	if params.Capsule == (mgl64.Vec3{}) {
		id, err = m.AddAbsorbingSphere(voxel.VoxelAbsorbingSphere{Radius: params.Radius, Rate: params.Rate}, mgl64.Translate3D(params.Center[0], params.Center[1], params.Center[2]))
	} else {
		id, err = m.AddAbsorbingCapsule(voxel.VoxelAbsorbingCapsule{SegmentStart: params.Center, Segment: params.Capsule, Radius: params.Radius, Rate: params.Rate}, mgl64.Ident4())
	}
	if err != nil {
		return CarveReport{}, err
	}
	for step := 0; step < params.Steps; step++ {
		if err := m.Step(ctx, params.DT); err != nil {
			return CarveReport{}, err
		}
		slog.Debug("carve step", "step", step, "objects", len(m.ObjectIDs()))
	}

	tracker, err := m.AbsorptionTracker(id)
	if err != nil {
		return CarveReport{}, err
	}
	for _, t := range tracker.Types() {
		a := tracker.Absorbed(t)
		name := fmt.Sprintf("type %d", t)
		if spec, err := env.Registry.Spec(t); err == nil {
			name = spec.Name
		}
		report.Absorbed[name] = a
	}

	var out []voxfile.Entry
	for _, oid := range m.ObjectIDs() {
		e, err := m.Object(oid)
		if err != nil {
			return CarveReport{}, err
		}
		out = append(out, voxfile.Entry{Name: names[oid], Object: e.Object, ModelToWorld: e.ModelToWorld})
	}
	return report, writeEntries(outPath, out, env)
}
