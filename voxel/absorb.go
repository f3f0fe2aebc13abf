package voxel

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// VoxelAbsorbingSphere removes voxels within Radius of Offset, both in the
// absorber's own frame. Rate is the health removed per second; a voxel
// starts with a health of one.
type VoxelAbsorbingSphere struct {
	Offset mgl64.Vec3
	Radius float64
	Rate   float64
}

// VoxelAbsorbingCapsule removes voxels within Radius of the segment from
// SegmentStart to SegmentStart+Segment.
type VoxelAbsorbingCapsule struct {
	SegmentStart mgl64.Vec3
	Segment      mgl64.Vec3
	Radius       float64
	Rate         float64
}

func (s VoxelAbsorbingSphere) validate() error {
	if s.Radius < 0 || s.Rate < 0 {
		return fmt.Errorf("%w: absorbing sphere needs non-negative radius and rate", voxerr.ErrConfigurationInvalid)
	}
	return nil
}

func (c VoxelAbsorbingCapsule) validate() error {
	if c.Radius < 0 || c.Rate < 0 {
		return fmt.Errorf("%w: absorbing capsule needs non-negative radius and rate", voxerr.ErrConfigurationInvalid)
	}
	return nil
}

// AbsorbedVoxels counts what an absorber has taken of one voxel type.
type AbsorbedVoxels struct {
	Count  uint32
	Volume float64
}

// AbsorptionTracker accumulates absorbed voxels by type.
type AbsorptionTracker struct {
	byType map[VoxelType]AbsorbedVoxels
}

func newAbsorptionTracker() *AbsorptionTracker {
	return &AbsorptionTracker{byType: make(map[VoxelType]AbsorbedVoxels)}
}

func (t *AbsorptionTracker) register(v Voxel, volume float64) {
	a := t.byType[v.Type()]
	a.Count++
	a.Volume += volume
	t.byType[v.Type()] = a
}

func (t *AbsorptionTracker) Absorbed(vt VoxelType) AbsorbedVoxels {
	return t.byType[vt]
}

// Types lists the absorbed voxel types in ascending order.
func (t *AbsorptionTracker) Types() []VoxelType {
	return sortedKeys(t.byType)
}

// Total sums the absorbed voxels over all types.
func (t *AbsorptionTracker) Total() AbsorbedVoxels {
	var total AbsorbedVoxels
	for _, a := range t.byType {
		total.Count += a.Count
		total.Volume += a.Volume
	}
	return total
}

func (t *AbsorptionTracker) Clear() {
	clear(t.byType)
}

// segmentBand selects voxels whose projection falls strictly inside a
// segment and that lie within radius of it. Together with two end spheres
// it covers a capsule with every voxel selected once.
type segmentBand struct {
	start, dir mgl64.Vec3
	length2    float64
	radius     float64
}

func (b segmentBand) param(p mgl64.Vec3) float64 {
	if b.length2 == 0 {
		return 0
	}
	return p.Sub(b.start).Dot(b.dir) / b.length2
}

func (b segmentBand) bounds() (mgl64.Vec3, mgl64.Vec3) {
	end := b.start.Add(b.dir)
	var lo, hi mgl64.Vec3
	for a := 0; a < 3; a++ {
		lo[a] = min(b.start[a], end[a]) - b.radius
		hi[a] = max(b.start[a], end[a]) + b.radius
	}
	return lo, hi
}

func (b segmentBand) contains(p mgl64.Vec3) bool {
	t := b.param(p)
	if t <= 0 || t >= 1 {
		return false
	}
	closest := b.start.Add(b.dir.Mul(t))
	return p.Sub(closest).LenSqr() <= b.radius*b.radius
}

// capsuleCap selects the part of an end sphere beyond one end of the segment.
type capsuleCap struct {
	Sphere
	band  segmentBand
	upper bool
}

func (c capsuleCap) contains(p mgl64.Vec3) bool {
	if !c.Sphere.contains(p) {
		return false
	}
	t := c.band.param(p)
	if c.upper {
		return t >= 1
	}
	return t <= 0
}

// ModifyVoxelsWithinCapsule visits every voxel whose center lies within
// radius of the segment [start, start+segment], as two end caps and the
// cylindrical band between them.
func (o *ChunkedVoxelObject) ModifyVoxelsWithinCapsule(start, segment mgl64.Vec3, radius float64, visit VoxelVisitor) {
	band := segmentBand{start: start, dir: segment, length2: segment.LenSqr(), radius: radius}
	if band.length2 == 0 {
		o.ModifyVoxelsWithinSphere(Sphere{Center: start, Radius: radius}, visit)
		return
	}
	o.modifyVoxelsWithin(capsuleCap{Sphere: Sphere{Center: start, Radius: radius}, band: band}, visit)
	o.modifyVoxelsWithin(band, visit)
	o.modifyVoxelsWithin(capsuleCap{Sphere: Sphere{Center: start.Add(segment), Radius: radius}, band: band, upper: true}, visit)
}

// absorbVisitor damages every visited voxel by amount and removes those
// whose accumulated damage reaches one.
func (o *ChunkedVoxelObject) absorbVisitor(amount float64, tracker *AbsorptionTracker, updater *InertialPropertyUpdater) VoxelVisitor {
	volume := o.voxelExtent * o.voxelExtent * o.voxelExtent
	return func(idx [3]int, _ mgl64.Vec3, v *Voxel) {
		if *v == Empty || amount <= 0 {
			return
		}
		key := o.linearVoxelIndex(idx)
		damage := o.damage[key] + amount
		if damage < 1 {
			o.damage[key] = damage
			return
		}
		delete(o.damage, key)
		tracker.register(*v, volume)
		if updater != nil {
			updater.RemoveVoxel(idx, *v)
		}
		*v = Empty
	}
}
