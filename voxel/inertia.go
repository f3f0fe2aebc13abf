package voxel

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// inertialSums holds the mass, first moment and second moment integrals of
// a body about the reference point of its frame.
type inertialSums struct {
	mass  float64
	first r3.Vec
	// diag holds ∫x², ∫y², ∫z² and off ∫xy, ∫yz, ∫zx, all times density.
	diag r3.Vec
	off  r3.Vec
}

// boxSums integrates a box [lo, hi] of uniform density exactly.
func boxSums(lo, hi r3.Vec, density float64) inertialSums {
	ext := r3.Sub(hi, lo)
	sq := r3.Vec{X: hi.X*hi.X - lo.X*lo.X, Y: hi.Y*hi.Y - lo.Y*lo.Y, Z: hi.Z*hi.Z - lo.Z*lo.Z}
	cu := r3.Vec{
		X: hi.X*hi.X*hi.X - lo.X*lo.X*lo.X,
		Y: hi.Y*hi.Y*hi.Y - lo.Y*lo.Y*lo.Y,
		Z: hi.Z*hi.Z*hi.Z - lo.Z*lo.Z*lo.Z,
	}
	return inertialSums{
		mass:  density * ext.X * ext.Y * ext.Z,
		first: r3.Vec{X: 0.5 * density * sq.X * ext.Y * ext.Z, Y: 0.5 * density * sq.Y * ext.X * ext.Z, Z: 0.5 * density * sq.Z * ext.X * ext.Y},
		diag:  r3.Vec{X: density * cu.X * ext.Y * ext.Z / 3, Y: density * cu.Y * ext.X * ext.Z / 3, Z: density * cu.Z * ext.X * ext.Y / 3},
		off:   r3.Vec{X: 0.25 * density * sq.X * sq.Y * ext.Z, Y: 0.25 * density * sq.Y * sq.Z * ext.X, Z: 0.25 * density * sq.Z * sq.X * ext.Y},
	}
}

func (s *inertialSums) add(o inertialSums) {
	s.mass += o.mass
	s.first = r3.Add(s.first, o.first)
	s.diag = r3.Add(s.diag, o.diag)
	s.off = r3.Add(s.off, o.off)
}

func (s *inertialSums) sub(o inertialSums) {
	s.mass -= o.mass
	s.first = r3.Sub(s.first, o.first)
	s.diag = r3.Sub(s.diag, o.diag)
	s.off = r3.Sub(s.off, o.off)
}

// shifted expresses the sums about a reference point moved by d.
func (s inertialSums) shifted(d r3.Vec) inertialSums {
	m, f := s.mass, s.first
	return inertialSums{
		mass:  m,
		first: r3.Sub(f, r3.Scale(m, d)),
		diag: r3.Vec{
			X: s.diag.X - 2*d.X*f.X + m*d.X*d.X,
			Y: s.diag.Y - 2*d.Y*f.Y + m*d.Y*d.Y,
			Z: s.diag.Z - 2*d.Z*f.Z + m*d.Z*d.Z,
		},
		off: r3.Vec{
			X: s.off.X - d.X*f.Y - d.Y*f.X + m*d.X*d.Y,
			Y: s.off.Y - d.Y*f.Z - d.Z*f.Y + m*d.Y*d.Z,
			Z: s.off.Z - d.Z*f.X - d.X*f.Z + m*d.Z*d.X,
		},
	}
}

// InertialPropertyManager keeps running mass integrals over the voxels of
// an object in object space.
type InertialPropertyManager struct {
	voxelExtent float64
	densities   []float64
	counts      [MaxVoxelTypes]int64
	sums        inertialSums
}

// NewInertialPropertyManager returns an empty manager. densities is
// indexed by voxel type.
func NewInertialPropertyManager(voxelExtent float64, densities []float64) *InertialPropertyManager {
	return &InertialPropertyManager{voxelExtent: voxelExtent, densities: append([]float64(nil), densities...)}
}

func (m *InertialPropertyManager) density(v Voxel) float64 {
	if t := int(v.Type()); t < len(m.densities) {
		return m.densities[t]
	}
	return 0
}

func (m *InertialPropertyManager) blockSums(lo [3]int, size int, v Voxel) inertialSums {
	e := m.voxelExtent
	l := r3.Vec{X: float64(lo[0]) * e, Y: float64(lo[1]) * e, Z: float64(lo[2]) * e}
	s := float64(size) * e
	return boxSums(l, r3.Add(l, r3.Vec{X: s, Y: s, Z: s}), m.density(v))
}

func (m *InertialPropertyManager) AddVoxel(idx [3]int, v Voxel) {
	m.sums.add(m.blockSums(idx, 1, v))
	m.counts[v.Type()]++
}

func (m *InertialPropertyManager) RemoveVoxel(idx [3]int, v Voxel) {
	m.sums.sub(m.blockSums(idx, 1, v))
	m.counts[v.Type()]--
}

// VoxelCount returns the number of tracked voxels of type t.
func (m *InertialPropertyManager) VoxelCount(t VoxelType) int64 {
	if int(t) >= MaxVoxelTypes {
		return 0
	}
	return m.counts[t]
}

// Mass is derived from the per-type voxel counts, which transfers conserve
// exactly.
func (m *InertialPropertyManager) Mass() float64 {
	volume := m.voxelExtent * m.voxelExtent * m.voxelExtent
	mass := 0.0
	for t, c := range m.counts {
		if c != 0 && t < len(m.densities) {
			mass += float64(c) * m.densities[t] * volume
		}
	}
	return mass
}

// FirstMoment is Σ m_i p_i.
func (m *InertialPropertyManager) FirstMoment() r3.Vec {
	return m.sums.first
}

func (m *InertialPropertyManager) CenterOfMass() r3.Vec {
	if m.sums.mass == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/m.sums.mass, m.sums.first)
}

// InertiaTensor returns the inertia tensor about the center of mass.
func (m *InertialPropertyManager) InertiaTensor() *mat.SymDense {
	s := m.sums
	if s.mass != 0 {
		s = s.shifted(m.CenterOfMass())
	}
	return mat.NewSymDense(3, []float64{
		s.diag.Y + s.diag.Z, -s.off.X, -s.off.Z,
		-s.off.X, s.diag.X + s.diag.Z, -s.off.Y,
		-s.off.Z, -s.off.Y, s.diag.X + s.diag.Y,
	})
}

// PrincipalMoments returns the ascending principal moments of inertia and
// the corresponding axes as matrix columns.
func (m *InertialPropertyManager) PrincipalMoments() ([]float64, *mat.Dense, bool) {
	var eig mat.EigenSym
	if !eig.Factorize(m.InertiaTensor(), true) {
		return nil, nil, false
	}
	var axes mat.Dense
	eig.VectorsTo(&axes)
	return eig.Values(nil), &axes, true
}

// OffsetReferencePoint moves the frame origin by d, as when the object's
// voxel grid is re-anchored.
func (m *InertialPropertyManager) OffsetReferencePoint(d r3.Vec) {
	m.sums = m.sums.shifted(d)
}

// TrackInertialProperties computes the inertial properties of the current
// voxels and keeps them updated by later splits.
func (o *ChunkedVoxelObject) TrackInertialProperties(densities []float64) *InertialPropertyManager {
	m := NewInertialPropertyManager(o.voxelExtent, densities)
	n := o.chunkSize
	o.forEachOccupiedChunk(func(ci int, c [3]int) {
		base := [3]int{c[0] * n, c[1] * n, c[2] * n}
		ch := &o.chunks[ci]
		if ch.kind == chunkUniform {
			m.sums.add(m.blockSums(base, n, ch.uniform))
			m.counts[ch.uniform.Type()] += int64(n * n * n)
			return
		}
		li := 0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					if v := ch.data.voxels[li]; v != Empty {
						m.AddVoxel([3]int{base[0] + i, base[1] + j, base[2] + k}, v)
					}
					li++
				}
			}
		}
	})
	o.inertia = m
	return m
}

// InertialProperties returns the tracked properties, or nil.
func (o *ChunkedVoxelObject) InertialProperties() *InertialPropertyManager {
	return o.inertia
}

// InertialPropertyTransferrer moves voxel contributions from one manager
// to another whose grid origin sits at voxelOffset in the source grid.
type InertialPropertyTransferrer struct {
	src, dst    *InertialPropertyManager
	voxelOffset [3]int
}

func NewInertialPropertyTransferrer(src, dst *InertialPropertyManager, voxelOffset [3]int) *InertialPropertyTransferrer {
	return &InertialPropertyTransferrer{src: src, dst: dst, voxelOffset: voxelOffset}
}

func (t *InertialPropertyTransferrer) shift() r3.Vec {
	e := t.src.voxelExtent
	return r3.Vec{X: float64(t.voxelOffset[0]) * e, Y: float64(t.voxelOffset[1]) * e, Z: float64(t.voxelOffset[2]) * e}
}

// TransferVoxel moves one voxel given by its source grid indices.
func (t *InertialPropertyTransferrer) TransferVoxel(idx [3]int, v Voxel) {
	t.transfer(t.src.blockSums(idx, 1, v), v, 1)
}

// TransferBlock moves a uniform size³ block whose first voxel is at lo.
func (t *InertialPropertyTransferrer) TransferBlock(lo [3]int, size int, v Voxel) {
	t.transfer(t.src.blockSums(lo, size, v), v, int64(size*size*size))
}

func (t *InertialPropertyTransferrer) transfer(s inertialSums, v Voxel, count int64) {
	t.src.sums.sub(s)
	t.src.counts[v.Type()] -= count
	t.dst.sums.add(s.shifted(t.shift()))
	t.dst.counts[v.Type()] += count
}

// InertialPropertyUpdater collects voxel changes and applies them to a
// manager in one step.
type InertialPropertyUpdater struct {
	m      *InertialPropertyManager
	delta  inertialSums
	counts map[VoxelType]int64
}

func (m *InertialPropertyManager) Updater() *InertialPropertyUpdater {
	return &InertialPropertyUpdater{m: m, counts: make(map[VoxelType]int64)}
}

func (u *InertialPropertyUpdater) RemoveVoxel(idx [3]int, v Voxel) {
	u.delta.sub(u.m.blockSums(idx, 1, v))
	u.counts[v.Type()]--
}

func (u *InertialPropertyUpdater) AddVoxel(idx [3]int, v Voxel) {
	u.delta.add(u.m.blockSums(idx, 1, v))
	u.counts[v.Type()]++
}

// Apply adds the collected changes to the manager and resets the updater.
func (u *InertialPropertyUpdater) Apply() {
	u.m.sums.add(u.delta)
	for t, c := range u.counts {
		u.m.counts[t] += c
	}
	u.delta = inertialSums{}
	clear(u.counts)
}
