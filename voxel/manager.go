package voxel

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

type ObjectID uint64

type AbsorberID uint64

// VoxelObjectEntity is an object placed in the world together with its mesh.
type VoxelObjectEntity struct {
	ID           ObjectID
	Object       *ChunkedVoxelObject
	Mesh         *ChunkedVoxelObjectMesh
	ModelToWorld mgl64.Mat4
}

// NewVoxelObjectEntity describes a piece split off Parent during a step.
type NewVoxelObjectEntity struct {
	Parent ObjectID
	Entity *VoxelObjectEntity
}

type sphereAbsorber struct {
	shape        VoxelAbsorbingSphere
	shapeToWorld mgl64.Mat4
	tracker      *AbsorptionTracker
}

type capsuleAbsorber struct {
	shape        VoxelAbsorbingCapsule
	shapeToWorld mgl64.Mat4
	tracker      *AbsorptionTracker
}

// Manager owns voxel object entities and absorbers and advances them one
// step at a time. Callbacks run on the goroutine calling Step.
type Manager struct {
	pool     *pool.Pool
	objects  map[ObjectID]*VoxelObjectEntity
	spheres  map[AbsorberID]*sphereAbsorber
	capsules map[AbsorberID]*capsuleAbsorber
	nextID   uint64

	OnNewVoxelObjectEntity   func(NewVoxelObjectEntity)
	OnEmptyVoxelObjectEntity func(ObjectID)
}

// NewManager returns a manager running refresh work on p, which may be nil.
func NewManager(p *pool.Pool) *Manager {
	return &Manager{
		pool:     p,
		objects:  make(map[ObjectID]*VoxelObjectEntity),
		spheres:  make(map[AbsorberID]*sphereAbsorber),
		capsules: make(map[AbsorberID]*capsuleAbsorber),
	}
}

func (m *Manager) newID() uint64 {
	m.nextID++
	return m.nextID
}

// AddObject refreshes and meshes the object and places it in the world.
func (m *Manager) AddObject(ctx context.Context, o *ChunkedVoxelObject, modelToWorld mgl64.Mat4) (*VoxelObjectEntity, error) {
	if err := o.RefreshDerivedState(ctx, m.pool); err != nil {
		return nil, err
	}
	e := &VoxelObjectEntity{
		ID:           ObjectID(m.newID()),
		Object:       o,
		Mesh:         NewChunkedVoxelObjectMesh(o),
		ModelToWorld: modelToWorld,
	}
	m.objects[e.ID] = e
	return e, nil
}

func (m *Manager) Object(id ObjectID) (*VoxelObjectEntity, error) {
	e, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: voxel object %d", voxerr.ErrNotFound, id)
	}
	return e, nil
}

func (m *Manager) RemoveObject(id ObjectID) error {
	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("%w: voxel object %d", voxerr.ErrNotFound, id)
	}
	delete(m.objects, id)
	return nil
}

// ObjectIDs lists the current objects in ascending order.
func (m *Manager) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *Manager) AddAbsorbingSphere(s VoxelAbsorbingSphere, shapeToWorld mgl64.Mat4) (AbsorberID, error) {
	if err := s.validate(); err != nil {
		return 0, err
	}
	id := AbsorberID(m.newID())
	m.spheres[id] = &sphereAbsorber{shape: s, shapeToWorld: shapeToWorld, tracker: newAbsorptionTracker()}
	return id, nil
}

func (m *Manager) AddAbsorbingCapsule(c VoxelAbsorbingCapsule, shapeToWorld mgl64.Mat4) (AbsorberID, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	id := AbsorberID(m.newID())
	m.capsules[id] = &capsuleAbsorber{shape: c, shapeToWorld: shapeToWorld, tracker: newAbsorptionTracker()}
	return id, nil
}

// SetAbsorberTransform moves a sphere or capsule absorber.
func (m *Manager) SetAbsorberTransform(id AbsorberID, shapeToWorld mgl64.Mat4) error {
	if s, ok := m.spheres[id]; ok {
		s.shapeToWorld = shapeToWorld
		return nil
	}
	if c, ok := m.capsules[id]; ok {
		c.shapeToWorld = shapeToWorld
		return nil
	}
	return fmt.Errorf("%w: absorber %d", voxerr.ErrNotFound, id)
}

func (m *Manager) RemoveAbsorber(id AbsorberID) {
	delete(m.spheres, id)
	delete(m.capsules, id)
}

// AbsorptionTracker returns what the absorber has taken so far.
func (m *Manager) AbsorptionTracker(id AbsorberID) (*AbsorptionTracker, error) {
	if s, ok := m.spheres[id]; ok {
		return s.tracker, nil
	}
	if c, ok := m.capsules[id]; ok {
		return c.tracker, nil
	}
	return nil, fmt.Errorf("%w: absorber %d", voxerr.ErrNotFound, id)
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Step advances absorption by dt seconds. For every object it applies the
// absorbers, refreshes derived state, patches the mesh, applies the
// inertial property changes and finally splits off one disconnected piece
// if there is any. Objects left effectively empty are removed.
func (m *Manager) Step(ctx context.Context, dt float64) error {
	for _, id := range m.ObjectIDs() {
		if err := m.stepObject(ctx, m.objects[id], dt); err != nil {
			return fmt.Errorf("step voxel object %d: %w", id, err)
		}
	}
	return nil
}

func (m *Manager) stepObject(ctx context.Context, e *VoxelObjectEntity, dt float64) error {
	o := e.Object
	worldToModel := e.ModelToWorld.Inv()
	var updater *InertialPropertyUpdater
	if o.inertia != nil {
		updater = o.inertia.Updater()
	}

	for _, id := range sortedKeys(m.spheres) {
		a := m.spheres[id]
		toModel := worldToModel.Mul4(a.shapeToWorld)
		center := mgl64.TransformCoordinate(a.shape.Offset, toModel)
		visit := o.absorbVisitor(a.shape.Rate*dt, a.tracker, updater)
		o.ModifyVoxelsWithinSphere(Sphere{Center: center, Radius: a.shape.Radius}, visit)
	}
	for _, id := range sortedKeys(m.capsules) {
		a := m.capsules[id]
		toModel := worldToModel.Mul4(a.shapeToWorld)
		start := mgl64.TransformCoordinate(a.shape.SegmentStart, toModel)
		end := mgl64.TransformCoordinate(a.shape.SegmentStart.Add(a.shape.Segment), toModel)
		visit := o.absorbVisitor(a.shape.Rate*dt, a.tracker, updater)
		o.ModifyVoxelsWithinCapsule(start, end.Sub(start), a.shape.Radius, visit)
	}
	if !o.HasDirtyChunks() {
		return nil
	}

	if err := o.RefreshDerivedState(ctx, m.pool); err != nil {
		return err
	}
	e.Mesh.Sync(o)
	if updater != nil {
		updater.Apply()
	}

	if o.IsEffectivelyEmpty() {
		delete(m.objects, e.ID)
		slog.Debug("voxel object emptied", "id", e.ID)
		if m.OnEmptyVoxelObjectEntity != nil {
			m.OnEmptyVoxelObjectEntity(e.ID)
		}
		return nil
	}

	piece, err := o.SplitOffAnyDisconnectedRegion(ctx, m.pool)
	if err != nil || piece == nil {
		return err
	}
	e.Mesh.Sync(o)
	offset := piece.originOffset
	for a := 0; a < 3; a++ {
		offset[a] -= o.originOffset[a]
	}
	ev := o.voxelExtent
	child := &VoxelObjectEntity{
		ID:     ObjectID(m.newID()),
		Object: piece,
		Mesh:   NewChunkedVoxelObjectMesh(piece),
		ModelToWorld: e.ModelToWorld.Mul4(mgl64.Translate3D(
			float64(offset[0])*ev, float64(offset[1])*ev, float64(offset[2])*ev)),
	}
	m.objects[child.ID] = child
	slog.Debug("voxel object split", "parent", e.ID, "child", child.ID)
	if m.OnNewVoxelObjectEntity != nil {
		m.OnNewVoxelObjectEntity(NewVoxelObjectEntity{Parent: e.ID, Entity: child})
	}
	return nil
}
