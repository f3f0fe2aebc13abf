package meta

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/lars-frogner/Impact-sub013/sdf"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

const (
	surfaceIterations = 5
	surfaceTolerance  = 0.25
	// Gradients are sampled one voxel apart.
	gradientStep = 0.5
)

// Compiled is the result of lowering a meta graph.
type Compiled struct {
	Graph       *sdf.Graph
	VoxelExtent float32
}

// Generator builds the atomic graph for evaluation.
func (c *Compiled) Generator() (*sdf.Generator, error) {
	gen, err := c.Graph.Build()
	if err != nil {
		return nil, fmt.Errorf("build atomic graph: %w", err)
	}
	return gen, nil
}

// value is what a meta node lowers to. An empty value carries no SDF or
// instances and is dropped by whatever consumes it.
type value struct {
	typ       DataType
	single    sdf.NodeID
	hasSingle bool
	group     []sdf.NodeID
	instances []Instance
}

func singleValue(id sdf.NodeID) value {
	return value{typ: SingleSDF, single: id, hasSingle: true}
}

// sdfs lists the atomic nodes of a single or group value.
func (v value) sdfs() []sdf.NodeID {
	switch v.typ {
	case SingleSDF:
		if v.hasSingle {
			return []sdf.NodeID{v.single}
		}
	case SDFGroup:
		return v.group
	}
	return nil
}

// mapSDFs applies f to every atomic node of v, keeping v's type. Nodes for
// which f reports false are dropped.
func (v value) mapSDFs(f func(sdf.NodeID) (sdf.NodeID, bool)) value {
	switch v.typ {
	case SingleSDF:
		if !v.hasSingle {
			return v
		}
		id, ok := f(v.single)
		if !ok {
			return value{typ: SingleSDF}
		}
		return singleValue(id)
	case SDFGroup:
		out := value{typ: SDFGroup}
		for _, id := range v.group {
			if id, ok := f(id); ok {
				out.group = append(out.group, id)
			}
		}
		return out
	}
	return v
}

func (v value) mapInstances(f func(Instance) (Instance, bool)) value {
	out := value{typ: Instances}
	for _, inst := range v.instances {
		if inst, ok := f(inst); ok {
			out.instances = append(out.instances, inst)
		}
	}
	return out
}

type lowering struct {
	graph  *Graph
	atomic *sdf.Graph
	values map[NodeID]value
}

type lowerState uint8

const (
	unvisited lowerState = iota
	visitingChildren
	lowered
)

type lowerOp struct {
	process bool
	id      NodeID
}

// Compile infers data types, checks every link reachable from the Output
// node and lowers those nodes to an atomic SDF graph. Each meta node is
// lowered once and its atomic nodes are shared by all of its parents. An
// unlinked Output yields an empty graph.
func (g *Graph) Compile() (*Compiled, error) {
	root, err := g.Output()
	if err != nil {
		return nil, err
	}
	g.inferDataTypes()
	extent := g.nodes[root].Params[0].Float()

	l := lowering{graph: g, atomic: sdf.NewGraph(), values: make(map[NodeID]value)}
	states := make(map[NodeID]lowerState)
	stack := []lowerOp{{id: root}}
	for len(stack) > 0 {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := g.nodes[op.id]
		if op.process {
			states[op.id] = lowered
			v, err := l.lower(op.id, node)
			if err != nil {
				return nil, fmt.Errorf("node %d (%s): %w", op.id, node.Kind, err)
			}
			l.values[op.id] = v
			continue
		}
		switch states[op.id] {
		case lowered:
			continue
		case visitingChildren:
			return nil, fmt.Errorf("node %d is part of a cycle: %w", op.id, voxerr.ErrConfigurationInvalid)
		}
		states[op.id] = visitingChildren
		stack = append(stack, lowerOp{process: true, id: op.id})
		for slot := len(node.ChildLinks) - 1; slot >= 0; slot-- {
			link := node.ChildLinks[slot]
			if link == nil {
				continue
			}
			child := g.nodes[link.ToNode]
			if !ConnectionAllowed(node.InputTypes[slot], child.OutputType) {
				return nil, fmt.Errorf("node %d slot %d expects %s but node %d outputs %s: %w",
					op.id, slot, node.InputTypes[slot], link.ToNode, child.OutputType, voxerr.ErrConfigurationInvalid)
			}
			stack = append(stack, lowerOp{id: link.ToNode})
		}
	}

	out := l.input(g.nodes[root], 0)
	if link := g.nodes[root].ChildLinks[0]; link != nil && g.nodes[link.ToNode].OutputType == Undefined {
		return nil, fmt.Errorf("output of node %d has no defined data type: %w", link.ToNode, voxerr.ErrConfigurationInvalid)
	}
	if !out.hasSingle {
		// Nothing reaches the output, so nothing that was emitted is used.
		slog.Debug("meta graph lowered to nothing", "meta_nodes", len(l.values))
		return &Compiled{Graph: sdf.NewGraph(), VoxelExtent: extent}, nil
	}
	l.atomic.AddNode(sdf.Output{Child: out.single})
	slog.Debug("compiled meta graph", "meta_nodes", len(l.values), "atomic_nodes", l.atomic.Len())
	return &Compiled{Graph: l.atomic, VoxelExtent: extent}, nil
}

// input returns the lowered value linked to a child slot, or an empty value
// of the slot's type.
func (l *lowering) input(node *Node, slot int) value {
	link := node.ChildLinks[slot]
	if link == nil {
		return value{typ: node.InputTypes[slot]}
	}
	return l.values[link.ToNode]
}

func (l *lowering) add(n sdf.Node) sdf.NodeID {
	return l.atomic.AddNode(n)
}

func (l *lowering) lower(id NodeID, node *Node) (value, error) {
	p := node.Params
	if node.OutputType == Undefined {
		return value{}, nil
	}
	switch node.Kind {
	case KindBox:
		return singleValue(l.add(sdf.Box{Extents: vec3(p[0:3])})), nil

	case KindSphere:
		return singleValue(l.add(sdf.Sphere{Radius: p[0].Float()})), nil

	case KindGradientNoise:
		return singleValue(l.add(sdf.GradientNoise{
			Extents:   vec3(p[0:3]),
			Frequency: p[3].Float(),
			Threshold: p[4].Float(),
			Seed:      p[5].UInt(),
		})), nil

	case KindTranslation:
		offset := vec3(p[0:3])
		op := identityInstance()
		op.Translation = offset
		return l.transform(node, op, func(c sdf.NodeID) sdf.Node {
			return sdf.Translation{Child: c, Offset: offset}
		}), nil

	case KindRotation:
		q := mgl32.AnglesToQuat(p[2].Float(), p[1].Float(), p[0].Float(), mgl32.ZYX)
		op := identityInstance()
		op.Rotation = q
		return l.transform(node, op, func(c sdf.NodeID) sdf.Node {
			return sdf.Rotation{Child: c, Rotation: q}
		}), nil

	case KindScaling:
		f := p[0].Float()
		op := identityInstance()
		op.Scale = f
		return l.transform(node, op, func(c sdf.NodeID) sdf.Node {
			return sdf.Scaling{Child: c, Factor: f}
		}), nil

	case KindMultifractalNoise:
		in := l.input(node, 0)
		if p[0].UInt() == 0 || p[4].Float() == 0 {
			return in, nil
		}
		return in.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
			return l.add(sdf.MultifractalNoise{
				Child:       c,
				Octaves:     p[0].UInt(),
				Frequency:   p[1].Float(),
				Lacunarity:  p[2].Float(),
				Persistence: p[3].Float(),
				Amplitude:   p[4].Float(),
				Seed:        p[5].UInt(),
			}), true
		}), nil

	case KindMultiscaleSphere:
		in := l.input(node, 0)
		if p[0].UInt() == 0 || p[1].Float() == 0 || p[2].Float() == 0 {
			return in, nil
		}
		return in.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
			return l.add(sdf.MultiscaleSphere{
				Child:                  c,
				Octaves:                p[0].UInt(),
				MaxScale:               p[1].Float(),
				Persistence:            p[2].Float(),
				Inflation:              p[3].Float(),
				IntersectionSmoothness: p[4].Float(),
				UnionSmoothness:        p[5].Float(),
				Seed:                   p[6].UInt(),
			}), true
		}), nil

	case KindUnion, KindSubtraction, KindIntersection:
		return l.combine(node, p[0].Float()), nil

	case KindGroupUnion:
		root, ok := l.unionTree(l.input(node, 0).sdfs(), p[0].Float())
		if !ok {
			return value{typ: SingleSDF}, nil
		}
		return singleValue(root), nil

	case KindStratifiedPlacement:
		return value{typ: Instances, instances: stratifiedPlacement(p, nodeRNG(id, node.Kind, p[9].UInt()))}, nil

	case KindTranslationToSurface:
		return l.toSurface(node)

	case KindRotationToGradient:
		return l.toGradient(node)

	case KindScattering:
		out := value{typ: SDFGroup}
		instances := l.input(node, 1).instances
		for _, c := range l.input(node, 0).sdfs() {
			for _, inst := range instances {
				out.group = append(out.group, l.applyInstance(c, inst))
			}
		}
		return out, nil

	case KindStochasticSelection:
		prob := p[0].Float()
		rng := nodeRNG(id, node.Kind, p[1].UInt())
		in := l.input(node, 0)
		if in.typ == Instances {
			return in.mapInstances(func(inst Instance) (Instance, bool) {
				return inst, rng.Float32() < prob
			}), nil
		}
		return in.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
			return c, rng.Float32() < prob
		}), nil
	}
	return value{}, fmt.Errorf("%s cannot be lowered: %w", node.Kind, voxerr.ErrConfigurationInvalid)
}

func vec3(p []Param) mgl32.Vec3 {
	return mgl32.Vec3{p[0].Float(), p[1].Float(), p[2].Float()}
}

// transform wraps SDF inputs in an atomic transform node and composes
// instance inputs with op according to the node's composition mode.
func (l *lowering) transform(node *Node, op Instance, wrap func(sdf.NodeID) sdf.Node) value {
	in := l.input(node, 0)
	if in.typ == Instances {
		mode := node.Params[len(node.Params)-1].Enum()
		return in.mapInstances(func(inst Instance) (Instance, bool) {
			return compose(mode, op, inst), true
		})
	}
	return in.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
		return l.add(wrap(c)), true
	})
}

// combine lowers a binary node. A group in the first slot fans out into one
// atomic binary node per member. A group in the second slot is paired member
// by member with an equally long first group, otherwise it is first merged
// into a single SDF with a union.
func (l *lowering) combine(node *Node, k float32) value {
	a, b := l.input(node, 0), l.input(node, 1)
	if a.typ == SDFGroup && b.typ == SDFGroup && len(a.group) == len(b.group) {
		out := value{typ: SDFGroup}
		for i := range a.group {
			if id, ok := l.binary(node.Kind, a.group[i], true, b.group[i], true, k); ok {
				out.group = append(out.group, id)
			}
		}
		return out
	}
	bID, bOK := b.single, b.hasSingle
	if b.typ == SDFGroup {
		bID, bOK = l.unionTree(b.group, k)
	}
	if a.typ == SDFGroup {
		return a.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
			return l.binary(node.Kind, c, true, bID, bOK, k)
		})
	}
	id, ok := l.binary(node.Kind, a.single, a.hasSingle, bID, bOK, k)
	if !ok {
		return value{typ: SingleSDF}
	}
	return singleValue(id)
}

// binary emits one combination, treating a missing operand the way the
// combination treats an empty set.
func (l *lowering) binary(kind Kind, a sdf.NodeID, aOK bool, b sdf.NodeID, bOK bool, k float32) (sdf.NodeID, bool) {
	switch kind {
	case KindUnion:
		switch {
		case aOK && bOK:
			return l.add(sdf.Union{Child1: a, Child2: b, Smoothness: k}), true
		case aOK:
			return a, true
		}
		return b, bOK
	case KindSubtraction:
		switch {
		case aOK && bOK:
			return l.add(sdf.Subtraction{Child1: a, Child2: b, Smoothness: k}), true
		case aOK:
			return a, true
		}
		return 0, false
	default:
		if aOK && bOK {
			return l.add(sdf.Intersection{Child1: a, Child2: b, Smoothness: k}), true
		}
		return 0, false
	}
}

// unionTree joins ids with a balanced tree of unions.
func (l *lowering) unionTree(ids []sdf.NodeID, k float32) (sdf.NodeID, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	queue := append([]sdf.NodeID(nil), ids...)
	for len(queue) > 1 {
		a, b := queue[0], queue[1]
		queue = append(queue[2:], l.add(sdf.Union{Child1: a, Child2: b, Smoothness: k}))
	}
	return queue[0], true
}

// applyInstance places an atomic SDF with an instance transform, emitting
// only the non-identity parts.
func (l *lowering) applyInstance(c sdf.NodeID, inst Instance) sdf.NodeID {
	if !mgl32.FloatEqual(inst.Scale, 1) {
		c = l.add(sdf.Scaling{Child: c, Factor: inst.Scale})
	}
	if !inst.Rotation.ApproxEqual(mgl32.QuatIdent()) {
		c = l.add(sdf.Rotation{Child: c, Rotation: inst.Rotation})
	}
	if !inst.Translation.ApproxEqual(mgl32.Vec3{}) {
		c = l.add(sdf.Translation{Child: c, Offset: inst.Translation})
	}
	return c
}

// surfaceGenerator compiles the SDF in the first slot of a placement node. It
// returns nil when that slot is empty.
func (l *lowering) surfaceGenerator(node *Node) (*sdf.Generator, error) {
	surface := l.input(node, 0)
	if !surface.hasSingle {
		return nil, nil
	}
	gen, err := l.atomic.BuildNode(surface.single)
	if err != nil {
		return nil, fmt.Errorf("build surface SDF: %w", err)
	}
	return gen, nil
}

// toSurface moves each subject so that its center lands on the surface of
// the SDF in the first slot. Subjects for which no direction towards the
// surface can be found are dropped.
func (l *lowering) toSurface(node *Node) (value, error) {
	subject := l.input(node, 1)
	gen, err := l.surfaceGenerator(node)
	if gen == nil || err != nil {
		return subject, err
	}
	if subject.typ == Instances {
		return subject.mapInstances(func(inst Instance) (Instance, bool) {
			delta, ok := translationToSurface(gen, inst.Translation)
			inst.Translation = inst.Translation.Add(delta)
			return inst, ok
		}), nil
	}
	return subject.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
		delta, ok := translationToSurface(gen, l.atomic.Domain(c).Center())
		if !ok {
			return 0, false
		}
		return l.add(sdf.Translation{Child: c, Offset: delta}), true
	}), nil
}

// toGradient rotates each subject about its center so that its y-axis points
// along the gradient of the SDF in the first slot.
func (l *lowering) toGradient(node *Node) (value, error) {
	subject := l.input(node, 1)
	gen, err := l.surfaceGenerator(node)
	if gen == nil || err != nil {
		return subject, err
	}
	up := mgl32.Vec3{0, 1, 0}
	if subject.typ == Instances {
		return subject.mapInstances(func(inst Instance) (Instance, bool) {
			q, ok := rotationToGradient(gen, inst.Translation, inst.Rotation.Rotate(up))
			inst.Rotation = q.Mul(inst.Rotation).Normalize()
			return inst, ok
		}), nil
	}
	return subject.mapSDFs(func(c sdf.NodeID) (sdf.NodeID, bool) {
		center := l.atomic.Domain(c).Center()
		q, ok := rotationToGradient(gen, center, up)
		if !ok {
			return 0, false
		}
		c = l.add(sdf.Translation{Child: c, Offset: center.Mul(-1)})
		c = l.add(sdf.Rotation{Child: c, Rotation: q})
		return l.add(sdf.Translation{Child: c, Offset: center}), true
	}), nil
}

// translationToSurface runs a few Newton steps from p towards the zero level
// set and returns the total displacement.
func translationToSurface(gen *sdf.Generator, p mgl32.Vec3) (mgl32.Vec3, bool) {
	q := p
	for i := 0; i < surfaceIterations; i++ {
		d := gen.Evaluate(q)
		grad := gen.Gradient(q, gradientStep)
		n2 := grad.LenSqr()
		if n2 < 1e-8 || math.IsInf(float64(d), 0) || d == sdf.OutsideDistance {
			return mgl32.Vec3{}, false
		}
		q = q.Sub(grad.Mul(d / n2))
		if abs32(d) <= surfaceTolerance {
			break
		}
	}
	return q.Sub(p), true
}

func rotationToGradient(gen *sdf.Generator, p, axis mgl32.Vec3) (mgl32.Quat, bool) {
	grad := gen.Gradient(p, gradientStep)
	if grad.LenSqr() < 1e-16 || axis.LenSqr() < 1e-16 {
		return mgl32.QuatIdent(), false
	}
	return mgl32.QuatBetweenVectors(axis.Normalize(), grad.Normalize()), true
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// stratifiedPlacement places points on a grid centered on the origin, with a
// random number of points per cell, each jittered within its cell and given a
// random uniform scale.
func stratifiedPlacement(p []Param, rng *rand.Rand) []Instance {
	shape := [3]uint32{p[0].UInt(), p[1].UInt(), p[2].UInt()}
	cell := vec3(p[3:6])
	lo, hi := p[6].UIntRange()
	jitter := p[7].Float()
	scaleLo, scaleHi := p[8].FloatRange()

	var start mgl32.Vec3
	for a := 0; a < 3; a++ {
		start[a] = -0.5*float32(shape[a])*cell[a] + 0.5*cell[a]
	}
	var out []Instance
	for i := uint32(0); i < shape[0]; i++ {
		for j := uint32(0); j < shape[1]; j++ {
			for k := uint32(0); k < shape[2]; k++ {
				center := start.Add(mgl32.Vec3{float32(i) * cell[0], float32(j) * cell[1], float32(k) * cell[2]})
				count := lo + uint32(rng.Uint64N(uint64(hi-lo)+1))
				for n := uint32(0); n < count; n++ {
					inst := identityInstance()
					for a := 0; a < 3; a++ {
						inst.Translation[a] = center[a] + (rng.Float32()-0.5)*jitter*cell[a]
					}
					inst.Scale = scaleLo + rng.Float32()*(scaleHi-scaleLo)
					out = append(out, inst)
				}
			}
		}
	}
	return out
}

// nodeRNG seeds a generator from the node's identity and seed parameter, so
// the same saved graph always lowers to the same atomic graph.
func nodeRNG(id NodeID, kind Kind, seed uint32) *rand.Rand {
	var buf [13]byte
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint64(buf[1:], uint64(id))
	binary.LittleEndian.PutUint32(buf[9:], seed)
	return rand.New(rand.NewPCG(xxhash.Sum64(buf[:]), uint64(seed)))
}
