package sdf

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// OutsideDistance is written for points the generator knows to be outside
// every node domain.
const OutsideDistance = float32(math.MaxFloat32)

func (gen *Generator) IsEmpty() bool {
	return len(gen.instructions) == 0
}

// Domain returns the root space box outside which every distance is positive.
func (gen *Generator) Domain() AABB {
	return gen.domain
}

// StackDepth is the number of block buffers a Scratch needs for this generator.
func (gen *Generator) StackDepth() int {
	return gen.stackDepth
}

// Scratch holds the signed distance stack for evaluating one block.
type Scratch struct {
	size  int
	stack [][]float32
}

func NewScratch(size, depth int) *Scratch {
	s := &Scratch{size: size, stack: make([][]float32, max(depth, 1))}
	for i := range s.stack {
		s.stack[i] = make([]float32, size*size*size)
	}
	return s
}

func (s *Scratch) Size() int {
	return s.size
}

func (s *Scratch) ensureDepth(depth int) {
	for len(s.stack) < depth {
		s.stack = append(s.stack, make([]float32, s.size*s.size*s.size))
	}
}

// ScratchPool hands out scratch stacks; a stack is held exclusively between
// Get and Put.
type ScratchPool struct {
	mu    sync.Mutex
	size  int
	depth int
	free  []*Scratch
}

func NewScratchPool(size, depth int) *ScratchPool {
	return &ScratchPool{size: size, depth: depth}
}

func (p *ScratchPool) Get() *Scratch {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s
	}
	return NewScratch(p.size, p.depth)
}

func (p *ScratchPool) Put(s *Scratch) {
	if s == nil || s.size != p.size {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, s)
	p.mu.Unlock()
}

// EvaluateBlock computes root space signed distances for the size³ points
// modelToRoot·(origin + (i, j, k)), stored at (i*size+j)*size+k. It returns
// the distances and whether any evaluation took place; a block that misses
// the domain is filled with OutsideDistance.
func (gen *Generator) EvaluateBlock(s *Scratch, origin mgl32.Vec3, modelToRoot mgl32.Mat4) ([]float32, bool) {
	size := s.size
	out := s.stack[0]
	if gen.IsEmpty() || !gen.blockTouchesDomain(origin, size, modelToRoot) {
		fill(out, OutsideDistance)
		return out, false
	}
	s.ensureDepth(gen.stackDepth)

	top := -1
	for i := range gen.instructions {
		inst := &gen.instructions[i]
		m := inst.toNode.Mul4(modelToRoot)
		start := mgl32.TransformCoordinate(origin, m)
		dx, dy, dz := m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()

		switch inst.op {
		case opPrimitive:
			top++
			buf := s.stack[top]
			forBlock(size, start, dx, dy, dz, func(idx int, p mgl32.Vec3) {
				buf[idx] = primitiveDistance(inst, p) * inst.scale
			})
		case opModify:
			buf := s.stack[top]
			forBlock(size, start, dx, dy, dz, func(idx int, p mgl32.Vec3) {
				buf[idx] = modifyDistance(inst, p, buf[idx])
			})
		case opCombine:
			b := s.stack[top]
			top--
			a := s.stack[top]
			k := combineSmoothness(inst.node) * inst.scale
			combine := combineFunc(inst.node)
			for idx := range a {
				a[idx] = combine(a[idx], b[idx], k)
			}
		}
	}
	if top != 0 {
		panic("sdf: unbalanced instruction stack")
	}
	return s.stack[0], true
}

// Evaluate returns the root space signed distance at p.
func (gen *Generator) Evaluate(p mgl32.Vec3) float32 {
	if gen.IsEmpty() {
		return OutsideDistance
	}
	stack := make([]float32, 0, gen.stackDepth)
	for i := range gen.instructions {
		inst := &gen.instructions[i]
		q := mgl32.TransformCoordinate(p, inst.toNode)
		switch inst.op {
		case opPrimitive:
			stack = append(stack, primitiveDistance(inst, q)*inst.scale)
		case opModify:
			stack[len(stack)-1] = modifyDistance(inst, q, stack[len(stack)-1])
		case opCombine:
			n := len(stack)
			k := combineSmoothness(inst.node) * inst.scale
			stack[n-2] = combineFunc(inst.node)(stack[n-2], stack[n-1], k)
			stack = stack[:n-1]
		}
	}
	return stack[0]
}

// Gradient estimates the gradient at p with central differences of step h.
func (gen *Generator) Gradient(p mgl32.Vec3, h float32) mgl32.Vec3 {
	var g mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		var e mgl32.Vec3
		e[axis] = h
		g[axis] = (gen.Evaluate(p.Add(e)) - gen.Evaluate(p.Sub(e))) / (2 * h)
	}
	return g
}

func (gen *Generator) blockTouchesDomain(origin mgl32.Vec3, size int, modelToRoot mgl32.Mat4) bool {
	last := float32(size - 1)
	block := AABB{Min: origin, Max: origin.Add(mgl32.Vec3{last, last, last})}
	return block.Transformed(modelToRoot).Intersects(gen.domain.Expanded(1))
}

func forBlock(size int, start, dx, dy, dz mgl32.Vec3, f func(idx int, p mgl32.Vec3)) {
	idx := 0
	for i := 0; i < size; i++ {
		pi := start.Add(dx.Mul(float32(i)))
		for j := 0; j < size; j++ {
			pj := pi.Add(dy.Mul(float32(j)))
			for k := 0; k < size; k++ {
				f(idx, pj.Add(dz.Mul(float32(k))))
				idx++
			}
		}
	}
}

func primitiveDistance(inst *instruction, p mgl32.Vec3) float32 {
	switch n := inst.node.(type) {
	case Sphere:
		return p.Len() - n.Radius
	case Box:
		return boxDistance(p, n.Extents.Mul(0.5))
	case GradientNoise:
		inBox := boxDistance(p, n.Extents.Mul(0.5))
		q := p.Mul(n.Frequency)
		return max(inBox, n.Threshold-inst.noise.Eval3(q[0], q[1], q[2]))
	}
	return OutsideDistance
}

func modifyDistance(inst *instruction, p mgl32.Vec3, d float32) float32 {
	switch n := inst.node.(type) {
	case MultifractalNoise:
		return d + FBM(inst.noise, p, n.Octaves, n.Frequency, n.Lacunarity, n.Persistence)*inst.fbm*inst.scale
	case MultiscaleSphere:
		return inst.multi.modify(p, d/inst.scale) * inst.scale
	}
	return d
}

func boxDistance(p, half mgl32.Vec3) float32 {
	q := mgl32.Vec3{abs32(p[0]) - half[0], abs32(p[1]) - half[1], abs32(p[2]) - half[2]}
	outside := mgl32.Vec3{max(q[0], 0), max(q[1], 0), max(q[2], 0)}
	return outside.Len() + min(max(q[0], q[1], q[2]), 0)
}

func combineSmoothness(node Node) float32 {
	switch n := node.(type) {
	case Union:
		return n.Smoothness
	case Subtraction:
		return n.Smoothness
	case Intersection:
		return n.Smoothness
	}
	return 0
}

func combineFunc(node Node) func(d1, d2, k float32) float32 {
	switch node.(type) {
	case Subtraction:
		return SmoothSubtraction
	case Intersection:
		return SmoothIntersection
	}
	return SmoothUnion
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}
