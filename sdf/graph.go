package sdf

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

// maxInstructions bounds the tree expansion of heavily shared DAGs.
const maxInstructions = 1 << 20

// Graph is an atomic SDF DAG. Nodes may only reference nodes added before
// them, which keeps the graph acyclic.
type Graph struct {
	nodes []Node
}

func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a node and returns its ID.
func (g *Graph) AddNode(node Node) NodeID {
	g.nodes = append(g.nodes, node)
	return NodeID(len(g.nodes) - 1)
}

func (g *Graph) Nodes() []Node {
	return g.nodes
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id NodeID) Node {
	return g.nodes[id]
}

// Root returns the ID of the unique Output node.
func (g *Graph) Root() (NodeID, error) {
	root := -1
	for i, n := range g.nodes {
		if _, ok := n.(Output); ok {
			if root >= 0 {
				return 0, errors.New("graph has more than one output node")
			}
			root = i
		}
	}
	if root < 0 {
		return 0, errors.New("graph has no output node")
	}
	return NodeID(root), nil
}

type opcode uint8

const (
	opPrimitive opcode = iota
	opModify
	opCombine
)

// instruction evaluates one node for the tree expansion of the DAG.
// toNode maps root space to the node's space and scale converts node space
// distances back to root space.
type instruction struct {
	op     opcode
	node   Node
	toNode mgl32.Mat4
	scale  float32
	noise  opensimplex.Noise32
	fbm    float32
	multi  *multiscaleParams
}

// Generator is a compiled graph ready for evaluation. It holds no per-chunk
// state and is safe for concurrent use.
type Generator struct {
	instructions []instruction
	stackDepth   int
	domain       AABB
}

// Build validates the graph and compiles it into a Generator. An empty
// graph yields an empty generator.
func (g *Graph) Build() (*Generator, error) {
	if len(g.nodes) == 0 {
		return &Generator{domain: emptyAABB()}, nil
	}
	for i, n := range g.nodes {
		if err := validateNode(n); err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, n.Label(), err)
		}
		for _, c := range n.Children() {
			if int(c) >= i {
				return nil, fmt.Errorf("node %d (%s) references node %d that was not added before it", i, n.Label(), c)
			}
		}
	}
	root, err := g.Root()
	if err != nil {
		return nil, err
	}
	return g.compile(root)
}

// BuildNode compiles the subgraph rooted at id into a Generator whose root
// space is the space id's parent would see. The graph needs no Output node.
func (g *Graph) BuildNode(id NodeID) (*Generator, error) {
	if int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("node %d does not exist", id)
	}
	for i, n := range g.nodes[:id+1] {
		if err := validateNode(n); err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, n.Label(), err)
		}
	}
	return g.compile(id)
}

// Domain returns the bounding box of the node's non-positive region in the
// space of its parent.
func (g *Graph) Domain(id NodeID) AABB {
	box, _ := g.domain(id)
	return box
}

func (g *Graph) compile(root NodeID) (*Generator, error) {
	c := compiler{graph: g, noises: make(map[NodeID]opensimplex.Noise32)}
	if err := c.expand(root, mgl32.Ident4(), 1); err != nil {
		return nil, err
	}
	domain, _ := g.domain(root)
	return &Generator{instructions: c.instructions, stackDepth: c.maxDepth, domain: domain}, nil
}

type compiler struct {
	graph        *Graph
	instructions []instruction
	depth        int
	maxDepth     int
	noises       map[NodeID]opensimplex.Noise32
}

func (c *compiler) noise(id NodeID, seed uint32) opensimplex.Noise32 {
	if n, ok := c.noises[id]; ok {
		return n
	}
	n := NewNoise(seed)
	c.noises[id] = n
	return n
}

func (c *compiler) emit(inst instruction, depthChange int) error {
	if len(c.instructions) >= maxInstructions {
		return errors.New("graph expands to too many instructions")
	}
	c.instructions = append(c.instructions, inst)
	c.depth += depthChange
	c.maxDepth = max(c.maxDepth, c.depth)
	return nil
}

func (c *compiler) expand(id NodeID, toNode mgl32.Mat4, scale float32) error {
	node := c.graph.nodes[id]
	base := instruction{node: node, toNode: toNode, scale: scale}
	switch n := node.(type) {
	case Output:
		return c.expand(n.Child, toNode, scale)
	case Translation:
		t := mgl32.Translate3D(-n.Offset[0], -n.Offset[1], -n.Offset[2])
		return c.expand(n.Child, t.Mul4(toNode), scale)
	case Rotation:
		r := n.Rotation.Normalize().Inverse().Mat4()
		return c.expand(n.Child, r.Mul4(toNode), scale)
	case Scaling:
		inv := 1 / n.Factor
		return c.expand(n.Child, mgl32.Scale3D(inv, inv, inv).Mul4(toNode), scale*n.Factor)
	case Box, Sphere:
		base.op = opPrimitive
		return c.emit(base, 1)
	case GradientNoise:
		base.op = opPrimitive
		base.noise = c.noise(id, n.Seed)
		return c.emit(base, 1)
	case MultifractalNoise:
		if err := c.expand(n.Child, toNode, scale); err != nil {
			return err
		}
		base.op = opModify
		base.noise = c.noise(id, n.Seed)
		if amp := maxFBMAmplitude(n.Octaves, n.Persistence); amp != 0 {
			base.fbm = n.Amplitude / amp
		}
		return c.emit(base, 0)
	case MultiscaleSphere:
		if err := c.expand(n.Child, toNode, scale); err != nil {
			return err
		}
		p := newMultiscaleParams(n)
		base.op = opModify
		base.multi = &p
		return c.emit(base, 0)
	case Union, Subtraction, Intersection:
		children := n.Children()
		if err := c.expand(children[0], toNode, scale); err != nil {
			return err
		}
		if err := c.expand(children[1], toNode, scale); err != nil {
			return err
		}
		base.op = opCombine
		return c.emit(base, -1)
	}
	return fmt.Errorf("unsupported node type %T", node)
}

// domain returns the box, in the node's own space, outside which the node's
// distance is positive, along with the number of leaves beneath it.
func (g *Graph) domain(id NodeID) (AABB, uint32) {
	memo := make(map[NodeID]domainEntry)
	return g.domainMemo(id, memo)
}

type domainEntry struct {
	box    AABB
	leaves uint32
}

func (g *Graph) domainMemo(id NodeID, memo map[NodeID]domainEntry) (AABB, uint32) {
	if e, ok := memo[id]; ok {
		return e.box, e.leaves
	}
	var box AABB
	var leaves uint32
	switch n := g.nodes[id].(type) {
	case Box:
		box, leaves = centeredAABB(n.Extents.Mul(0.5)), 1
	case Sphere:
		box, leaves = centeredAABB(mgl32.Vec3{n.Radius, n.Radius, n.Radius}), 1
	case GradientNoise:
		box, leaves = centeredAABB(n.Extents.Mul(0.5)), 1
	case Output:
		box, leaves = g.domainMemo(n.Child, memo)
	case Translation:
		box, leaves = g.domainMemo(n.Child, memo)
		box = box.Translated(n.Offset)
	case Rotation:
		box, leaves = g.domainMemo(n.Child, memo)
		box = box.Transformed(n.Rotation.Normalize().Mat4())
	case Scaling:
		box, leaves = g.domainMemo(n.Child, memo)
		box = box.Scaled(n.Factor)
	case MultifractalNoise:
		box, leaves = g.domainMemo(n.Child, memo)
		box = box.Expanded(n.Amplitude)
	case MultiscaleSphere:
		box, leaves = g.domainMemo(n.Child, memo)
		p := newMultiscaleParams(n)
		box = box.Expanded(p.domainExpansion())
	case Union:
		a, la := g.domainMemo(n.Child1, memo)
		b, lb := g.domainMemo(n.Child2, memo)
		leaves = la + lb
		box = a.Union(b).Expanded(softCombinePadding(n.Smoothness, leaves))
	case Subtraction:
		a, la := g.domainMemo(n.Child1, memo)
		_, lb := g.domainMemo(n.Child2, memo)
		leaves = la + lb
		box = a.Expanded(softCombinePadding(n.Smoothness, leaves))
	case Intersection:
		a, la := g.domainMemo(n.Child1, memo)
		b, lb := g.domainMemo(n.Child2, memo)
		leaves = la + lb
		box = a.Overlap(b).Expanded(softCombinePadding(n.Smoothness, leaves))
	default:
		box = emptyAABB()
	}
	memo[id] = domainEntry{box: box, leaves: leaves}
	return box, leaves
}
