// Package meta holds the editor-level SDF graph: typed nodes with parameters
// and links, the inference of the data types flowing along links, and the
// lowering of the graph to an atomic sdf.Graph.
package meta

import (
	"fmt"
	"maps"
	"slices"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

type NodeID uint64

// Link points at a slot on another node. In a child link ToSlot is the
// parent port slot of the child; in a parent link it is the child port slot
// on the parent.
type Link struct {
	ToNode NodeID `yaml:"to_node"`
	ToSlot int    `yaml:"to_slot"`
}

// Node is a validated meta node. ChildLinks has one entry per child port of
// the kind, nil where unlinked.
type Node struct {
	Name        string
	Kind        Kind
	Params      []Param
	Position    [2]float32
	ParentLinks []*Link
	ChildLinks  []*Link

	OutputType DataType
	InputTypes []DataType
}

func (n *Node) hasParent() bool {
	for _, l := range n.ParentLinks {
		if l != nil {
			return true
		}
	}
	return false
}

// Graph is a set of meta nodes keyed by ID.
type Graph struct {
	nodes  map[NodeID]*Node
	nextID NodeID
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// IDs returns the node IDs in ascending order.
func (g *Graph) IDs() []NodeID {
	return slices.Sorted(maps.Keys(g.nodes))
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id NodeID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("meta node %d: %w", id, voxerr.ErrNotFound)
	}
	return n, nil
}

// Add inserts a node of the given kind with default parameters and returns
// its ID.
func (g *Graph) Add(kind Kind, name string) NodeID {
	id := g.nextID
	g.nextID++
	n := &Node{
		Name:       name,
		Kind:       kind,
		Params:     kind.DefaultParams(),
		ChildLinks: make([]*Link, len(kind.ChildPorts())),
	}
	if !kind.IsRoot() {
		n.ParentLinks = []*Link{nil}
	}
	g.nodes[id] = n
	g.inferDataTypes()
	return id
}

// SetParam replaces parameter i of a node after checking it against the
// kind's declaration.
func (g *Graph) SetParam(id NodeID, i int, p Param) error {
	n, err := g.Node(id)
	if err != nil {
		return err
	}
	specs := n.Kind.ParamSpecs()
	if i < 0 || i >= len(specs) {
		return fmt.Errorf("%s has no param %d: %w", n.Kind, i, voxerr.ErrConfigurationInvalid)
	}
	p, err = specs[i].conform(p)
	if err != nil {
		return err
	}
	n.Params[i] = p
	return nil
}

// Connect links child's output to the given child slot of parent. The
// connection must be allowed by the current data types of both ends.
func (g *Graph) Connect(parent NodeID, slot int, child NodeID) error {
	p, err := g.Node(parent)
	if err != nil {
		return err
	}
	c, err := g.Node(child)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= len(p.ChildLinks) {
		return fmt.Errorf("%s has no child slot %d: %w", p.Kind, slot, voxerr.ErrConfigurationInvalid)
	}
	if p.ChildLinks[slot] != nil {
		return fmt.Errorf("child slot %d of node %d is already linked: %w", slot, parent, voxerr.ErrConfigurationInvalid)
	}
	if c.Kind.IsRoot() {
		return fmt.Errorf("output node cannot be a child: %w", voxerr.ErrConfigurationInvalid)
	}
	if !ConnectionAllowed(p.InputTypes[slot], c.OutputType) {
		return fmt.Errorf("cannot connect %s output of node %d to %s input of node %d: %w",
			c.OutputType, child, p.InputTypes[slot], parent, voxerr.ErrConfigurationInvalid)
	}
	if g.reaches(child, parent) {
		return fmt.Errorf("linking node %d under node %d would form a cycle: %w", child, parent, voxerr.ErrConfigurationInvalid)
	}
	up := &Link{ToNode: parent, ToSlot: slot}
	parentSlot := len(c.ParentLinks)
	if parentSlot == 1 && c.ParentLinks[0] == nil {
		parentSlot = 0
		c.ParentLinks[0] = up
	} else {
		c.ParentLinks = append(c.ParentLinks, up)
	}
	p.ChildLinks[slot] = &Link{ToNode: child, ToSlot: parentSlot}
	g.inferDataTypes()
	return nil
}

// reaches reports whether to is from or one of its descendants.
func (g *Graph) reaches(from, to NodeID) bool {
	seen := make(map[NodeID]bool)
	stack := []NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, l := range g.nodes[id].ChildLinks {
			if l != nil {
				stack = append(stack, l.ToNode)
			}
		}
	}
	return false
}

// Output returns the ID of the unique Output node.
func (g *Graph) Output() (NodeID, error) {
	var out []NodeID
	for _, id := range g.IDs() {
		if g.nodes[id].Kind.IsRoot() {
			out = append(out, id)
		}
	}
	switch len(out) {
	case 0:
		return 0, fmt.Errorf("graph has no output node: %w", voxerr.ErrConfigurationInvalid)
	case 1:
		return out[0], nil
	}
	return 0, fmt.Errorf("graph has %d output nodes: %w", len(out), voxerr.ErrConfigurationInvalid)
}

// VoxelExtent returns the voxel extent set on the Output node.
func (g *Graph) VoxelExtent() (float32, error) {
	id, err := g.Output()
	if err != nil {
		return 0, err
	}
	return g.nodes[id].Params[0].Float(), nil
}

// nodeFromIO validates a serialized node against its kind's declaration.
func nodeFromIO(r IONode) (*Node, error) {
	kind, err := KindByName(r.Kind)
	if err != nil {
		return nil, err
	}
	specs := kind.ParamSpecs()
	if len(r.Params) != len(specs) {
		return nil, fmt.Errorf("%s takes %d params, got %d: %w", kind, len(specs), len(r.Params), voxerr.ErrConfigurationInvalid)
	}
	params := make([]Param, len(specs))
	for i, s := range specs {
		if params[i], err = s.conform(r.Params[i]); err != nil {
			return nil, err
		}
	}
	if want := len(kind.ChildPorts()); len(r.ChildLinks) != want {
		return nil, fmt.Errorf("%s has %d child slots, got %d: %w", kind, want, len(r.ChildLinks), voxerr.ErrConfigurationInvalid)
	}
	switch {
	case kind.IsRoot() && len(r.ParentLinks) != 0:
		return nil, fmt.Errorf("output node cannot have parent links: %w", voxerr.ErrConfigurationInvalid)
	case !kind.IsRoot() && len(r.ParentLinks) == 0:
		return nil, fmt.Errorf("%s node is missing its parent link: %w", kind, voxerr.ErrConfigurationInvalid)
	case len(r.ParentLinks) > 1 && slices.Contains(r.ParentLinks, nil):
		// An unlinked node has exactly one nil parent link.
		return nil, fmt.Errorf("%s node mixes empty and linked parent slots: %w", kind, voxerr.ErrConfigurationInvalid)
	}
	return &Node{
		Name:        r.Name,
		Kind:        kind,
		Params:      params,
		Position:    r.Position,
		ParentLinks: cloneLinks(r.ParentLinks),
		ChildLinks:  cloneLinks(r.ChildLinks),
	}, nil
}

func cloneLinks(links []*Link) []*Link {
	out := make([]*Link, len(links))
	for i, l := range links {
		if l != nil {
			c := *l
			out[i] = &c
		}
	}
	return out
}

// FromIO builds a graph from its serialized nodes, validating every node and
// every link, and infers data types.
func FromIO(nodes []IONode) (*Graph, error) {
	g := NewGraph()
	for _, r := range nodes {
		if _, dup := g.nodes[r.ID]; dup {
			return nil, fmt.Errorf("duplicate node ID %d: %w", r.ID, voxerr.ErrConfigurationInvalid)
		}
		n, err := nodeFromIO(r)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", r.ID, err)
		}
		g.nodes[r.ID] = n
		g.nextID = max(g.nextID, r.ID+1)
	}
	for id, n := range g.nodes {
		for _, l := range slices.Concat(n.ParentLinks, n.ChildLinks) {
			if l == nil {
				continue
			}
			if _, ok := g.nodes[l.ToNode]; !ok {
				return nil, fmt.Errorf("node %d links to missing node %d: %w", id, l.ToNode, voxerr.ErrConfigurationInvalid)
			}
		}
		for slot, l := range n.ChildLinks {
			if l == nil {
				continue
			}
			if g.nodes[l.ToNode].Kind.IsRoot() {
				return nil, fmt.Errorf("node %d slot %d links to an output node: %w", id, slot, voxerr.ErrConfigurationInvalid)
			}
			if !linksBack(g.nodes[l.ToNode].ParentLinks, l.ToSlot, id, slot) {
				return nil, fmt.Errorf("child link of node %d slot %d has no matching parent link on node %d: %w", id, slot, l.ToNode, voxerr.ErrConfigurationInvalid)
			}
		}
		for slot, l := range n.ParentLinks {
			if l != nil && !linksBack(g.nodes[l.ToNode].ChildLinks, l.ToSlot, id, slot) {
				return nil, fmt.Errorf("parent link %d of node %d has no matching child link on node %d: %w", slot, id, l.ToNode, voxerr.ErrConfigurationInvalid)
			}
		}
	}
	if id, ok := g.findCycle(); ok {
		return nil, fmt.Errorf("node %d is its own descendant: %w", id, voxerr.ErrConfigurationInvalid)
	}
	g.inferDataTypes()
	return g, nil
}

// linksBack reports whether links[slot] points at node to, slot toSlot.
func linksBack(links []*Link, slot int, to NodeID, toSlot int) bool {
	if slot < 0 || slot >= len(links) || links[slot] == nil {
		return false
	}
	return *links[slot] == Link{ToNode: to, ToSlot: toSlot}
}

// findCycle returns a node that reaches itself through child links.
func (g *Graph) findCycle() (NodeID, bool) {
	for _, id := range g.IDs() {
		for _, l := range g.nodes[id].ChildLinks {
			if l != nil && g.reaches(l.ToNode, id) {
				return id, true
			}
		}
	}
	return 0, false
}

// ToIO serializes the nodes in ascending ID order.
func (g *Graph) ToIO() []IONode {
	out := make([]IONode, 0, len(g.nodes))
	for _, id := range g.IDs() {
		n := g.nodes[id]
		out = append(out, IONode{
			ID:          id,
			Position:    n.Position,
			Name:        n.Name,
			Kind:        n.Kind.Name(),
			Params:      slices.Clone(n.Params),
			ParentLinks: cloneLinks(n.ParentLinks),
			ChildLinks:  cloneLinks(n.ChildLinks),
		})
	}
	return out
}
