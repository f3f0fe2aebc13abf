package meta

// DataType is the kind of value flowing along a link. Undefined is used while
// a port's type cannot yet be determined, and is compatible with everything.
type DataType uint8

const (
	Undefined DataType = iota
	SingleSDF
	SDFGroup
	Instances
)

func (t DataType) String() string {
	switch t {
	case SingleSDF:
		return "SDF"
	case SDFGroup:
		return "SDF group"
	case Instances:
		return "Instances"
	}
	return "Not determined"
}

// ConnectionAllowed reports whether an output of type output may feed an
// input port of type input. A group port also takes a single SDF.
func ConnectionAllowed(input, output DataType) bool {
	switch {
	case input == Undefined || output == Undefined:
		return true
	case input == SingleSDF:
		return output == SingleSDF
	case input == SDFGroup:
		return output == SingleSDF || output == SDFGroup
	case input == Instances:
		return output == Instances
	}
	return false
}

// ChildPortKind is what a child port declares it accepts.
type ChildPortKind uint8

const (
	ChildSingleSDF ChildPortKind = iota
	ChildSDFGroup
	ChildInstances
	ChildAny
)

func (k ChildPortKind) dataType() DataType {
	switch k {
	case ChildSingleSDF:
		return SingleSDF
	case ChildSDFGroup:
		return SDFGroup
	case ChildInstances:
		return Instances
	}
	return Undefined
}

// ParentPortKind is what a node declares it outputs. With SameAsInput the
// output takes the type of whatever is linked to child slot Slot.
type ParentPortKind struct {
	Fixed       DataType
	SameAsInput bool
	Slot        int
}

func fixedOutput(t DataType) ParentPortKind { return ParentPortKind{Fixed: t} }

func sameAsInput(slot int) ParentPortKind { return ParentPortKind{SameAsInput: true, Slot: slot} }

type inferOp struct {
	resolve bool
	id      NodeID
}

// inferDataTypes assigns input and output data types to every node. It runs a
// depth-first pass from each node without parent links, resolving a node only
// after all of its children. Nodes reachable from several parents are resolved
// once.
func (g *Graph) inferDataTypes() {
	resolved := make(map[NodeID]bool, len(g.nodes))
	// Nodes with parents are pushed first so that the parentless roots are
	// expanded before them; the rest only matters for nodes stuck in a cycle.
	var stack, roots []inferOp
	for _, id := range g.IDs() {
		if g.nodes[id].hasParent() {
			stack = append(stack, inferOp{id: id})
		} else {
			roots = append(roots, inferOp{id: id})
		}
	}
	stack = append(stack, roots...)
	for len(stack) > 0 {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := g.nodes[op.id]
		if !ok {
			continue
		}
		if !op.resolve {
			if resolved[op.id] {
				continue
			}
			resolved[op.id] = true
			stack = append(stack, inferOp{resolve: true, id: op.id})
			for _, l := range node.ChildLinks {
				if l != nil {
					stack = append(stack, inferOp{id: l.ToNode})
				}
			}
			continue
		}
		g.resolveDataTypes(node)
	}
}

func (g *Graph) childOutput(node *Node, slot int) (DataType, bool) {
	if slot >= len(node.ChildLinks) || node.ChildLinks[slot] == nil {
		return Undefined, false
	}
	child, ok := g.nodes[node.ChildLinks[slot].ToNode]
	if !ok {
		return Undefined, false
	}
	return child.OutputType, true
}

func (g *Graph) resolveDataTypes(node *Node) {
	ports := node.Kind.ChildPorts()
	node.InputTypes = make([]DataType, len(ports))
	for slot, port := range ports {
		if port == ChildAny {
			node.InputTypes[slot], _ = g.childOutput(node, slot)
		} else {
			node.InputTypes[slot] = port.dataType()
		}
	}
	parent := node.Kind.ParentPort()
	switch {
	case node.Kind == KindOutput:
		node.OutputType = Undefined
	case !parent.SameAsInput:
		node.OutputType = parent.Fixed
	default:
		out, linked := g.childOutput(node, parent.Slot)
		if linked && ConnectionAllowed(node.InputTypes[parent.Slot], out) {
			node.OutputType = out
		} else {
			node.OutputType = Undefined
		}
	}
}
