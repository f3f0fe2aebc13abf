package meta

import (
	"bytes"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// IONode is the serialized form of a node.
type IONode struct {
	ID          NodeID     `yaml:"id"`
	Position    [2]float32 `yaml:"position,flow"`
	Name        string     `yaml:"name,omitempty"`
	Kind        string     `yaml:"kind"`
	Params      []Param    `yaml:"params"`
	ParentLinks []*Link    `yaml:"links_to_parents"`
	ChildLinks  []*Link    `yaml:"links_to_children"`
}

// FullView is the editor camera state of a whole graph.
type FullView struct {
	Pan  [2]float32 `yaml:"pan,flow"`
	Zoom float32    `yaml:"zoom"`
}

// Subgraph marks a file holding a part of a graph below Root.
type Subgraph struct {
	Root NodeID `yaml:"root"`
}

// IOGraph is a serialized graph. Exactly one of Full and Subgraph is set.
type IOGraph struct {
	Full      *FullView `yaml:"full,omitempty"`
	Subgraph  *Subgraph `yaml:"subgraph,omitempty"`
	Nodes     []IONode  `yaml:"nodes"`
	Collapsed []NodeID  `yaml:"collapsed,omitempty,flow"`
}

func (r *IOGraph) validate() error {
	if (r.Full == nil) == (r.Subgraph == nil) {
		return fmt.Errorf("graph must be either full or a subgraph: %w", voxerr.ErrConfigurationInvalid)
	}
	ids := make(map[NodeID]bool, len(r.Nodes))
	for _, n := range r.Nodes {
		ids[n.ID] = true
	}
	if r.Subgraph != nil && !ids[r.Subgraph.Root] {
		return fmt.Errorf("subgraph root %d is not among its nodes: %w", r.Subgraph.Root, voxerr.ErrConfigurationInvalid)
	}
	for _, id := range r.Collapsed {
		if !ids[id] {
			return fmt.Errorf("collapsed node %d is not among the nodes: %w", id, voxerr.ErrConfigurationInvalid)
		}
	}
	return nil
}

// NewIOGraph serializes a whole graph with the given view.
func NewIOGraph(g *Graph, view FullView, collapsed ...NodeID) *IOGraph {
	return &IOGraph{Full: &view, Nodes: g.ToIO(), Collapsed: slices.Sorted(slices.Values(collapsed))}
}

// Graph validates the records and builds the graph.
func (r *IOGraph) Graph() (*Graph, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return FromIO(r.Nodes)
}

// Marshal renders the record as YAML.
func (r *IOGraph) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalIOGraph parses YAML produced by Marshal. Unknown fields are
// rejected.
func UnmarshalIOGraph(data []byte) (*IOGraph, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var r IOGraph
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode graph: %v: %w", err, voxerr.ErrConfigurationInvalid)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
