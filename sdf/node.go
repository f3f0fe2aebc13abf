package sdf

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// NodeID indexes a node in a Graph.
type NodeID uint32

// Node is one atomic SDF operation. Children are referenced by NodeID.
type Node interface {
	Children() []NodeID
	Label() string
}

// Box is centered on the origin; Extents are full side lengths in voxels.
type Box struct {
	Extents mgl32.Vec3
}

type Sphere struct {
	Radius float32
}

// GradientNoise fills a centered box with thresholded gradient noise. A point
// is inside where noise >= Threshold.
type GradientNoise struct {
	Extents   mgl32.Vec3
	Frequency float32
	Threshold float32
	Seed      uint32
}

type Translation struct {
	Child  NodeID
	Offset mgl32.Vec3
}

type Rotation struct {
	Child    NodeID
	Rotation mgl32.Quat
}

// Scaling evaluates the child at p/Factor and multiplies the result by Factor.
type Scaling struct {
	Child  NodeID
	Factor float32
}

type MultifractalNoise struct {
	Child       NodeID
	Octaves     uint32
	Frequency   float32
	Lacunarity  float32
	Persistence float32
	Amplitude   float32
	Seed        uint32
}

type MultiscaleSphere struct {
	Child                  NodeID
	Octaves                uint32
	MaxScale               float32
	Persistence            float32
	Inflation              float32
	IntersectionSmoothness float32
	UnionSmoothness        float32
	Seed                   uint32
}

type Union struct {
	Child1, Child2 NodeID
	Smoothness     float32
}

// Subtraction removes Child2 from Child1.
type Subtraction struct {
	Child1, Child2 NodeID
	Smoothness     float32
}

type Intersection struct {
	Child1, Child2 NodeID
	Smoothness     float32
}

// Output marks the root of a graph.
type Output struct {
	Child NodeID
}

func (Box) Children() []NodeID                 { return nil }
func (Sphere) Children() []NodeID              { return nil }
func (GradientNoise) Children() []NodeID       { return nil }
func (n Translation) Children() []NodeID       { return []NodeID{n.Child} }
func (n Rotation) Children() []NodeID          { return []NodeID{n.Child} }
func (n Scaling) Children() []NodeID           { return []NodeID{n.Child} }
func (n MultifractalNoise) Children() []NodeID { return []NodeID{n.Child} }
func (n MultiscaleSphere) Children() []NodeID  { return []NodeID{n.Child} }
func (n Union) Children() []NodeID             { return []NodeID{n.Child1, n.Child2} }
func (n Subtraction) Children() []NodeID       { return []NodeID{n.Child1, n.Child2} }
func (n Intersection) Children() []NodeID      { return []NodeID{n.Child1, n.Child2} }
func (n Output) Children() []NodeID            { return []NodeID{n.Child} }

func (Box) Label() string               { return "Box" }
func (Sphere) Label() string            { return "Sphere" }
func (GradientNoise) Label() string     { return "GradientNoise" }
func (Translation) Label() string       { return "Translation" }
func (Rotation) Label() string          { return "Rotation" }
func (Scaling) Label() string           { return "Scaling" }
func (MultifractalNoise) Label() string { return "MultifractalNoise" }
func (MultiscaleSphere) Label() string  { return "MultiscaleSphere" }
func (Union) Label() string             { return "Union" }
func (Subtraction) Label() string       { return "Subtraction" }
func (Intersection) Label() string      { return "Intersection" }
func (Output) Label() string            { return "Output" }

func validateNode(node Node) error {
	switch n := node.(type) {
	case Box:
		if n.Extents.X() < 0 || n.Extents.Y() < 0 || n.Extents.Z() < 0 {
			return fmt.Errorf("box extents must be non-negative: %v", n.Extents)
		}
	case Sphere:
		if n.Radius < 0 {
			return fmt.Errorf("sphere radius must be non-negative: %g", n.Radius)
		}
	case GradientNoise:
		if n.Extents.X() < 0 || n.Extents.Y() < 0 || n.Extents.Z() < 0 {
			return fmt.Errorf("gradient noise extents must be non-negative: %v", n.Extents)
		}
	case Scaling:
		if !(n.Factor > 0) {
			return fmt.Errorf("scaling factor must be positive: %g", n.Factor)
		}
	case MultiscaleSphere:
		if !(n.MaxScale > 0) {
			return fmt.Errorf("multiscale sphere max scale must be positive: %g", n.MaxScale)
		}
		if !(n.Persistence > 0) {
			return fmt.Errorf("multiscale sphere persistence must be positive: %g", n.Persistence)
		}
	case Union:
		if n.Smoothness < 0 {
			return fmt.Errorf("union smoothness must be non-negative: %g", n.Smoothness)
		}
	case Subtraction:
		if n.Smoothness < 0 {
			return fmt.Errorf("subtraction smoothness must be non-negative: %g", n.Smoothness)
		}
	case Intersection:
		if n.Smoothness < 0 {
			return fmt.Errorf("intersection smoothness must be non-negative: %g", n.Smoothness)
		}
	}
	return nil
}
