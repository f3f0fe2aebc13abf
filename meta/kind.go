package meta

import (
	"fmt"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// Kind identifies what a meta node does.
type Kind uint8

const (
	KindOutput Kind = iota
	KindBox
	KindSphere
	KindGradientNoise
	KindTranslation
	KindRotation
	KindScaling
	KindMultifractalNoise
	KindMultiscaleSphere
	KindUnion
	KindSubtraction
	KindIntersection
	KindGroupUnion
	KindStratifiedPlacement
	KindTranslationToSurface
	KindRotationToGradient
	KindScattering
	KindStochasticSelection
	kindCount
)

// Group is the palette category a kind is listed under.
type Group uint8

const (
	GroupRoot Group = iota
	GroupPrimitive
	GroupTransform
	GroupModification
	GroupCombination
	GroupPlacement
	GroupMasking
)

const (
	DefaultVoxelExtent = 0.25
	MinVoxelExtent     = 0.005
)

// Composition selects which side an instance transform is applied on.
const (
	composePre  = "Pre"
	composePost = "Post"
)

type kindInfo struct {
	name     string
	label    string
	group    Group
	children []ChildPortKind
	parent   ParentPortKind
	params   []ParamSpec
}

func compositionSpec() ParamSpec {
	return enumSpec("Composition", composePost, composePre, composePost)
}

var (
	leafSDF   = fixedOutput(SingleSDF)
	unaryAny  = []ChildPortKind{ChildAny}
	unarySDF  = []ChildPortKind{ChildSDFGroup}
	binarySDF = []ChildPortKind{ChildSDFGroup, ChildSDFGroup}
)

var kinds = [kindCount]kindInfo{
	KindOutput: {
		name: "output", label: "Output", group: GroupRoot,
		children: []ChildPortKind{ChildSingleSDF},
		params:   []ParamSpec{floatSpec("Voxel extent", DefaultVoxelExtent).atLeast(MinVoxelExtent)},
	},
	KindBox: {
		name: "box", label: "Box", group: GroupPrimitive, parent: leafSDF,
		params: []ParamSpec{
			floatSpec("Extent x", 62).atLeast(0),
			floatSpec("Extent y", 62).atLeast(0),
			floatSpec("Extent z", 62).atLeast(0),
		},
	},
	KindSphere: {
		name: "sphere", label: "Sphere", group: GroupPrimitive, parent: leafSDF,
		params: []ParamSpec{floatSpec("Radius", 31).atLeast(0)},
	},
	KindGradientNoise: {
		name: "gradient_noise", label: "Gradient noise", group: GroupPrimitive, parent: leafSDF,
		params: []ParamSpec{
			floatSpec("Extent x", 62).atLeast(0),
			floatSpec("Extent y", 62).atLeast(0),
			floatSpec("Extent z", 62).atLeast(0),
			floatSpec("Frequency", 0.05).atLeast(0).atMost(1),
			floatSpec("Threshold", 0).atLeast(-1).atMost(1),
			uintSpec("Seed", 0),
		},
	},
	KindTranslation: {
		name: "translation", label: "Translation", group: GroupTransform,
		children: unaryAny, parent: sameAsInput(0),
		params: []ParamSpec{
			floatSpec("In x", 0),
			floatSpec("In y", 0),
			floatSpec("In z", 0),
			compositionSpec(),
		},
	},
	KindRotation: {
		name: "rotation", label: "Rotation", group: GroupTransform,
		children: unaryAny, parent: sameAsInput(0),
		params: []ParamSpec{
			floatSpec("Roll", 0),
			floatSpec("Pitch", 0),
			floatSpec("Yaw", 0),
			compositionSpec(),
		},
	},
	KindScaling: {
		name: "scaling", label: "Scaling", group: GroupTransform,
		children: unaryAny, parent: sameAsInput(0),
		params: []ParamSpec{
			floatSpec("Factor", 1).atLeast(1e-3),
			compositionSpec(),
		},
	},
	KindMultifractalNoise: {
		name: "multifractal_noise", label: "Multifractal noise", group: GroupModification,
		children: unarySDF, parent: sameAsInput(0),
		params: []ParamSpec{
			uintSpec("Octaves", 1),
			floatSpec("Frequency", 0.02).atLeast(0).atMost(1),
			floatSpec("Lacunarity", 2).atLeast(1).atMost(10),
			floatSpec("Persistence", 0.5).atLeast(0).atMost(1),
			floatSpec("Amplitude", 5).atLeast(0),
			uintSpec("Seed", 0),
		},
	},
	KindMultiscaleSphere: {
		name: "multiscale_sphere", label: "Multiscale sphere", group: GroupModification,
		children: unarySDF, parent: sameAsInput(0),
		params: []ParamSpec{
			uintSpec("Octaves", 0),
			floatSpec("Max scale", 10).atLeast(0),
			floatSpec("Persistence", 0.5).atLeast(0).atMost(1),
			floatSpec("Inflation", 1).atLeast(0),
			floatSpec("Intersection smoothness", 1).atLeast(0),
			floatSpec("Union smoothness", 0.3).atLeast(0),
			uintSpec("Seed", 0),
		},
	},
	KindUnion: {
		name: "union", label: "Union", group: GroupCombination,
		children: binarySDF, parent: sameAsInput(0),
		params: []ParamSpec{floatSpec("Smoothness", 1).atLeast(0)},
	},
	KindSubtraction: {
		name: "subtraction", label: "Subtraction", group: GroupCombination,
		children: binarySDF, parent: sameAsInput(0),
		params: []ParamSpec{floatSpec("Smoothness", 1).atLeast(0)},
	},
	KindIntersection: {
		name: "intersection", label: "Intersection", group: GroupCombination,
		children: binarySDF, parent: sameAsInput(0),
		params: []ParamSpec{floatSpec("Smoothness", 1).atLeast(0)},
	},
	KindGroupUnion: {
		name: "group_union", label: "Group union", group: GroupCombination,
		children: unarySDF, parent: fixedOutput(SingleSDF),
		params: []ParamSpec{floatSpec("Smoothness", 1).atLeast(0)},
	},
	KindStratifiedPlacement: {
		name: "stratified_placement", label: "Stratified placement", group: GroupPlacement,
		parent: fixedOutput(Instances),
		params: []ParamSpec{
			uintSpec("Size x", 1),
			uintSpec("Size y", 1),
			uintSpec("Size z", 1),
			floatSpec("Cell extent x", 1).atLeast(0),
			floatSpec("Cell extent y", 1).atLeast(0),
			floatSpec("Cell extent z", 1).atLeast(0),
			uintRangeSpec("Points per cell", 1, 1),
			floatSpec("Jitter fraction", 0).atLeast(0).atMost(1),
			floatRangeSpec("Scale", 1, 1).atLeast(1e-3),
			uintSpec("Seed", 0),
		},
	},
	KindTranslationToSurface: {
		name: "translation_to_surface", label: "Translation to surface", group: GroupPlacement,
		children: []ChildPortKind{ChildSingleSDF, ChildAny}, parent: sameAsInput(1),
	},
	KindRotationToGradient: {
		name: "rotation_to_gradient", label: "Rotation to gradient", group: GroupPlacement,
		children: []ChildPortKind{ChildSingleSDF, ChildAny}, parent: sameAsInput(1),
	},
	KindScattering: {
		name: "scattering", label: "Scattering", group: GroupPlacement,
		children: []ChildPortKind{ChildSDFGroup, ChildInstances}, parent: fixedOutput(SDFGroup),
	},
	KindStochasticSelection: {
		name: "stochastic_selection", label: "Stochastic selection", group: GroupMasking,
		children: unaryAny, parent: sameAsInput(0),
		params: []ParamSpec{
			floatSpec("Probability", 1).atLeast(0).atMost(1),
			uintSpec("Seed", 0),
		},
	},
}

// Kinds lists every kind except Output, in palette order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindBox; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// KindByName parses the serialized name of a kind.
func KindByName(name string) (Kind, error) {
	for k := range kinds {
		if kinds[k].name == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q: %w", name, voxerr.ErrConfigurationInvalid)
}

func (k Kind) valid() bool { return k < kindCount }

func (k Kind) info() *kindInfo {
	if !k.valid() {
		panic(fmt.Sprintf("invalid node kind %d", uint8(k)))
	}
	return &kinds[k]
}

// Name is the identifier used in serialized graphs.
func (k Kind) Name() string { return k.info().name }

func (k Kind) Label() string { return k.info().label }

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return k.info().label
}

func (k Kind) Group() Group { return k.info().group }

func (k Kind) IsRoot() bool { return k == KindOutput }

func (k Kind) ChildPorts() []ChildPortKind { return k.info().children }

func (k Kind) ParentPort() ParentPortKind { return k.info().parent }

func (k Kind) ParamSpecs() []ParamSpec { return k.info().params }

// DefaultParams returns a fresh slice of the kind's default parameter values.
func (k Kind) DefaultParams() []Param {
	specs := k.info().params
	out := make([]Param, len(specs))
	for i, s := range specs {
		out[i] = s.Default
	}
	return out
}
