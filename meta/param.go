package meta

import (
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// ParamKind tags the value held by a Param.
type ParamKind uint8

const (
	ParamEnum ParamKind = iota
	ParamUInt
	ParamFloat
	ParamUIntRange
	ParamFloatRange
)

func (k ParamKind) String() string {
	switch k {
	case ParamEnum:
		return "enum"
	case ParamUInt:
		return "uint"
	case ParamFloat:
		return "float"
	case ParamUIntRange:
		return "uint_range"
	case ParamFloatRange:
		return "float_range"
	}
	return fmt.Sprintf("ParamKind(%d)", uint8(k))
}

// Param is a node parameter value. Only the fields matching Kind are used.
// An enum carries the variants it may take once checked against its
// declaration.
type Param struct {
	Kind ParamKind

	enum       string
	variants   []string
	u32        uint32
	f32        float32
	uintRange  [2]uint32
	floatRange [2]float32
}

func EnumParam(v string) Param   { return Param{Kind: ParamEnum, enum: v} }
func UIntParam(v uint32) Param   { return Param{Kind: ParamUInt, u32: v} }
func FloatParam(v float32) Param { return Param{Kind: ParamFloat, f32: v} }
func UIntRangeParam(lo, hi uint32) Param {
	return Param{Kind: ParamUIntRange, uintRange: [2]uint32{lo, hi}}
}
func FloatRangeParam(lo, hi float32) Param {
	return Param{Kind: ParamFloatRange, floatRange: [2]float32{lo, hi}}
}

// Variants lists the values an enum may take, or nil before the param has
// been checked against a declaration.
func (p Param) Variants() []string {
	p.mustBe(ParamEnum)
	return p.variants
}

func (p Param) Enum() string {
	p.mustBe(ParamEnum)
	return p.enum
}

func (p Param) UInt() uint32 {
	p.mustBe(ParamUInt)
	return p.u32
}

func (p Param) Float() float32 {
	p.mustBe(ParamFloat)
	return p.f32
}

func (p Param) UIntRange() (lo, hi uint32) {
	p.mustBe(ParamUIntRange)
	return p.uintRange[0], p.uintRange[1]
}

func (p Param) FloatRange() (lo, hi float32) {
	p.mustBe(ParamFloatRange)
	return p.floatRange[0], p.floatRange[1]
}

func (p Param) mustBe(k ParamKind) {
	if p.Kind != k {
		panic(fmt.Sprintf("param holds %s, not %s", p.Kind, k))
	}
}

func (p Param) String() string {
	switch p.Kind {
	case ParamEnum:
		return p.enum
	case ParamUInt:
		return fmt.Sprint(p.u32)
	case ParamFloat:
		return fmt.Sprint(p.f32)
	case ParamUIntRange:
		return fmt.Sprintf("[%d, %d]", p.uintRange[0], p.uintRange[1])
	case ParamFloatRange:
		return fmt.Sprintf("[%g, %g]", p.floatRange[0], p.floatRange[1])
	}
	return "?"
}

// paramRecord is the serialized form of a Param. Exactly one field is set.
type paramRecord struct {
	Enum       *string     `yaml:"enum,omitempty"`
	Variants   []string    `yaml:"variants,omitempty,flow"`
	UInt       *uint32     `yaml:"uint,omitempty"`
	Float      *float32    `yaml:"float,omitempty"`
	UIntRange  *[2]uint32  `yaml:"uint_range,omitempty,flow"`
	FloatRange *[2]float32 `yaml:"float_range,omitempty,flow"`
}

func (p Param) MarshalYAML() (interface{}, error) {
	var r paramRecord
	switch p.Kind {
	case ParamEnum:
		r.Enum = &p.enum
		r.Variants = p.variants
	case ParamUInt:
		r.UInt = &p.u32
	case ParamFloat:
		r.Float = &p.f32
	case ParamUIntRange:
		r.UIntRange = &p.uintRange
	case ParamFloatRange:
		r.FloatRange = &p.floatRange
	default:
		return nil, fmt.Errorf("unknown param kind %d", p.Kind)
	}
	return r, nil
}

func (p *Param) UnmarshalYAML(value *yaml.Node) error {
	var r paramRecord
	if err := value.Decode(&r); err != nil {
		return err
	}
	set := 0
	if r.Enum != nil {
		*p, set = EnumParam(*r.Enum), set+1
		p.variants = r.Variants
	} else if r.Variants != nil {
		return fmt.Errorf("line %d: variants given without an enum value: %w", value.Line, voxerr.ErrConfigurationInvalid)
	}
	if r.UInt != nil {
		*p, set = UIntParam(*r.UInt), set+1
	}
	if r.Float != nil {
		*p, set = FloatParam(*r.Float), set+1
	}
	if r.UIntRange != nil {
		*p, set = UIntRangeParam(r.UIntRange[0], r.UIntRange[1]), set+1
	}
	if r.FloatRange != nil {
		*p, set = FloatRangeParam(r.FloatRange[0], r.FloatRange[1]), set+1
	}
	if set != 1 {
		return fmt.Errorf("line %d: param must hold exactly one value, found %d: %w", value.Line, set, voxerr.ErrConfigurationInvalid)
	}
	return nil
}

// ParamSpec declares one parameter of a node kind.
type ParamSpec struct {
	Label    string
	Default  Param
	Min, Max float32
	Variants []string
}

func floatSpec(label string, def float32) ParamSpec {
	return ParamSpec{Label: label, Default: FloatParam(def), Min: float32(math.Inf(-1)), Max: float32(math.Inf(1))}
}

func floatRangeSpec(label string, lo, hi float32) ParamSpec {
	return ParamSpec{Label: label, Default: FloatRangeParam(lo, hi), Min: float32(math.Inf(-1)), Max: float32(math.Inf(1))}
}

func uintSpec(label string, def uint32) ParamSpec {
	return ParamSpec{Label: label, Default: UIntParam(def)}
}

func uintRangeSpec(label string, lo, hi uint32) ParamSpec {
	return ParamSpec{Label: label, Default: UIntRangeParam(lo, hi)}
}

func enumSpec(label string, def string, variants ...string) ParamSpec {
	return ParamSpec{Label: label, Default: Param{Kind: ParamEnum, enum: def, variants: variants}, Variants: variants}
}

func (s ParamSpec) atLeast(v float32) ParamSpec {
	s.Min = v
	return s
}

func (s ParamSpec) atMost(v float32) ParamSpec {
	s.Max = v
	return s
}

// conform checks that p has the declared kind, clamps floats into the
// declared bounds and orders range endpoints.
func (s ParamSpec) conform(p Param) (Param, error) {
	if p.Kind != s.Default.Kind {
		return p, fmt.Errorf("param %q: expected %s, got %s: %w", s.Label, s.Default.Kind, p.Kind, voxerr.ErrConfigurationInvalid)
	}
	clamp := func(v float32) float32 { return min(max(v, s.Min), s.Max) }
	switch p.Kind {
	case ParamEnum:
		if !slices.Contains(s.Variants, p.enum) {
			return p, fmt.Errorf("param %q: unknown variant %q (want one of %v): %w", s.Label, p.enum, s.Variants, voxerr.ErrConfigurationInvalid)
		}
		if p.variants != nil && !slices.Equal(p.variants, s.Variants) {
			return p, fmt.Errorf("param %q: variants %v differ from the declared %v: %w", s.Label, p.variants, s.Variants, voxerr.ErrConfigurationInvalid)
		}
		p.variants = s.Variants
	case ParamFloat:
		if math.IsNaN(float64(p.f32)) {
			return p, fmt.Errorf("param %q is NaN: %w", s.Label, voxerr.ErrConfigurationInvalid)
		}
		p.f32 = clamp(p.f32)
	case ParamUIntRange:
		if p.uintRange[0] > p.uintRange[1] {
			p.uintRange[0], p.uintRange[1] = p.uintRange[1], p.uintRange[0]
		}
	case ParamFloatRange:
		if math.IsNaN(float64(p.floatRange[0])) || math.IsNaN(float64(p.floatRange[1])) {
			return p, fmt.Errorf("param %q is NaN: %w", s.Label, voxerr.ErrConfigurationInvalid)
		}
		lo, hi := clamp(p.floatRange[0]), clamp(p.floatRange[1])
		p.floatRange = [2]float32{min(lo, hi), max(lo, hi)}
	}
	return p, nil
}
