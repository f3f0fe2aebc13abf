// Package voxel implements chunked sparse voxel objects: storage, adjacency,
// connected regions, splitting, inertial properties, absorption, meshing and
// generation from an SDF.
package voxel

import (
	"fmt"
	"os"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// Voxel is the one byte type tag stored per voxel.
type Voxel uint8

const (
	Empty Voxel = 0
	// Sentinel never appears in object storage.
	Sentinel Voxel = 255
	// MaxVoxelTypes is the number of material tags available (1..254).
	MaxVoxelTypes = 254
)

func (v Voxel) IsEmpty() bool {
	return v == Empty
}

// Type returns the registry index of a non-empty voxel.
func (v Voxel) Type() VoxelType {
	return VoxelType(v - 1)
}

// VoxelType indexes the voxel type registry.
type VoxelType uint8

// Voxel returns the tag stored for voxels of this type.
func (t VoxelType) Voxel() Voxel {
	return Voxel(t + 1)
}

// Validate fails for types whose tag would be the sentinel or wrap to empty.
func (t VoxelType) Validate() error {
	if int(t) >= MaxVoxelTypes {
		return fmt.Errorf("%w: voxel type %d is outside the %d available types", voxerr.ErrConfigurationInvalid, t, MaxVoxelTypes)
	}
	return nil
}

// VoxelTypeID identifies a voxel type by name across registries.
type VoxelTypeID uint64

func VoxelTypeIDFromName(name string) VoxelTypeID {
	return VoxelTypeID(xxhash.Sum64String(name))
}

type VoxelTypeSpecification struct {
	Name                 string  `toml:"name"`
	MassDensity          float64 `toml:"mass_density"`
	SpecularReflectance  float32 `toml:"specular_reflectance"`
	RoughnessScale       float32 `toml:"roughness_scale"`
	Metalness            float32 `toml:"metalness"`
	EmissiveLuminance    float32 `toml:"emissive_luminance"`
	ColorTexturePath     string  `toml:"color_texture_path"`
	RoughnessTexturePath string  `toml:"roughness_texture_path"`
	NormalTexturePath    string  `toml:"normal_texture_path"`
}

func (s *VoxelTypeSpecification) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: voxel type without name", voxerr.ErrConfigurationInvalid)
	}
	if s.MassDensity < 0 {
		return fmt.Errorf("%w: voxel type %q has negative mass density", voxerr.ErrConfigurationInvalid, s.Name)
	}
	return nil
}

// Registry maps voxel types to their fixed material parameters.
type Registry struct {
	specs  []VoxelTypeSpecification
	byName map[string]VoxelType
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]VoxelType)}
}

// Register adds a voxel type. The registry is left unchanged on error.
func (r *Registry) Register(spec VoxelTypeSpecification) (VoxelType, error) {
	if err := spec.validate(); err != nil {
		return 0, err
	}
	if _, ok := r.byName[spec.Name]; ok {
		return 0, fmt.Errorf("%w: voxel type %q registered twice", voxerr.ErrConfigurationInvalid, spec.Name)
	}
	if len(r.specs) >= MaxVoxelTypes {
		return 0, fmt.Errorf("%w: at most %d voxel types can be registered", voxerr.ErrCapacityExceeded, MaxVoxelTypes)
	}
	t := VoxelType(len(r.specs))
	r.specs = append(r.specs, spec)
	r.byName[spec.Name] = t
	return t, nil
}

func (r *Registry) Len() int {
	return len(r.specs)
}

func (r *Registry) Spec(t VoxelType) (VoxelTypeSpecification, error) {
	if int(t) >= len(r.specs) {
		return VoxelTypeSpecification{}, fmt.Errorf("%w: voxel type %d", voxerr.ErrNotFound, t)
	}
	return r.specs[t], nil
}

func (r *Registry) Lookup(name string) (VoxelType, error) {
	t, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: voxel type %q", voxerr.ErrNotFound, name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.Name
	}
	return names
}

// MassDensities returns the density of every registered type, indexed by type.
func (r *Registry) MassDensities() []float64 {
	d := make([]float64, len(r.specs))
	for i, s := range r.specs {
		d[i] = s.MassDensity
	}
	return d
}

type registryFile struct {
	VoxelTypes []VoxelTypeSpecification `toml:"voxel_type"`
}

// ParseRegistry decodes [[voxel_type]] tables.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode voxel types: %v", voxerr.ErrConfigurationInvalid, err)
	}
	r := NewRegistry()
	for _, spec := range f.VoxelTypes {
		if _, err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read voxel types %s: %v", voxerr.ErrIO, path, err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry holds a few plain materials, used when no registry file is given.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, spec := range []VoxelTypeSpecification{
		{Name: "Ground", MassDensity: 1500, SpecularReflectance: 0.02, RoughnessScale: 1},
		{Name: "Stone", MassDensity: 2600, SpecularReflectance: 0.04, RoughnessScale: 0.8},
		{Name: "Metal", MassDensity: 7800, SpecularReflectance: 0.9, RoughnessScale: 0.3, Metalness: 1},
	} {
		if _, err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}
