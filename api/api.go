// Package api converts between the on-disk formats and glTF using byte
// slices only, so the same entry points serve the command line tool and the
// wasm build.
package api

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/lars-frogner/Impact-sub013/meta"
	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/texture"
	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// GLBOptions controls glTF export.
type GLBOptions struct {
	// Registry supplies the material of every voxel type. Types it does not
	// know get a plain grey material.
	Registry *voxel.Registry
	// Projection, when set, adds TEXCOORD_0 and binds the texture paths of
	// the voxel types as image URIs.
	Projection *texture.PlanarProjection
	Generator  string
}

func (opts GLBOptions) registry() *voxel.Registry {
	if opts.Registry == nil {
		return voxel.DefaultRegistry()
	}
	return opts.Registry
}

// EntriesToGLB writes one node per entry, placed by its model-to-world
// transform, with one primitive per voxel type on the surface.
func EntriesToGLB(entries []voxfile.Entry, opts GLBOptions) ([]byte, error) {
	doc, err := buildDocument(entries, opts)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	enc := gltf.NewEncoder(&out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SaveGLB writes the entries to a binary glTF file.
func SaveGLB(path string, entries []voxfile.Entry, opts GLBOptions) error {
	doc, err := buildDocument(entries, opts)
	if err != nil {
		return err
	}
	return gltf.SaveBinary(doc, path)
}

type materialCache struct {
	doc       *gltf.Document
	opts      GLBOptions
	registry  *voxel.Registry
	materials map[voxel.VoxelType]uint32
	images    map[string]uint32
}

func (c *materialCache) texture(path string) *uint32 {
	if path == "" || c.opts.Projection == nil {
		return nil
	}
	if idx, ok := c.images[path]; ok {
		return gltf.Index(idx)
	}
	c.doc.Images = append(c.doc.Images, &gltf.Image{URI: path})
	c.doc.Textures = append(c.doc.Textures, &gltf.Texture{Source: gltf.Index(uint32(len(c.doc.Images) - 1))})
	idx := uint32(len(c.doc.Textures) - 1)
	c.images[path] = idx
	return gltf.Index(idx)
}

func (c *materialCache) material(t voxel.VoxelType) uint32 {
	if idx, ok := c.materials[t]; ok {
		return idx
	}
	pbr := &gltf.PBRMetallicRoughness{BaseColorFactor: &[4]float32{1, 1, 1, 1}}
	m := &gltf.Material{PBRMetallicRoughness: pbr, AlphaMode: gltf.AlphaOpaque}
	spec, err := c.registry.Spec(t)
	if err != nil {
		m.Name = fmt.Sprintf("voxel type %d", t)
		pbr.BaseColorFactor = &[4]float32{0.5, 0.5, 0.5, 1}
		pbr.MetallicFactor = gltf.Float(0)
		pbr.RoughnessFactor = gltf.Float(1)
	} else {
		m.Name = spec.Name
		pbr.MetallicFactor = gltf.Float(spec.Metalness)
		pbr.RoughnessFactor = gltf.Float(min(max(spec.RoughnessScale, 0), 1))
		e := min(max(spec.EmissiveLuminance, 0), 1)
		m.EmissiveFactor = [3]float32{e, e, e}
		m.Extras = map[string]any{"specular_reflectance": spec.SpecularReflectance}
		if tex := c.texture(spec.ColorTexturePath); tex != nil {
			pbr.BaseColorTexture = &gltf.TextureInfo{Index: *tex}
		}
		if tex := c.texture(spec.RoughnessTexturePath); tex != nil {
			pbr.MetallicRoughnessTexture = &gltf.TextureInfo{Index: *tex}
		}
		if tex := c.texture(spec.NormalTexturePath); tex != nil {
			m.NormalTexture = &gltf.NormalTexture{Index: tex}
		}
	}
	c.doc.Materials = append(c.doc.Materials, m)
	idx := uint32(len(c.doc.Materials) - 1)
	c.materials[t] = idx
	return idx
}

func buildDocument(entries []voxfile.Entry, opts GLBOptions) (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Asset.Generator = opts.Generator
	if doc.Asset.Generator == "" {
		doc.Asset.Generator = "voxel objects -> GLB"
	}
	cache := &materialCache{
		doc:       doc,
		opts:      opts,
		registry:  opts.registry(),
		materials: make(map[voxel.VoxelType]uint32),
		images:    make(map[string]uint32),
	}
	for i, e := range entries {
		if e.Object == nil {
			return nil, fmt.Errorf("entry %d (%s) has no object", i, e.Name)
		}
		node := &gltf.Node{Name: e.Name, Matrix: [16]float64(e.ModelToWorld)}
		if e.ModelToWorld == (mgl64.Mat4{}) {
			node.Matrix = gltf.DefaultMatrix
		}
		if prims := writePrimitives(doc, cache, e.Object); len(prims) > 0 {
			doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: e.Name, Primitives: prims})
			node.Mesh = gltf.Index(uint32(len(doc.Meshes) - 1))
		}
		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}
	return doc, nil
}

// triangleType finds the voxel behind a surface triangle by probing half a
// voxel to either side of its centroid.
func triangleType(o *voxel.ChunkedVoxelObject, a, b, c mgl32.Vec3) (voxel.VoxelType, bool) {
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() == 0 {
		return 0, false
	}
	step := n.Normalize().Mul(float32(0.5 * o.VoxelExtent()))
	centroid := a.Add(b).Add(c).Mul(1.0 / 3)
	for _, p := range []mgl32.Vec3{centroid.Sub(step), centroid.Add(step)} {
		if v := o.VoxelAtCoords(float64(p[0]), float64(p[1]), float64(p[2])); !v.IsEmpty() {
			return v.Type(), true
		}
	}
	return 0, false
}

func writePrimitives(doc *gltf.Document, cache *materialCache, o *voxel.ChunkedVoxelObject) []*gltf.Primitive {
	mesh := voxel.NewChunkedVoxelObjectMesh(o)
	if mesh.TriangleCount() == 0 {
		return nil
	}
	byType := make(map[voxel.VoxelType][]uint32)
	mesh.ForEachTriangle(func(a, b, c uint32) {
		t, ok := triangleType(o, mesh.Vertices[a].Position, mesh.Vertices[b].Position, mesh.Vertices[c].Position)
		if ok {
			byType[t] = append(byType[t], a, b, c)
		}
	})
	if len(byType) == 0 {
		return nil
	}

	positions := make([][3]float32, len(mesh.Vertices))
	normals := make([][3]float32, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		positions[i] = v.Position
		normals[i] = v.Normal
	}
	attributes := map[string]uint32{
		gltf.POSITION: modeler.WritePosition(doc, positions),
		gltf.NORMAL:   modeler.WriteNormal(doc, normals),
	}
	if cache.opts.Projection != nil {
		uv := make([][2]float32, len(mesh.Vertices))
		for i, v := range mesh.Vertices {
			uv[i] = cache.opts.Projection.Project(v.Position)
		}
		attributes[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uv)
	}

	types := make([]voxel.VoxelType, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	slices.Sort(types)
	prims := make([]*gltf.Primitive, 0, len(types))
	for _, t := range types {
		prims = append(prims, &gltf.Primitive{
			Attributes: attributes,
			Indices:    gltf.Index(modeler.WriteIndices(doc, byType[t])),
			Material:   gltf.Index(cache.material(t)),
		})
	}
	return prims
}

// GenerateOptions controls how a graph file becomes a voxel object.
type GenerateOptions struct {
	ChunkSize int
	// Types picks voxel types; nil gives every voxel the first type.
	Types voxel.TypeGenerator
	Pool  *pool.Pool
}

// GraphFileToObject compiles a graph file and voxelizes the result.
func GraphFileToObject(ctx context.Context, graphFile []byte, opts GenerateOptions) (*voxel.ChunkedVoxelObject, error) {
	r, _, err := meta.DecodeFile(graphFile)
	if err != nil {
		return nil, err
	}
	g, err := r.Graph()
	if err != nil {
		return nil, err
	}
	return GraphToObject(ctx, g, opts)
}

// GraphToObject compiles a meta graph and voxelizes the result.
func GraphToObject(ctx context.Context, g *meta.Graph, opts GenerateOptions) (*voxel.ChunkedVoxelObject, error) {
	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	gen, err := compiled.Generator()
	if err != nil {
		return nil, err
	}
	types := opts.Types
	if types == nil {
		types = voxel.SameVoxelType{}
	}
	sdfGen, err := voxel.NewSDFVoxelGenerator(float64(compiled.VoxelExtent), gen, types)
	if err != nil {
		return nil, err
	}
	return voxel.GenerateInParallel(ctx, opts.Pool, sdfGen, opts.ChunkSize)
}

// GraphFileToGLB compiles, voxelizes and meshes a graph file.
func GraphFileToGLB(ctx context.Context, graphFile []byte, gen GenerateOptions, opts GLBOptions) ([]byte, error) {
	o, err := GraphFileToObject(ctx, graphFile, gen)
	if err != nil {
		return nil, err
	}
	return EntriesToGLB([]voxfile.Entry{{Object: o, ModelToWorld: mgl64.Ident4()}}, opts)
}

// ObjectFileToGLB meshes every object of a voxel object file.
func ObjectFileToGLB(ctx context.Context, p *pool.Pool, data []byte, opts GLBOptions) ([]byte, error) {
	entries, err := voxfile.Decode(ctx, p, data)
	if err != nil {
		return nil, err
	}
	return EntriesToGLB(entries, opts)
}

// PackObjectFiles merges the entries of several voxel object files into one,
// keeping their order.
func PackObjectFiles(ctx context.Context, p *pool.Pool, files ...[]byte) ([]byte, error) {
	var all []voxfile.Entry
	for i, data := range files {
		entries, err := voxfile.Decode(ctx, p, data)
		if err != nil {
			return nil, fmt.Errorf("file %d: %w", i, err)
		}
		all = append(all, entries...)
	}
	return voxfile.Encode(all), nil
}

// UnpackObjectFile splits a voxel object file into one file per entry,
// keyed by entry name. Unnamed entries are keyed by their index.
func UnpackObjectFile(ctx context.Context, p *pool.Pool, data []byte) (map[string][]byte, error) {
	entries, err := voxfile.Decode(ctx, p, data)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("entry name %q appears twice", name)
		}
		out[name] = voxfile.Encode([]voxfile.Entry{e})
	}
	return out, nil
}
