// Package utils holds the file-level operations behind the command line
// tool. Every runner reads its inputs from disk, does one job and writes
// its outputs back.
package utils

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/api"
	"github.com/lars-frogner/Impact-sub013/config"
	"github.com/lars-frogner/Impact-sub013/meta"
	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/sdf"
	"github.com/lars-frogner/Impact-sub013/texture"
	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// Env bundles what most runners need.
type Env struct {
	Config   config.Config
	Registry *voxel.Registry
	Pool     *pool.Pool
}

// NewEnv loads the configuration and voxel type registry. Empty paths select
// the defaults.
func NewEnv(configPath, registryPath string) (*Env, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	reg := voxel.DefaultRegistry()
	if registryPath != "" {
		var err error
		if reg, err = voxel.LoadRegistry(registryPath); err != nil {
			return nil, err
		}
	}
	return &Env{
		Config:   cfg,
		Registry: reg,
		Pool:     pool.New(cfg.ThreadPool.Workers, cfg.ThreadPool.QueueCapacity),
	}, nil
}

// typeGenerator spreads all registered types over the object with gradient
// noise, or uses the single type when only one is registered.
func (e *Env) typeGenerator(seed uint32) (voxel.TypeGenerator, error) {
	if e.Registry.Len() <= 1 {
		return voxel.SameVoxelType{}, nil
	}
	types := make([]voxel.VoxelType, e.Registry.Len())
	for i := range types {
		types[i] = voxel.VoxelType(i)
	}
	return voxel.NewGradientNoiseVoxelTypes(types, 0.02, 1, seed)
}

// RunGenerate compiles a graph file, voxelizes it and writes the object.
// The output format follows the extension: .glb for a mesh, anything else
// for a voxel object file.
func RunGenerate(ctx context.Context, env *Env, graphPath, outPath string) error {
	r, err := meta.LoadFile(graphPath)
	if err != nil {
		return err
	}
	g, err := r.Graph()
	if err != nil {
		return err
	}
	types, err := env.typeGenerator(0)
	if err != nil {
		return err
	}
	start := time.Now()
	o, err := api.GraphToObject(ctx, g, api.GenerateOptions{ChunkSize: env.Config.ChunkSize, Types: types, Pool: env.Pool})
	if err != nil {
		return err
	}
	slog.Info("generated voxel object",
		"graph", graphPath,
		"chunks", o.ChunkCounts(),
		"voxels", o.NonEmptyVoxelCount(),
		"took", time.Since(start))
	return writeEntries(outPath, []voxfile.Entry{{
		Name:         strings.TrimSuffix(filepath.Base(graphPath), filepath.Ext(graphPath)),
		Object:       o,
		ModelToWorld: mgl64.Ident4(),
	}}, env)
}

func writeEntries(outPath string, entries []voxfile.Entry, env *Env) error {
	if strings.EqualFold(filepath.Ext(outPath), ".glb") {
		var proj *texture.PlanarProjection
		if len(entries) == 1 {
			if box, ok := entries[0].Object.AABB(); ok {
				ext := box.Max.Sub(box.Min)
				p, err := texture.ForRectangle(float32(ext[0]), float32(ext[2]), 1, 1)
				if err == nil {
					c := box.Min.Add(box.Max).Mul(0.5)
					p.Origin = p.Origin.Add(mgl32.Vec3{float32(c[0]), 0, float32(c[2])})
					proj = p
				}
			}
		}
		return api.SaveGLB(outPath, entries, api.GLBOptions{Registry: env.Registry, Projection: proj})
	}
	return voxfile.Save(outPath, entries)
}

// RunNewGraph writes a starter graph: a sphere roughened by multiscale
// spheres and multifractal noise.
func RunNewGraph(path string, comp meta.Compression, voxelExtent float64) error {
	g, err := DefaultGraph(float32(voxelExtent))
	if err != nil {
		return err
	}
	return meta.SaveFile(path, meta.NewIOGraph(g, meta.FullView{Zoom: 1}), comp)
}

func DefaultGraph(voxelExtent float32) (*meta.Graph, error) {
	g := meta.NewGraph()
	out := g.Add(meta.KindOutput, "")
	sphere := g.Add(meta.KindSphere, "body")
	rough := g.Add(meta.KindMultiscaleSphere, "")
	noise := g.Add(meta.KindMultifractalNoise, "")
	set := []struct {
		id  meta.NodeID
		i   int
		val meta.Param
	}{
		{out, 0, meta.FloatParam(voxelExtent)},
		{sphere, 0, meta.FloatParam(40)},
		{rough, 0, meta.UIntParam(3)},
		{rough, 1, meta.FloatParam(12)},
		{noise, 0, meta.UIntParam(4)},
		{noise, 4, meta.FloatParam(3)},
	}
	for _, s := range set {
		if err := g.SetParam(s.id, s.i, s.val); err != nil {
			return nil, err
		}
	}
	for _, link := range [][2]meta.NodeID{{out, noise}, {noise, rough}, {rough, sphere}} {
		if err := g.Connect(link[0], 0, link[1]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// CompileSummary describes the atomic graph a meta graph lowers to.
type CompileSummary struct {
	VoxelExtent float32
	Nodes       int
	Counts      map[string]int
	Domain      sdf.AABB
	Empty       bool
}

func (s CompileSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "voxel extent %g, %d atomic nodes\n", s.VoxelExtent, s.Nodes)
	if s.Empty {
		b.WriteString("empty\n")
		return b.String()
	}
	fmt.Fprintf(&b, "domain %v to %v\n", s.Domain.Min, s.Domain.Max)
	for _, name := range sortedNames(s.Counts) {
		fmt.Fprintf(&b, "  %-14s %d\n", name, s.Counts[name])
	}
	return b.String()
}

// RunCompile lowers a graph file and summarizes the result.
func RunCompile(graphPath string) (CompileSummary, error) {
	r, err := meta.LoadFile(graphPath)
	if err != nil {
		return CompileSummary{}, err
	}
	g, err := r.Graph()
	if err != nil {
		return CompileSummary{}, err
	}
	c, err := g.Compile()
	if err != nil {
		return CompileSummary{}, err
	}
	gen, err := c.Generator()
	if err != nil {
		return CompileSummary{}, err
	}
	s := CompileSummary{
		VoxelExtent: c.VoxelExtent,
		Nodes:       c.Graph.Len(),
		Counts:      make(map[string]int),
		Domain:      gen.Domain(),
		Empty:       gen.IsEmpty(),
	}
	for _, n := range c.Graph.Nodes() {
		s.Counts[n.Label()]++
	}
	return s, nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
