package utils

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// NoiseSize is the edge length in voxels of generated noise objects.
const NoiseSize = 16

// noiseGenerator scatters a fixed number of voxels of random types over a
// cube.
type noiseGenerator struct {
	voxels [NoiseSize * NoiseSize * NoiseSize]voxel.Voxel
}

func (g *noiseGenerator) VoxelExtent() float64 { return 1 }
func (g *noiseGenerator) GridShape() [3]int    { return [3]int{NoiseSize, NoiseSize, NoiseSize} }

func (g *noiseGenerator) GenerateChunk(origin [3]int, size int, voxels []voxel.Voxel) {
	idx := 0
	for i := origin[0]; i < origin[0]+size; i++ {
		for j := origin[1]; j < origin[1]+size; j++ {
			for k := origin[2]; k < origin[2]+size; k++ {
				v := voxel.Empty
				if i < NoiseSize && j < NoiseSize && k < NoiseSize {
					v = g.voxels[(i*NoiseSize+j)*NoiseSize+k]
				}
				voxels[idx] = v
				idx++
			}
		}
	}
}

// newNoiseGenerator fills the given percentage of voxels with types drawn
// uniformly from [0, typeCount).
func newNoiseGenerator(percentage float64, typeCount int, r *rand.Rand) *noiseGenerator {
	percentage = min(max(percentage, 0), 100)
	g := new(noiseGenerator)
	total := len(g.voxels)
	want := min(int(float64(total)*(percentage/100.0)+0.5), total)

	// Partial Fisher-Yates: only the first want positions are shuffled.
	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < want; i++ {
		j := i + r.IntN(total-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	for _, i := range idx[:want] {
		g.voxels[i] = voxel.VoxelType(r.IntN(typeCount)).Voxel()
	}
	return g
}

// RunGenerateNoise writes amount voxel object files named 0.vobj onwards
// to outDir, each with a fill percentage drawn from [percentageMin,
// percentageMax]. A zero seed picks one from the clock.
func RunGenerateNoise(env *Env, percentageMin, percentageMax float64, amount int, outDir string, seed uint64) error {
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	percentageMin, percentageMax = max(percentageMin, 0), min(percentageMax, 100)
	if percentageMax < percentageMin {
		percentageMin, percentageMax = percentageMax, percentageMin
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	chunkSize := min(env.Config.ChunkSize, NoiseSize)
	for i := 0; i < max(amount, 0); i++ {
		// Weyl sequence so every file gets an independent stream.
		const weyl = uint64(0x9e3779b97f4a7c15)
		r := rand.New(rand.NewPCG(seed, (uint64(i)+1)*weyl))

		perc := percentageMin
		if percentageMax > percentageMin {
			perc = percentageMin + r.Float64()*(percentageMax-percentageMin)
		}
		o, err := voxel.Generate(newNoiseGenerator(perc, env.Registry.Len(), r), chunkSize)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, fmt.Sprintf("%d.vobj", i))
		entry := voxfile.Entry{Name: fmt.Sprintf("noise %d", i), Object: o, ModelToWorld: mgl64.Ident4()}
		if err := voxfile.Save(path, []voxfile.Entry{entry}); err != nil {
			return err
		}
	}
	return nil
}
