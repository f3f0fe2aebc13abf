package utils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lars-frogner/Impact-sub013/voxerr"
	"github.com/lars-frogner/Impact-sub013/voxfile"
)

// RunConvert rewrites a voxel object file as a .glb mesh, or as another
// voxel object file, depending on the output extension.
func RunConvert(ctx context.Context, env *Env, inPath, outPath string) error {
	entries, err := voxfile.Load(ctx, env.Pool, inPath)
	if err != nil {
		return err
	}
	return writeEntries(outPath, entries, env)
}

// RunPack concatenates the entries of several voxel object files. Unnamed
// entries are named after their source file.
func RunPack(ctx context.Context, env *Env, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no voxel object files provided", voxerr.ErrConfigurationInvalid)
	}
	loaded := make([][]voxfile.Entry, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range inputs {
		g.Go(func() error {
			entries, err := voxfile.Load(gctx, env.Pool, path)
			if err != nil {
				return err
			}
			for j := range entries {
				if entries[j].Name == "" {
					entries[j].Name = filepath.Base(path)
				}
			}
			loaded[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	var all []voxfile.Entry
	for _, entries := range loaded {
		all = append(all, entries...)
	}
	start := time.Now()
	data := voxfile.Encode(all)
	slog.Info("packed voxel objects", "entries", len(all), "bytes", len(data), "took", time.Since(start))
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", voxerr.ErrIO, outPath, err)
	}
	return nil
}

// RunUnpack writes every entry of a voxel object file to its own file in
// outDir, named after the entry.
func RunUnpack(ctx context.Context, env *Env, inPath, outDir string) error {
	entries, err := voxfile.Load(ctx, env.Pool, inPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", voxerr.ErrIO, err)
	}
	var g errgroup.Group
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("%d", i)
		}
		if filepath.Ext(name) != ".vobj" {
			name += ".vobj"
		}
		g.Go(func() error {
			return voxfile.Save(filepath.Join(outDir, filepath.Base(name)), []voxfile.Entry{e})
		})
	}
	return g.Wait()
}

// RunDiff writes the edits that turn the first object of beforePath into
// the first object of afterPath.
func RunDiff(ctx context.Context, env *Env, beforePath, afterPath, outPath string) (int, error) {
	before, err := firstEntry(ctx, env, beforePath)
	if err != nil {
		return 0, err
	}
	after, err := firstEntry(ctx, env, afterPath)
	if err != nil {
		return 0, err
	}
	edits, err := voxfile.Diff(before.Object, after.Object)
	if err != nil {
		return 0, err
	}
	data, err := voxfile.EncodeEdits(before.Object.VoxelCounts(), edits)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", voxerr.ErrIO, outPath, err)
	}
	return len(edits), nil
}

// RunApplyEdits applies an edit stream to the first object of inPath and
// writes the result.
func RunApplyEdits(ctx context.Context, env *Env, inPath, editsPath, outPath string) error {
	e, err := firstEntry(ctx, env, inPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(editsPath)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", voxerr.ErrIO, editsPath, err)
	}
	shape, edits, err := voxfile.DecodeEdits(data)
	if err != nil {
		return err
	}
	if shape != e.Object.VoxelCounts() {
		return fmt.Errorf("%w: edits for grid %v applied to grid %v", voxerr.ErrConfigurationInvalid, shape, e.Object.VoxelCounts())
	}
	if err := voxfile.ApplyEdits(ctx, env.Pool, e.Object, edits); err != nil {
		return err
	}
	return writeEntries(outPath, []voxfile.Entry{e}, env)
}

func firstEntry(ctx context.Context, env *Env, path string) (voxfile.Entry, error) {
	entries, err := voxfile.Load(ctx, env.Pool, path)
	if err != nil {
		return voxfile.Entry{}, err
	}
	if len(entries) == 0 {
		return voxfile.Entry{}, fmt.Errorf("%w: %s holds no objects", voxerr.ErrNotFound, path)
	}
	return entries[0], nil
}
