//go:build !(js && wasm)

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/meta"
	"github.com/lars-frogner/Impact-sub013/utils"
)

func usage() {
	fmt.Println("Usage: voxeltool [-v] [-config file.toml] [-types types.toml] <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  newgraph output.vgraph [none|zlib|zstd]     (write a starter generation graph)")
	fmt.Println("  compile input.vgraph                        (lower a graph and list its atomic nodes)")
	fmt.Println("  generate input.vgraph output.vobj|.glb      (voxelize a graph)")
	fmt.Println("  convert input.vobj output.glb|.vobj         (mesh or rewrite a voxel object file)")
	fmt.Println("  inspect input.vobj                          (print object statistics)")
	fmt.Println("  carve input.vobj output x y z radius [steps]  (absorb voxels with a sphere)")
	fmt.Println("  pack output.vobj input1.vobj [input2.vobj ...]  (merge voxel object files)")
	fmt.Println("  unpack input.vobj output_dir                (write one file per object)")
	fmt.Println("  diff before.vobj after.vobj output.edits    (record voxel edits)")
	fmt.Println("  apply input.vobj updates.edits output.vobj  (apply recorded edits)")
	fmt.Println("  gennoise <percentage> <amount> <output_dir>                      (random 16³ objects with fixed fill %)")
	fmt.Println("  gennoise <percentageMin> <percentageMax> <amount> <output_dir>  (per-file random fill in [min,max])")
}

func fail(err error) {
	fmt.Println("Error:", err)
	os.Exit(1)
}

func scan(args []string, dst ...any) {
	for i, d := range dst {
		if _, err := fmt.Sscan(args[i], d); err != nil {
			fail(fmt.Errorf("argument %q: %w", args[i], err))
		}
	}
}

func main() {
	verbose := flag.Bool("v", false, "log debug output")
	configPath := flag.String("config", "", "TOML configuration file")
	typesPath := flag.String("types", "", "TOML voxel type registry")
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	env, err := utils.NewEnv(*configPath, *typesPath)
	if err != nil {
		fail(err)
	}

	need := func(n int) {
		if len(args) != n {
			usage()
			os.Exit(1)
		}
	}
	switch args[0] {
	case "newgraph":
		if len(args) != 2 && len(args) != 3 {
			usage()
			os.Exit(1)
		}
		comp := meta.CompZstd
		if len(args) == 3 {
			if comp, err = meta.ParseCompression(args[2]); err != nil {
				fail(err)
			}
		}
		if err := utils.RunNewGraph(args[1], comp, env.Config.VoxelExtent); err != nil {
			fail(err)
		}
	case "compile":
		need(2)
		summary, err := utils.RunCompile(args[1])
		if err != nil {
			fail(err)
		}
		fmt.Print(summary)
	case "generate":
		need(3)
		if err := utils.RunGenerate(ctx, env, args[1], args[2]); err != nil {
			fail(err)
		}
	case "convert":
		need(3)
		if err := utils.RunConvert(ctx, env, args[1], args[2]); err != nil {
			fail(err)
		}
	case "inspect":
		need(2)
		stats, err := utils.RunInspect(ctx, env, args[1])
		if err != nil {
			fail(err)
		}
		for _, s := range stats {
			fmt.Print(s)
		}
	case "carve":
		if len(args) != 7 && len(args) != 8 {
			usage()
			os.Exit(1)
		}
		params := utils.CarveParams{Rate: 10, Steps: 1, DT: 1}
		var c mgl64.Vec3
		scan(args[3:7], &c[0], &c[1], &c[2], &params.Radius)
		params.Center = c
		if len(args) == 8 {
			scan(args[7:], &params.Steps)
		}
		report, err := utils.RunCarve(ctx, env, args[1], args[2], params)
		if err != nil {
			fail(err)
		}
		fmt.Print(report)
	case "pack":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		if err := utils.RunPack(ctx, env, args[2:], args[1]); err != nil {
			fail(err)
		}
	case "unpack":
		need(3)
		if err := utils.RunUnpack(ctx, env, args[1], args[2]); err != nil {
			fail(err)
		}
	case "diff":
		need(4)
		n, err := utils.RunDiff(ctx, env, args[1], args[2], args[3])
		if err != nil {
			fail(err)
		}
		fmt.Printf("%d voxels changed\n", n)
	case "apply":
		need(4)
		if err := utils.RunApplyEdits(ctx, env, args[1], args[2], args[3]); err != nil {
			fail(err)
		}
	case "gennoise":
		// Two forms:
		// 1) gennoise <percentage> <amount> <output_dir>
		// 2) gennoise <percentageMin> <percentageMax> <amount> <output_dir>
		var minP, maxP float64
		var amt int
		var dir string
		switch len(args) {
		case 4:
			scan(args[1:3], &minP, &amt)
			maxP, dir = minP, args[3]
		case 5:
			scan(args[1:4], &minP, &maxP, &amt)
			dir = args[4]
		default:
			usage()
			os.Exit(1)
		}
		if err := utils.RunGenerateNoise(env, minP, maxP, amt, dir, 0); err != nil {
			fail(err)
		}
	default:
		usage()
		os.Exit(1)
	}

	fmt.Println("Operation completed!")
}
