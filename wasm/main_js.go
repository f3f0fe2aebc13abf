//go:build js && wasm

package main

import (
	"context"
	"syscall/js"

	"github.com/lars-frogner/Impact-sub013/api"
	"github.com/lars-frogner/Impact-sub013/config"
)

func bytesFromJS(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

// graph2glb(graphBytes[, chunkSize]) compiles a graph file to a GLB mesh.
func graph2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing graph bytes")
	}
	chunkSize := config.DefaultChunkSize
	if len(args) > 1 {
		chunkSize = args[1].Int()
	}
	out, err := api.GraphFileToGLB(context.Background(), bytesFromJS(args[0]),
		api.GenerateOptions{ChunkSize: chunkSize}, api.GLBOptions{})
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return bytesToJS(out)
}

func vobj2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing voxel object bytes")
	}
	out, err := api.ObjectFileToGLB(context.Background(), nil, bytesFromJS(args[0]), api.GLBOptions{})
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return bytesToJS(out)
}

// packObjects takes an array of voxel object files.
func packObjects(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing files array")
	}
	files := make([][]byte, args[0].Length())
	for i := range files {
		files[i] = bytesFromJS(args[0].Index(i))
	}
	out, err := api.PackObjectFiles(context.Background(), nil, files...)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return bytesToJS(out)
}

func unpackObjects(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing voxel object bytes")
	}
	files, err := api.UnpackObjectFile(context.Background(), nil, bytesFromJS(args[0]))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	// return an object mapping names->Uint8Array
	result := js.Global().Get("Object").New()
	for name, b := range files {
		result.Set(name, bytesToJS(b))
	}
	return result
}

func main() {
	js.Global().Set("graph2glb", js.FuncOf(graph2glb))
	js.Global().Set("vobj2glb", js.FuncOf(vobj2glb))
	js.Global().Set("packObjects", js.FuncOf(packObjects))
	js.Global().Set("unpackObjects", js.FuncOf(unpackObjects))
	select {}
}
