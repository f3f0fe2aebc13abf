// Package voxfile stores chunked voxel objects in a compact binary file.
//
// A file holds any number of named objects, each with its model-to-world
// transform. Chunks are written in chunk index order: runs of empty chunks
// and uniform chunks take a few bytes, other chunks are stored in Morton
// order with whichever encoding is smallest.
package voxfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

const (
	magic   = "VOXF"
	version = 1
)

const (
	tagEmptyRun = 0
	tagUniform  = 1
	tagEncoded  = 2
)

// Entry is one object in a file.
type Entry struct {
	Name         string
	Object       *voxel.ChunkedVoxelObject
	ModelToWorld mgl64.Mat4
}

func appendFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

// Encode serializes the entries.
func Encode(entries []Entry) []byte {
	out := append([]byte(magic), version)
	out = appendUvarint(out, uint64(len(entries)))
	for _, e := range entries {
		out = appendEntry(out, e)
	}
	return binary.LittleEndian.AppendUint64(out, xxhash.Sum64(out))
}

func appendEntry(out []byte, e Entry) []byte {
	o := e.Object
	n := o.ChunkSize()
	out = appendUvarint(out, uint64(len(e.Name)))
	out = append(out, e.Name...)
	for _, v := range e.ModelToWorld {
		out = appendFloat64(out, v)
	}
	out = append(out, byte(n))
	out = appendFloat64(out, o.VoxelExtent())
	counts := o.ChunkCounts()
	for _, c := range counts {
		out = appendUvarint(out, uint64(c))
	}

	order := mortonOrder(n)
	local := make([]voxel.Voxel, n*n*n)
	stream := make([]voxel.Voxel, n*n*n)
	emptyRun := 0
	flush := func() {
		if emptyRun > 0 {
			out = append(out, tagEmptyRun)
			out = appendUvarint(out, uint64(emptyRun))
			emptyRun = 0
		}
	}
	for ci := 0; ci < counts[0]; ci++ {
		for cj := 0; cj < counts[1]; cj++ {
			for ck := 0; ck < counts[2]; ck++ {
				if !readChunk(o, [3]int{ci * n, cj * n, ck * n}, local) {
					emptyRun++
					continue
				}
				flush()
				for r, lin := range order {
					stream[r] = local[lin]
				}
				if uniform(stream) {
					out = append(out, tagUniform, byte(stream[0]))
					continue
				}
				enc := bestEncoding(stream, n)
				out = append(out, tagEncoded, enc.encoding, enc.bpp)
				out = appendUvarint(out, uint64(len(enc.payload)))
				out = append(out, enc.payload...)
			}
		}
	}
	flush()
	return out
}

// readChunk copies the chunk's voxels in chunk-local order and reports
// whether any is non-empty.
func readChunk(o *voxel.ChunkedVoxelObject, origin [3]int, local []voxel.Voxel) bool {
	n := o.ChunkSize()
	occupied := false
	idx := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				v := o.Get(origin[0]+i, origin[1]+j, origin[2]+k)
				occupied = occupied || !v.IsEmpty()
				local[idx] = v
				idx++
			}
		}
	}
	return occupied
}

func uniform(stream []voxel.Voxel) bool {
	for _, v := range stream[1:] {
		if v != stream[0] {
			return false
		}
	}
	return true
}

// decoder walks a file body. The first error sticks.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("offset %d: %s: %w", d.pos, fmt.Sprintf(format, args...), voxerr.ErrConfigurationInvalid)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := readUvarint(d.data, &d.pos)
	if err != nil {
		d.fail("truncated varint")
	}
	return v
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.data)-d.pos < n {
		d.fail("truncated data")
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) readByte() byte {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) readFloat64() float64 {
	if b := d.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

// decodedObject replays stored chunks as a voxel generator.
type decodedObject struct {
	extent float64
	n      int
	counts [3]int
	// Morton ordered voxels per chunk; nil for empty chunks.
	chunks [][]voxel.Voxel
}

func (g *decodedObject) VoxelExtent() float64 { return g.extent }

func (g *decodedObject) GridShape() [3]int {
	return [3]int{g.counts[0] * g.n, g.counts[1] * g.n, g.counts[2] * g.n}
}

func (g *decodedObject) GenerateChunk(origin [3]int, size int, voxels []voxel.Voxel) {
	c := [3]int{origin[0] / size, origin[1] / size, origin[2] / size}
	stream := g.chunks[(c[0]*g.counts[1]+c[1])*g.counts[2]+c[2]]
	if stream == nil {
		clear(voxels)
		return
	}
	for r, lin := range mortonOrder(size) {
		voxels[lin] = stream[r]
	}
}

func (d *decoder) object() *decodedObject {
	n := int(d.readByte())
	g := &decodedObject{n: n, extent: d.readFloat64()}
	for a := range g.counts {
		g.counts[a] = int(d.uvarint())
	}
	if d.err != nil {
		return nil
	}
	if n < 1 || n > 32 || n&(n-1) != 0 {
		d.fail("invalid chunk size %d", n)
		return nil
	}
	total := g.counts[0] * g.counts[1] * g.counts[2]
	if total <= 0 || total > len(d.data)*1024 {
		d.fail("invalid chunk counts %v", g.counts)
		return nil
	}
	g.chunks = make([][]voxel.Voxel, total)
	for ci := 0; ci < total && d.err == nil; {
		switch tag := d.readByte(); tag {
		case tagEmptyRun:
			run := d.uvarint()
			if run == 0 || run > uint64(total-ci) {
				d.fail("empty run of %d chunks at chunk %d", run, ci)
			}
			ci += int(run)
		case tagUniform:
			v := voxel.Voxel(d.readByte())
			if v == voxel.Sentinel {
				d.fail("uniform chunk %d holds the sentinel voxel", ci)
				break
			}
			stream := make([]voxel.Voxel, n*n*n)
			for i := range stream {
				stream[i] = v
			}
			g.chunks[ci] = stream
			ci++
		case tagEncoded:
			enc := encoded{encoding: d.readByte(), bpp: d.readByte()}
			enc.payload = d.take(int(d.uvarint()))
			if d.err != nil {
				break
			}
			stream, err := decodeStream(enc, n)
			if err != nil {
				d.fail("chunk %d: %v", ci, err)
				break
			}
			g.chunks[ci] = stream
			ci++
		default:
			d.fail("unknown chunk tag %d", tag)
		}
	}
	return g
}

// Decode parses a file and rebuilds its objects, generating chunks on p.
func Decode(ctx context.Context, p *pool.Pool, data []byte) ([]Entry, error) {
	if len(data) < len(magic)+1+8 || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("not a voxel object file: %w", voxerr.ErrConfigurationInvalid)
	}
	if v := data[len(magic)]; v != version {
		return nil, fmt.Errorf("unsupported voxel object file version %d: %w", v, voxerr.ErrConfigurationInvalid)
	}
	body := data[:len(data)-8]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(data[len(data)-8:]) {
		return nil, fmt.Errorf("voxel object file checksum mismatch: %w", voxerr.ErrConfigurationInvalid)
	}
	d := &decoder{data: body, pos: len(magic) + 1}
	count := d.uvarint()
	var entries []Entry
	for i := uint64(0); i < count && d.err == nil; i++ {
		var e Entry
		e.Name = string(d.take(int(d.uvarint())))
		for j := range e.ModelToWorld {
			e.ModelToWorld[j] = d.readFloat64()
		}
		g := d.object()
		if d.err != nil {
			break
		}
		o, err := voxel.GenerateInParallel(ctx, p, g, g.n)
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", e.Name, err)
		}
		if o.ChunkCounts() != g.counts {
			return nil, fmt.Errorf("object %q: chunk counts %v are not whole superchunks: %w", e.Name, g.counts, voxerr.ErrConfigurationInvalid)
		}
		e.Object = o
		entries = append(entries, e)
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.pos != len(body) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(body)-d.pos, voxerr.ErrConfigurationInvalid)
	}
	return entries, nil
}

func Save(path string, entries []Entry) error {
	if err := os.WriteFile(path, Encode(entries), 0o644); err != nil {
		return fmt.Errorf("write %s: %v: %w", path, err, voxerr.ErrIO)
	}
	return nil
}

func Load(ctx context.Context, p *pool.Pool, path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, voxerr.ErrIO)
	}
	entries, err := Decode(ctx, p, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
