package voxfile

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/lars-frogner/Impact-sub013/pool"
	"github.com/lars-frogner/Impact-sub013/voxel"
	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// Edit sets the voxel at a grid index. An empty voxel clears it.
type Edit struct {
	Index [3]int
	Voxel voxel.Voxel
}

// Diff lists, in grid order, the edits that turn before into after. Both
// objects must address grids of the same shape.
func Diff(before, after *voxel.ChunkedVoxelObject) ([]Edit, error) {
	shape := before.VoxelCounts()
	if after.VoxelCounts() != shape {
		return nil, fmt.Errorf("grid shapes %v and %v differ: %w", shape, after.VoxelCounts(), voxerr.ErrConfigurationInvalid)
	}
	var edits []Edit
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				if v := after.Get(i, j, k); v != before.Get(i, j, k) {
					edits = append(edits, Edit{Index: [3]int{i, j, k}, Voxel: v})
				}
			}
		}
	}
	return edits, nil
}

func axisBits(shape [3]int) [3]uint8 {
	var b [3]uint8
	for a, s := range shape {
		b[a] = uint8(max(1, bits.Len(uint(max(s, 1)-1))))
	}
	return b
}

// EncodeEdits packs edits for a grid of the given shape: the shape, the
// edit count and then every edit as three indices just wide enough for the
// shape followed by an 8-bit voxel, with no padding between edits.
func EncodeEdits(shape [3]int, edits []Edit) ([]byte, error) {
	widths := axisBits(shape)
	var out []byte
	for _, s := range shape {
		out = appendUvarint(out, uint64(s))
	}
	out = appendUvarint(out, uint64(len(edits)))
	bw := newBitWriter(len(edits) * 6)
	for _, e := range edits {
		for a := 0; a < 3; a++ {
			if e.Index[a] < 0 || e.Index[a] >= shape[a] {
				return nil, fmt.Errorf("edit index %v outside grid %v: %w", e.Index, shape, voxerr.ErrConfigurationInvalid)
			}
			bw.put(uint64(e.Index[a]), widths[a])
		}
		if e.Voxel == voxel.Sentinel {
			return nil, fmt.Errorf("edit at %v writes the sentinel voxel: %w", e.Index, voxerr.ErrConfigurationInvalid)
		}
		bw.voxel(e.Voxel, 8)
	}
	return append(out, bw.bytes()...), nil
}

func DecodeEdits(data []byte) (shape [3]int, edits []Edit, err error) {
	pos := 0
	bad := func(what string) error {
		return fmt.Errorf("edit stream: %s: %w", what, voxerr.ErrConfigurationInvalid)
	}
	for a := range shape {
		s, err := readUvarint(data, &pos)
		if err != nil || s > 1<<30 {
			return shape, nil, bad("invalid grid shape")
		}
		shape[a] = int(s)
	}
	count, err := readUvarint(data, &pos)
	if err != nil {
		return shape, nil, bad("missing edit count")
	}
	widths := axisBits(shape)
	br := newBitReader(data[pos:])
	if !br.holds(count, widths[0]+widths[1]+widths[2]+8) {
		return shape, nil, bad(fmt.Sprintf("%d edits announced but the stream is shorter", count))
	}
	edits = make([]Edit, count)
	for n := range edits {
		e := &edits[n]
		for a := 0; a < 3; a++ {
			v, err := br.index(widths[a], shape[a])
			if err != nil {
				return shape, nil, bad(fmt.Sprintf("edit %d axis %d: %v", n, a, err))
			}
			e.Index[a] = v
		}
		v, err := br.voxel(8)
		if err != nil {
			return shape, nil, bad(fmt.Sprintf("edit %d: %v", n, err))
		}
		e.Voxel = v
	}
	return shape, edits, nil
}

// ApplyEdits writes the edits into o and refreshes its derived state.
func ApplyEdits(ctx context.Context, p *pool.Pool, o *voxel.ChunkedVoxelObject, edits []Edit) error {
	shape := o.VoxelCounts()
	for _, e := range edits {
		for a := 0; a < 3; a++ {
			if e.Index[a] < 0 || e.Index[a] >= shape[a] {
				return fmt.Errorf("edit index %v outside grid %v: %w", e.Index, shape, voxerr.ErrConfigurationInvalid)
			}
		}
		if e.Voxel == voxel.Sentinel {
			return fmt.Errorf("edit at %v writes the sentinel voxel: %w", e.Index, voxerr.ErrConfigurationInvalid)
		}
	}
	for _, e := range edits {
		o.SetVoxel(e.Index, e.Voxel)
	}
	return o.RefreshDerivedState(ctx, p)
}
