package voxfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lars-frogner/Impact-sub013/voxel"
)

var errShortPayload = errors.New("payload ends inside a field")

// bitWriter appends fixed-width fields LSB first, each starting where the
// previous one ended.
type bitWriter struct {
	buf  []byte
	used int // bits
}

func newBitWriter(capacity int) *bitWriter { return &bitWriter{buf: make([]byte, 0, capacity)} }

func (w *bitWriter) put(v uint64, width uint8) {
	for width > 0 {
		off := uint8(w.used & 7)
		if off == 0 {
			w.buf = append(w.buf, 0)
		}
		take := min(8-off, width)
		w.buf[len(w.buf)-1] |= byte(v&(1<<take-1)) << off
		v >>= take
		width -= take
		w.used += int(take)
	}
}

func (w *bitWriter) voxel(v voxel.Voxel, bpp uint8) { w.put(uint64(v), bpp) }

func (w *bitWriter) bytes() []byte { return w.buf }

// bitReader reads the fields written by bitWriter.
type bitReader struct {
	data []byte
	pos  int // bits
}

func newBitReader(b []byte) *bitReader { return &bitReader{data: b} }

func (r *bitReader) get(width uint8) (uint64, error) {
	if r.pos+int(width) > len(r.data)*8 {
		return 0, errShortPayload
	}
	var v uint64
	for shift := uint8(0); shift < width; {
		off := uint8(r.pos & 7)
		take := min(8-off, width-shift)
		field := uint64(r.data[r.pos>>3]>>off) & (1<<take - 1)
		v |= field << shift
		shift += take
		r.pos += int(take)
	}
	return v, nil
}

// voxel reads one stored tag. The sentinel is never stored, so it marks a
// corrupt payload.
func (r *bitReader) voxel(bpp uint8) (voxel.Voxel, error) {
	v, err := r.get(bpp)
	if err != nil {
		return 0, err
	}
	if voxel.Voxel(v) == voxel.Sentinel {
		return 0, fmt.Errorf("sentinel voxel at bit %d", r.pos-int(bpp))
	}
	return voxel.Voxel(v), nil
}

// index reads a field that must be below limit, such as a Morton rank or a
// grid index.
func (r *bitReader) index(width uint8, limit int) (int, error) {
	v, err := r.get(width)
	if err != nil {
		return 0, err
	}
	if v >= uint64(limit) {
		return 0, fmt.Errorf("index %d not below %d", v, limit)
	}
	return int(v), nil
}

// holds reports whether count more records of width bits each fit.
func (r *bitReader) holds(count uint64, width uint8) bool {
	left := uint64(len(r.data)*8 - r.pos)
	return width == 0 || count <= left/uint64(width)
}

func appendUvarint(dst []byte, x uint64) []byte { return binary.AppendUvarint(dst, x) }

func readUvarint(src []byte, pos *int) (uint64, error) {
	v, n := binary.Uvarint(src[*pos:])
	if n <= 0 {
		return 0, errShortPayload
	}
	*pos += n
	return v, nil
}
