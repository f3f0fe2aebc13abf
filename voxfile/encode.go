package voxfile

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math/bits"

	"github.com/lars-frogner/Impact-sub013/voxel"
)

// Chunk payload encodings. The high bit marks a zlib compressed payload.
const (
	encDense  = 0 // every voxel at bpp bits
	encSparse = 1 // non-empty count, then (Morton rank, voxel) pairs
	encBitmap = 2 // occupancy bitmap, then the non-empty voxels at bpp bits
	encZlib   = 0x80
)

type encoded struct {
	encoding uint8
	bpp      uint8
	payload  []byte
}

// voxelBits is the width needed for the largest voxel value in stream.
func voxelBits(stream []voxel.Voxel) uint8 {
	var hi voxel.Voxel
	for _, v := range stream {
		hi = max(hi, v)
	}
	return uint8(max(1, bits.Len8(uint8(hi))))
}

func rankBits(n int) uint8 {
	return uint8(3 * bits.TrailingZeros(uint(n)))
}

func encodeDense(stream []voxel.Voxel, bpp uint8) []byte {
	bw := newBitWriter(len(stream) * int(bpp) / 8)
	for _, v := range stream {
		bw.voxel(v, bpp)
	}
	return bw.bytes()
}

func encodeSparse(stream []voxel.Voxel, bpp, rb uint8) []byte {
	count := 0
	for _, v := range stream {
		if !v.IsEmpty() {
			count++
		}
	}
	bw := newBitWriter(count * int(rb+bpp) / 8)
	bw.put(uint64(count), rb+1)
	for rank, v := range stream {
		if !v.IsEmpty() {
			bw.put(uint64(rank), rb)
			bw.voxel(v, bpp)
		}
	}
	return bw.bytes()
}

func encodeBitmap(stream []voxel.Voxel, bpp uint8) []byte {
	bitmap := make([]byte, (len(stream)+7)/8)
	bw := newBitWriter(len(stream) / 8)
	for i, v := range stream {
		if !v.IsEmpty() {
			bitmap[i>>3] |= 1 << (uint(i) & 7)
			bw.voxel(v, bpp)
		}
	}
	return append(bitmap, bw.bytes()...)
}

func zlibCompress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zlibDecompress(b []byte, limit int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, int64(limit)))
}

// bestEncoding tries every encoding, raw and compressed, and keeps the
// smallest payload. A failed compression only drops that candidate.
func bestEncoding(stream []voxel.Voxel, n int) encoded {
	bpp := voxelBits(stream)
	candidates := []encoded{
		{encoding: encDense, bpp: bpp, payload: encodeDense(stream, bpp)},
		{encoding: encSparse, bpp: bpp, payload: encodeSparse(stream, bpp, rankBits(n))},
		{encoding: encBitmap, bpp: bpp, payload: encodeBitmap(stream, bpp)},
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.payload) < len(best.payload) {
			best = c
		}
	}
	for _, c := range candidates {
		zb, err := zlibCompress(c.payload)
		if err == nil && len(zb) < len(best.payload) {
			best = encoded{encoding: c.encoding | encZlib, bpp: bpp, payload: zb}
		}
	}
	return best
}

// decodeStream expands a chunk payload into its n³ voxels in Morton order.
func decodeStream(e encoded, n int) ([]voxel.Voxel, error) {
	total := n * n * n
	payload := e.payload
	if e.bpp == 0 || e.bpp > 8 {
		return nil, fmt.Errorf("invalid voxel width %d", e.bpp)
	}
	if e.encoding&encZlib != 0 {
		// No encoding is larger than dense with a bitmap in front.
		limit := total/8 + total + 1
		var err error
		if payload, err = zlibDecompress(payload, limit); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
	}
	stream := make([]voxel.Voxel, total)
	switch e.encoding &^ encZlib {
	case encDense:
		br := newBitReader(payload)
		for i := range stream {
			v, err := br.voxel(e.bpp)
			if err != nil {
				return nil, err
			}
			stream[i] = v
		}
	case encSparse:
		rb := rankBits(n)
		br := newBitReader(payload)
		count, err := br.index(rb+1, total+1)
		if err != nil {
			return nil, fmt.Errorf("sparse chunk count: %w", err)
		}
		if !br.holds(uint64(count), rb+e.bpp) {
			return nil, fmt.Errorf("sparse chunk lists %d voxels: %w", count, errShortPayload)
		}
		for range count {
			rank, err := br.index(rb, total)
			if err != nil {
				return nil, err
			}
			v, err := br.voxel(e.bpp)
			if err != nil {
				return nil, err
			}
			stream[rank] = v
		}
	case encBitmap:
		if len(payload) < total/8 {
			return nil, fmt.Errorf("bitmap chunk payload too short")
		}
		br := newBitReader(payload[total/8:])
		for i := range stream {
			if payload[i>>3]>>(uint(i)&7)&1 == 0 {
				continue
			}
			v, err := br.voxel(e.bpp)
			if err != nil {
				return nil, err
			}
			stream[i] = v
		}
	default:
		return nil, fmt.Errorf("unknown chunk encoding %d", e.encoding)
	}
	return stream, nil
}
