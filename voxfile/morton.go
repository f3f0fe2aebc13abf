package voxfile

import (
	"math/bits"
	"slices"
	"sync"
)

func expand3(v uint32) uint32 {
	v = (v | (v << 16)) & 0x030000FF
	v = (v | (v << 8)) & 0x0300F00F
	v = (v | (v << 4)) & 0x030C30C3
	v = (v | (v << 2)) & 0x09249249
	return v
}

func morton3D(x, y, z uint32) uint32 {
	return expand3(x) | (expand3(y) << 1) | (expand3(z) << 2)
}

// mortonOrders caches, per power-of-two chunk size, the chunk-local linear
// index (i*n+j)*n+k of every voxel listed in Morton order. Neighbouring
// voxels stay close in the stream, which keeps runs of equal voxels long.
var mortonOrders [6]struct {
	once  sync.Once
	order []int32
}

func mortonOrder(n int) []int32 {
	e := &mortonOrders[bits.TrailingZeros(uint(n))]
	e.once.Do(func() {
		order := make([]int32, n*n*n)
		for i := range order {
			order[i] = int32(i)
		}
		key := func(lin int32) uint32 {
			l := int(lin)
			return morton3D(uint32(l/(n*n)), uint32(l/n%n), uint32(l%n))
		}
		slices.SortFunc(order, func(a, b int32) int { return int(key(a)) - int(key(b)) })
		e.order = order
	})
	return e.order
}
