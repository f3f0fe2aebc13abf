package voxel

import "sort"

// span is a half-open range of buffer elements.
type span struct {
	start, length int
}

func (s span) end() int { return s.start + s.length }

// rangeAllocator hands out ranges of a growable buffer. Released ranges go
// to a free list kept sorted by start with adjacent ranges merged.
type rangeAllocator struct {
	size int
	free []span
}

// alloc returns a range of n elements, first fit from the free list or
// appended at the end of the buffer.
func (a *rangeAllocator) alloc(n int) span {
	if n <= 0 {
		return span{}
	}
	for i, f := range a.free {
		if f.length < n {
			continue
		}
		s := span{start: f.start, length: n}
		if f.length == n {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{start: f.start + n, length: f.length - n}
		}
		return s
	}
	s := span{start: a.size, length: n}
	a.size += n
	return s
}

func (a *rangeAllocator) release(s span) {
	if s.length == 0 {
		return
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].start > s.start })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s
	if i+1 < len(a.free) && a.free[i].end() == a.free[i+1].start {
		a.free[i].length += a.free[i+1].length
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].end() == a.free[i].start {
		a.free[i-1].length += a.free[i].length
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// A free range at the tail shrinks the buffer.
	if last := len(a.free) - 1; last >= 0 && a.free[last].end() == a.size {
		a.size = a.free[last].start
		a.free = a.free[:last]
	}
}
