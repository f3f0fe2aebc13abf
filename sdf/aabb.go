package sdf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned box. An AABB with Min > Max on any axis is empty.
type AABB struct {
	Min, Max mgl32.Vec3
}

func emptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{Min: mgl32.Vec3{inf, inf, inf}, Max: mgl32.Vec3{-inf, -inf, -inf}}
}

func centeredAABB(halfExtents mgl32.Vec3) AABB {
	return AABB{Min: halfExtents.Mul(-1), Max: halfExtents}
}

func (b AABB) IsEmpty() bool {
	return b.Min.X() > b.Max.X() || b.Min.Y() > b.Max.Y() || b.Min.Z() > b.Max.Z()
}

func (b AABB) Extents() mgl32.Vec3 {
	if b.IsEmpty() {
		return mgl32.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Expanded(margin float32) AABB {
	if b.IsEmpty() {
		return b
	}
	m := mgl32.Vec3{margin, margin, margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

func (b AABB) Translated(v mgl32.Vec3) AABB {
	if b.IsEmpty() {
		return b
	}
	return AABB{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

func (b AABB) Scaled(s float32) AABB {
	if b.IsEmpty() {
		return b
	}
	return AABB{Min: b.Min.Mul(s), Max: b.Max.Mul(s)}
}

func (b AABB) Union(o AABB) AABB {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return AABB{
		Min: mgl32.Vec3{min(b.Min[0], o.Min[0]), min(b.Min[1], o.Min[1]), min(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{max(b.Max[0], o.Max[0]), max(b.Max[1], o.Max[1]), max(b.Max[2], o.Max[2])},
	}
}

func (b AABB) Overlap(o AABB) AABB {
	r := AABB{
		Min: mgl32.Vec3{max(b.Min[0], o.Min[0]), max(b.Min[1], o.Min[1]), max(b.Min[2], o.Min[2])},
		Max: mgl32.Vec3{min(b.Max[0], o.Max[0]), min(b.Max[1], o.Max[1]), min(b.Max[2], o.Max[2])},
	}
	if r.IsEmpty() {
		return emptyAABB()
	}
	return r
}

func (b AABB) Intersects(o AABB) bool {
	return !b.Overlap(o).IsEmpty()
}

func (b AABB) corners() [8]mgl32.Vec3 {
	var c [8]mgl32.Vec3
	for i := range c {
		for axis := 0; axis < 3; axis++ {
			if i>>axis&1 == 0 {
				c[i][axis] = b.Min[axis]
			} else {
				c[i][axis] = b.Max[axis]
			}
		}
	}
	return c
}

// Transformed returns the AABB enclosing the box after applying m.
func (b AABB) Transformed(m mgl32.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	r := emptyAABB()
	for _, c := range b.corners() {
		p := mgl32.TransformCoordinate(c, m)
		r = r.Union(AABB{Min: p, Max: p})
	}
	return r
}
