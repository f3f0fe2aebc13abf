// Package texture computes texture coordinates for generated meshes.
package texture

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lars-frogner/Impact-sub013/voxerr"
)

// PlanarProjection maps points onto a plane spanned by two vectors. The
// texture coordinates are zero at Origin and one at the tip of each vector.
// The vectors need not be orthogonal; points off the plane are projected
// along the direction that minimizes the distance.
type PlanarProjection struct {
	Origin mgl32.Vec3
	U, V   mgl32.Vec3

	// inverse Gram matrix
	inv [3]float32
}

// NewPlanarProjection fails when u or v is zero or when they are colinear.
func NewPlanarProjection(origin, u, v mgl32.Vec3) (*PlanarProjection, error) {
	uu, vv, uv := u.Dot(u), v.Dot(v), u.Dot(v)
	if uu == 0 || vv == 0 {
		return nil, fmt.Errorf("texture projection vectors must be non-zero: %w", voxerr.ErrConfigurationInvalid)
	}
	det := uu*vv - uv*uv
	if det <= 1e-6*uu*vv {
		return nil, fmt.Errorf("texture projection vectors %v and %v are colinear: %w", u, v, voxerr.ErrConfigurationInvalid)
	}
	return &PlanarProjection{
		Origin: origin,
		U:      u,
		V:      v,
		inv:    [3]float32{vv / det, -uv / det, uu / det},
	}, nil
}

// ForRectangle covers a horizontal rectangle centered on the origin with the
// texture repeated the given number of times along x and z.
func ForRectangle(extentX, extentZ, repeatsU, repeatsV float32) (*PlanarProjection, error) {
	if repeatsU <= 0 || repeatsV <= 0 {
		return nil, fmt.Errorf("texture repeats must be positive: %w", voxerr.ErrConfigurationInvalid)
	}
	return NewPlanarProjection(
		mgl32.Vec3{-0.5 * extentX, 0, -0.5 * extentZ},
		mgl32.Vec3{extentX / repeatsU, 0, 0},
		mgl32.Vec3{0, 0, extentZ / repeatsV},
	)
}

// Project returns the texture coordinates of pos.
func (p *PlanarProjection) Project(pos mgl32.Vec3) mgl32.Vec2 {
	d := pos.Sub(p.Origin)
	du, dv := d.Dot(p.U), d.Dot(p.V)
	return mgl32.Vec2{
		p.inv[0]*du + p.inv[1]*dv,
		p.inv[1]*du + p.inv[2]*dv,
	}
}

// ProjectAll fills dst with the coordinates of every position, growing it as
// needed.
func (p *PlanarProjection) ProjectAll(dst []mgl32.Vec2, positions []mgl32.Vec3) []mgl32.Vec2 {
	dst = dst[:0]
	for _, pos := range positions {
		dst = append(dst, p.Project(pos))
	}
	return dst
}

func (p *PlanarProjection) String() string {
	return fmt.Sprintf("planar{origin=%v u=%v v=%v}", p.Origin, p.U, p.V)
}
