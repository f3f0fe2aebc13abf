package meta

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Instance is a similarity transform placing one copy of an SDF: scale first,
// then rotation, then translation.
type Instance struct {
	Translation mgl32.Vec3
	Rotation    mgl32.Quat
	Scale       float32
}

func identityInstance() Instance {
	return Instance{Rotation: mgl32.QuatIdent(), Scale: 1}
}

// Compose returns a∘b, the transform applying b first and a after it.
func (a Instance) Compose(b Instance) Instance {
	return Instance{
		Translation: a.Translation.Add(a.Rotation.Rotate(b.Translation.Mul(a.Scale))),
		Rotation:    a.Rotation.Mul(b.Rotation).Normalize(),
		Scale:       a.Scale * b.Scale,
	}
}

func (a Instance) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	return a.Translation.Add(a.Rotation.Rotate(p.Mul(a.Scale)))
}

// compose applies op to in on the side chosen by the composition mode. Post
// transforms the instance in the shared parent space, Pre in its own space.
func compose(mode string, op, in Instance) Instance {
	if mode == composePre {
		return in.Compose(op)
	}
	return op.Compose(in)
}
