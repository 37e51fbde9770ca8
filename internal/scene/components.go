package scene

import "github.com/go-gl/mathgl/mgl32"

// Name labels a game object.
type Name struct {
	Value string
}

// Transform places an object in world space.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// NewTransform returns an identity transform.
func NewTransform() *Transform {
	return &Transform{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns the model matrix: translate * rotate * scale.
func (t *Transform) Matrix() mgl32.Mat4 {
	tr := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	sc := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
	return tr.Mul4(t.Rotation.Mat4()).Mul4(sc)
}

// MeshRenderer draws a mesh asset at the object's transform.
type MeshRenderer struct {
	Mesh  string // asset name, e.g. "cube"
	Color mgl32.Vec4
}

// Camera is a perspective camera. The renderer uses the first camera found.
type Camera struct {
	FovY   float32 // degrees
	Near   float32
	Far    float32
	Target mgl32.Vec3
	Editor bool
}

// BodyID identifies a body inside a physics world. Zero means unregistered.
type BodyID uint32

// RigidBody attaches a box collider to an object.
//
// Body is only valid for the physics world that issued it; a physics reset
// invalidates it until the new world re-registers the object.
type RigidBody struct {
	HalfExtents mgl32.Vec3
	Mass        float32
	Dynamic     bool
	Body        BodyID
}
