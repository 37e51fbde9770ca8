// Package scene stores game objects on top of the ecs world.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/knoting/knot/internal/core/ecs"
)

// Scene owns the component stores the engine modules read and write.
type Scene struct {
	world      *ecs.World
	Names      *ecs.Store[Name]
	Transforms *ecs.Store[Transform]
	Meshes     *ecs.Store[MeshRenderer]
	Cameras    *ecs.Store[Camera]
	Bodies     *ecs.Store[RigidBody]
}

func New() *Scene {
	w := ecs.NewWorld()
	return &Scene{
		world:      w,
		Names:      ecs.AddStore[Name](w),
		Transforms: ecs.AddStore[Transform](w),
		Meshes:     ecs.AddStore[MeshRenderer](w),
		Cameras:    ecs.AddStore[Camera](w),
		Bodies:     ecs.AddStore[RigidBody](w),
	}
}

func (s *Scene) World() *ecs.World { return s.world }

// Count returns the number of live objects.
func (s *Scene) Count() int { return s.world.Pool().Count() }

// CreateObject creates a named object with an identity transform.
func (s *Scene) CreateObject(name string) Object {
	id := s.world.CreateEntity()
	s.Names.Set(id, &Name{Value: name})
	s.Transforms.Set(id, NewTransform())
	return Object{id: id, scene: s}
}

// Find returns the first live object with the given name.
func (s *Scene) Find(name string) (Object, bool) {
	for _, id := range s.Names.IDs() {
		if n, _ := s.Names.Get(id); n.Value == name {
			return Object{id: id, scene: s}, true
		}
	}
	return Object{}, false
}

// Destroy queues the object for removal at the end of the frame.
func (s *Scene) Destroy(o Object) {
	s.world.MarkForDestruction(o.id)
}

// FlushDestroyed removes every queued object and returns how many were removed.
func (s *Scene) FlushDestroyed() int {
	return s.world.FlushDestroyQueue()
}

// ActiveCamera returns the lowest-id camera and its transform.
func (s *Scene) ActiveCamera() (*Camera, *Transform, bool) {
	for _, id := range s.Cameras.IDs() {
		cam, _ := s.Cameras.Get(id)
		if tr, ok := s.Transforms.Get(id); ok {
			return cam, tr, true
		}
	}
	return nil, nil, false
}

// Object is a lightweight handle to an entity in a Scene.
type Object struct {
	id    ecs.EntityID
	scene *Scene
}

func (o Object) ID() ecs.EntityID { return o.id }
func (o Object) Valid() bool      { return o.scene != nil && o.scene.world.Alive(o.id) }

func (o Object) Name() string {
	if n, ok := o.scene.Names.Get(o.id); ok {
		return n.Value
	}
	return ""
}

func (o Object) Transform() *Transform {
	t, _ := o.scene.Transforms.Get(o.id)
	return t
}

// SetPosition is shorthand for Transform().Position = p.
func (o Object) SetPosition(p mgl32.Vec3) Object {
	o.Transform().Position = p
	return o
}

// SetScale is shorthand for Transform().Scale = s.
func (o Object) SetScale(s mgl32.Vec3) Object {
	o.Transform().Scale = s
	return o
}

func (o Object) AddMesh(mesh string, color mgl32.Vec4) *MeshRenderer {
	m := &MeshRenderer{Mesh: mesh, Color: color}
	o.scene.Meshes.Set(o.id, m)
	return m
}

func (o Object) AddCamera(fovY float32, editor bool) *Camera {
	c := &Camera{FovY: fovY, Near: 0.1, Far: 1000, Editor: editor}
	o.scene.Cameras.Set(o.id, c)
	return c
}

// AddBoxBody attaches a box collider. Mass is ignored for static bodies.
func (o Object) AddBoxBody(halfExtents mgl32.Vec3, dynamic bool, mass float32) *RigidBody {
	b := &RigidBody{HalfExtents: halfExtents, Mass: mass, Dynamic: dynamic}
	o.scene.Bodies.Set(o.id, b)
	return b
}

func (o Object) RigidBody() (*RigidBody, bool) {
	return o.scene.Bodies.Get(o.id)
}
