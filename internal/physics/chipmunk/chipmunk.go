// Package chipmunk runs rigid bodies on the Chipmunk2D solver. The
// simulation happens in the XY plane: each box is projected onto it and
// keeps its Z coordinate unchanged.
package chipmunk

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jakecoffman/cp"

	"github.com/knoting/knot/internal/physics"
	"github.com/knoting/knot/internal/scene"
)

const (
	Name       = "chipmunk"
	Elasticity = 0.2
	Friction   = 0.7
	Iterations = 10
)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Name() string { return Name }

func (Backend) NewWorld(gravity mgl32.Vec3) (physics.World, error) {
	space := cp.NewSpace()
	space.Iterations = Iterations
	space.SetGravity(cp.Vector{X: float64(gravity.X()), Y: float64(gravity.Y())})
	return &World{space: space, bodies: make(map[scene.BodyID]*body)}, nil
}

type body struct {
	body  *cp.Body
	shape *cp.Shape
	z     float32
}

type World struct {
	space  *cp.Space
	bodies map[scene.BodyID]*body
	next   scene.BodyID
	closed bool
}

// AddBody creates a box body. Dynamic bodies get an infinite moment so they
// stay axis-aligned like the scene boxes they mirror.
func (w *World) AddBody(d physics.BodyDesc) (scene.BodyID, error) {
	if w.closed {
		return 0, physics.ErrWorldClosed
	}
	if d.Dynamic && d.Mass <= 0 {
		return 0, fmt.Errorf("add body: dynamic body needs positive mass, got %g", d.Mass)
	}
	width := 2 * float64(d.HalfExtents.X())
	height := 2 * float64(d.HalfExtents.Y())
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("add body: degenerate box %v", d.HalfExtents)
	}

	var b *cp.Body
	if d.Dynamic {
		b = cp.NewBody(float64(d.Mass), math.Inf(1))
	} else {
		b = cp.NewStaticBody()
	}
	b.SetPosition(cp.Vector{X: float64(d.Position.X()), Y: float64(d.Position.Y())})
	w.space.AddBody(b)

	shape := cp.NewBox(b, width, height, 0)
	shape.SetElasticity(Elasticity)
	shape.SetFriction(Friction)
	w.space.AddShape(shape)

	w.next++
	w.bodies[w.next] = &body{body: b, shape: shape, z: d.Position.Z()}
	return w.next, nil
}

func (w *World) RemoveBody(id scene.BodyID) error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("remove body %d: %w", id, physics.ErrUnknownBody)
	}
	w.space.RemoveShape(b.shape)
	w.space.RemoveBody(b.body)
	delete(w.bodies, id)
	return nil
}

func (w *World) State(id scene.BodyID) (physics.BodyState, error) {
	if w.closed {
		return physics.BodyState{}, physics.ErrWorldClosed
	}
	b, ok := w.bodies[id]
	if !ok {
		return physics.BodyState{}, fmt.Errorf("body %d: %w", id, physics.ErrUnknownBody)
	}
	p, v := b.body.Position(), b.body.Velocity()
	return physics.BodyState{
		Position: mgl32.Vec3{float32(p.X), float32(p.Y), b.z},
		Velocity: mgl32.Vec3{float32(v.X), float32(v.Y), 0},
	}, nil
}

func (w *World) Step(dt time.Duration) error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	w.space.Step(dt.Seconds())
	return nil
}

func (w *World) Bodies() int { return len(w.bodies) }

func (w *World) Close() error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	w.closed = true
	w.bodies = nil
	w.space = nil
	return nil
}
