// Package simple is a small built-in physics backend: axis-aligned boxes,
// semi-implicit Euler integration and resting contact against static boxes.
package simple

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/knoting/knot/internal/physics"
	"github.com/knoting/knot/internal/scene"
)

const (
	Name        = "simple"
	Restitution = float32(0.2)
)

type Backend struct{}

func New() Backend { return Backend{} }

func (Backend) Name() string { return Name }

func (Backend) NewWorld(gravity mgl32.Vec3) (physics.World, error) {
	return &World{gravity: gravity, bodies: make(map[scene.BodyID]*body)}, nil
}

type body struct {
	desc physics.BodyDesc
	pos  mgl32.Vec3
	vel  mgl32.Vec3
}

func (b *body) min() mgl32.Vec3 { return b.pos.Sub(b.desc.HalfExtents) }
func (b *body) max() mgl32.Vec3 { return b.pos.Add(b.desc.HalfExtents) }

type World struct {
	gravity mgl32.Vec3
	bodies  map[scene.BodyID]*body
	next    scene.BodyID
	closed  bool
}

func (w *World) AddBody(d physics.BodyDesc) (scene.BodyID, error) {
	if w.closed {
		return 0, physics.ErrWorldClosed
	}
	if d.Dynamic && d.Mass <= 0 {
		return 0, fmt.Errorf("add body: dynamic body needs positive mass, got %g", d.Mass)
	}
	w.next++
	w.bodies[w.next] = &body{desc: d, pos: d.Position}
	return w.next, nil
}

func (w *World) RemoveBody(id scene.BodyID) error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	if _, ok := w.bodies[id]; !ok {
		return fmt.Errorf("remove body %d: %w", id, physics.ErrUnknownBody)
	}
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
	return physics.BodyState{Position: b.pos, Velocity: b.vel}, nil
}

// Step advances the simulation by dt. Bodies are integrated in id order so
// results are reproducible.
func (w *World) Step(dt time.Duration) error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	h := float32(dt.Seconds())
	ids := make([]scene.BodyID, 0, len(w.bodies))
	for id := range w.bodies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := w.bodies[id]
		if !b.desc.Dynamic {
			continue
		}
		b.vel = b.vel.Add(w.gravity.Mul(h))
		b.pos = b.pos.Add(b.vel.Mul(h))
		for _, sid := range ids {
			s := w.bodies[sid]
			if sid == id || s.desc.Dynamic {
				continue
			}
			resolve(b, s)
		}
	}
	return nil
}

// resolve pushes b out of static s along the vertical axis.
func resolve(b, s *body) {
	bmin, bmax := b.min(), b.max()
	smin, smax := s.min(), s.max()
	for i := 0; i < 3; i++ {
		if bmax[i] <= smin[i] || bmin[i] >= smax[i] {
			return
		}
	}
	if b.pos.Y() >= s.pos.Y() {
		b.pos[1] = smax[1] + b.desc.HalfExtents.Y()
		if b.vel.Y() < 0 {
			b.vel[1] = -b.vel.Y() * Restitution
		}
		return
	}
	b.pos[1] = smin[1] - b.desc.HalfExtents.Y()
	if b.vel.Y() > 0 {
		b.vel[1] = -b.vel.Y() * Restitution
	}
}

func (w *World) Bodies() int { return len(w.bodies) }

func (w *World) Close() error {
	if w.closed {
		return physics.ErrWorldClosed
	}
	w.closed = true
	w.bodies = nil
	return nil
}
