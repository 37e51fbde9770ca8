// Package physics steps a rigid-body world at a fixed rate and mirrors body
// positions back into the scene.
package physics

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/knoting/knot/internal/scene"
)

var (
	ErrWorldClosed = errors.New("physics world closed")
	ErrUnknownBody = errors.New("unknown body")
)

// BodyDesc describes a box body to add to a World.
type BodyDesc struct {
	Position    mgl32.Vec3
	HalfExtents mgl32.Vec3
	Mass        float32
	Dynamic     bool
}

// BodyState is a body's simulated state after a step.
type BodyState struct {
	Position mgl32.Vec3
	Velocity mgl32.Vec3
}

// Backend creates simulation worlds. Each physics module instance owns
// exactly one world for its lifetime.
type Backend interface {
	Name() string
	NewWorld(gravity mgl32.Vec3) (World, error)
}

// World is a running simulation. Calls after Close return ErrWorldClosed.
type World interface {
	AddBody(d BodyDesc) (scene.BodyID, error)
	RemoveBody(id scene.BodyID) error
	State(id scene.BodyID) (BodyState, error)
	Step(dt time.Duration) error
	Bodies() int
	Close() error
}
