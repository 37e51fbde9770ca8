package module

import "time"

// Phase identifies one step of the engine lifecycle protocol.
type Phase int

const (
	PhaseAwake       Phase = iota // 0: one-time init, registration order
	PhaseUpdate                   // 1: variable-step update with the frame dt
	PhaseFixedUpdate              // 2: right after the same module's update
	PhaseRender                   // 3: renderer only
	PhasePostRender               // 4: renderer only
	PhaseLateUpdate               // 5: after rendering, observes this frame
	PhaseFlush                    // 6: end-of-frame barrier on the graphics backend
	PhaseDestroy                  // 7: teardown, registration order
)

var phaseNames = [...]string{
	PhaseAwake:       "awake",
	PhaseUpdate:      "update",
	PhaseFixedUpdate: "fixed_update",
	PhaseRender:      "render",
	PhasePostRender:  "post_render",
	PhaseLateUpdate:  "late_update",
	PhaseFlush:       "flush",
	PhaseDestroy:     "destroy",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Module is the interface every engine subsystem implements. Hooks are called
// only by the engine, on the frame-loop goroutine, and never concurrently.
// Hooks report failures by logging; they have no error results.
type Module interface {
	Name() string
	OnAwake()
	OnUpdate(dt time.Duration)
	OnFixedUpdate()
	OnLateUpdate()
	OnDestroy()
}

// Renderer is the single module that drives the render phases of a frame.
type Renderer interface {
	Module
	OnRender()
	OnPostRender()
	RecreateFramebuffer(width, height int)
	EndFrame()
}

// Base implements every hook as a no-op. Embed it to implement only the hooks
// a module cares about.
type Base struct{}

func (Base) OnAwake()                 {}
func (Base) OnUpdate(_ time.Duration) {}
func (Base) OnFixedUpdate()           {}
func (Base) OnLateUpdate()            {}
func (Base) OnDestroy()               {}
