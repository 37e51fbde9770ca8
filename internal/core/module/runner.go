package module

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Observer is notified after each hook invocation. Used for tracing.
type Observer func(m Module, phase Phase)

// Runner owns the ordered module sequence and drives hooks across it.
//
// INVARIANTS:
//   - insertion order is dependency order is update order
//   - existing entries never move; new modules are only appended
//   - Replace swaps an entry at the same index
//
// A hook that panics is logged and the runner moves on to the next module.
// Mutation is only safe between frames.
type Runner struct {
	modules  []Module
	log      *zap.Logger
	observer Observer
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		modules: make([]Module, 0, 8),
		log:     log,
	}
}

// SetObserver installs a hook observer. Pass nil to remove it.
func (r *Runner) SetObserver(o Observer) { r.observer = o }

// Append adds m to the end of the sequence and returns its index.
func (r *Runner) Append(m Module) int {
	r.modules = append(r.modules, m)
	return len(r.modules) - 1
}

// Replace swaps the module at index i for m and returns the previous one.
func (r *Runner) Replace(i int, m Module) (Module, error) {
	if i < 0 || i >= len(r.modules) {
		return nil, fmt.Errorf("replace module: index %d out of range [0,%d)", i, len(r.modules))
	}
	old := r.modules[i]
	r.modules[i] = m
	return old, nil
}

// IndexOf returns the position of m in the sequence, or -1.
func (r *Runner) IndexOf(m Module) int {
	for i, cur := range r.modules {
		if cur == m {
			return i
		}
	}
	return -1
}

func (r *Runner) Len() int { return len(r.modules) }

// Modules returns a copy of the ordered sequence.
func (r *Runner) Modules() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// AwakeAll calls OnAwake on every module in registration order.
func (r *Runner) AwakeAll() {
	for _, m := range r.modules {
		r.Awake(m)
	}
}

// Awake calls OnAwake on a single module.
func (r *Runner) Awake(m Module) {
	r.invoke(m, PhaseAwake, m.OnAwake)
}

// Update runs OnUpdate(dt) then OnFixedUpdate for each module in order, so
// the two phases of one module are never interleaved with another module.
// The module slice is captured up front: modules appended by a hook join
// from the next frame on.
func (r *Runner) Update(dt time.Duration) {
	for _, m := range r.modules {
		r.invoke(m, PhaseUpdate, func() { m.OnUpdate(dt) })
		r.invoke(m, PhaseFixedUpdate, m.OnFixedUpdate)
	}
}

// LateUpdate runs OnLateUpdate for each module in order.
func (r *Runner) LateUpdate() {
	for _, m := range r.modules {
		r.invoke(m, PhaseLateUpdate, m.OnLateUpdate)
	}
}

// Render drives the render and post-render phases on the renderer.
func (r *Runner) Render(rd Renderer) {
	r.invoke(rd, PhaseRender, rd.OnRender)
	r.invoke(rd, PhasePostRender, rd.OnPostRender)
}

// Flush signals end-of-frame to the renderer's graphics backend.
func (r *Runner) Flush(rd Renderer) {
	r.invoke(rd, PhaseFlush, rd.EndFrame)
}

// Destroy calls OnDestroy on a single module.
func (r *Runner) Destroy(m Module) {
	r.invoke(m, PhaseDestroy, m.OnDestroy)
}

// DestroyAll calls OnDestroy on every module in registration order and then
// releases the sequence. A failing module does not stop the others.
func (r *Runner) DestroyAll() {
	for _, m := range r.modules {
		r.Destroy(m)
	}
	r.modules = nil
}

func (r *Runner) invoke(m Module, phase Phase, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("module hook failed",
				zap.String("module", m.Name()),
				zap.Stringer("phase", phase),
				zap.Any("panic", rec),
			)
		}
		if r.observer != nil {
			r.observer(m, phase)
		}
	}()
	fn()
}
