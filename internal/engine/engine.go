// Package engine owns the ordered module sequence and drives the frame
// protocol: update and fixed-update per module, render, late-update, flush.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/knoting/knot/internal/asset"
	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/event"
	"github.com/knoting/knot/internal/core/module"
	"github.com/knoting/knot/internal/physics"
	"github.com/knoting/knot/internal/render"
	"github.com/knoting/knot/internal/scene"
	"github.com/knoting/knot/internal/window"
)

var (
	ErrClosed          = errors.New("engine closed")
	ErrPhysicsDisabled = errors.New("physics module not enabled")
)

// Backends are the platform implementations behind the built-in modules.
type Backends struct {
	Surface window.Surface
	Clock   window.Clock // nil = monotonic system clock
	Device  render.Device
	Physics physics.Backend
}

type Option func(*Engine)

// WithScene makes the engine operate on an existing scene.
func WithScene(sc *scene.Scene) Option {
	return func(e *Engine) { e.scene = sc }
}

// WithBus shares an event bus with code outside the engine.
func WithBus(b *event.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithObserver is called after every module hook, e.g. for tracing.
func WithObserver(o module.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithFramePacing makes Run wait for a ticker between frames.
func WithFramePacing(interval time.Duration) Option {
	return func(e *Engine) { e.pacing = interval }
}

type Engine struct {
	cfg      *config.Config
	backends Backends
	log      *zap.Logger
	bus      *event.Bus
	scene    *scene.Scene
	runner   *module.Runner
	observer module.Observer
	pacing   time.Duration

	window  *window.Window
	assets  *asset.Manager
	render  *render.ForwardRenderer
	physics *physics.Module

	frame        uint64
	resetPending bool
	closed       bool
}

// New constructs the built-in modules and awakes them in order. Any
// backend that fails to initialise is returned as an error; there is no
// degraded mode.
func New(cfg *config.Config, backends Backends, log *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:      cfg,
		backends: backends,
		log:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = event.NewBus()
		e.bus.SetLogger(log.Named("event"))
	}
	if e.scene == nil {
		e.scene = scene.New()
	}
	e.runner = module.NewRunner(log)
	e.runner.SetObserver(e.observer)

	mods, err := e.builtinModules()
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		e.runner.Append(m)
	}
	e.runner.AwakeAll()

	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Name())
	}
	log.Info("engine started", zap.Strings("modules", names))
	return e, nil
}

// builtinModules constructs the built-in modules in their fixed order:
// window, assets, render, physics. Nothing is awoken here.
func (e *Engine) builtinModules() ([]module.Module, error) {
	var mods []module.Module

	win, err := window.New(e.cfg.Window, e.backends.Surface, e.backends.Clock, e.bus, e.framebufferTarget, e.log.Named("window"))
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	e.window = win
	mods = append(mods, win)

	var meshes render.MeshSource
	if e.cfg.Assets.Enabled {
		e.assets = asset.NewManager(e.cfg.Assets, e.log.Named("assets"))
		meshes = e.assets
		mods = append(mods, e.assets)
	}

	width, height := win.Size()
	rd, err := render.NewForwardRenderer(e.cfg.Render, e.backends.Device, e.scene, meshes, width, height, e.log.Named("render"))
	if err != nil {
		// the surface already exists
		win.OnDestroy()
		return nil, fmt.Errorf("render: %w", err)
	}
	e.render = rd
	mods = append(mods, rd)

	if e.cfg.Physics.Enabled {
		ph, err := e.newPhysics(e.backends.Physics)
		if err != nil {
			rd.OnDestroy()
			win.OnDestroy()
			return nil, err
		}
		e.physics = ph
		mods = append(mods, ph)
	}
	return mods, nil
}

func (e *Engine) newPhysics(b physics.Backend) (*physics.Module, error) {
	ph, err := physics.New(e.cfg.Physics, b, e.scene, e.log.Named("physics"))
	if err != nil {
		return nil, fmt.Errorf("physics: %w", err)
	}
	return ph, nil
}

// framebufferTarget is the window's non-owning view of the renderer.
func (e *Engine) framebufferTarget() window.FramebufferTarget {
	if e.closed || e.render == nil {
		return nil
	}
	return e.render
}

// UpdateModules runs one frame. The window's clock is sampled once, before
// any module updates, and every module sees that same dt.
func (e *Engine) UpdateModules() {
	if e.closed {
		return
	}
	if e.resetPending {
		e.resetPending = false
		if err := e.ResetPhysics(); err != nil {
			e.log.Error("deferred physics reset", zap.Error(err))
		}
	}
	dt := e.window.Tick()

	e.runner.Update(dt)
	e.runner.Render(e.render)
	e.runner.LateUpdate()
	if n := e.scene.FlushDestroyed(); n > 0 {
		e.log.Debug("objects destroyed", zap.Int("count", n))
	}
	e.runner.Flush(e.render)
	e.frame++
}

// IsOpen reports whether the frame loop should continue.
func (e *Engine) IsOpen() bool {
	return !e.closed && e.window.IsOpen()
}

// Run drives UpdateModules until the window closes or ctx is done. A
// cancelled context closes the window; the frame in progress completes.
func (e *Engine) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if e.pacing > 0 {
		ticker := time.NewTicker(e.pacing)
		defer ticker.Stop()
		tick = ticker.C
	}
	for e.IsOpen() {
		if tick != nil {
			select {
			case <-ctx.Done():
				e.window.Close()
				return ctx.Err()
			case <-tick:
			}
		} else if ctx.Err() != nil {
			e.window.Close()
			return ctx.Err()
		}
		e.UpdateModules()
	}
	return nil
}

// Close destroys every module in registration order and releases the
// sequence. Calling it again is a no-op.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.runner.DestroyAll()
	activeEngine.CompareAndSwap(e, nil)
	e.log.Info("engine shut down", zap.Uint64("frames", e.frame))
}

// AddModule appends m to the sequence and awakes it immediately. It takes
// part in frames from the next UpdateModules call.
func (e *Engine) AddModule(m module.Module) (int, error) {
	if e.closed {
		return -1, ErrClosed
	}
	idx := e.runner.Append(m)
	e.runner.Awake(m)
	event.Emit(e.bus, event.ModuleAdded{Name: m.Name(), Index: idx})
	e.log.Info("module added", zap.String("module", m.Name()), zap.Int("index", idx))
	return idx, nil
}

// ResetPhysics replaces the physics module with a fresh one on the current
// backend. It must be called between frames.
func (e *Engine) ResetPhysics() error {
	return e.ResetPhysicsWith(nil)
}

// RequestPhysicsReset schedules ResetPhysics before the next frame. Module
// hooks use it since the sequence must not change during a phase.
func (e *Engine) RequestPhysicsReset() { e.resetPending = true }

// ResetPhysicsWith replaces the physics module in place: the old instance
// is destroyed, a new one on b (or the current backend if nil) is awoken and
// stored at the same index of the sequence.
func (e *Engine) ResetPhysicsWith(b physics.Backend) error {
	if e.closed {
		return ErrClosed
	}
	if e.physics == nil {
		return ErrPhysicsDisabled
	}
	if b == nil {
		b = e.physics.Backend()
	}
	idx := e.runner.IndexOf(e.physics)
	if idx < 0 {
		return errors.New("reset physics: module not in sequence")
	}
	fresh, err := e.newPhysics(b)
	if err != nil {
		return fmt.Errorf("reset physics: %w", err)
	}

	old := e.physics
	e.runner.Destroy(old)
	e.runner.Awake(fresh)
	if _, err := e.runner.Replace(idx, fresh); err != nil {
		return fmt.Errorf("reset physics: %w", err)
	}
	e.physics = fresh
	e.backends.Physics = b

	bodies := 0
	if w := fresh.World(); w != nil {
		bodies = w.Bodies()
	}
	event.Emit(e.bus, event.PhysicsReset{Backend: b.Name(), Bodies: bodies})
	e.log.Info("physics reset", zap.String("backend", b.Name()), zap.Int("bodies", bodies))
	return nil
}

func (e *Engine) Window() *window.Window          { return e.window }
func (e *Engine) Render() *render.ForwardRenderer { return e.render }
func (e *Engine) Assets() *asset.Manager          { return e.assets }
func (e *Engine) Scene() *scene.Scene             { return e.scene }
func (e *Engine) Bus() *event.Bus                 { return e.bus }
func (e *Engine) Config() *config.Config          { return e.cfg }
func (e *Engine) Logger() *zap.Logger             { return e.log }

// Physics returns the current physics module, nil when disabled. The value
// changes on every reset.
func (e *Engine) Physics() *physics.Module { return e.physics }

// Modules returns a snapshot of the ordered sequence.
func (e *Engine) Modules() []module.Module { return e.runner.Modules() }

// Frame returns the number of completed frames.
func (e *Engine) Frame() uint64 { return e.frame }
