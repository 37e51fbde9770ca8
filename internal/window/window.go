// Package window owns the native surface, input polling and the per-frame
// delta-time source.
package window

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/event"
)

// MaxFirstDelta caps the delta of the first frame, which otherwise spans
// everything between construction and the first poll.
const MaxFirstDelta = 100 * time.Millisecond

// FramebufferTarget receives resize notifications. The renderer implements it.
type FramebufferTarget interface {
	RecreateFramebuffer(width, height int)
}

// TargetLookup resolves the framebuffer target at call time. It is a
// non-owning reference: it returns nil once the target has been released.
type TargetLookup func() FramebufferTarget

// Window is the first module in every engine. It polls input before any
// other module updates and measures the frame delta.
type Window struct {
	surface Surface
	clock   Clock
	bus     *event.Bus
	log     *zap.Logger
	target  TargetLookup

	title  string
	width  int
	height int

	last      time.Duration
	delta     time.Duration
	sampled   bool
	destroyed bool

	down     map[string]bool
	pressed  map[string]bool
	released map[string]bool
}

func New(cfg config.WindowConfig, surface Surface, clock Clock, bus *event.Bus, target TargetLookup, log *zap.Logger) (*Window, error) {
	if surface == nil {
		return nil, errors.New("create window: no surface backend")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	if log == nil {
		log = zap.NewNop()
	}
	w, h := surface.Size()
	if w <= 0 || h <= 0 {
		w, h = cfg.Width, cfg.Height
	}
	win := &Window{
		surface:  surface,
		clock:    clock,
		bus:      bus,
		log:      log,
		target:   target,
		title:    cfg.Title,
		width:    w,
		height:   h,
		down:     make(map[string]bool),
		pressed:  make(map[string]bool),
		released: make(map[string]bool),
	}
	win.last = clock.Now()
	log.Debug("window created",
		zap.String("title", win.title),
		zap.Int("width", w),
		zap.Int("height", h),
	)
	return win, nil
}

func (w *Window) Name() string { return "window" }

func (w *Window) OnAwake() {}

// OnUpdate polls native input and then delivers last frame's bus events.
// Polling happens first so a failing subscriber cannot starve input. Events
// emitted while polling land in the back buffer and are delivered next frame.
func (w *Window) OnUpdate(_ time.Duration) {
	w.bus.SwapBuffers()
	for _, ev := range w.surface.PollEvents() {
		w.handle(ev)
	}
	w.bus.DispatchAll()
}

func (w *Window) OnFixedUpdate() {}

// OnLateUpdate clears the per-frame key transition flags.
func (w *Window) OnLateUpdate() {
	clear(w.pressed)
	clear(w.released)
}

// OnDestroy releases the native surface.
func (w *Window) OnDestroy() {
	if w.destroyed {
		return
	}
	w.destroyed = true
	if err := w.surface.Destroy(); err != nil {
		w.log.Error("destroy surface", zap.Error(err))
		return
	}
	w.log.Debug("window destroyed")
}

func (w *Window) handle(ev NativeEvent) {
	switch ev.Kind {
	case EventResize:
		w.resize(ev.Width, ev.Height)
	case EventClose:
		event.Emit(w.bus, event.CloseRequested{})
	case EventKey:
		if ev.Down {
			if !w.down[ev.Key] {
				w.pressed[ev.Key] = true
			}
			w.down[ev.Key] = true
		} else {
			delete(w.down, ev.Key)
			w.released[ev.Key] = true
		}
		event.Emit(w.bus, event.Key{Code: ev.Key, Down: ev.Down})
	}
}

// resize stores the new size and forwards it to the renderer synchronously,
// so framebuffers are rebuilt before this frame's render phase.
func (w *Window) resize(width, height int) {
	if width <= 0 || height <= 0 {
		w.log.Warn("ignoring degenerate resize", zap.Int("width", width), zap.Int("height", height))
		return
	}
	w.width, w.height = width, height
	w.recreateFramebuffer(width, height)
	event.Emit(w.bus, event.Resized{Width: width, Height: height})
}

func (w *Window) recreateFramebuffer(width, height int) {
	if w.target == nil {
		return
	}
	t := w.target()
	if t == nil {
		w.log.Debug("no framebuffer target for resize")
		return
	}
	t.RecreateFramebuffer(width, height)
}

// Tick samples the clock and returns the time elapsed since the previous
// tick. The owner calls it once per frame before any module updates.
func (w *Window) Tick() time.Duration {
	w.calculateDeltaTime()
	return w.delta
}

func (w *Window) calculateDeltaTime() {
	now := w.clock.Now()
	w.delta = now - w.last
	w.last = now
	if w.delta < 0 {
		w.delta = 0
	}
	if !w.sampled {
		w.sampled = true
		if w.delta > MaxFirstDelta {
			w.log.Warn("clamping first frame delta",
				zap.Duration("measured", w.delta),
				zap.Duration("clamped", MaxFirstDelta),
			)
			w.delta = MaxFirstDelta
		}
	}
}

// DeltaTime returns the delta measured by the most recent Tick.
func (w *Window) DeltaTime() time.Duration { return w.delta }

// IsOpen reports whether the frame loop should continue.
func (w *Window) IsOpen() bool {
	return !w.destroyed && !w.surface.ShouldClose()
}

// Close asks the surface to close; the loop ends before the next frame.
func (w *Window) Close() {
	w.log.Warn("closing window")
	w.surface.RequestClose()
}

func (w *Window) Size() (int, int) { return w.width, w.height }
func (w *Window) Title() string    { return w.title }
func (w *Window) Bus() *event.Bus  { return w.bus }

// SetSize changes the logical size and forwards it like a native resize.
func (w *Window) SetSize(width, height int) {
	w.resize(width, height)
}

// KeyDown reports whether the key is currently held.
func (w *Window) KeyDown(key string) bool { return w.down[key] }

// KeyPressed reports whether the key went down during this frame.
func (w *Window) KeyPressed(key string) bool { return w.pressed[key] }

// KeyReleased reports whether the key went up during this frame.
func (w *Window) KeyReleased(key string) bool { return w.released[key] }
