package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/event"
	"github.com/knoting/knot/internal/core/module"
	"github.com/knoting/knot/internal/physics"
	"github.com/knoting/knot/internal/physics/chipmunk"
	"github.com/knoting/knot/internal/physics/simple"
	"github.com/knoting/knot/internal/render"
	"github.com/knoting/knot/internal/scene"
	"github.com/knoting/knot/internal/window"
)

type harness struct {
	surface *window.HeadlessSurface
	device  *render.HeadlessDevice
	calls   []string
}

func (h *harness) observe(m module.Module, p module.Phase) {
	h.calls = append(h.calls, m.Name()+":"+p.String())
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) (*Engine, *harness) {
	t.Helper()
	if cfg == nil {
		cfg = config.Defaults()
	}
	h := &harness{
		surface: window.NewHeadlessSurface(cfg.Window.Width, cfg.Window.Height, 0),
		device:  render.NewHeadlessDevice(),
	}
	opts = append(opts, WithObserver(h.observe))
	e, err := New(cfg, Backends{
		Surface: h.surface,
		Clock:   window.NewStepClock(16 * time.Millisecond),
		Device:  h.device,
		Physics: simple.New(),
	}, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, h
}

func moduleNames(mods []module.Module) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Name())
	}
	return out
}

// recorder records the dt it was updated with and every hook call.
type recorder struct {
	module.Base
	name    string
	dts     []time.Duration
	awakes  int
	destroy int
	panicOn module.Phase
}

func (p *recorder) Name() string { return p.name }
func (p *recorder) OnAwake()     { p.awakes++ }
func (p *recorder) OnDestroy()   { p.destroy++ }

// sequenceClock replays fixed readings, one per Now call.
type sequenceClock struct{ reads []time.Duration }

func (c *sequenceClock) Now() time.Duration {
	v := c.reads[0]
	if len(c.reads) > 1 {
		c.reads = c.reads[1:]
	}
	return v
}

func (p *recorder) OnUpdate(dt time.Duration) {
	if p.panicOn == module.PhaseUpdate {
		panic("update failed")
	}
	p.dts = append(p.dts, dt)
}

func TestNew_BuiltinOrder(t *testing.T) {
	e, h := newTestEngine(t, nil)
	assert.Equal(t, []string{"window", "assets", "render", "physics"}, moduleNames(e.Modules()))
	assert.Equal(t, []string{"window:awake", "assets:awake", "render:awake", "physics:awake"}, h.calls)

	cfg := config.Defaults()
	cfg.Assets.Enabled = false
	cfg.Physics.Enabled = false
	e2, _ := newTestEngine(t, cfg)
	assert.Equal(t, []string{"window", "render"}, moduleNames(e2.Modules()))
	assert.Nil(t, e2.Physics())
	assert.Nil(t, e2.Assets())
}

func TestNew_FatalBackendFailure(t *testing.T) {
	_, err := New(config.Defaults(), Backends{Device: render.NewHeadlessDevice()}, nil)
	assert.Error(t, err, "no surface")

	surface := window.NewHeadlessSurface(64, 64, 0)
	dev := render.NewHeadlessDevice()
	dev.FailInit = errors.New("no adapter")
	_, err = New(config.Defaults(), Backends{Surface: surface, Device: dev, Physics: simple.New()}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dev.FailInit)
	assert.True(t, surface.Destroyed())

	_, err = New(config.Defaults(), Backends{Surface: window.NewHeadlessSurface(64, 64, 0), Device: render.NewHeadlessDevice()}, nil)
	assert.Error(t, err, "physics enabled without a backend")
}

func TestUpdateModules_FrameProtocol(t *testing.T) {
	e, h := newTestEngine(t, nil)
	h.calls = nil

	e.UpdateModules()

	assert.Equal(t, []string{
		"window:update", "window:fixed_update",
		"assets:update", "assets:fixed_update",
		"render:update", "render:fixed_update",
		"physics:update", "physics:fixed_update",
		"render:render", "render:post_render",
		"window:late_update", "assets:late_update", "render:late_update", "physics:late_update",
		"render:flush",
	}, h.calls)
}

func TestUpdateModules_TenFrames(t *testing.T) {
	e, h := newTestEngine(t, nil)
	for i := 0; i < 10; i++ {
		require.True(t, e.IsOpen())
		e.UpdateModules()
	}

	st := e.Render().Stats()
	assert.Equal(t, uint64(10), st.Renders)
	assert.Equal(t, uint64(10), st.PostRenders)
	assert.Equal(t, uint64(10), st.Flushes)
	assert.Equal(t, uint64(10), h.device.Frames())
	assert.Equal(t, uint64(10), e.Physics().Stats().FixedUpdates)
	assert.Equal(t, uint64(10), e.Frame())
	assert.Equal(t, 16*time.Millisecond, e.Window().DeltaTime())
}

func TestUpdateModules_EveryModuleSeesCurrentFrameDt(t *testing.T) {
	ms := time.Millisecond
	clock := &sequenceClock{reads: []time.Duration{0, 50 * ms, 60 * ms, 100 * ms, 250 * ms, 255 * ms}}
	cfg := config.Defaults()
	cfg.Assets.Enabled = false
	e, err := New(cfg, Backends{
		Surface: window.NewHeadlessSurface(64, 64, 0),
		Clock:   clock,
		Device:  render.NewHeadlessDevice(),
		Physics: simple.New(),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)

	a, b := &recorder{name: "a"}, &recorder{name: "b"}
	_, err = e.AddModule(a)
	require.NoError(t, err)
	_, err = e.AddModule(b)
	require.NoError(t, err)

	want := []time.Duration{50 * ms, 10 * ms, 40 * ms, 150 * ms, 5 * ms}
	for i, dt := range want {
		e.UpdateModules()
		assert.Equal(t, dt, e.Window().DeltaTime(), "frame %d", i)
	}
	assert.Equal(t, want, a.dts)
	assert.Equal(t, want, b.dts)
	assert.Equal(t, uint64(len(want)), e.Physics().Stats().FixedUpdates)
}

func TestUpdateModules_FailingModuleDoesNotStopFrame(t *testing.T) {
	e, h := newTestEngine(t, nil)
	bad := &recorder{name: "bad", panicOn: module.PhaseUpdate}
	_, err := e.AddModule(bad)
	require.NoError(t, err)

	e.UpdateModules()
	assert.Equal(t, uint64(1), e.Render().Stats().Renders)
	assert.Equal(t, uint64(1), h.device.Frames())
	assert.Contains(t, h.calls, "bad:late_update")
}

func TestAddModule(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var added []event.ModuleAdded
	event.Subscribe(e.Bus(), func(ev event.ModuleAdded) { added = append(added, ev) })

	e.UpdateModules()
	p := &recorder{name: "late"}
	idx, err := e.AddModule(p)
	require.NoError(t, err)
	assert.Equal(t, 4, idx)
	assert.Equal(t, 1, p.awakes, "awoken on registration")
	assert.Empty(t, p.dts)

	e.UpdateModules()
	assert.Len(t, p.dts, 1)
	require.Len(t, added, 1)
	assert.Equal(t, event.ModuleAdded{Name: "late", Index: 4}, added[0])
}

func TestResetPhysics_ReplacesInPlace(t *testing.T) {
	e, h := newTestEngine(t, nil)
	sc := e.Scene()
	cube := sc.CreateObject("cube").SetPosition(mgl32.Vec3{0, 3, 0})
	cube.AddBoxBody(mgl32.Vec3{1, 1, 1}, true, 5)
	e.UpdateModules()

	var resets []event.PhysicsReset
	event.Subscribe(e.Bus(), func(ev event.PhysicsReset) { resets = append(resets, ev) })

	old := e.Physics()
	oldWorld := old.World()
	before := len(e.Modules())
	h.calls = nil

	require.NoError(t, e.ResetPhysics())

	assert.Equal(t, []string{"physics:destroy", "physics:awake"}, h.calls)
	assert.Len(t, e.Modules(), before)
	assert.Equal(t, []string{"window", "assets", "render", "physics"}, moduleNames(e.Modules()))
	assert.NotSame(t, old, e.Physics())
	assert.Same(t, e.Physics(), e.Modules()[3])

	_, err := oldWorld.AddBody(physics.BodyDesc{})
	assert.ErrorIs(t, err, physics.ErrWorldClosed)
	assert.Equal(t, 1, e.Physics().World().Bodies())

	e.UpdateModules()
	assert.Equal(t, uint64(1), e.Physics().Stats().FixedUpdates)
	assert.Equal(t, uint64(1), old.Stats().FixedUpdates, "old instance no longer updated")
	require.Len(t, resets, 1)
	assert.Equal(t, event.PhysicsReset{Backend: simple.Name, Bodies: 1}, resets[0])

	// closing destroys the replacement only, the old instance stays at one destroy
	h.calls = nil
	e.Close()
	assert.Equal(t, 1, countCalls(h.calls, "physics:destroy"))
}

func TestResetPhysicsWith_SwapsBackend(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	cube := e.Scene().CreateObject("cube").SetPosition(mgl32.Vec3{0, 3, 0})
	cube.AddBoxBody(mgl32.Vec3{1, 1, 1}, true, 5)
	e.UpdateModules()

	require.NoError(t, e.ResetPhysicsWith(chipmunk.New()))
	assert.Equal(t, chipmunk.Name, e.Physics().Backend().Name())
	assert.Equal(t, 1, e.Physics().World().Bodies())

	for i := 0; i < 10; i++ {
		e.UpdateModules()
	}
	assert.Less(t, cube.Transform().Position.Y(), float32(3), "falls under the new backend")

	require.NoError(t, e.ResetPhysics())
	assert.Equal(t, chipmunk.Name, e.Physics().Backend().Name(), "a plain reset keeps the backend")
}

func countCalls(calls []string, want string) int {
	n := 0
	for _, c := range calls {
		if c == want {
			n++
		}
	}
	return n
}

func TestRequestPhysicsReset_RunsBeforeNextFrame(t *testing.T) {
	e, h := newTestEngine(t, nil)
	e.UpdateModules()
	old := e.Physics()
	h.calls = nil

	e.RequestPhysicsReset()
	assert.Same(t, old, e.Physics(), "nothing happens until the next frame")

	e.UpdateModules()
	assert.NotSame(t, old, e.Physics())
	assert.Equal(t, []string{"physics:destroy", "physics:awake", "window:update"}, h.calls[:3])
	assert.Equal(t, uint64(1), e.Physics().Stats().FixedUpdates)
}

func TestResetPhysics_Disabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Physics.Enabled = false
	e, _ := newTestEngine(t, cfg)
	assert.ErrorIs(t, e.ResetPhysics(), ErrPhysicsDisabled)
}

func TestWindowResizeReachesRenderer(t *testing.T) {
	e, h := newTestEngine(t, nil)
	h.surface.Inject(window.NativeEvent{Kind: window.EventResize, Width: 1280, Height: 720})
	e.UpdateModules()

	assert.Equal(t, 1, e.Render().Stats().Resizes)
	w, ht := h.device.Size()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, ht)

	e.Close()
	assert.Nil(t, e.framebufferTarget(), "no renderer after teardown")
}

func TestClose_TeardownInOrder(t *testing.T) {
	e, h := newTestEngine(t, nil)
	p := &recorder{name: "extra"}
	_, err := e.AddModule(p)
	require.NoError(t, err)
	e.UpdateModules()
	h.calls = nil

	e.Close()
	e.Close()

	assert.Equal(t, []string{"window:destroy", "assets:destroy", "render:destroy", "physics:destroy", "extra:destroy"}, h.calls)
	assert.Equal(t, 1, p.destroy)
	assert.True(t, h.surface.Destroyed())
	assert.True(t, h.device.IsShutdown())
	assert.False(t, e.IsOpen())
	assert.Empty(t, e.Modules())

	e.UpdateModules()
	assert.Equal(t, uint64(1), e.Frame())
	_, err = e.AddModule(&recorder{name: "after"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIsOpen_FollowsWindow(t *testing.T) {
	e, h := newTestEngine(t, nil)
	assert.True(t, e.IsOpen())
	h.surface.Inject(window.NativeEvent{Kind: window.EventClose})
	e.UpdateModules()
	assert.False(t, e.IsOpen())

	e2, _ := newTestEngine(t, nil)
	e2.Window().Close()
	assert.False(t, e2.IsOpen())
}

func TestRun_UntilWindowCloses(t *testing.T) {
	cfg := config.Defaults()
	sc := scene.New()
	e, err := New(cfg, Backends{
		Surface: window.NewHeadlessSurface(320, 240, 5),
		Device:  render.NewHeadlessDevice(),
		Physics: simple.New(),
	}, zap.NewNop(), WithScene(sc))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(5), e.Frame())
	assert.Same(t, sc, e.Scene())
}

func TestRun_ContextCancelClosesWindow(t *testing.T) {
	e, _ := newTestEngine(t, nil, WithFramePacing(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, e.IsOpen())
}

func TestActiveEngine(t *testing.T) {
	t.Cleanup(ClearActive)
	assert.Nil(t, Active())

	e, _ := newTestEngine(t, nil)
	SetActive(e)
	assert.Same(t, e, Active())

	ClearActive()
	assert.Nil(t, Active())

	SetActive(e)
	e.Close()
	assert.Nil(t, Active(), "closing the active engine clears it")

	other, _ := newTestEngine(t, nil)
	SetActive(other)
	e.Close()
	assert.Same(t, other, Active())
}

func ExampleEngine_UpdateModules() {
	e, err := New(config.Defaults(), Backends{
		Surface: window.NewHeadlessSurface(640, 480, 3),
		Clock:   window.NewStepClock(16 * time.Millisecond),
		Device:  render.NewHeadlessDevice(),
		Physics: simple.New(),
	}, nil)
	if err != nil {
		panic(err)
	}
	defer e.Close()

	for e.IsOpen() {
		e.UpdateModules()
	}
	fmt.Println(e.Frame(), e.Render().Stats().Renders)
	// Output: 3 3
}
