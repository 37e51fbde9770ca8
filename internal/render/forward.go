// Package render owns GPU frame submission.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/asset"
	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/ecs"
	"github.com/knoting/knot/internal/scene"
)

// MeshSource resolves mesh assets by name. The asset manager implements it.
type MeshSource interface {
	Mesh(name string) (*asset.Asset, bool)
	OnRelease(fn asset.ReleaseFunc)
}

// Stats counts render-phase activity since construction.
type Stats struct {
	Renders     uint64
	PostRenders uint64
	Flushes     uint64
	DrawCalls   int // last frame
	Resizes     int
}

// ForwardRenderer is the engine's Renderer module: one forward pass drawing
// every object with a Transform and a MeshRenderer.
type ForwardRenderer struct {
	cfg    config.RenderConfig
	device Device
	scene  *scene.Scene
	meshes MeshSource
	log    *zap.Logger

	width    int
	height   int
	viewProj mgl32.Mat4
	buffers  map[asset.Handle]BufferHandle
	stats    Stats

	warnedNoMeshes bool
	destroyed      bool
}

// NewForwardRenderer initialises the device at the given size. A device that
// fails to initialise is fatal for the engine.
func NewForwardRenderer(cfg config.RenderConfig, device Device, sc *scene.Scene, meshes MeshSource, width, height int, log *zap.Logger) (*ForwardRenderer, error) {
	if device == nil {
		return nil, errors.New("create renderer: no device backend")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := device.Init(width, height, cfg.VSync); err != nil {
		return nil, fmt.Errorf("init render device: %w", err)
	}
	device.SetClearColor(cfg.ClearColor)
	r := &ForwardRenderer{
		cfg:     cfg,
		device:  device,
		scene:   sc,
		meshes:  meshes,
		log:     log,
		width:   width,
		height:  height,
		buffers: make(map[asset.Handle]BufferHandle),
	}
	r.updateViewProj()
	log.Debug("render device initialized", zap.Int("width", width), zap.Int("height", height))
	return r, nil
}

func (r *ForwardRenderer) Name() string { return "render" }

// OnAwake uploads the fallback mesh and subscribes to asset unloads.
func (r *ForwardRenderer) OnAwake() {
	if r.meshes == nil {
		return
	}
	r.meshes.OnRelease(r.releaseAsset)
	if a, _ := r.meshes.Mesh(asset.FallbackMesh); a != nil {
		if _, err := r.upload(a); err != nil {
			r.log.Error("upload fallback mesh", zap.Error(err))
		}
	}
}

func (r *ForwardRenderer) OnUpdate(_ time.Duration) {}
func (r *ForwardRenderer) OnFixedUpdate()           {}
func (r *ForwardRenderer) OnLateUpdate()            {}

// OnRender submits one draw per renderable object.
func (r *ForwardRenderer) OnRender() {
	r.stats.Renders++
	r.stats.DrawCalls = 0
	if r.scene == nil {
		return
	}
	r.updateViewProj()
	ecs.Sorted2(r.scene.Transforms, r.scene.Meshes, func(_ ecs.EntityID, tr *scene.Transform, mr *scene.MeshRenderer) {
		h, ok := r.meshBuffer(mr.Mesh)
		if !ok {
			return
		}
		r.device.Submit(DrawCall{
			Mesh:     h,
			Model:    tr.Matrix(),
			ViewProj: r.viewProj,
			Color:    mr.Color,
		})
		r.stats.DrawCalls++
	})
}

func (r *ForwardRenderer) OnPostRender() {
	r.stats.PostRenders++
}

// EndFrame is the frame-complete barrier: the device flushes everything
// submitted since the previous EndFrame.
func (r *ForwardRenderer) EndFrame() {
	r.device.Frame()
	r.stats.Flushes++
}

// RecreateFramebuffer resizes the backbuffer; the camera aspect follows on
// the next render.
func (r *ForwardRenderer) RecreateFramebuffer(width, height int) {
	if r.destroyed {
		return
	}
	r.width, r.height = width, height
	r.device.Resize(width, height)
	r.stats.Resizes++
	r.log.Debug("framebuffer recreated", zap.Int("width", width), zap.Int("height", height))
}

// OnDestroy frees every GPU buffer and shuts the device down.
func (r *ForwardRenderer) OnDestroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	var err error
	for h, buf := range r.buffers {
		err = multierr.Append(err, r.device.DestroyMesh(buf))
		delete(r.buffers, h)
	}
	err = multierr.Append(err, r.device.Shutdown())
	if err != nil {
		r.log.Error("release render resources", zap.Errors("errors", multierr.Errors(err)))
		return
	}
	r.log.Debug("render device shut down")
}

func (r *ForwardRenderer) meshBuffer(name string) (BufferHandle, bool) {
	if r.meshes == nil {
		if !r.warnedNoMeshes {
			r.log.Warn("no asset manager, skipping mesh draws")
			r.warnedNoMeshes = true
		}
		return 0, false
	}
	a, _ := r.meshes.Mesh(name)
	if a == nil {
		return 0, false
	}
	if h, ok := r.buffers[a.Handle]; ok {
		return h, true
	}
	h, err := r.upload(a)
	if err != nil {
		r.log.Error("upload mesh", zap.String("mesh", a.Name), zap.Error(err))
		return 0, false
	}
	return h, true
}

func (r *ForwardRenderer) upload(a *asset.Asset) (BufferHandle, error) {
	if h, ok := r.buffers[a.Handle]; ok {
		return h, nil
	}
	h, err := r.device.CreateMesh(a.Mesh)
	if err != nil {
		return 0, err
	}
	r.buffers[a.Handle] = h
	return h, nil
}

func (r *ForwardRenderer) releaseAsset(a *asset.Asset) error {
	h, ok := r.buffers[a.Handle]
	if !ok {
		return nil
	}
	delete(r.buffers, a.Handle)
	if err := r.device.DestroyMesh(h); err != nil {
		return fmt.Errorf("destroy buffer for %s: %w", a.Name, err)
	}
	return nil
}

func (r *ForwardRenderer) updateViewProj() {
	aspect := float32(1)
	if r.height > 0 {
		aspect = float32(r.width) / float32(r.height)
	}
	fov, near, far := float32(60), float32(0.1), float32(1000)
	eye, target := mgl32.Vec3{0, 0, -10}, mgl32.Vec3{}
	if r.scene != nil {
		if cam, tr, ok := r.scene.ActiveCamera(); ok {
			fov, near, far = cam.FovY, cam.Near, cam.Far
			eye, target = tr.Position, cam.Target
		}
	}
	proj := mgl32.Perspective(mgl32.DegToRad(fov), aspect, near, far)
	view := mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
	r.viewProj = proj.Mul4(view)
}

// Stats returns a snapshot of the render counters.
func (r *ForwardRenderer) Stats() Stats { return r.stats }

// Size returns the current framebuffer size.
func (r *ForwardRenderer) Size() (int, int) { return r.width, r.height }

// Buffers returns the number of GPU buffers held for assets.
func (r *ForwardRenderer) Buffers() int { return len(r.buffers) }
