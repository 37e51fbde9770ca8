package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/knoting/knot/internal/asset"
)

// BufferHandle names a GPU vertex/index buffer pair. Zero is invalid.
type BufferHandle uint32

func (h BufferHandle) Valid() bool { return h != 0 }

// DrawCall is one mesh submission for the current frame.
type DrawCall struct {
	Mesh     BufferHandle
	Model    mgl32.Mat4
	ViewProj mgl32.Mat4
	Color    mgl32.Vec4
}

// Device is the GPU backend. All calls happen on the frame-loop goroutine.
type Device interface {
	Init(width, height int, vsync bool) error
	Resize(width, height int)
	SetClearColor(rgba [4]float32)
	CreateMesh(m *asset.MeshData) (BufferHandle, error)
	DestroyMesh(h BufferHandle) error
	Submit(dc DrawCall)
	// Frame flushes every submission of the current frame and returns the
	// number of the frame just completed.
	Frame() uint64
	Shutdown() error
}

var errDeviceDown = errors.New("device is shut down")

// HeadlessDevice is a Device that keeps buffers and submissions in memory.
type HeadlessDevice struct {
	mu         sync.Mutex
	width      int
	height     int
	clear      [4]float32
	next       BufferHandle
	buffers    map[BufferHandle]int // handle -> vertex count
	pending    []DrawCall
	lastFrame  []DrawCall
	frames     uint64
	ready      bool
	down       bool
	FailInit   error
	FailCreate error
}

func NewHeadlessDevice() *HeadlessDevice {
	return &HeadlessDevice{buffers: make(map[BufferHandle]int)}
}

func (d *HeadlessDevice) Init(width, height int, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailInit != nil {
		return d.FailInit
	}
	d.width, d.height = width, height
	d.ready = true
	return nil
}

func (d *HeadlessDevice) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
}

func (d *HeadlessDevice) SetClearColor(rgba [4]float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clear = rgba
}

func (d *HeadlessDevice) CreateMesh(m *asset.MeshData) (BufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.down {
		return 0, errDeviceDown
	}
	if d.FailCreate != nil {
		return 0, d.FailCreate
	}
	if m == nil || len(m.Vertices) == 0 {
		return 0, errors.New("create mesh: empty geometry")
	}
	d.next++
	d.buffers[d.next] = len(m.Vertices)
	return d.next, nil
}

func (d *HeadlessDevice) DestroyMesh(h BufferHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[h]; !ok {
		return fmt.Errorf("destroy mesh %d: unknown buffer", h)
	}
	delete(d.buffers, h)
	return nil
}

func (d *HeadlessDevice) Submit(dc DrawCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, dc)
}

func (d *HeadlessDevice) Frame() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastFrame = d.pending
	d.pending = nil
	d.frames++
	return d.frames
}

func (d *HeadlessDevice) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down {
		return errDeviceDown
	}
	d.down = true
	return nil
}

// Frames returns the number of completed frames.
func (d *HeadlessDevice) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// LastFrame returns the draw calls flushed by the most recent Frame.
func (d *HeadlessDevice) LastFrame() []DrawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawCall(nil), d.lastFrame...)
}

// Pending returns the number of submissions not yet flushed.
func (d *HeadlessDevice) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// LiveBuffers returns the number of allocated buffers.
func (d *HeadlessDevice) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *HeadlessDevice) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *HeadlessDevice) IsShutdown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.down
}
