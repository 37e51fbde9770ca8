package render

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/asset"
	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/scene"
)

func newTestRenderer(t *testing.T) (*ForwardRenderer, *HeadlessDevice, *scene.Scene, *asset.Manager) {
	t.Helper()
	dev := NewHeadlessDevice()
	sc := scene.New()
	assets := asset.NewManager(config.AssetsConfig{Enabled: true}, zap.NewNop())
	assets.OnAwake()
	r, err := NewForwardRenderer(config.Defaults().Render, dev, sc, assets, 800, 600, zap.NewNop())
	require.NoError(t, err)
	r.OnAwake()
	return r, dev, sc, assets
}

func TestNewForwardRenderer_InitFailureIsFatal(t *testing.T) {
	_, err := NewForwardRenderer(config.Defaults().Render, nil, nil, nil, 1, 1, nil)
	require.Error(t, err)

	dev := NewHeadlessDevice()
	dev.FailInit = errors.New("no adapter")
	_, err = NewForwardRenderer(config.Defaults().Render, dev, nil, nil, 1, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, dev.FailInit)
}

func TestForwardRenderer_SubmitsOneDrawPerMeshObject(t *testing.T) {
	r, dev, sc, _ := newTestRenderer(t)
	sc.CreateObject("camera").SetPosition(mgl32.Vec3{-10, 15, -30}).AddCamera(60, true)
	sc.CreateObject("a").AddMesh("cube", mgl32.Vec4{1, 0, 0, 1})
	sc.CreateObject("b").SetPosition(mgl32.Vec3{0, 3, 0}).AddMesh("missing", mgl32.Vec4{0, 1, 0, 1})

	r.OnRender()
	assert.Equal(t, 2, dev.Pending())
	r.OnPostRender()
	r.EndFrame()

	assert.Equal(t, uint64(1), dev.Frames())
	calls := dev.LastFrame()
	require.Len(t, calls, 2)
	// unknown meshes draw the fallback cube, sharing one buffer
	assert.Equal(t, calls[0].Mesh, calls[1].Mesh)
	assert.Equal(t, 1, r.Buffers())
	assert.Equal(t, float32(3), calls[1].Model.At(1, 3))

	st := r.Stats()
	assert.Equal(t, uint64(1), st.Renders)
	assert.Equal(t, uint64(1), st.PostRenders)
	assert.Equal(t, uint64(1), st.Flushes)
	assert.Equal(t, 2, st.DrawCalls)
}

func TestForwardRenderer_RecreateFramebuffer(t *testing.T) {
	r, dev, _, _ := newTestRenderer(t)
	r.RecreateFramebuffer(1280, 720)

	w, h := dev.Size()
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)
	assert.Equal(t, 1, r.Stats().Resizes)
}

func TestForwardRenderer_AssetUnloadFreesBuffer(t *testing.T) {
	r, dev, _, assets := newTestRenderer(t)
	require.Equal(t, 1, dev.LiveBuffers())

	assets.OnDestroy()
	assert.Equal(t, 0, r.Buffers())
	assert.Equal(t, 0, dev.LiveBuffers())
}

func TestForwardRenderer_DestroyIsIdempotent(t *testing.T) {
	r, dev, sc, _ := newTestRenderer(t)
	sc.CreateObject("a").AddMesh("quad", mgl32.Vec4{1, 1, 1, 1})
	r.OnRender()
	r.EndFrame()
	require.Equal(t, 2, dev.LiveBuffers())

	r.OnDestroy()
	r.OnDestroy()
	assert.True(t, dev.IsShutdown())
	assert.Equal(t, 0, dev.LiveBuffers())

	r.RecreateFramebuffer(10, 10)
	assert.Equal(t, 0, r.Stats().Resizes)
}
