package physics

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/ecs"
	"github.com/knoting/knot/internal/scene"
)

// Stats counts physics activity of one module instance.
type Stats struct {
	FixedUpdates uint64
	Steps        uint64
	Dropped      time.Duration // simulation time discarded by the substep cap
}

// Module owns a physics world for the lifetime of one engine slot. A reset
// replaces the whole Module, so a fresh world never sees stale body ids.
type Module struct {
	cfg     config.PhysicsConfig
	backend Backend
	scene   *scene.Scene
	log     *zap.Logger

	world  World
	bodies map[ecs.EntityID]scene.BodyID
	acc    time.Duration
	stats  Stats
	closed bool
}

func New(cfg config.PhysicsConfig, backend Backend, sc *scene.Scene, log *zap.Logger) (*Module, error) {
	if backend == nil {
		return nil, errors.New("create physics: no backend")
	}
	if cfg.FixedStep <= 0 {
		return nil, fmt.Errorf("create physics: fixed step must be positive, got %s", cfg.FixedStep)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		cfg:     cfg,
		backend: backend,
		scene:   sc,
		log:     log.With(zap.String("backend", backend.Name())),
		bodies:  make(map[ecs.EntityID]scene.BodyID),
	}, nil
}

func (m *Module) Name() string { return "physics" }

// OnAwake creates the world and registers every rigid body in the scene.
func (m *Module) OnAwake() {
	g := mgl32.Vec3{m.cfg.Gravity[0], m.cfg.Gravity[1], m.cfg.Gravity[2]}
	w, err := m.backend.NewWorld(g)
	if err != nil {
		m.log.Error("create physics world", zap.Error(err))
		return
	}
	m.world = w
	if m.scene != nil {
		m.scene.Bodies.OnRelease(m.releaseBody)
	}
	n := m.syncBodies()
	m.log.Info("physics world created", zap.Int("bodies", n))
}

// OnUpdate banks frame time for the fixed-step simulation.
func (m *Module) OnUpdate(dt time.Duration) {
	if dt > 0 {
		m.acc += dt
	}
}

// OnFixedUpdate runs as many fixed steps as the banked time allows, capped
// at MaxSubsteps, then writes body positions back to the scene.
func (m *Module) OnFixedUpdate() {
	m.stats.FixedUpdates++
	if m.world == nil {
		return
	}
	m.syncBodies()

	steps := 0
	for m.acc >= m.cfg.FixedStep {
		if m.cfg.MaxSubsteps > 0 && steps == m.cfg.MaxSubsteps {
			m.stats.Dropped += m.acc
			m.log.Debug("physics falling behind, dropping time", zap.Duration("dropped", m.acc))
			m.acc = 0
			break
		}
		if err := m.world.Step(m.cfg.FixedStep); err != nil {
			m.log.Error("physics step", zap.Error(err))
			m.acc = 0
			return
		}
		m.acc -= m.cfg.FixedStep
		steps++
		m.stats.Steps++
	}
	if steps > 0 {
		m.writeBack()
	}
}

func (m *Module) OnLateUpdate() {}

// OnDestroy closes the world and unbinds every scene body from it.
func (m *Module) OnDestroy() {
	if m.closed {
		return
	}
	m.closed = true
	if m.scene != nil {
		m.scene.Bodies.OnRelease(nil)
		for id := range m.bodies {
			if rb, ok := m.scene.Bodies.Get(id); ok {
				rb.Body = 0
			}
		}
	}
	m.bodies = make(map[ecs.EntityID]scene.BodyID)
	if m.world == nil {
		return
	}
	if err := m.world.Close(); err != nil {
		m.log.Error("close physics world", zap.Error(err))
		return
	}
	m.log.Info("physics world closed")
}

// syncBodies registers scene bodies the world has not seen yet.
func (m *Module) syncBodies() int {
	if m.scene == nil {
		return 0
	}
	added := 0
	for _, id := range m.scene.Bodies.IDs() {
		if _, ok := m.bodies[id]; ok {
			continue
		}
		rb, _ := m.scene.Bodies.Get(id)
		tr, ok := m.scene.Transforms.Get(id)
		if !ok {
			continue
		}
		bid, err := m.world.AddBody(BodyDesc{
			Position:    tr.Position,
			HalfExtents: rb.HalfExtents,
			Mass:        rb.Mass,
			Dynamic:     rb.Dynamic,
		})
		if err != nil {
			m.log.Error("add body", zap.Uint64("entity", uint64(id)), zap.Error(err))
			continue
		}
		rb.Body = bid
		m.bodies[id] = bid
		added++
	}
	return added
}

func (m *Module) writeBack() {
	if m.scene == nil {
		return
	}
	for id, bid := range m.bodies {
		rb, ok := m.scene.Bodies.Get(id)
		if !ok || !rb.Dynamic {
			continue
		}
		st, err := m.world.State(bid)
		if err != nil {
			continue
		}
		if tr, ok := m.scene.Transforms.Get(id); ok {
			tr.Position = st.Position
		}
	}
}

func (m *Module) releaseBody(id ecs.EntityID, rb *scene.RigidBody) {
	bid, ok := m.bodies[id]
	if !ok {
		return
	}
	delete(m.bodies, id)
	rb.Body = 0
	if m.world == nil {
		return
	}
	if err := m.world.RemoveBody(bid); err != nil {
		m.log.Warn("remove body", zap.Uint64("entity", uint64(id)), zap.Error(err))
	}
}

// World returns the live simulation, nil if creation failed.
func (m *Module) World() World { return m.world }

func (m *Module) Backend() Backend { return m.backend }

func (m *Module) Stats() Stats { return m.stats }
