// Package asset keeps track of loaded resources for the engine.
package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
)

var (
	ErrNotFound    = errors.New("asset not found")
	ErrUnknownType = errors.New("unknown asset type")
)

// Type classifies an asset.
type Type string

const TypeMesh Type = "mesh"

// State tracks the loading lifecycle of an asset.
type State int

const (
	StateLoading State = iota
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Handle identifies a loaded asset for the lifetime of the manager.
type Handle = uuid.UUID

// FallbackMesh is always loaded and is used in place of failed meshes.
const FallbackMesh = "cube"

// Asset is one loaded resource.
type Asset struct {
	Handle Handle
	Name   string
	Type   Type
	Path   string
	State  State
	Mesh   *MeshData
	refs   int
}

// Refs returns the current reference count.
func (a *Asset) Refs() int { return a.refs }

// ReleaseFunc frees resources other modules derived from an asset, such as
// GPU buffers. It runs when the asset is unloaded.
type ReleaseFunc func(a *Asset) error

// Manager is the asset module. It owns every Asset and notifies release
// listeners when assets go away.
type Manager struct {
	cfg       config.AssetsConfig
	log       *zap.Logger
	byName    map[string]*Asset
	byHandle  map[Handle]*Asset
	listeners []ReleaseFunc
}

func NewManager(cfg config.AssetsConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		byName:   make(map[string]*Asset),
		byHandle: make(map[Handle]*Asset),
	}
}

func (m *Manager) Name() string { return "assets" }

// OnAwake registers built-in primitives and preloads the manifest.
// Manifest problems are logged; the built-ins stay available.
func (m *Manager) OnAwake() {
	m.addMesh(FallbackMesh, "", Cube())
	m.addMesh("quad", "", Quad())

	if m.cfg.Manifest == "" {
		return
	}
	path := filepath.Join(m.cfg.Root, m.cfg.Manifest)
	manifest, err := LoadManifest(path)
	if err != nil {
		m.log.Error("load manifest", zap.String("path", path), zap.Error(err))
		return
	}
	for _, e := range manifest.Assets {
		if _, err := m.Load(e); err != nil {
			m.log.Error("preload asset", zap.String("name", e.Name), zap.Error(err))
		}
	}
	m.log.Info("assets loaded", zap.Int("count", len(m.byName)))
}

func (m *Manager) OnUpdate(_ time.Duration) {}
func (m *Manager) OnFixedUpdate()           {}
func (m *Manager) OnLateUpdate()            {}

// OnDestroy unloads every asset. Release errors are collected and logged once.
func (m *Manager) OnDestroy() {
	var err error
	for _, a := range m.Loaded() {
		err = multierr.Append(err, m.unload(a))
	}
	if err != nil {
		m.log.Error("release assets", zap.Errors("errors", multierr.Errors(err)))
	}
	m.listeners = nil
}

// OnRelease registers a listener run for every unloaded asset.
func (m *Manager) OnRelease(fn ReleaseFunc) {
	m.listeners = append(m.listeners, fn)
}

// Load loads one manifest entry. Loading an existing name returns it.
// A mesh that fails to load is kept in StateFailed so lookups resolve
// to the fallback mesh.
func (m *Manager) Load(e ManifestEntry) (*Asset, error) {
	if a, ok := m.byName[e.Name]; ok {
		return a, nil
	}
	if e.Type != TypeMesh {
		return nil, fmt.Errorf("load %s: %w: %q", e.Name, ErrUnknownType, e.Type)
	}

	start := time.Now()
	a := m.addMesh(e.Name, e.Path, nil)
	a.State = StateLoading
	mesh, err := m.loadMesh(e)
	if err != nil {
		a.State = StateFailed
		return a, fmt.Errorf("load %s: %w", e.Name, err)
	}
	a.Mesh = mesh
	a.State = StateFinished
	m.log.Debug("asset loaded",
		zap.String("name", e.Name),
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Duration("took", time.Since(start)),
	)
	return a, nil
}

func (m *Manager) loadMesh(e ManifestEntry) (*MeshData, error) {
	switch e.Primitive {
	case "cube":
		return Cube(), nil
	case "quad":
		return Quad(), nil
	case "":
	default:
		return nil, fmt.Errorf("unknown primitive %q", e.Primitive)
	}
	f, err := os.Open(filepath.Join(m.cfg.Root, e.Path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseOBJ(e.Path, f, m.log)
}

func (m *Manager) addMesh(name, path string, mesh *MeshData) *Asset {
	a := &Asset{
		Handle: uuid.New(),
		Name:   name,
		Type:   TypeMesh,
		Path:   path,
		State:  StateFinished,
		Mesh:   mesh,
	}
	m.byName[name] = a
	m.byHandle[a.Handle] = a
	return a
}

// Get returns the asset registered under name.
func (m *Manager) Get(name string) (*Asset, error) {
	a, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// ByHandle returns the asset with the given handle.
func (m *Manager) ByHandle(h Handle) (*Asset, bool) {
	a, ok := m.byHandle[h]
	return a, ok
}

// Mesh resolves name to renderable geometry, falling back to the cube for
// missing or failed meshes.
func (m *Manager) Mesh(name string) (*Asset, bool) {
	a, ok := m.byName[name]
	if ok && a.State == StateFinished && a.Mesh != nil {
		return a, true
	}
	return m.byName[FallbackMesh], false
}

// Acquire increments the reference count of the named asset.
func (m *Manager) Acquire(name string) (*Asset, error) {
	a, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	a.refs++
	return a, nil
}

// Release decrements the reference count and unloads the asset when it
// drops to zero. Built-in primitives are never unloaded this way.
func (m *Manager) Release(h Handle) error {
	a, ok := m.byHandle[h]
	if !ok {
		return fmt.Errorf("release %s: %w", h, ErrNotFound)
	}
	if a.refs > 0 {
		a.refs--
	}
	if a.refs > 0 || a.Path == "" {
		return nil
	}
	return m.unload(a)
}

func (m *Manager) unload(a *Asset) error {
	var err error
	for _, fn := range m.listeners {
		err = multierr.Append(err, fn(a))
	}
	delete(m.byName, a.Name)
	delete(m.byHandle, a.Handle)
	a.Mesh = nil
	m.log.Debug("asset released", zap.String("name", a.Name))
	return err
}

// Loaded returns all assets sorted by name.
func (m *Manager) Loaded() []*Asset {
	out := make([]*Asset, 0, len(m.byName))
	for _, a := range m.byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered assets.
func (m *Manager) Count() int {
	return len(m.byName)
}
