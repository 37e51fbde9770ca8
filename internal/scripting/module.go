// Package scripting runs Lua behaviour scripts as an engine module.
package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/core/event"
	"github.com/knoting/knot/internal/engine"
	"github.com/knoting/knot/internal/window"
)

// APIVersion is exposed to scripts as API_VERSION.
const APIVersion = 1

// Host is the part of the engine scripts can reach.
type Host interface {
	Frame() uint64
	Bus() *event.Bus
	Window() *window.Window
	RequestPhysicsReset()
}

// Module wraps a single gopher-lua VM. Scripts define optional global
// callbacks named after the module hooks (on_awake, on_update, ...).
// Single-goroutine access only (frame loop).
type Module struct {
	vm   *lua.LState
	host Host
	log  *zap.Logger

	scripts   []string
	errors    int
	destroyed bool
}

// New creates the VM and loads every .lua file in cfg.Dir in name order.
// A missing directory loads nothing; a script that fails to load is an error.
// A nil host is resolved through engine.Active on every use.
func New(cfg config.ScriptingConfig, host Host, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))

	m := &Module{vm: vm, host: host, log: log}
	m.registerAPI()

	if err := m.loadDir(cfg.Dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return m, nil
}

func (m *Module) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Debug("no script directory", zap.String("dir", dir))
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := m.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		m.scripts = append(m.scripts, path)
		m.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// registerAPI installs the engine and input tables.
func (m *Module) registerAPI() {
	eng := m.vm.NewTable()
	m.vm.SetFuncs(eng, map[string]lua.LGFunction{
		"log": func(L *lua.LState) int {
			m.log.Info("lua", zap.String("msg", L.CheckString(1)))
			return 0
		},
		"warn": func(L *lua.LState) int {
			m.log.Warn("lua", zap.String("msg", L.CheckString(1)))
			return 0
		},
		"frame": func(L *lua.LState) int {
			var n uint64
			if h := m.resolveHost(); h != nil {
				n = h.Frame()
			}
			L.Push(lua.LNumber(n))
			return 1
		},
		"reset_physics": func(L *lua.LState) int {
			if h := m.resolveHost(); h != nil {
				h.RequestPhysicsReset()
			}
			return 0
		},
		"close": func(L *lua.LState) int {
			if w := m.window(); w != nil {
				w.Close()
			}
			return 0
		},
	})
	m.vm.SetGlobal("engine", eng)

	input := m.vm.NewTable()
	m.vm.SetFuncs(input, map[string]lua.LGFunction{
		"pressed": func(L *lua.LState) int {
			w := m.window()
			L.Push(lua.LBool(w != nil && w.KeyPressed(L.CheckString(1))))
			return 1
		},
		"down": func(L *lua.LState) int {
			w := m.window()
			L.Push(lua.LBool(w != nil && w.KeyDown(L.CheckString(1))))
			return 1
		},
	})
	m.vm.SetGlobal("input", input)
}

// resolveHost returns the host given at construction or, failing that, the
// process-wide active engine.
func (m *Module) resolveHost() Host {
	if m.host != nil {
		return m.host
	}
	if e := engine.Active(); e != nil {
		return e
	}
	return nil
}

func (m *Module) window() *window.Window {
	h := m.resolveHost()
	if h == nil {
		return nil
	}
	return h.Window()
}

func (m *Module) Name() string { return "scripting" }

// OnAwake subscribes to window events and runs on_awake.
func (m *Module) OnAwake() {
	if h := m.resolveHost(); h != nil && h.Bus() != nil {
		bus := h.Bus()
		event.Subscribe(bus, func(ev event.Key) {
			m.call("on_key", lua.LString(ev.Code), lua.LBool(ev.Down))
		})
		event.Subscribe(bus, func(ev event.Resized) {
			m.call("on_resize", lua.LNumber(ev.Width), lua.LNumber(ev.Height))
		})
	}
	m.call("on_awake")
	m.log.Info("scripts started", zap.Int("files", len(m.scripts)))
}

func (m *Module) OnUpdate(dt time.Duration) {
	m.call("on_update", lua.LNumber(dt.Seconds()))
}

func (m *Module) OnFixedUpdate() { m.call("on_fixed_update") }
func (m *Module) OnLateUpdate()  { m.call("on_late_update") }

// OnDestroy runs on_destroy and closes the VM.
func (m *Module) OnDestroy() {
	if m.destroyed {
		return
	}
	m.call("on_destroy")
	m.destroyed = true
	m.vm.Close()
}

// call invokes a global Lua function if the scripts define it. Errors are
// logged and counted; the frame continues.
func (m *Module) call(name string, args ...lua.LValue) {
	if m.destroyed {
		return
	}
	fn := m.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}
	if err := m.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		m.errors++
		m.log.Error("lua callback error", zap.String("fn", name), zap.Error(err))
	}
}

// Exec runs a chunk of Lua in the module's VM.
func (m *Module) Exec(src string) error {
	if m.destroyed {
		return errors.New("exec: scripting module destroyed")
	}
	return m.vm.DoString(src)
}

// Scripts returns the loaded script paths.
func (m *Module) Scripts() []string { return m.scripts }

// Errors returns how many callbacks failed.
func (m *Module) Errors() int { return m.errors }
