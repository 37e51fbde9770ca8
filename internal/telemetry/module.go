package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
)

// Sample is one frame's stats as sent to viewers.
type Sample struct {
	Frame        uint64   `json:"frame"`
	DeltaMS      float64  `json:"dt_ms"`
	Modules      []string `json:"modules"`
	Objects      int      `json:"objects"`
	DrawCalls    int      `json:"draw_calls"`
	PhysicsSteps uint64   `json:"physics_steps"`
}

// Sampler reads the current stats. It runs on the frame-loop goroutine.
type Sampler func() Sample

// Module broadcasts a Sample at most once per interval from its late update.
type Module struct {
	cfg    config.TelemetryConfig
	sample Sampler
	log    *zap.Logger
	hub    *Hub
	now    func() time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	last     time.Time
	sent     int
	stopped  bool
}

func New(cfg config.TelemetryConfig, sample Sampler, log *zap.Logger) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		cfg:    cfg,
		sample: sample,
		log:    log,
		hub:    NewHub(log),
		now:    time.Now,
	}
}

func (m *Module) Name() string { return "telemetry" }

// Handler serves the websocket endpoint at /ws.
func (m *Module) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", m.hub.ServeWS)
	return mux
}

// OnAwake starts the hub and, when a bind address is configured, the HTTP
// server. A listen failure is logged and the module keeps running offline.
func (m *Module) OnAwake() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.hub.Run(ctx)

	if m.cfg.BindAddress == "" {
		return
	}
	ln, err := net.Listen("tcp", m.cfg.BindAddress)
	if err != nil {
		m.log.Error("telemetry listen", zap.String("addr", m.cfg.BindAddress), zap.Error(err))
		return
	}
	m.listener = ln
	m.server = &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error("telemetry server", zap.Error(err))
		}
	}()
	m.log.Info("telemetry listening", zap.String("addr", ln.Addr().String()))
}

func (m *Module) OnUpdate(_ time.Duration) {}
func (m *Module) OnFixedUpdate()           {}

// OnLateUpdate samples the frame and broadcasts it when the interval has
// elapsed. It never blocks.
func (m *Module) OnLateUpdate() {
	if m.stopped || m.sample == nil {
		return
	}
	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.cfg.Interval {
		return
	}
	m.last = now
	if m.hub.Clients() == 0 {
		return
	}
	payload, err := json.Marshal(m.sample())
	if err != nil {
		m.log.Error("encode telemetry sample", zap.Error(err))
		return
	}
	if m.hub.Broadcast(payload) {
		m.sent++
	}
}

// OnDestroy stops the HTTP server and disconnects every client.
func (m *Module) OnDestroy() {
	if m.stopped {
		return
	}
	m.stopped = true
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			m.log.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.log.Debug("telemetry stopped", zap.Int("sent", m.sent))
}

// Addr returns the listen address, or nil when not listening.
func (m *Module) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Module) Hub() *Hub { return m.hub }

// Sent returns how many samples were queued for broadcast.
func (m *Module) Sent() int { return m.sent }
