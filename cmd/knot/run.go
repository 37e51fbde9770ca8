package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/knoting/knot/internal/config"
	"github.com/knoting/knot/internal/engine"
	"github.com/knoting/knot/internal/physics"
	"github.com/knoting/knot/internal/physics/chipmunk"
	"github.com/knoting/knot/internal/physics/simple"
	"github.com/knoting/knot/internal/render"
	"github.com/knoting/knot/internal/scene"
	"github.com/knoting/knot/internal/scripting"
	"github.com/knoting/knot/internal/telemetry"
	"github.com/knoting/knot/internal/window"
)

type runOptions struct {
	*rootOptions
	frames    int
	scripts   string
	telemetry string
	noVSync   bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo scene until the window closes",
		Long: `Run the engine with the demo scene: an editor camera, a static ground
box and two falling cubes.

Example:
  knot run --frames 600
  knot run --scripts ./scripts --telemetry 127.0.0.1:7070`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.frames, "frames", 0, "stop after this many frames (0 = window.max_frames)")
	cmd.Flags().StringVar(&opts.scripts, "scripts", "", "enable Lua scripting from this directory")
	cmd.Flags().StringVar(&opts.telemetry, "telemetry", "", "enable the telemetry websocket on this address")
	cmd.Flags().BoolVar(&opts.noVSync, "no-vsync", false, "run frames back to back")
	return cmd
}

func (o *runOptions) apply(cfg *config.Config) {
	if o.frames > 0 {
		cfg.Window.MaxFrames = o.frames
	}
	if o.scripts != "" {
		cfg.Scripting.Enabled = true
		cfg.Scripting.Dir = o.scripts
	}
	if o.telemetry != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.BindAddress = o.telemetry
	}
	if o.noVSync {
		cfg.Render.VSync = false
	}
}

func runEngine(ctx context.Context, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cfg)

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	backends, err := newBackends(cfg)
	if err != nil {
		return err
	}

	sc := scene.New()
	buildDemoScene(sc)

	var opt []engine.Option
	opt = append(opt, engine.WithScene(sc))
	if cfg.Render.VSync {
		opt = append(opt, engine.WithFramePacing(time.Second/60))
	}
	eng, err := engine.New(cfg, backends, log, opt...)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	engine.SetActive(eng)
	defer eng.Close()

	if cfg.Scripting.Enabled {
		// scripts reach the engine registered above
		mod, err := scripting.New(cfg.Scripting, nil, log.Named("scripting"))
		if err != nil {
			return err
		}
		if _, err := eng.AddModule(mod); err != nil {
			return err
		}
	}
	if cfg.Telemetry.Enabled {
		if _, err := eng.AddModule(telemetry.New(cfg.Telemetry, sampler(eng), log.Named("telemetry"))); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err = eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown signal received")
		err = nil
	}
	log.Info("frame loop stopped",
		zap.Uint64("frames", eng.Frame()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

// newBackends picks the platform implementations named in the config.
func newBackends(cfg *config.Config) (engine.Backends, error) {
	b := engine.Backends{
		Surface: window.NewHeadlessSurface(cfg.Window.Width, cfg.Window.Height, cfg.Window.MaxFrames),
		Clock:   window.NewSystemClock(),
	}
	switch cfg.Render.Backend {
	case "headless", "":
		b.Device = render.NewHeadlessDevice()
	default:
		return b, fmt.Errorf("unknown render backend %q", cfg.Render.Backend)
	}
	pb, err := physicsBackend(cfg.Physics.Backend)
	if err != nil {
		return b, err
	}
	b.Physics = pb
	return b, nil
}

func physicsBackend(name string) (physics.Backend, error) {
	switch name {
	case simple.Name, "":
		return simple.New(), nil
	case chipmunk.Name:
		return chipmunk.New(), nil
	default:
		return nil, fmt.Errorf("unknown physics backend %q", name)
	}
}

// buildDemoScene places an editor camera, a static ground and two dynamic
// cubes that fall onto it.
func buildDemoScene(sc *scene.Scene) {
	cam := sc.CreateObject("editor_camera").SetPosition(mgl32.Vec3{-10, 15, -30})
	cam.AddCamera(60, true)

	ground := sc.CreateObject("ground").
		SetPosition(mgl32.Vec3{0, -10, 0}).
		SetScale(mgl32.Vec3{15, 1, 15})
	ground.AddMesh("cube", mgl32.Vec4{0.6, 0.6, 0.6, 1})
	ground.AddBoxBody(mgl32.Vec3{15, 2, 15}, false, 0)

	cube1 := sc.CreateObject("cube_1").SetPosition(mgl32.Vec3{0, 3, 0})
	cube1.AddMesh("cube", mgl32.Vec4{0.9, 0.3, 0.3, 1})
	cube1.AddBoxBody(mgl32.Vec3{1, 1, 1}, true, 5)

	cube0 := sc.CreateObject("cube_0").SetPosition(mgl32.Vec3{1, 7, 1})
	cube0.AddMesh("cube", mgl32.Vec4{0.3, 0.3, 0.9, 1})
	cube0.AddBoxBody(mgl32.Vec3{1, 1, 1}, true, 5)
}

// sampler reads telemetry stats from the engine on the frame goroutine.
func sampler(eng *engine.Engine) telemetry.Sampler {
	return func() telemetry.Sample {
		mods := eng.Modules()
		names := make([]string, 0, len(mods))
		for _, m := range mods {
			names = append(names, m.Name())
		}
		s := telemetry.Sample{
			Frame:     eng.Frame(),
			DeltaMS:   float64(eng.Window().DeltaTime()) / float64(time.Millisecond),
			Modules:   names,
			Objects:   eng.Scene().Count(),
			DrawCalls: eng.Render().Stats().DrawCalls,
		}
		if ph := eng.Physics(); ph != nil {
			s.PhysicsSteps = ph.Stats().Steps
		}
		return s
	}
}
