package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Window    WindowConfig    `toml:"window"`
	Render    RenderConfig    `toml:"render"`
	Physics   PhysicsConfig   `toml:"physics"`
	Assets    AssetsConfig    `toml:"assets"`
	Scripting ScriptingConfig `toml:"scripting"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

type WindowConfig struct {
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Title     string `toml:"title"`
	MaxFrames int    `toml:"max_frames"` // headless only; 0 = until closed
}

type RenderConfig struct {
	Backend    string     `toml:"backend"`     // "headless"
	ClearColor [4]float32 `toml:"clear_color"` // RGBA 0..1
	VSync      bool       `toml:"vsync"`
}

type PhysicsConfig struct {
	Enabled     bool          `toml:"enabled"`
	Backend     string        `toml:"backend"` // "simple" or "chipmunk"
	Gravity     [3]float32    `toml:"gravity"`
	FixedStep   time.Duration `toml:"fixed_step"`
	MaxSubsteps int           `toml:"max_substeps"`
}

type AssetsConfig struct {
	Enabled  bool   `toml:"enabled"`
	Root     string `toml:"root"`
	Manifest string `toml:"manifest"` // relative to Root; empty = built-ins only
}

type ScriptingConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type TelemetryConfig struct {
	Enabled     bool          `toml:"enabled"`
	BindAddress string        `toml:"bind_address"`
	Interval    time.Duration `toml:"interval"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot start with.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.Physics.Enabled {
		if c.Physics.FixedStep <= 0 {
			return fmt.Errorf("physics fixed_step %s must be positive", c.Physics.FixedStep)
		}
		if c.Physics.MaxSubsteps <= 0 {
			return fmt.Errorf("physics max_substeps %d must be positive", c.Physics.MaxSubsteps)
		}
	}
	return nil
}

// Encode writes the config as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func Defaults() *Config {
	return &Config{
		Window: WindowConfig{
			Width:  1024,
			Height: 768,
			Title:  "knot",
		},
		Render: RenderConfig{
			Backend:    "headless",
			ClearColor: [4]float32{0.188, 0.188, 0.188, 1}, // 0x303030ff
			VSync:      true,
		},
		Physics: PhysicsConfig{
			Enabled:     true,
			Backend:     "simple",
			Gravity:     [3]float32{0, -9.81, 0},
			FixedStep:   time.Second / 60,
			MaxSubsteps: 4,
		},
		Assets: AssetsConfig{
			Enabled: true,
			Root:    "res",
		},
		Scripting: ScriptingConfig{
			Enabled: false,
			Dir:     "scripts",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1:7070",
			Interval:    time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
