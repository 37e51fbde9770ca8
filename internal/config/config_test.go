package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
[window]
width = 640
height = 480
title = "untie"

[physics]
fixed_step = "10ms"
max_substeps = 2

[logging]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, "untie", cfg.Window.Title)
	assert.Equal(t, 10*time.Millisecond, cfg.Physics.FixedStep)
	assert.Equal(t, 2, cfg.Physics.MaxSubsteps)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep defaults
	assert.True(t, cfg.Physics.Enabled)
	assert.Equal(t, "headless", cfg.Render.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	_, err := Load(writeFile(t, "[window]\nwidth = 0\n"))
	assert.ErrorContains(t, err, "window size")

	_, err = Load(writeFile(t, "[physics]\nfixed_step = \"0s\"\n"))
	assert.ErrorContains(t, err, "fixed_step")

	_, err = Load(writeFile(t, "[window\n"))
	assert.ErrorContains(t, err, "parse config")
}

func TestEncode_WritesSections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Defaults().Encode(&buf))
	out := buf.String()
	assert.Contains(t, out, "[window]")
	assert.Contains(t, out, "[physics]")
	assert.Contains(t, out, `title = "knot"`)
}
