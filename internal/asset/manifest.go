package asset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestEntry declares one asset to preload.
type ManifestEntry struct {
	Name      string `yaml:"name"`
	Type      Type   `yaml:"type"`
	Path      string `yaml:"path"`      // relative to the asset root
	Primitive string `yaml:"primitive"` // built-in geometry instead of a file
}

// Manifest lists the assets loaded when the manager awakes.
type Manifest struct {
	Assets []ManifestEntry `yaml:"assets"`
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse asset manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Assets))
	for i, e := range m.Assets {
		if e.Name == "" {
			return nil, fmt.Errorf("asset manifest entry %d: missing name", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("asset manifest: duplicate name %q", e.Name)
		}
		seen[e.Name] = true
		if e.Path == "" && e.Primitive == "" {
			return nil, fmt.Errorf("asset %q: needs path or primitive", e.Name)
		}
	}
	return &m, nil
}

// Count returns the number of entries.
func (m *Manifest) Count() int {
	return len(m.Assets)
}
