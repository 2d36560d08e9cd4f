package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"signal-systemv1/internal/model"
)

// ArtifactVersion is bumped whenever the on-disk forest layout changes.
// Artifacts with another version are retrained, not migrated.
const ArtifactVersion = 1

// Artifact is the persisted form of a trained forest.
type Artifact struct {
	Version   int       `json:"version"`
	Kind      string    `json:"kind"`
	Schema    []string  `json:"schema"`
	Horizon   int       `json:"horizon"`
	Threshold float64   `json:"threshold"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
	Trees     []tree    `json:"trees"`
}

// SaveArtifact writes the forest to path atomically (temp file + rename).
func SaveArtifact(path string, a Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads a forest from path. A missing file returns an error
// satisfying os.IsNotExist; anything unreadable, of another version, or
// trained on another schema wraps ErrModelLoad.
func LoadArtifact(path string, schema []string) (*Forest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrModelLoad, err)
	}

	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrModelLoad, path, err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("%w: artifact version %d, want %d", model.ErrModelLoad, a.Version, ArtifactVersion)
	}
	if a.Kind != "forest" {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", model.ErrModelLoad, a.Kind)
	}
	if !sameSchema(a.Schema, schema) {
		return nil, fmt.Errorf("%w: artifact schema %v, want %v", model.ErrModelLoad, a.Schema, schema)
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("%w: artifact has no trees", model.ErrModelLoad)
	}
	for i, t := range a.Trees {
		if err := t.validate(len(schema)); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", model.ErrModelLoad, i, err)
		}
	}
	return &Forest{Features: a.Schema, Trees: a.Trees}, nil
}
