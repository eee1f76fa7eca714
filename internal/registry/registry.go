// Package registry resolves versioned scaler/classifier pairs from a YAML
// manifest and validates them before they are used for inference.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"spad-go/internal/classifier"
	"spad-go/internal/features"
	"spad-go/internal/metrics"
	"spad-go/internal/scaler"
)

var (
	ErrModelNotFound  = errors.New("registry: model not found")
	ErrNotLoadable    = errors.New("registry: model has no loadable artifacts")
	ErrSchemaMismatch = errors.New("registry: feature schema mismatch")
	ErrDigestMismatch = errors.New("registry: artifact digest mismatch")
)

// ModelStatus represents the lifecycle state of a model
type ModelStatus string

const (
	StatusDraft      ModelStatus = "draft"
	StatusTesting    ModelStatus = "testing"
	StatusStaging    ModelStatus = "staging"
	StatusProduction ModelStatus = "production"
	StatusArchived   ModelStatus = "archived"
)

// Artifact is a serialized object referenced by the manifest.
type Artifact struct {
	Path   string `yaml:"path" json:"path"`
	SHA256 string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
}

// Entry is one model version in the manifest.
type Entry struct {
	Name         string             `yaml:"name" json:"name"`
	Version      string             `yaml:"version" json:"version"`
	Algorithm    string             `yaml:"algorithm" json:"algorithm"`
	Status       ModelStatus        `yaml:"status" json:"status"`
	Description  string             `yaml:"description,omitempty" json:"description,omitempty"`
	FeatureCount int                `yaml:"feature_count" json:"feature_count"`
	Scaler       *Artifact          `yaml:"scaler,omitempty" json:"scaler,omitempty"`
	Classifier   *Artifact          `yaml:"classifier,omitempty" json:"classifier,omitempty"`
	Metrics      map[string]float64 `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// ID is name@version.
func (e Entry) ID() string { return e.Name + "@" + e.Version }

// Loadable reports whether the entry carries artifacts this service can run.
func (e Entry) Loadable() bool {
	return e.Scaler != nil && e.Classifier != nil && classifier.Supported(e.Algorithm)
}

// Manifest is the on-disk models.yaml.
type Manifest struct {
	Models []Entry `yaml:"models"`
}

// Model is a validated, ready to use scaler/classifier pair.
type Model struct {
	Entry      Entry
	Scaler     *scaler.Scaler
	Classifier classifier.Classifier
}

func (m *Model) ID() string { return m.Entry.ID() }

type Registry struct {
	dir     string
	entries []Entry

	mu     sync.Mutex
	loaded map[string]*Model
}

// Open parses the manifest at path. Artifact paths are relative to its directory.
func Open(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f, filepath.Dir(path))
}

// Parse reads a manifest from r; dir anchors relative artifact paths.
func Parse(r io.Reader, dir string) (*Registry, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	seen := map[string]bool{}
	for i, e := range m.Models {
		if e.Name == "" || e.Version == "" {
			return nil, fmt.Errorf("manifest entry %d: name and version are required", i)
		}
		if seen[e.ID()] {
			return nil, fmt.Errorf("manifest entry %d: duplicate %s", i, e.ID())
		}
		seen[e.ID()] = true
		if e.Status == "" {
			m.Models[i].Status = StatusDraft
		}
	}
	return &Registry{dir: dir, entries: m.Models, loaded: map[string]*Model{}}, nil
}

// List returns every entry, optionally filtered by status.
func (r *Registry) List(status ModelStatus) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

// Lookup finds an entry. An empty version selects the production entry for name.
func (r *Registry) Lookup(name, version string) (Entry, error) {
	var candidates []Entry
	for _, e := range r.entries {
		if e.Name != name {
			continue
		}
		if version != "" && e.Version == version {
			return e, nil
		}
		if version == "" && e.Status == StatusProduction {
			candidates = append(candidates, e)
		}
	}
	switch {
	case version != "":
		return Entry{}, fmt.Errorf("%w: %s@%s", ErrModelNotFound, name, version)
	case len(candidates) == 0:
		return Entry{}, fmt.Errorf("%w: no production version of %s", ErrModelNotFound, name)
	case len(candidates) > 1:
		return Entry{}, fmt.Errorf("registry: %d production versions of %s, pin one", len(candidates), name)
	}
	return candidates[0], nil
}

// Resolve looks up, verifies and loads a model, memoizing the result.
func (r *Registry) Resolve(ctx context.Context, name, version string) (*Model, error) {
	e, err := r.Lookup(name, version)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.loaded[e.ID()]; ok {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := r.load(e)
	if err != nil {
		metrics.ModelLoads.WithLabelValues(e.ID(), "rejected").Inc()
		return nil, err
	}
	metrics.ModelLoads.WithLabelValues(e.ID(), "loaded").Inc()
	r.loaded[e.ID()] = m
	return m, nil
}

// Verify loads every loadable entry without caching and reports failures by id.
func (r *Registry) Verify() map[string]error {
	out := map[string]error{}
	for _, e := range r.entries {
		if !e.Loadable() {
			continue
		}
		_, err := r.load(e)
		out[e.ID()] = err
	}
	return out
}

func (r *Registry) load(e Entry) (*Model, error) {
	if !e.Loadable() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotLoadable, e.ID(), e.Algorithm)
	}
	if e.FeatureCount != features.Count {
		return nil, fmt.Errorf("%w: %s declares %d features, extractor produces %d", ErrSchemaMismatch, e.ID(), e.FeatureCount, features.Count)
	}

	scalerPath := r.path(e.Scaler.Path)
	if err := checkDigest(scalerPath, e.Scaler.SHA256); err != nil {
		return nil, fmt.Errorf("%s scaler: %w", e.ID(), err)
	}
	sc, err := scaler.Load(scalerPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.ID(), err)
	}
	if sc.Dim() != e.FeatureCount {
		return nil, fmt.Errorf("%w: %s scaler has %d features", ErrSchemaMismatch, e.ID(), sc.Dim())
	}
	if len(sc.FeatureNames) > 0 && !slices.Equal(sc.FeatureNames, features.Names()) {
		return nil, fmt.Errorf("%w: %s scaler feature names differ from extractor columns", ErrSchemaMismatch, e.ID())
	}

	clfPath := r.path(e.Classifier.Path)
	if err := checkDigest(clfPath, e.Classifier.SHA256); err != nil {
		return nil, fmt.Errorf("%s classifier: %w", e.ID(), err)
	}
	clf, err := classifier.Load(e.Algorithm, clfPath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.ID(), err)
	}
	if clf.NumFeatures() != e.FeatureCount {
		return nil, fmt.Errorf("%w: %s classifier expects %d features", ErrSchemaMismatch, e.ID(), clf.NumFeatures())
	}

	return &Model{Entry: e, Scaler: sc, Classifier: clf}, nil
}

func (r *Registry) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, p)
}

func checkDigest(path, want string) error {
	if want == "" {
		return nil
	}
	got, err := FileDigest(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: %s is %s, manifest says %s", ErrDigestMismatch, filepath.Base(path), got, want)
	}
	return nil
}

// FileDigest is the hex sha256 of a file.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
