// Package config defines the facade's constructor options and an
// optional sidecar YAML file for them, grounded on
// ssargent-freyjadb's pkg/config/config.go DefaultConfig/LoadConfig/
// SaveConfig trio. This is distinct from the in-store header record
// (pkg/annforest's header.go, persisted inside the KV store itself);
// this file is a convenience for driving cmd/forestctl without
// repeating flags on every invocation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"annforest/pkg/errs"
)

// Options mirrors the original Annoy/LMDB constructor's field order
// (f, K, dir, tree_count, max_reader, max_size, read_only, metric),
// confirmed against original_source/src/annoymodule.cc's py_an_init.
type Options struct {
	F               int    `yaml:"f"`
	K               int    `yaml:"k"`
	Directory       string `yaml:"directory"`
	TreeCount       int    `yaml:"tree_count"`
	MaxReaders      int    `yaml:"max_readers"`
	MapSize         int64  `yaml:"map_size"`
	ReadOnly        bool   `yaml:"read_only"`
	Metric          string `yaml:"metric"` // "angular" or "euclidean"
	SkipHeaderCheck bool   `yaml:"skip_header_check"`
}

// DefaultOptions returns sane defaults for dimension f: K sized to hold a
// handful of float32 vectors per leaf, a single tree, and angular
// distance — matching spec.md's documented default tree_count=1 when the
// caller has no stronger opinion.
func DefaultOptions(f int) Options {
	return Options{
		F:          f,
		K:          maxInt(2*f, 4),
		TreeCount:  1,
		MaxReaders: 126,
		MapSize:    1 << 30,
		Metric:     "angular",
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MetricTag maps the human-readable Metric field to the single-byte tag
// that metric.ForName accepts and the on-disk header stores.
func (o Options) MetricTag() byte {
	if len(o.Metric) > 0 && o.Metric[0] == 'e' {
		return 'e'
	}
	return 'a'
}

// Load reads Options from a YAML file at path.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w: %v", path, errs.ErrInvalidInput, err)
	}
	return opts, nil
}

// Save writes opts as YAML to path, creating parent directories as needed.
func Save(opts Options, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
