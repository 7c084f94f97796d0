// Package presets loads named backtest parameter sets from a YAML file
// and reloads them when the file changes.
package presets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"danoo/internal/backtest"
	"danoo/internal/logger"
)

var ErrUnknownPreset = errors.New("unknown preset")

// Preset is one entry of the presets file. Params holds overrides keyed
// like backtest.Params fields.
type Preset struct {
	ID          string         `yaml:"id"`
	Strategy    string         `yaml:"strategy"`
	Description string         `yaml:"description"`
	Params      map[string]any `yaml:"params"`

	resolved backtest.Params
}

// FileConfig maps the presets file.
type FileConfig struct {
	Presets map[string]Preset `yaml:"presets"`
}

// Resolved is a preset with its overrides applied to DefaultParams.
type Resolved struct {
	ID          string
	Strategy    string
	Description string
	Params      backtest.Params
}

type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// IDs returns preset ids in sorted order.
func (s Snapshot) IDs() []string {
	out := make([]string, 0, len(s.Presets))
	for id := range s.Presets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type ChangeListener func(Snapshot)

type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry loads path and watches it. A reload that fails validation
// keeps the previous snapshot.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("preset registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read presets failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.Reload(); err != nil {
			logger.Errorf("[presets] reload %s failed: %v", evt.Name, err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// OnChange registers fn to run after every successful hot reload.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Resolve returns the preset's strategy and full parameter set.
func (r *Registry) Resolve(id string) (Resolved, error) {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	p, ok := r.snapshot.Presets[id]
	r.mu.RUnlock()
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	return Resolved{ID: p.ID, Strategy: p.Strategy, Description: p.Description, Params: p.resolved}, nil
}

// ResolveOn applies the preset's overrides to base instead of the
// defaults, so settings owned by the caller survive unless overridden.
func (r *Registry) ResolveOn(id string, base backtest.Params) (Resolved, error) {
	id = strings.TrimSpace(id)
	r.mu.RLock()
	p, ok := r.snapshot.Presets[id]
	r.mu.RUnlock()
	if !ok {
		return Resolved{}, fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	params, err := applyOverrides(base, p.Params)
	if err != nil {
		return Resolved{}, fmt.Errorf("preset %s: %w", id, err)
	}
	return Resolved{ID: p.ID, Strategy: p.Strategy, Description: p.Description, Params: params}, nil
}

// Reload re-reads the file and swaps the snapshot when every preset is valid.
func (r *Registry) Reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Preset, len(cfg.Presets))
	for name, p := range cfg.Presets {
		norm, err := normalizePreset(name, p)
		if err != nil {
			return err
		}
		presets[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("[presets] loaded %d presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("preset listener")
			cb(snap)
		}(fn)
	}
}

func normalizePreset(name string, p Preset) (Preset, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		p.ID = strings.TrimSpace(name)
	}
	p.Strategy = strings.TrimSpace(p.Strategy)
	p.Description = strings.TrimSpace(p.Description)
	if !knownStrategy(p.Strategy) {
		return Preset{}, fmt.Errorf("preset %s: unknown strategy %q", p.ID, p.Strategy)
	}
	if err := validateParams(p.Params); err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", p.ID, err)
	}
	resolved, err := applyOverrides(backtest.DefaultParams(), p.Params)
	if err != nil {
		return Preset{}, fmt.Errorf("preset %s: %w", p.ID, err)
	}
	p.resolved = resolved
	return p, nil
}

func knownStrategy(name string) bool {
	for _, s := range backtest.Strategies() {
		if s == name {
			return true
		}
	}
	return false
}

func applyOverrides(base backtest.Params, overrides map[string]any) (backtest.Params, error) {
	if len(overrides) == 0 {
		return base, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &base,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return base, err
	}
	if err := dec.Decode(overrides); err != nil {
		return base, err
	}
	return base, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{Version: src.Version, LoadedAt: src.LoadedAt, Presets: make(map[string]Preset, len(src.Presets))}
	for id, p := range src.Presets {
		dst.Presets[id] = p
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("[presets] %s panic: %v", tag, r)
	}
}

func readPresetFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read presets failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse presets failed: %w", err)
	}
	return cfg, nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// paramsSchema is derived from backtest.Params: every key optional,
// integers and numbers non-negative, unknown keys rejected. Commission
// and slippage may be negative to mean "none".
func paramsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		props := map[string]any{}
		t := reflect.TypeOf(backtest.Params{})
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			key := f.Tag.Get("mapstructure")
			if key == "" {
				continue
			}
			prop := map[string]any{}
			switch f.Type.Kind() {
			case reflect.Int:
				prop["type"] = "integer"
				prop["minimum"] = 0
			default:
				prop["type"] = "number"
				if key != "commission_rate" && key != "slippage_rate" {
					prop["minimum"] = 0
				}
			}
			props[key] = prop
		}
		raw, err := json.Marshal(map[string]any{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": false,
		})
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("params.json", bytes.NewReader(raw)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile("params.json")
	})
	return schema, schemaErr
}

func validateParams(params map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	s, err := paramsSchema()
	if err != nil {
		return err
	}
	// yaml.v3 yields int for integer literals; the validator wants JSON types.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
