package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: DANOO_EXECUTION_LIVE_API_KEY
// sets execution.live.api_key.
const EnvPrefix = "DANOO"

// secretKeys are bound to the environment even when absent from the files.
var secretKeys = []string{
	"execution.sandbox.api_key",
	"execution.sandbox.api_secret",
	"execution.live.api_key",
	"execution.live.api_secret",
}

// Load reads path and its includes (depth first, includes before the
// including file), applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	setKeys := make(keySet)
	markSetKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	part := viper.New()
	part.SetConfigFile(path)
	if err := part.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(part.AllSettings())
}

// includeWalker orders config files so that every include precedes the
// file naming it. Each file is visited once; a file reached again while
// still open is a cycle.
type includeWalker struct {
	done  map[string]bool
	open  map[string]bool
	order []string
}

func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &includeWalker{done: map[string]bool{}, open: map[string]bool{}}
	if err := w.visit(root); err != nil {
		return nil, err
	}
	return w.order, nil
}

func (w *includeWalker) visit(path string) error {
	path = filepath.Clean(path)
	switch {
	case w.open[path]:
		return fmt.Errorf("include cycle at %s", path)
	case w.done[path]:
		return nil
	}
	w.open[path] = true
	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("reading includes of %s: %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := w.visit(inc); err != nil {
			return err
		}
	}
	delete(w.open, path)
	w.done[path] = true
	w.order = append(w.order, path)
	return nil
}

// readIncludes returns the include entries of one file. A single string
// is accepted as a one element list.
func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var raw []any
	switch val := v.Get("include").(type) {
	case nil:
		return nil, nil
	case string:
		raw = []any{val}
	case []any:
		raw = val
	case []string:
		for _, item := range val {
			raw = append(raw, item)
		}
	default:
		return nil, fmt.Errorf("include must be a list of paths, got %T", val)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include entry %v is not a path", item)
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// markSetKeys records every leaf key present in the merged files so that
// defaults only fill what the user left out.
func markSetKeys(prefix string, node any, dest keySet) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			if key := join(k); key != "" {
				markSetKeys(key, child, dest)
			}
		}
	case map[any]any:
		for k, child := range val {
			if ks, ok := k.(string); ok {
				if key := join(ks); key != "" {
					markSetKeys(key, child, dest)
				}
			}
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
