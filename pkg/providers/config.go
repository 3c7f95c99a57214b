package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// sourcesFile represents the structure of the sources configuration file.
type sourcesFile struct {
	Sources []Provider `json:"sources" yaml:"sources"`
}

// ConfigRegistry holds the configured sources loaded from a file.
type ConfigRegistry struct {
	mu      sync.RWMutex
	sources []Provider
	idx     map[string]Provider
}

// LoadConfig loads the sources registry from a YAML/JSON file.
func LoadConfig(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return ParseConfig([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseConfig decodes and validates sources file content. ext selects the
// decoder; an empty ext tries YAML then JSON.
func ParseConfig(data []byte, ext string) (*ConfigRegistry, error) {
	file, err := parseSources(data, ext)
	if err != nil {
		return nil, err
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("sources file contains no sources entries")
	}
	return NewConfigRegistry(file.Sources...)
}

// NewConfigRegistry validates and indexes the given sources.
func NewConfigRegistry(sources ...Provider) (*ConfigRegistry, error) {
	reg := &ConfigRegistry{
		sources: make([]Provider, len(sources)),
		idx:     make(map[string]Provider, len(sources)),
	}
	for i := range sources {
		cfg := sanitizeProvider(sources[i])
		if cfg.ID == "" {
			return nil, fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate source id %q", cfg.ID)
		}
		reg.sources[i] = cfg
		reg.idx[cfg.ID] = cfg
	}
	return reg, nil
}

func parseSources(data []byte, ext string) (sourcesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var file sourcesFile
		if err := d.fn(data, &file); err == nil {
			return file, nil
		}
	}

	return sourcesFile{}, errors.New("sources file format not recognized (expected YAML or JSON)")
}

func sanitizeProvider(cfg Provider) Provider {
	cfg.ID = strings.ToLower(strings.TrimSpace(cfg.ID))
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	cfg.SourceURL = strings.TrimSpace(cfg.SourceURL)
	cfg.Title = strings.TrimSpace(cfg.Title)
	cfg.Link = strings.TrimSpace(cfg.Link)
	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	return cfg
}

// ByID returns the source config by id.
func (r *ConfigRegistry) ByID(id string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return Provider{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[id]
	return cfg, ok
}

// All returns all configured sources.
func (r *ConfigRegistry) All() []Provider {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.sources))
	copy(out, r.sources)
	return out
}

// Enabled returns sources that are enabled.
func (r *ConfigRegistry) Enabled() []Provider {
	all := r.All()
	out := make([]Provider, 0, len(all))
	for _, cfg := range all {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}
